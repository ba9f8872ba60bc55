// Package source holds the positional bookkeeping shared by every later
// stage: a map from registered files to their content, and the position and
// span types that every AST node, IR instruction, and diagnostic carries.
package source

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// FileID opaquely identifies a registered file. It is a UUID rather than a
// small integer so that callers cannot accidentally treat it as an index or
// rely on allocation order.
type FileID uuid.UUID

// Nil is the zero FileID, never returned by Map.Add.
var Nil = FileID(uuid.Nil)

func (id FileID) String() string {
	return uuid.UUID(id).String()
}

// Position is a single point in source text: a file, a 1-indexed line and
// column, and the byte offset of that point within the file's content.
type Position struct {
	File   FileID
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open byte range [Start, End) within a single file, carried
// by every AST node, IR instruction, and diagnostic.
type Span struct {
	Start Position
	End   Position
}

// Join returns the smallest span enclosing both s and o. The two spans must
// belong to the same file; Join does not check this.
func (s Span) Join(o Span) Span {
	joined := s
	if o.Start.Offset < joined.Start.Offset {
		joined.Start = o.Start
	}
	if o.End.Offset > joined.End.Offset {
		joined.End = o.End
	}
	return joined
}

// File is a single registered compilation unit: its path, its full text, and
// a BLAKE2b-256 fingerprint of that text. Map.Add does not deduplicate:
// identical text registered twice becomes two files.
type File struct {
	ID       FileID
	Path     string
	Content  string
	Checksum [32]byte
}

// LineText returns the full text of the 1-indexed line, without its
// terminating newline. Used by the diagnostic presenter to reprint the
// offending line with a caret.
func (f File) LineText(line int) string {
	if line < 1 {
		return ""
	}
	lines := strings.Split(f.Content, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimSuffix(lines[line-1], "\r")
}

// Map associates file ids with the file's path and content so that
// diagnostics anywhere downstream can reprint the offending line. It is
// built up during lexing/parsing and is read-only afterward.
type Map struct {
	files map[FileID]*File
	order []FileID
}

// NewMap returns an empty source map.
func NewMap() *Map {
	return &Map{files: make(map[FileID]*File)}
}

// Add registers a new file with the given path and content and returns its
// freshly allocated FileID.
func (m *Map) Add(path, content string) FileID {
	id := FileID(uuid.New())
	m.files[id] = &File{
		ID:       id,
		Path:     path,
		Content:  content,
		Checksum: blake2b.Sum256([]byte(content)),
	}
	m.order = append(m.order, id)
	return id
}

// Get returns the registered file for id, or false if no such file was
// registered.
func (m *Map) Get(id FileID) (*File, bool) {
	f, ok := m.files[id]
	return f, ok
}

// Files returns the registered files in registration order.
func (m *Map) Files() []*File {
	out := make([]*File, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.files[id])
	}
	return out
}
