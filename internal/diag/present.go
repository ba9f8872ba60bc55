package diag

import (
	"fmt"
	"strings"

	"github.com/dekarrin/rosed"
	"github.com/dekarrin/vela/internal/source"
	"golang.org/x/text/width"
)

// messageWrapWidth is the wrap width for notes and suggestions;
// diagnostics are usually read in a narrow terminal.
const messageWrapWidth = 80

// Presenter renders Diagnostics to text against a source.Map, reprinting the
// offending line with a caret. Rendering is kept separate
// from the Diagnostic structure itself so a hosting tool can swap in its own
// presenter (e.g. an LSP client rendering squiggles instead of text).
type Presenter struct {
	Files *source.Map
}

// NewPresenter returns a Presenter that resolves spans against files.
func NewPresenter(files *source.Map) *Presenter {
	return &Presenter{Files: files}
}

// Render formats a single diagnostic as a multi-line human-readable report:
// a header line, the offending source line with a caret under the column,
// any secondary labels, then wrapped notes and suggestions.
func (p *Presenter) Render(d Diagnostic) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s[%s]: %s\n", d.Severity, d.Code, d.Message)
	p.renderSpan(&sb, d.Primary, "")

	for _, lbl := range d.Secondary {
		fmt.Fprintf(&sb, "  note: %s\n", lbl.Message)
		p.renderSpan(&sb, lbl.Span, "  ")
	}

	for _, note := range d.Notes {
		wrapped := rosed.Edit(note).Wrap(messageWrapWidth).String()
		fmt.Fprintf(&sb, "  = note: %s\n", wrapped)
	}
	for _, sug := range d.Suggestions {
		wrapped := rosed.Edit(sug).Wrap(messageWrapWidth).String()
		fmt.Fprintf(&sb, "  = help: %s\n", wrapped)
	}

	return sb.String()
}

func (p *Presenter) renderSpan(sb *strings.Builder, span source.Span, indent string) {
	f, ok := p.Files.Get(span.Start.File)
	if !ok {
		return
	}
	fmt.Fprintf(sb, "%s  --> %s:%s\n", indent, f.Path, span.Start)
	line := f.LineText(span.Start.Line)
	fmt.Fprintf(sb, "%s  %s\n", indent, line)
	fmt.Fprintf(sb, "%s  %s^\n", indent, strings.Repeat(" ", displayWidth(line, span.Start.Column-1)))
}

// displayWidth measures how many caret columns the first n runes of line
// occupy, widening for East-Asian double-width runes so the caret still
// lands under multi-byte source text.
func displayWidth(line string, n int) int {
	if n < 0 {
		n = 0
	}
	runes := []rune(line)
	if n > len(runes) {
		n = len(runes)
	}
	w := 0
	for _, r := range runes[:n] {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2
		default:
			w++
		}
	}
	return w
}

// RenderAll renders every diagnostic in order, separated by blank lines,
// and appends a summary table of counts per severity.
func (p *Presenter) RenderAll(diags []Diagnostic) string {
	var sb strings.Builder
	for _, d := range diags {
		sb.WriteString(p.Render(d))
		sb.WriteString("\n")
	}

	counts := map[Severity]int{}
	for _, d := range diags {
		counts[d.Severity]++
	}
	data := [][]string{
		{"severity", "count"},
		{"error", fmt.Sprintf("%d", counts[Error])},
		{"warning", fmt.Sprintf("%d", counts[Warning])},
		{"info", fmt.Sprintf("%d", counts[Info])},
		{"hint", fmt.Sprintf("%d", counts[Hint])},
	}
	sb.WriteString(rosed.Edit("").InsertTableOpts(0, data, messageWrapWidth, rosed.Options{TableBorders: true}).String())
	return sb.String()
}
