// Package diag defines the structured diagnostic record that every pipeline
// stage emits into, and a Collector that accumulates them
// keyed by source position. Rendering is deliberately a separate concern
// (see present.go); this file only builds the structure.
package diag

import (
	"fmt"

	"github.com/dekarrin/vela/internal/source"
)

// Severity is a diagnostic's importance. Severities are totally ordered:
// Error > Warning > Info > Hint.
type Severity int

const (
	Hint Severity = iota
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Hint:
		return "hint"
	default:
		return "unknown"
	}
}

// Label is a secondary source location attached to a diagnostic, e.g.
// "previous definition here".
type Label struct {
	Span    source.Span
	Message string
}

// Diagnostic is one structured report: severity, a
// stable code, a message, a primary location, and optional secondary labels,
// notes, and suggestions. The core only ever produces this structure; a
// presenter (see present.go) is responsible for turning it into text.
type Diagnostic struct {
	Severity    Severity
	Code        string // stable string such as "E0308"
	Message     string
	Primary     source.Span
	Secondary   []Label
	Notes       []string
	Suggestions []string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s [%s]", d.Primary.Start, d.Severity, d.Message, d.Code)
}

// New constructs a plain diagnostic with no secondary labels, notes, or
// suggestions.
func New(sev Severity, code string, span source.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	}
}

// Errorf constructs an error-severity diagnostic.
func Errorf(code string, span source.Span, format string, args ...interface{}) Diagnostic {
	return New(Error, code, span, format, args...)
}

// Warningf constructs a warning-severity diagnostic.
func Warningf(code string, span source.Span, format string, args ...interface{}) Diagnostic {
	return New(Warning, code, span, format, args...)
}

// WithLabel returns a copy of d with a secondary label appended.
func (d Diagnostic) WithLabel(span source.Span, format string, args ...interface{}) Diagnostic {
	d.Secondary = append(append([]Label{}, d.Secondary...), Label{Span: span, Message: fmt.Sprintf(format, args...)})
	return d
}

// WithNote returns a copy of d with a note appended.
func (d Diagnostic) WithNote(format string, args ...interface{}) Diagnostic {
	d.Notes = append(append([]string{}, d.Notes...), fmt.Sprintf(format, args...))
	return d
}

// WithSuggestion returns a copy of d with a suggestion appended.
func (d Diagnostic) WithSuggestion(s string) Diagnostic {
	d.Suggestions = append(append([]string{}, d.Suggestions...), s)
	return d
}

// Collector accumulates diagnostics from every stage of the pipeline,
// keyed implicitly by the position each Diagnostic already carries. Stages
// collect rather than abort, so one run surfaces as many actionable
// problems as possible.
type Collector struct {
	diags []Diagnostic
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends a diagnostic.
func (c *Collector) Add(d Diagnostic) {
	c.diags = append(c.diags, d)
}

// Addf is shorthand for Add(New(...)).
func (c *Collector) Addf(sev Severity, code string, span source.Span, format string, args ...interface{}) {
	c.Add(New(sev, code, span, format, args...))
}

// All returns every diagnostic collected so far, in the order they were
// added.
func (c *Collector) All() []Diagnostic {
	return c.diags
}

// HasErrors reports whether any Error-severity diagnostic was collected.
// A stage's caller must check this before proceeding: an error-count > 0
// aborts the pipeline at the end of the producing stage.
func (c *Collector) HasErrors() bool {
	for _, d := range c.diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics of at least the given severity.
func (c *Collector) Count(min Severity) int {
	n := 0
	for _, d := range c.diags {
		if d.Severity >= min {
			n++
		}
	}
	return n
}

// Merge appends every diagnostic from other into c, preserving order.
func (c *Collector) Merge(other *Collector) {
	if other == nil {
		return
	}
	c.diags = append(c.diags, other.diags...)
}
