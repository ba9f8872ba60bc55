// Package vela is the compiler core for the Vela language: a single
// synchronous pipeline that takes source text through lexing, parsing, name
// resolution, type inference, lifetime and borrow checking, SSA lowering,
// and optimization, producing an IR module for a backend to consume.
package vela

import (
	"fmt"
	"io"
	"os"

	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/pipeline"
)

// Compiler wraps a configured pipeline and an output stream for rendered
// diagnostics.
type Compiler struct {
	p   *pipeline.Pipeline
	out io.Writer
}

// New creates a Compiler with the given configuration. If nil is given for
// the output stream, diagnostics render to stderr.
func New(cfg pipeline.Config, diagOutput io.Writer) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if diagOutput == nil {
		diagOutput = os.Stderr
	}
	return &Compiler{p: pipeline.New(cfg), out: diagOutput}, nil
}

// CompileFile compiles the named source file to an IR module. Diagnostics
// are rendered to the Compiler's output stream; a nil module with a nil
// error means compilation stopped on source errors that were already
// reported.
func (c *Compiler) CompileFile(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return c.CompileSource(path, string(data)), nil
}

// CompileSource compiles one unit of source text under the given display
// path. The module is nil if any stage reported an error.
func (c *Compiler) CompileSource(path, src string) *ir.Module {
	mod, diags := c.p.Compile(path, src)
	if len(diags.All()) > 0 {
		pr := diag.NewPresenter(c.p.Files())
		fmt.Fprint(c.out, pr.RenderAll(diags.All()))
	}
	return mod
}
