// Package pipeline wires the compiler stages into the
// single-threaded, synchronous pipeline that turns source text into an
// optimized IR module: lex, parse, resolve, infer, lifetime-check, borrow
// check, lower to SSA, validate, optimize. Each stage fully consumes its
// predecessor's output, and compilation stops at the end of any stage that
// produced an error.
package pipeline

import (
	"fmt"

	"github.com/dekarrin/vela/internal/borrow"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/infer"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/lifetime"
	"github.com/dekarrin/vela/internal/lower"
	"github.com/dekarrin/vela/internal/optimize"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/source"
)

// Pipeline compiles one unit at a time against a shared source map, so a
// host can feed it several snippets and still render every diagnostic with
// its offending line.
type Pipeline struct {
	cfg   Config
	files *source.Map
}

// New returns a Pipeline with the given configuration and an empty source
// map.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, files: source.NewMap()}
}

// Files returns the source map, for presenters.
func (p *Pipeline) Files() *source.Map {
	return p.files
}

// Compile runs the whole pipeline over one unit of source text. The
// returned collector holds every diagnostic produced; the module is nil
// whenever any stage reported an error, in which case nothing must reach
// the backend.
func (p *Pipeline) Compile(path, src string) (m *ir.Module, diags *diag.Collector) {
	diags = diag.NewCollector()

	// IR validation failures and other invariant violations are compiler
	// bugs; surface them as a diagnostic rather than a crash.
	defer func() {
		if panicked := recover(); panicked != nil {
			diags.Add(diag.Errorf("E0900", source.Span{},
				"internal compiler error: %v", panicked))
			m = nil
		}
	}()

	fid := p.files.Add(path, src)

	// lex
	lx := lexer.New(fid, src)
	toks := lx.Lex()
	for _, err := range lx.Errors() {
		if lerr, ok := err.(*lexer.Error); ok {
			diags.Add(diag.Errorf("E0001", lerr.Span, "%s", lerr.Message))
		} else {
			diags.Add(diag.Errorf("E0001", source.Span{}, "%s", err))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	// parse
	ps := parser.New(fid, toks)
	file := ps.ParseFile()
	diags.Merge(ps.Diagnostics())
	if diags.HasErrors() {
		return nil, diags
	}

	// resolve names
	rs := resolve.New()
	rs.Resolve(file)
	diags.Merge(rs.Diagnostics())
	if diags.HasErrors() {
		return nil, diags
	}

	// infer types
	inf := infer.New(rs.Table(), p.cfg.Strict)
	inf.InferFile(file)
	diags.Merge(inf.Diagnostics())
	if diags.HasErrors() {
		return nil, diags
	}

	// lifetimes
	lt := lifetime.New(rs.Table())
	if !p.cfg.Elision {
		lt.DisableElision()
	}
	lt.Check(file)
	diags.Merge(lt.Diagnostics())
	if diags.HasErrors() {
		return nil, diags
	}

	// borrows
	bc := borrow.New(rs.Table())
	bc.Check(file)
	diags.Merge(bc.Diagnostics())
	if diags.HasErrors() {
		return nil, diags
	}

	// lower to SSA IR
	lw := lower.New(rs.Table())
	mod := lw.LowerFile(file, path)
	diags.Merge(lw.Diagnostics())
	if diags.HasErrors() {
		return nil, diags
	}

	if p.cfg.ValidateIR {
		p.reportValidation(mod, diags, "after lowering")
		if diags.HasErrors() {
			return nil, diags
		}
	}

	// optimize
	opt := optimize.New(optimize.Level(p.cfg.OptLevel))
	opt.Run(mod)
	diags.Merge(opt.Diagnostics())

	if p.cfg.ValidateIR {
		p.reportValidation(mod, diags, "after optimization")
	}
	if diags.HasErrors() {
		return nil, diags
	}

	return mod, diags
}

func (p *Pipeline) reportValidation(m *ir.Module, diags *diag.Collector, when string) {
	for _, err := range ir.Validate(m) {
		diags.Add(diag.Errorf("E0901", source.Span{},
			"internal compiler error (%s): %s", when, fmt.Sprintf("%v", err)))
	}
}
