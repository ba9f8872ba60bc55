// Package optimize implements the fixed-point IR pass pipeline: constant
// folding and propagation, dead-code elimination, common
// subexpression elimination, loop-invariant code motion, strength
// reduction, cost-bounded inlining, and tail-call conversion. Which passes
// run, and how aggressively, is selected by the optimization level.
package optimize

import (
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/ir"
)

// Level is the optimization level, 0 through 3.
type Level int

const (
	O0 Level = iota
	O1
	O2
	O3
)

// maxFixpointIters bounds the fixpoint loop at O2; O3 runs it uncapped, and
// O1 makes a single sweep without the loop.
const maxFixpointIters = 10

// inlining cost thresholds per level
const (
	inlineThresholdO2 = 50
	inlineThresholdO3 = 100
)

// Optimizer runs the pass pipeline over a module. It is only ever mutated
// by the currently running pass; the module is read-only to everything
// else while Run executes.
type Optimizer struct {
	level Level
	diags *diag.Collector
}

// New returns an Optimizer for the given level.
func New(level Level) *Optimizer {
	return &Optimizer{level: level, diags: diag.NewCollector()}
}

// Diagnostics returns optimizer diagnostics (e.g. overflow warnings from
// checked constant folding).
func (o *Optimizer) Diagnostics() *diag.Collector { return o.diags }

// Run applies the level's passes: none at O0, one folding+DCE sweep at O1,
// and at O2/O3 the full pipeline to fixpoint. Each fixpoint iteration
// measures the module's total instruction count and stops once no pass
// reports a change.
func (o *Optimizer) Run(m *ir.Module) {
	if o.level == O0 {
		return
	}

	if o.level == O1 {
		// a single folding+DCE sweep, no fixpoint
		for _, f := range m.Functions {
			o.constFold(f)
			o.deadCode(f)
		}
		return
	}

	threshold := inlineThresholdO2
	if o.level >= O3 {
		threshold = inlineThresholdO3
	}

	for iter := 0; ; iter++ {
		if o.level < O3 && iter >= maxFixpointIters {
			break
		}
		changed := false
		before := m.InstrCount()

		for _, f := range m.Functions {
			changed = o.constFold(f) || changed
			changed = o.constProp(f) || changed
			changed = o.cse(f) || changed
			if o.level >= O3 {
				changed = o.strengthReduce(f) || changed
				changed = o.licm(f) || changed
			}
			changed = o.tailCall(f) || changed
			changed = o.deadCode(f) || changed
		}
		changed = o.inline(m, threshold) || changed

		if !changed && m.InstrCount() == before {
			break
		}
	}
}

// replaceUses rewrites every operand in f that names `from` to the value
// `to`, including phi incomings and terminator operands.
func replaceUses(f *ir.Function, from string, to ir.Value) {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			for i := range in.Args {
				if !in.Args[i].IsConst() && in.Args[i].Name == from {
					in.Args[i] = to
				}
			}
			for i := range in.Incoming {
				if !in.Incoming[i].Value.IsConst() && in.Incoming[i].Value.Name == from {
					in.Incoming[i].Value = to
				}
			}
		}
		if b.Term != nil && b.Term.Value != nil && !b.Term.Value.IsConst() && b.Term.Value.Name == from {
			v := to
			b.Term.Value = &v
		}
	}
}
