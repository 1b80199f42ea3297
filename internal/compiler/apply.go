package compiler

import (
	"slices"

	"github.com/roach88/consim/internal/ir"
)

// ApplyUpdate evaluates one update rule and returns the new value.
func ApplyUpdate(u ir.Update, ctx *Context) (float64, error) {
	switch r := u.(type) {
	case ir.Conditional:
		ok, err := EvaluatePredicate(r.Cond, ctx)
		if err != nil {
			return 0, err
		}
		if ok {
			return ApplyUpdate(r.Then, ctx)
		}
		return ApplyUpdate(r.Else, ctx)

	case ir.ConditionalNoElse:
		ok, err := EvaluatePredicate(r.Cond, ctx)
		if err != nil {
			return 0, err
		}
		if ok {
			return ApplyUpdate(r.Then, ctx)
		}
		return ctx.XSelf, nil

	case ir.Assign:
		return EvaluateExpr(r.Value, ctx)

	case ir.SimpleOp:
		values := append(ctx.InboxValues(), ctx.XSelf)
		switch r.Op {
		case ir.SimpleAverage:
			return sum(values) / float64(len(values)), nil
		case ir.SimpleMin:
			return slices.Min(values), nil
		case ir.SimpleMax:
			return slices.Max(values), nil
		case ir.SimpleMidpoint:
			return (slices.Min(values) + slices.Max(values)) / 2, nil
		}
		return 0, ctx.fail(ErrCodeMalformedRule, "unknown simple operation %q", r.Op)

	case ir.IfReceivedDiff:
		if len(ctx.DiffValues()) > 0 {
			return EvaluateExpr(r.Then, ctx)
		}
		return EvaluateExpr(r.Else, ctx)
	}
	return 0, ctx.fail(ErrCodeMalformedRule, "unknown update rule type %T", u)
}

// PhaseActive reports whether phase runs in round. discrepancy is the
// discrepancy of the committed state before the round.
func (s *ExperimentSpec) PhaseActive(phase ir.UpdatePhase, round int, discrepancy float64) bool {
	switch phase.Kind {
	case ir.PhaseEachRound:
		return true
	case ir.PhaseFirstRound:
		return round == 1
	case ir.PhaseAfterRounds:
		return round > phase.After
	case ir.PhaseUntilConsensus:
		return discrepancy > s.ConsensusEps
	}
	return false
}

// Apply runs every phase active in ctx.Round in declaration order and
// returns the process's provisional new value. Without an active phase the
// value is unchanged.
func (s *ExperimentSpec) Apply(ctx *Context, discrepancy float64) (float64, error) {
	x := ctx.XSelf
	for _, phase := range s.Phases {
		if !s.PhaseActive(phase, ctx.Round, discrepancy) {
			continue
		}
		ctx.XSelf = x
		next, err := ApplyUpdate(phase.Rule, ctx)
		if err != nil {
			return 0, err
		}
		x = next
	}
	return x, nil
}

// ApplyEnd runs the END phase, if any.
func (s *ExperimentSpec) ApplyEnd(ctx *Context) (float64, error) {
	if s.End == nil {
		return ctx.XSelf, nil
	}
	return ApplyUpdate(s.End.Rule, ctx)
}
