package compiler

import (
	"slices"

	"github.com/roach88/consim/internal/ir"
)

// EvaluateExpr evaluates an expression against ctx.
func EvaluateExpr(expr ir.Expr, ctx *Context) (float64, error) {
	switch e := expr.(type) {
	case ir.SelfValue:
		return ctx.XSelf, nil

	case ir.ParamRef:
		v, ok := ctx.Params[e.Name]
		if !ok {
			return 0, ctx.fail(ErrCodeMissingParameter, "parameter %q is not defined", e.Name)
		}
		return v, nil

	case ir.Literal:
		return e.Value, nil

	case ir.BinaryOp:
		l, err := EvaluateExpr(e.Left, ctx)
		if err != nil {
			return 0, err
		}
		r, err := EvaluateExpr(e.Right, ctx)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case ir.OpAdd:
			return l + r, nil
		case ir.OpSub:
			return l - r, nil
		case ir.OpMul:
			return l * r, nil
		case ir.OpDiv:
			if r == 0 {
				return 0, ctx.fail(ErrCodeDivisionByZero, "division by zero")
			}
			return l / r, nil
		}
		return 0, ctx.fail(ErrCodeMalformedRule, "unknown arithmetic operator %q", e.Op)

	case ir.Aggregate:
		return aggregate(e, ctx)

	case ir.ReceivedOther:
		for _, m := range ctx.Inbox {
			if m.Payload != ctx.Snapshot {
				return m.Payload, nil
			}
		}
		return ctx.XSelf, nil

	case ir.ValueFrom:
		m, ok := ctx.messageFrom(e.Sender)
		if !ok {
			return 0, ctx.fail(ErrCodeMissingMessage, "no message from process %d this round", e.Sender)
		}
		return m.Payload, nil
	}
	return 0, ctx.fail(ErrCodeMalformedRule, "unknown expression type %T", expr)
}

func aggregate(a ir.Aggregate, ctx *Context) (float64, error) {
	var values []float64
	switch a.Source {
	case ir.SourceInbox:
		values = ctx.InboxValues()
	case ir.SourceInboxWithSelf:
		values = append(ctx.InboxValues(), ctx.XSelf)
	case ir.SourceFiltered:
		for _, m := range ctx.Inbox {
			if slices.Contains(a.Senders, m.Sender) {
				values = append(values, m.Payload)
			}
		}
		if a.IncludeSelf {
			values = append(values, ctx.XSelf)
		}
	default:
		return 0, ctx.fail(ErrCodeMalformedRule, "unknown aggregation source %q", a.Source)
	}

	if a.Func == ir.AggCount {
		return float64(len(values)), nil
	}
	if len(values) == 0 {
		return 0, ctx.fail(ErrCodeEmptyAggregation, "%s over empty %s", a.Func, a.Source)
	}

	switch a.Func {
	case ir.AggSum:
		return sum(values), nil
	case ir.AggAvg:
		return sum(values) / float64(len(values)), nil
	case ir.AggMin:
		return slices.Min(values), nil
	case ir.AggMax:
		return slices.Max(values), nil
	}
	return 0, ctx.fail(ErrCodeMalformedRule, "unknown aggregation function %q", a.Func)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// EvaluatePredicate evaluates a predicate against ctx.
func EvaluatePredicate(pred ir.Predicate, ctx *Context) (bool, error) {
	switch p := pred.(type) {
	case ir.ReceivedAny:
		return len(ctx.Inbox) > 0, nil

	case ir.ReceivedAll:
		// One message per sender per round, so this is "every other process".
		return ctx.distinctSenders() >= ctx.NumNodes-1, nil

	case ir.ReceivedAtLeast:
		return len(ctx.Inbox) >= p.K, nil

	case ir.ReceivedMajority:
		return 2*(len(ctx.Inbox)+1) > ctx.NumNodes, nil

	case ir.ReceivedDiff:
		return len(ctx.DiffValues()) > 0, nil

	case ir.ReceivedFrom:
		_, ok := ctx.messageFrom(p.Sender)
		return ok, nil

	case ir.IsLeader:
		leader, ok := ctx.LeaderID()
		if !ok {
			return false, ctx.fail(ErrCodeMissingLeader, "is_leader used but no leader role is declared")
		}
		return ctx.NodeID == leader, nil

	case ir.Comparison:
		l, err := EvaluateExpr(p.Left, ctx)
		if err != nil {
			return false, err
		}
		r, err := EvaluateExpr(p.Right, ctx)
		if err != nil {
			return false, err
		}
		switch p.Op {
		case ir.CmpGE:
			return l >= r, nil
		case ir.CmpLE:
			return l <= r, nil
		case ir.CmpNE:
			return l != r, nil
		case ir.CmpEQ:
			return l == r, nil
		case ir.CmpGT:
			return l > r, nil
		case ir.CmpLT:
			return l < r, nil
		}
		return false, ctx.fail(ErrCodeMalformedRule, "unknown comparison operator %q", p.Op)

	case ir.Logical:
		return evaluateLogical(p, ctx)
	}
	return false, ctx.fail(ErrCodeMalformedRule, "unknown predicate type %T", pred)
}

func evaluateLogical(l ir.Logical, ctx *Context) (bool, error) {
	switch l.Op {
	case ir.LogicNot:
		if len(l.Operands) != 1 {
			return false, ctx.fail(ErrCodeMalformedRule, "not takes one operand, got %d", len(l.Operands))
		}
		v, err := EvaluatePredicate(l.Operands[0], ctx)
		return !v, err
	case ir.LogicAnd, ir.LogicOr:
		// and stops at the first false operand, or at the first true one
		stopOn := l.Op == ir.LogicOr
		for _, operand := range l.Operands {
			v, err := EvaluatePredicate(operand, ctx)
			if err != nil {
				return false, err
			}
			if v == stopOn {
				return stopOn, nil
			}
		}
		return !stopOn, nil
	}
	return false, ctx.fail(ErrCodeMalformedRule, "unknown logical operator %q", l.Op)
}
