package parser

import (
	"strings"

	"github.com/roach88/consim/internal/ir"
)

// predicate parses an inbox predicate. "or" binds loosest, then "and",
// then the "not" prefix, then comparisons and the fixed vocabulary.
func (p *parser) predicate(s string, line int) (ir.Predicate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errorf(line, "expected predicate")
	}
	if err := checkBalanced(s); err != nil {
		return nil, errorf(line, "%v in %q", err, s)
	}
	if inner, ok := stripParens(s); ok {
		return p.predicate(inner, line)
	}

	for _, op := range []ir.LogicOp{ir.LogicOr, ir.LogicAnd} {
		parts := splitTopLevelWord(s, string(op))
		if len(parts) < 2 {
			continue
		}
		operands := make([]ir.Predicate, len(parts))
		for i, part := range parts {
			operand, err := p.predicate(part, line)
			if err != nil {
				return nil, err
			}
			operands[i] = operand
		}
		return ir.Logical{Op: op, Operands: operands}, nil
	}

	if rest, ok := cutWord(s, string(ir.LogicNot)); ok {
		operand, err := p.predicate(rest, line)
		if err != nil {
			return nil, err
		}
		return ir.Logical{Op: ir.LogicNot, Operands: []ir.Predicate{operand}}, nil
	}

	for _, op := range ir.CompareOps {
		if i := topLevelIndex(s, string(op)); i >= 0 {
			return p.comparison(s[:i], s[i+len(op):], op, line)
		}
	}
	if i := topLevelIndex(s, "="); i >= 0 {
		return p.comparison(s[:i], s[i+1:], ir.CmpEQ, line)
	}
	return p.atom(s, line)
}

func (p *parser) comparison(lhs, rhs string, op ir.CompareOp, line int) (ir.Predicate, error) {
	left, err := p.expr(lhs, line)
	if err != nil {
		return nil, err
	}
	right, err := p.expr(rhs, line)
	if err != nil {
		return nil, err
	}
	return ir.Comparison{Op: op, Left: left, Right: right}, nil
}

func (p *parser) atom(s string, line int) (ir.Predicate, error) {
	switch strings.Join(strings.Fields(s), " ") {
	case "received_any":
		return ir.ReceivedAny{}, nil
	case "received_all":
		return ir.ReceivedAll{}, nil
	case "received_majority":
		return ir.ReceivedMajority{}, nil
	case "received_diff":
		return ir.ReceivedDiff{Var: p.stateVar}, nil
	case "self is leader", "is_leader", "is leader":
		return ir.IsLeader{}, nil
	}

	name, args, ok := splitCall(s)
	if !ok {
		return nil, errorf(line, "unknown predicate %q", s)
	}
	switch name {
	case "received_at_least":
		k, ok := parseCount(args)
		if !ok {
			return nil, errorf(line, "received_at_least expects a non-negative integer, got %q", args)
		}
		return ir.ReceivedAtLeast{K: k}, nil
	case "received_diff":
		if !p.isSelfRef(args) {
			return nil, errorf(line, "received_diff takes the state variable %q, got %q", p.stateVar, args)
		}
		return ir.ReceivedDiff{Var: p.stateVar}, nil
	case "received_from":
		id, err := p.processID(args, line)
		if err != nil {
			return nil, err
		}
		return ir.ReceivedFrom{Sender: id}, nil
	}
	return nil, errorf(line, "unknown predicate %q", s)
}
