package parser

import (
	"strconv"
	"strings"

	"github.com/roach88/consim/internal/ir"
)

var aggFuncs = map[string]ir.AggFunc{
	"sum":   ir.AggSum,
	"avg":   ir.AggAvg,
	"mean":  ir.AggAvg,
	"min":   ir.AggMin,
	"max":   ir.AggMax,
	"count": ir.AggCount,
}

// isSelfRef reports whether s names the evaluating process's own value.
func (p *parser) isSelfRef(s string) bool {
	switch compact(s) {
	case "self", p.stateVar, p.stateVar + "_i", p.stateVar + "[i]":
		return true
	}
	return false
}

// expr parses an arithmetic expression. Additive operators bind loosest;
// scanning right to left for the split point keeps both levels left
// associative.
func (p *parser) expr(s string, line int) (ir.Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errorf(line, "expected expression")
	}
	if err := checkBalanced(s); err != nil {
		return nil, errorf(line, "%v in %q", err, s)
	}
	if inner, ok := stripParens(s); ok {
		return p.expr(inner, line)
	}

	for _, ops := range []string{"+-", "*/"} {
		i := lastBinaryOp(s, ops)
		if i < 0 {
			continue
		}
		left, right := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		if left == "" || right == "" {
			return nil, errorf(line, "missing operand for %q in %q", s[i], s)
		}
		l, err := p.expr(left, line)
		if err != nil {
			return nil, err
		}
		r, err := p.expr(right, line)
		if err != nil {
			return nil, err
		}
		return ir.BinaryOp{Op: ir.ArithOp(s[i : i+1]), Left: l, Right: r}, nil
	}

	if rest, ok := strings.CutPrefix(s, "-"); ok {
		operand, err := p.expr(rest, line)
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(ir.Literal); ok {
			return ir.Literal{Value: -lit.Value}, nil
		}
		return ir.BinaryOp{Op: ir.OpSub, Left: ir.Literal{Value: 0}, Right: operand}, nil
	}
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		return p.expr(rest, line)
	}
	return p.term(s, line)
}

// lastBinaryOp finds the rightmost operator from ops outside all brackets,
// skipping unary signs and exponent signs of numeric literals.
func lastBinaryOp(s, ops string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		switch {
		case isClose(c):
			depth++
		case isOpen(c):
			depth--
		case depth == 0 && strings.IndexByte(ops, c) >= 0:
			if (c == '-' || c == '+') && (isUnary(s, i) || isExponentSign(s, i)) {
				continue
			}
			return i
		}
	}
	return -1
}

func isUnary(s string, i int) bool {
	prev := strings.TrimRight(s[:i], " \t")
	if prev == "" {
		return true
	}
	return strings.IndexByte("+-*/([{,", prev[len(prev)-1]) >= 0
}

func isExponentSign(s string, i int) bool {
	if i < 2 || (s[i-1] != 'e' && s[i-1] != 'E') {
		return false
	}
	j := i - 1
	for j > 0 && (s[j-1] >= '0' && s[j-1] <= '9' || s[j-1] == '.') {
		j--
	}
	if j == i-1 {
		return false
	}
	return j == 0 || !isWordByte(s[j-1])
}

func (p *parser) term(s string, line int) (ir.Expr, error) {
	if name, args, ok := splitCall(s); ok {
		return p.call(name, args, s, line)
	}
	switch {
	case p.isSelfRef(s):
		return ir.SelfValue{}, nil
	case s == "received_other":
		return ir.ReceivedOther{}, nil
	case s == "inbox" || s == "all":
		return nil, errorf(line, "%q must be aggregated, e.g. avg(%s)", s, s)
	}
	if v, ok := parseNumber(s); ok {
		return ir.Literal{Value: v}, nil
	}
	if identRe.MatchString(s) {
		return ir.ParamRef{Name: s}, nil
	}
	return nil, errorf(line, "unknown token %q", s)
}

func (p *parser) call(name, args, text string, line int) (ir.Expr, error) {
	if fn, ok := aggFuncs[name]; ok {
		agg, err := p.source(args, line)
		if err != nil {
			return nil, err
		}
		agg.Func = fn
		return agg, nil
	}
	switch name {
	case "received_other":
		if args != "" && !p.isSelfRef(args) {
			return nil, errorf(line, "received_other takes the state variable, got %q", args)
		}
		return ir.ReceivedOther{}, nil
	case "value_from":
		id, err := p.processID(args, line)
		if err != nil {
			return nil, err
		}
		return ir.ValueFrom{Sender: id}, nil
	}
	return nil, errorf(line, "unknown function %q in %q", name, text)
}

// source parses the value set an aggregate ranges over.
func (p *parser) source(arg string, line int) (ir.Aggregate, error) {
	c := compact(arg)
	switch c {
	case "inbox":
		return ir.Aggregate{Source: ir.SourceInbox}, nil
	case "all", "inbox_with_self":
		return ir.Aggregate{Source: ir.SourceInboxWithSelf}, nil
	}
	if rest, ok := strings.CutPrefix(c, "inbox"); ok && p.isWithSelf(rest) {
		return ir.Aggregate{Source: ir.SourceInboxWithSelf}, nil
	}

	if rest, ok := strings.CutPrefix(c, "inbox["); ok {
		closeIdx := strings.IndexByte(rest, ']')
		if closeIdx < 0 {
			return ir.Aggregate{}, errorf(line, "unclosed '[' in %q", arg)
		}
		var senders []int
		seen := make(map[int]bool)
		for _, item := range strings.Split(rest[:closeIdx], ",") {
			id, err := p.processID(item, line)
			if err != nil {
				return ir.Aggregate{}, err
			}
			if !seen[id] {
				seen[id] = true
				senders = append(senders, id)
			}
		}
		tail := rest[closeIdx+1:]
		if tail != "" && !p.isWithSelf(tail) {
			return ir.Aggregate{}, errorf(line, "unknown aggregation source %q", arg)
		}
		return ir.Aggregate{Source: ir.SourceFiltered, Senders: senders, IncludeSelf: tail != ""}, nil
	}
	return ir.Aggregate{}, errorf(line, "unknown aggregation source %q (expected inbox, inbox ∪ {%s}, all or inbox[ids])", arg, p.stateVar)
}

// isWithSelf matches the "∪ {x}" family of suffixes, already compacted.
func (p *parser) isWithSelf(tail string) bool {
	for _, join := range []string{"∪", "+", "|"} {
		rest, ok := strings.CutPrefix(tail, join)
		if !ok {
			continue
		}
		if inner, ok := strings.CutPrefix(rest, "{"); ok && strings.HasSuffix(inner, "}") {
			rest = inner[:len(inner)-1]
		}
		return p.isSelfRef(rest)
	}
	return false
}

func parseCount(s string) (int, bool) {
	if !intRe.MatchString(s) {
		return 0, false
	}
	k, err := strconv.Atoi(s)
	return k, err == nil
}
