package study

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Error reports a condition that does not parse or does not apply to the
// results it is evaluated against.
type Error struct {
	Input   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("condition %q: %s", e.Input, e.Message)
}

func errorf(input, format string, args ...any) *Error {
	return &Error{Input: input, Message: fmt.Sprintf(format, args...)}
}

// Parse reads a condition of the form
//
//	[for p OP number {and p OP number}:] operand OP operand
//
// where an operand is a number or Protocol.metric.
func Parse(input string) (*Condition, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, errorf(input, "empty condition")
	}

	cond := &Condition{}
	body := text
	if rest, ok := cutKeyword(text, "for"); ok {
		head, tail, found := strings.Cut(rest, ":")
		if !found {
			return nil, errorf(input, "missing ':' after p filter")
		}
		bounds, err := parseBounds(input, head)
		if err != nil {
			return nil, err
		}
		cond.Bounds = bounds
		body = strings.TrimSpace(tail)
	}

	lhs, op, rhs, ok := splitComparison(body)
	if !ok {
		return nil, errorf(input, "expected a comparison (one of >, >=, <, <=, ==, !=)")
	}
	var err error
	if cond.Left, err = parseOperand(input, lhs); err != nil {
		return nil, err
	}
	if cond.Right, err = parseOperand(input, rhs); err != nil {
		return nil, err
	}
	cond.Op = op

	if len(cond.Protocols()) == 0 {
		return nil, errorf(input, "condition compares no protocol metric")
	}
	return cond, nil
}

// MustParse is like Parse but panics on error. For tests and fixed
// conditions only.
func MustParse(input string) *Condition {
	cond, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return cond
}

func cutKeyword(s, kw string) (string, bool) {
	if len(s) <= len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return "", false
	}
	if c := s[len(kw)]; c != ' ' && c != '\t' {
		return "", false
	}
	return strings.TrimSpace(s[len(kw):]), true
}

func parseBounds(input, s string) ([]Bound, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all p") {
		return nil, nil
	}
	var bounds []Bound
	for _, part := range splitAnd(s) {
		lhs, op, rhs, ok := splitComparison(part)
		if !ok {
			return nil, errorf(input, "bad p filter %q", part)
		}
		if lhs != "p" {
			return nil, errorf(input, "p filter must compare p, got %q", lhs)
		}
		v, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return nil, errorf(input, "p filter bound %q is not a number", rhs)
		}
		bounds = append(bounds, Bound{Op: op, Value: v})
	}
	return bounds, nil
}

// splitAnd splits s on the word "and", case-insensitively.
func splitAnd(s string) []string {
	fields := strings.Fields(s)
	var parts []string
	start := 0
	for i, f := range fields {
		if strings.EqualFold(f, "and") {
			parts = append(parts, strings.Join(fields[start:i], " "))
			start = i + 1
		}
	}
	return append(parts, strings.Join(fields[start:], " "))
}

// splitComparison finds the leftmost operator, preferring the longer one
// when two start at the same position.
func splitComparison(s string) (string, Op, string, bool) {
	best, bestOp := -1, Op("")
	for _, op := range ops {
		i := strings.Index(s, string(op))
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(op) > len(bestOp)) {
			best, bestOp = i, op
		}
	}
	if best < 0 {
		return "", "", "", false
	}
	lhs := strings.TrimSpace(s[:best])
	rhs := strings.TrimSpace(s[best+len(bestOp):])
	if lhs == "" || rhs == "" {
		return "", "", "", false
	}
	return lhs, bestOp, rhs, true
}

func parseOperand(input, s string) (Operand, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Number{Value: v}, nil
	}
	dot := strings.LastIndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return nil, errorf(input, "operand %q is neither a number nor Protocol.metric", s)
	}
	name, metric := s[:dot], Metric(strings.ToLower(s[dot+1:]))
	if strings.ContainsAny(name, " \t") {
		return nil, errorf(input, "protocol name %q contains whitespace", name)
	}
	if !slices.Contains(Metrics, metric) {
		return nil, errorf(input, "unknown metric %q (want consensus, discrepancy, variance or messages)", string(metric))
	}
	return Ref{Protocol: name, Metric: metric}, nil
}
