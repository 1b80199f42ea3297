package study

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/consim/internal/montecarlo"
)

// Op is a comparison operator.
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

// ops lists operators longest first so ">=" is never read as ">".
var ops = []Op{OpGE, OpLE, OpNE, OpEQ, OpGT, OpLT}

// Compare applies op to a and b.
func (op Op) Compare(a, b float64) bool {
	switch op {
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	}
	return false
}

// Metric names a field of montecarlo.Result.
type Metric string

const (
	MetricConsensus   Metric = "consensus"
	MetricDiscrepancy Metric = "discrepancy"
	MetricVariance    Metric = "variance"
	MetricMessages    Metric = "messages"
)

// Metrics lists every metric a condition can reference.
var Metrics = []Metric{MetricConsensus, MetricDiscrepancy, MetricVariance, MetricMessages}

// Value reads m from r.
func (m Metric) Value(r montecarlo.Result) (float64, error) {
	switch m {
	case MetricConsensus:
		return r.ConsensusProbability, nil
	case MetricDiscrepancy:
		return r.MeanDiscrepancy, nil
	case MetricVariance:
		return r.VarDiscrepancy, nil
	case MetricMessages:
		return r.MeanMessagesDelivered, nil
	}
	return 0, fmt.Errorf("unknown metric %q", string(m))
}

// Operand is one side of a comparison.
//
// This is a sealed interface: Ref and Number are the only implementations.
type Operand interface {
	operandNode()
	String() string
}

// Ref reads a metric of a named protocol at the current p.
type Ref struct {
	Protocol string
	Metric   Metric
}

func (Ref) operandNode() {}

func (r Ref) String() string { return r.Protocol + "." + string(r.Metric) }

// Number is a literal operand.
type Number struct {
	Value float64
}

func (Number) operandNode() {}

func (n Number) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }

// Bound restricts the p values a condition is checked at: p Op Value.
type Bound struct {
	Op    Op
	Value float64
}

// Admits reports whether p passes the bound.
func (b Bound) Admits(p float64) bool { return b.Op.Compare(p, b.Value) }

func (b Bound) String() string {
	return fmt.Sprintf("p %s %s", b.Op, strconv.FormatFloat(b.Value, 'g', -1, 64))
}

// Condition is a parsed comparison. Bounds are conjunctive; an empty list
// admits every p.
type Condition struct {
	Bounds []Bound
	Left   Operand
	Op     Op
	Right  Operand
}

// Admits reports whether p passes every bound.
func (c *Condition) Admits(p float64) bool {
	for _, b := range c.Bounds {
		if !b.Admits(p) {
			return false
		}
	}
	return true
}

// Protocols returns the protocol names the condition references, left first,
// without duplicates.
func (c *Condition) Protocols() []string {
	var names []string
	for _, o := range []Operand{c.Left, c.Right} {
		if ref, ok := o.(Ref); ok && !slices.Contains(names, ref.Protocol) {
			names = append(names, ref.Protocol)
		}
	}
	return names
}

// String renders the condition in its canonical textual form.
func (c *Condition) String() string {
	var sb strings.Builder
	if len(c.Bounds) > 0 {
		sb.WriteString("for ")
		for i, b := range c.Bounds {
			if i > 0 {
				sb.WriteString(" and ")
			}
			sb.WriteString(b.String())
		}
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%s %s %s", c.Left, c.Op, c.Right)
	return sb.String()
}
