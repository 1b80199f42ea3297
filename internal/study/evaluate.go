package study

import (
	"fmt"

	"github.com/roach88/consim/internal/montecarlo"
)

// Violation is one p value at which a condition is false.
type Violation struct {
	P     float64 `json:"p"`
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Outcome is the result of evaluating a condition over a sweep.
type Outcome struct {
	Condition  string      `json:"condition"`
	Holds      bool        `json:"holds"`
	Checked    []float64   `json:"checked"`
	Violations []Violation `json:"violations,omitempty"`
}

// Evaluate checks cond at every p admitted by its bounds. results maps a
// protocol name to its sweep; every referenced protocol must be present and
// all referenced sweeps must cover the same p values in the same order.
//
// A condition whose bounds admit no p holds vacuously with nothing checked.
func Evaluate(cond *Condition, results map[string][]montecarlo.Result) (*Outcome, error) {
	grid, err := alignedGrid(cond, results)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Condition: cond.String(), Holds: true, Checked: []float64{}}
	for i, p := range grid {
		if !cond.Admits(p) {
			continue
		}
		left, err := operandValue(cond.Left, results, i)
		if err != nil {
			return nil, err
		}
		right, err := operandValue(cond.Right, results, i)
		if err != nil {
			return nil, err
		}
		out.Checked = append(out.Checked, p)
		if !cond.Op.Compare(left, right) {
			out.Holds = false
			out.Violations = append(out.Violations, Violation{P: p, Left: left, Right: right})
		}
	}
	return out, nil
}

func alignedGrid(cond *Condition, results map[string][]montecarlo.Result) ([]float64, error) {
	var grid []float64
	var first string
	for _, name := range cond.Protocols() {
		sweep, ok := results[name]
		if !ok {
			return nil, errorf(cond.String(), "no results for protocol %q", name)
		}
		if grid == nil {
			first = name
			grid = make([]float64, len(sweep))
			for i, r := range sweep {
				grid[i] = r.P
			}
			continue
		}
		if len(sweep) != len(grid) {
			return nil, errorf(cond.String(), "%s has %d p values, %s has %d", name, len(sweep), first, len(grid))
		}
		for i, r := range sweep {
			if r.P != grid[i] {
				return nil, errorf(cond.String(), "%s and %s differ at index %d: p=%g vs p=%g", first, name, i, grid[i], r.P)
			}
		}
	}
	return grid, nil
}

func operandValue(o Operand, results map[string][]montecarlo.Result, i int) (float64, error) {
	switch o := o.(type) {
	case Number:
		return o.Value, nil
	case Ref:
		return o.Metric.Value(results[o.Protocol][i])
	default:
		return 0, fmt.Errorf("unknown operand %T", o)
	}
}

// EvaluateAll evaluates every condition against results in order and
// reports whether all of them hold.
func EvaluateAll(conds []*Condition, results map[string][]montecarlo.Result) ([]*Outcome, bool, error) {
	outcomes := make([]*Outcome, 0, len(conds))
	all := true
	for _, c := range conds {
		out, err := Evaluate(c, results)
		if err != nil {
			return nil, false, err
		}
		all = all && out.Holds
		outcomes = append(outcomes, out)
	}
	return outcomes, all, nil
}
