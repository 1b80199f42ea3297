package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/study"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // assertion type
	Protocol string // empty for conditions
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Protocol != "" {
		fmt.Fprintf(&buf, " (%s)", e.Protocol)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against result. Failures are
// collected rather than stopping at the first; the returned error is a
// *multierror.Error of *AssertionError values, or nil.
func EvaluateAssertions(result *Result, assertions []Assertion) error {
	var errs *multierror.Error
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func evaluateAssertion(result *Result, a Assertion) error {
	if a.Type == AssertCondition {
		return assertCondition(result, a)
	}

	sweep, ok := result.Results[a.Protocol]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Protocol: a.Protocol,
			Expected: "protocol in scenario",
			Actual:   fmt.Sprintf("unknown protocol (have %s)", strings.Join(result.Protocols, ", ")),
		}
	}
	selected := selectP(sweep, a.P)
	if len(selected) == 0 {
		return &AssertionError{
			Type:     a.Type,
			Protocol: a.Protocol,
			Expected: fmt.Sprintf("a result at p=%g", *a.P),
			Actual:   "p not in sweep",
		}
	}

	switch a.Type {
	case AssertMeanDiscrepancy:
		return assertBounds(a, selected, func(r montecarlo.Result) float64 { return r.MeanDiscrepancy })
	case AssertConsensusProbability:
		return assertBounds(a, selected, func(r montecarlo.Result) float64 { return r.ConsensusProbability })
	case AssertTraceLength:
		return assertTraceLength(a, selected)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

func selectP(sweep []montecarlo.Result, p *float64) []montecarlo.Result {
	if p == nil {
		return sweep
	}
	var out []montecarlo.Result
	for _, r := range sweep {
		if r.P == *p {
			out = append(out, r)
		}
	}
	return out
}

// assertBounds reports the first result whose value misses the expected
// value or range.
func assertBounds(a Assertion, results []montecarlo.Result, value func(montecarlo.Result) float64) error {
	for _, r := range results {
		v := value(r)
		if a.Expect != nil && math.Abs(v-*a.Expect) > a.Tolerance {
			return &AssertionError{
				Type:     a.Type,
				Protocol: a.Protocol,
				Expected: fmt.Sprintf("%g ± %g at p=%g", *a.Expect, a.Tolerance, r.P),
				Actual:   fmt.Sprintf("%g", v),
			}
		}
		if a.Min != nil && v < *a.Min {
			return &AssertionError{
				Type:     a.Type,
				Protocol: a.Protocol,
				Expected: fmt.Sprintf(">= %g at p=%g", *a.Min, r.P),
				Actual:   fmt.Sprintf("%g", v),
			}
		}
		if a.Max != nil && v > *a.Max {
			return &AssertionError{
				Type:     a.Type,
				Protocol: a.Protocol,
				Expected: fmt.Sprintf("<= %g at p=%g", *a.Max, r.P),
				Actual:   fmt.Sprintf("%g", v),
			}
		}
	}
	return nil
}

func assertTraceLength(a Assertion, results []montecarlo.Result) error {
	for _, r := range results {
		if got := len(r.MeanDiscrepancyByRound); got != a.Length {
			return &AssertionError{
				Type:     a.Type,
				Protocol: a.Protocol,
				Expected: fmt.Sprintf("%d trace entries at p=%g", a.Length, r.P),
				Actual:   fmt.Sprintf("%d", got),
			}
		}
	}
	return nil
}

func assertCondition(result *Result, a Assertion) error {
	cond, err := study.Parse(a.Condition)
	if err != nil {
		return err
	}
	out, err := study.Evaluate(cond, result.Results)
	if err != nil {
		return err
	}
	if out.Holds {
		return nil
	}

	parts := make([]string, len(out.Violations))
	for i, v := range out.Violations {
		parts[i] = fmt.Sprintf("p=%g: %g vs %g", v.P, v.Left, v.Right)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: out.Condition,
		Actual:   "violated at " + strings.Join(parts, "; "),
	}
}
