package montecarlo

import "fmt"

// attemptBudget caps how many repetitions may be attempted while hunting
// for runs that satisfy the guaranteed delivery constraints.
type attemptBudget struct {
	max  int
	used int
}

// budgetFactor is how many attempts each requested repetition may cost
// when guaranteed models are present.
const budgetFactor = 100

func newAttemptBudget(repetitions int, guaranteed bool) *attemptBudget {
	if !guaranteed {
		return &attemptBudget{max: repetitions}
	}
	return &attemptBudget{max: budgetFactor * repetitions}
}

// take reserves up to n attempts and returns how many were granted.
func (b *attemptBudget) take(n int) int {
	n = min(n, b.max-b.used)
	b.used += n
	return n
}

func (b *attemptBudget) exhausted() bool {
	return b.used >= b.max
}

// ConfigurationWarning reports that the guaranteed delivery constraints
// could not be met often enough within the attempt budget. It is not fatal:
// aggregation proceeds over the Valid runs that were found.
type ConfigurationWarning struct {
	P        float64
	Wanted   int
	Valid    int
	Attempts int
}

func (w ConfigurationWarning) String() string {
	return fmt.Sprintf("p=%g: only %d of %d repetitions satisfied the guaranteed delivery constraints after %d attempts",
		w.P, w.Valid, w.Wanted, w.Attempts)
}
