package harness

import "github.com/roach88/consim/internal/montecarlo"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Protocols lists protocol names in scenario order.
	Protocols []string `json:"protocols"`

	// Results holds one sweep per protocol name.
	Results map[string][]montecarlo.Result `json:"results"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Protocols: []string{},
		Results:   make(map[string][]montecarlo.Result),
		Errors:    []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddSweep records the results of one protocol.
func (r *Result) AddSweep(name string, results []montecarlo.Result) {
	r.Protocols = append(r.Protocols, name)
	r.Results[name] = results
}
