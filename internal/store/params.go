package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/runner"
)

// Params are the sweep settings needed to reproduce a stored sweep.
type Params struct {
	PValues      []float64    `json:"p_values"`
	Rounds       int          `json:"rounds"`
	Repetitions  int          `json:"repetitions"`
	Seed         int64        `json:"seed"`
	ConsensusEps float64      `json:"consensus_eps"`
	Topology     string       `json:"topology"`
	Faults       *FaultParams `json:"faults,omitempty"`
}

// FaultParams names a fault model as accepted by engine.NewFaultModel.
type FaultParams struct {
	Kind  string  `json:"kind"`
	Nodes []int   `json:"nodes"`
	From  int     `json:"from"`
	Value float64 `json:"value"`
}

// Sweep converts the stored parameters back into runner settings.
func (p Params) Sweep() (runner.Sweep, error) {
	topology, err := engine.ParseTopology(p.Topology)
	if err != nil {
		return runner.Sweep{}, err
	}
	sweep := runner.Sweep{
		PValues:      p.PValues,
		Rounds:       p.Rounds,
		Repetitions:  p.Repetitions,
		Seed:         p.Seed,
		ConsensusEps: p.ConsensusEps,
		Topology:     topology,
	}
	if p.Faults != nil {
		faults, err := engine.NewFaultModel(p.Faults.Kind, p.Faults.Nodes, p.Faults.From, p.Faults.Value)
		if err != nil {
			return runner.Sweep{}, err
		}
		sweep.Faults = faults
	}
	return sweep, nil
}

func (p Params) canonical() map[string]any {
	m := map[string]any{
		"p_values":      p.PValues,
		"rounds":        p.Rounds,
		"repetitions":   p.Repetitions,
		"seed":          p.Seed,
		"consensus_eps": p.ConsensusEps,
		"topology":      p.Topology,
	}
	if p.Faults != nil {
		nodes := p.Faults.Nodes
		if nodes == nil {
			nodes = []int{}
		}
		m["faults"] = map[string]any{
			"kind":  p.Faults.Kind,
			"nodes": nodes,
			"from":  p.Faults.From,
			"value": p.Faults.Value,
		}
	}
	return m
}

func marshalParams(p Params) (string, error) {
	if p.PValues == nil {
		p.PValues = []float64{}
	}
	data, err := ir.MarshalCanonical(p.canonical())
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

func unmarshalParams(data string) (Params, error) {
	var p Params
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Params{}, fmt.Errorf("unmarshal params: %w", err)
	}
	return p, nil
}

func marshalResult(r montecarlo.Result) (string, error) {
	data, err := ir.MarshalCanonical(r.Canonical())
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

func unmarshalResult(data string) (montecarlo.Result, error) {
	var r montecarlo.Result
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return montecarlo.Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, nil
}

// ResultsHash is the content hash of a sweep's results in p order. Equal
// hashes mean bit-identical results.
func ResultsHash(results []montecarlo.Result) (string, error) {
	list := make([]any, len(results))
	for i, r := range results {
		list[i] = r.Canonical()
	}
	return ir.ContentHash(ir.DomainResults, list)
}
