package compiler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/consim/internal/delivery"
	"github.com/roach88/consim/internal/ir"
)

// DefaultConsensusEps is the discrepancy at or below which processes agree.
const DefaultConsensusEps = 1e-9

// ExperimentSpec is a protocol bound to a delivery probability and a round
// count, ready for the engine. It is read-only once compiled and may be
// shared by concurrent runs.
type ExperimentSpec struct {
	Name         string
	NumProcesses int
	P            float64
	Rounds       int
	Params       map[string]float64
	Phases       []ir.UpdatePhase // round phases in declaration order
	End          *ir.UpdatePhase
	Delivery     *delivery.Plan
	ConsensusEps float64
	Protocol     *ir.ProtocolIR

	initValues []float64
}

// HasEnd reports whether the protocol declares an END phase.
func (s *ExperimentSpec) HasEnd() bool {
	return s.End != nil
}

// InitialValues returns every process's starting value, index id-1.
func (s *ExperimentSpec) InitialValues() []float64 {
	return slices.Clone(s.initValues)
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	consensusEps float64
}

// WithConsensusEps sets the threshold used by UNTIL CONSENSUS phases.
func WithConsensusEps(eps float64) CompileOption {
	return func(c *compileConfig) {
		c.consensusEps = eps
	}
}

// Compile validates p and binds it to a delivery probability and a round
// count. A reliable channel delivers every message whatever prob is.
func Compile(p *ir.ProtocolIR, prob float64, rounds int, opts ...CompileOption) (*ExperimentSpec, error) {
	cfg := compileConfig{consensusEps: DefaultConsensusEps}
	for _, opt := range opts {
		opt(&cfg)
	}

	if prob < 0 || prob > 1 {
		return nil, fmt.Errorf("delivery probability %v outside [0, 1]", prob)
	}
	if rounds < 0 {
		return nil, fmt.Errorf("rounds must be non-negative, got %d", rounds)
	}
	if cfg.consensusEps < 0 {
		return nil, fmt.Errorf("consensus epsilon must be non-negative, got %v", cfg.consensusEps)
	}
	if err := Validate(p); err != nil {
		return nil, err
	}

	plan, err := delivery.NewPlan(p.DeliveryModels)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", p.Name, err)
	}
	if p.Channel == ir.ChannelReliable {
		prob = 1
	}

	params := maps.Clone(p.Params)
	if params == nil {
		params = make(map[string]float64)
	}
	params[ir.ParamNumNodes] = float64(p.NumProcesses)

	spec := &ExperimentSpec{
		Name:         p.Name,
		NumProcesses: p.NumProcesses,
		P:            prob,
		Rounds:       rounds,
		Params:       params,
		Phases:       p.RoundPhases(),
		Delivery:     plan,
		ConsensusEps: cfg.consensusEps,
		Protocol:     p,
	}
	if end, ok := p.EndPhase(); ok {
		spec.End = &end
	}

	values, err := initialValues(p, params)
	if err != nil {
		return nil, err
	}
	spec.initValues = values
	return spec, nil
}

// initialValues evaluates INITIAL VALUES or the INITIAL rule with i and n
// bound for each process.
func initialValues(p *ir.ProtocolIR, params map[string]float64) ([]float64, error) {
	if p.InitValues != nil {
		return slices.Clone(p.InitValues), nil
	}
	values := make([]float64, p.NumProcesses)
	local := maps.Clone(params)
	for id := 1; id <= p.NumProcesses; id++ {
		local[ir.ParamIndex] = float64(id)
		ctx := &Context{NumNodes: p.NumProcesses, NodeID: id, Params: local}
		v, err := EvaluateExpr(p.InitRule, ctx)
		if err != nil {
			return nil, fmt.Errorf("initial value of process %d: %w", id, err)
		}
		values[id-1] = v
	}
	return values, nil
}
