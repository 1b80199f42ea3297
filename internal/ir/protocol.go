package ir

import "sort"

// PhaseKind selects the rounds in which an UpdatePhase executes.
type PhaseKind string

const (
	PhaseEachRound      PhaseKind = "each_round"
	PhaseFirstRound     PhaseKind = "first_round"
	PhaseAfterRounds    PhaseKind = "after_rounds"
	PhaseUntilConsensus PhaseKind = "until_consensus"
	PhaseEnd            PhaseKind = "end"
)

// Metric names a statistic a protocol asks to be reported.
type Metric string

const (
	MetricDiscrepancy Metric = "discrepancy"
	MetricConsensus   Metric = "consensus"
)

// DefaultMetrics is used when a protocol has no METRICS section.
var DefaultMetrics = []Metric{MetricDiscrepancy, MetricConsensus}

// ChannelMode is the channel declared in the CHANNEL section.
type ChannelMode string

const (
	ChannelStochastic ChannelMode = "stochastic"
	ChannelReliable   ChannelMode = "reliable"
)

// Reserved parameter names. The engine and compiler inject these; protocol
// authors may reference them from update rules.
const (
	ParamLeader      = "leader"       // leader process id, from ROLES
	ParamChannelMode = "channel_mode" // 0 = stochastic, 1 = reliable
	ParamIndex       = "i"            // process index, only inside INITIAL rules
	ParamNumNodes    = "n"            // number of processes
)

// ProtocolIR is the parsed, validated protocol definition.
//
// Exactly one of InitValues and InitRule is set. InitRule is evaluated once
// per process with the parameters "i" (1-based process index) and "n" bound.
type ProtocolIR struct {
	Name           string              `json:"name"`
	NumProcesses   int                 `json:"num_processes"`
	StateVar       string              `json:"state_var"`
	StateDomain    string              `json:"state_domain,omitempty"` // advisory only
	InitValues     []float64           `json:"init_values,omitempty"`
	InitRule       Expr                `json:"-"`
	Phases         []UpdatePhase       `json:"-"`
	Metrics        []Metric            `json:"metrics"`
	Params         map[string]float64  `json:"params"`
	Channel        ChannelMode         `json:"channel"`
	DeliveryModels []DeliveryModelSpec `json:"delivery_models"`
}

// UpdatePhase pairs an activation kind with the rule it runs.
// After is only meaningful for PhaseAfterRounds.
type UpdatePhase struct {
	Kind  PhaseKind
	After int
	Rule  Update
}

// HasMetric reports whether m was requested.
func (p *ProtocolIR) HasMetric(m Metric) bool {
	for _, have := range p.Metrics {
		if have == m {
			return true
		}
	}
	return false
}

// EndPhase returns the END phase, if the protocol declares one.
func (p *ProtocolIR) EndPhase() (UpdatePhase, bool) {
	for _, ph := range p.Phases {
		if ph.Kind == PhaseEnd {
			return ph, true
		}
	}
	return UpdatePhase{}, false
}

// RoundPhases returns every phase except END, in declaration order.
func (p *ProtocolIR) RoundPhases() []UpdatePhase {
	phases := make([]UpdatePhase, 0, len(p.Phases))
	for _, ph := range p.Phases {
		if ph.Kind != PhaseEnd {
			phases = append(phases, ph)
		}
	}
	return phases
}

// ParamNames returns parameter names in sorted order.
func (p *ProtocolIR) ParamNames() []string {
	names := make([]string, 0, len(p.Params))
	for name := range p.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Leader returns the leader process id declared in ROLES.
func (p *ProtocolIR) Leader() (int, bool) {
	v, ok := p.Params[ParamLeader]
	if !ok {
		return 0, false
	}
	return int(v), true
}
