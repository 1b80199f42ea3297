package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ampProtocol builds the two-process AMP protocol by hand.
func ampProtocol() *ProtocolIR {
	return &ProtocolIR{
		Name:         "AMP",
		NumProcesses: 2,
		StateVar:     "x",
		StateDomain:  "{0, 1}",
		InitValues:   []float64{0, 1},
		Phases: []UpdatePhase{{
			Kind: PhaseEachRound,
			Rule: IfReceivedDiff{Then: ParamRef{Name: "y"}, Else: SelfValue{}},
		}},
		Metrics:        DefaultMetrics,
		Params:         map[string]float64{"y": 0.5},
		Channel:        ChannelStochastic,
		DeliveryModels: []DeliveryModelSpec{{Type: DeliveryStandard}},
	}
}

func TestProtocolIR_HasMetric(t *testing.T) {
	p := ampProtocol()
	assert.True(t, p.HasMetric(MetricDiscrepancy))
	assert.True(t, p.HasMetric(MetricConsensus))

	p.Metrics = []Metric{MetricDiscrepancy}
	assert.False(t, p.HasMetric(MetricConsensus))
}

func TestProtocolIR_EndPhase(t *testing.T) {
	p := ampProtocol()
	_, ok := p.EndPhase()
	assert.False(t, ok)
	assert.Len(t, p.RoundPhases(), 1)

	p.Phases = append(p.Phases, UpdatePhase{Kind: PhaseEnd, Rule: SimpleOp{Op: SimpleAverage}})
	end, ok := p.EndPhase()
	assert.True(t, ok)
	assert.Equal(t, SimpleOp{Op: SimpleAverage}, end.Rule)
	assert.Len(t, p.RoundPhases(), 1)
}

func TestProtocolIR_Leader(t *testing.T) {
	p := ampProtocol()
	_, ok := p.Leader()
	assert.False(t, ok)

	p.Params[ParamLeader] = 2
	id, ok := p.Leader()
	assert.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestProtocolIR_ParamNamesSorted(t *testing.T) {
	p := ampProtocol()
	p.Params["alpha"] = 1
	assert.Equal(t, []string{"alpha", "y"}, p.ParamNames())
}

func TestDeliveryModelSpec_IsGlobal(t *testing.T) {
	id := 1
	p := ampProtocol()
	p.DeliveryModels = append(p.DeliveryModels, DeliveryModelSpec{Type: DeliveryBroadcast, ProcessID: &id})

	assert.True(t, p.DeliveryModels[0].IsGlobal())
	assert.False(t, p.DeliveryModels[1].IsGlobal())
	assert.Len(t, p.GlobalModels(), 1)
}
