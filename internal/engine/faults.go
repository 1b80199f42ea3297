package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/consim/internal/compiler"
)

// FaultModel perturbs outgoing messages before the delivery model decides
// which of them arrive.
//
// MutateOrSuppress is called for every message whose sender IsFaulty in
// that round. It returns the message to send in its place, or false to drop
// it. Faulty processes still run their own update rules.
type FaultModel interface {
	IsFaulty(node, round int) bool
	MutateOrSuppress(msg compiler.Message, round int) (compiler.Message, bool)
}

// CrashFaults silences Nodes from round From onward.
type CrashFaults struct {
	Nodes []int
	From  int
}

// IsFaulty reports whether node has crashed by round.
func (c CrashFaults) IsFaulty(node, round int) bool {
	return round >= c.From && slices.Contains(c.Nodes, node)
}

// MutateOrSuppress drops every message of a crashed process.
func (CrashFaults) MutateOrSuppress(msg compiler.Message, _ int) (compiler.Message, bool) {
	return msg, false
}

// String renders the model as it appears in logs and stored parameters.
func (c CrashFaults) String() string {
	return fmt.Sprintf("crash(nodes=%v, from=%d)", c.Nodes, c.From)
}

// ByzantineFaults makes Nodes report Value instead of their state in every
// round.
type ByzantineFaults struct {
	Nodes []int
	Value float64
}

// IsFaulty reports whether node is one of the Byzantine processes.
func (b ByzantineFaults) IsFaulty(node, _ int) bool {
	return slices.Contains(b.Nodes, node)
}

// MutateOrSuppress replaces the payload with Value and keeps the message.
func (b ByzantineFaults) MutateOrSuppress(msg compiler.Message, _ int) (compiler.Message, bool) {
	msg.Payload = b.Value
	return msg, true
}

// String renders the model as it appears in logs and stored parameters.
func (b ByzantineFaults) String() string {
	return fmt.Sprintf("byzantine(nodes=%v, value=%g)", b.Nodes, b.Value)
}

// noFaults is the default fault model.
type noFaults struct{}

func (noFaults) IsFaulty(int, int) bool { return false }

func (noFaults) MutateOrSuppress(msg compiler.Message, _ int) (compiler.Message, bool) {
	return msg, true
}

// NewFaultModel builds a fault model by name: "crash" silences nodes from
// round from onward, "byzantine" makes them report value. An empty kind
// means no faults and returns nil.
func NewFaultModel(kind string, nodes []int, from int, value float64) (FaultModel, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "crash":
		if from < 1 {
			from = 1
		}
		return CrashFaults{Nodes: nodes, From: from}, nil
	case "byzantine":
		return ByzantineFaults{Nodes: nodes, Value: value}, nil
	}
	return nil, fmt.Errorf("unknown fault model %q", kind)
}
