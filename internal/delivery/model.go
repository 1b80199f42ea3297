package delivery

import (
	"fmt"
	"strconv"

	"github.com/roach88/consim/internal/ir"
)

// Model is a sealed interface over delivery policies.
type Model interface {
	deliveryModel() // Marker method - seals interface to this package
	String() string
}

// Scope is the window a Guaranteed minimum applies to.
type Scope string

const (
	ScopePerRound Scope = ir.ScopePerRound
	ScopeTotal    Scope = ir.ScopeTotal
)

// BroadcastMode names where a sender's delivery probability comes from.
// Both modes take the channel p, and every sender still draws once per
// round.
type BroadcastMode string

const (
	PerSource BroadcastMode = ir.ModePerSource
	Uniform   BroadcastMode = ir.ModeUniform
)

// Standard delivers each message independently with probability p.
type Standard struct{}

func (Standard) deliveryModel() {}

func (Standard) String() string { return string(ir.DeliveryStandard) }

// Guaranteed draws like Standard. Runs delivering fewer than MinMessages
// messages (per round or in total, by Scope) are rejected by the caller.
type Guaranteed struct {
	MinMessages int
	Scope       Scope
}

func (Guaranteed) deliveryModel() {}

func (g Guaranteed) String() string {
	return fmt.Sprintf("guaranteed(min_messages=%d, scope=%s)", g.MinMessages, g.Scope)
}

// Satisfied reports whether a run's delivery counts meet the guarantee.
// The END phase sends no messages and is not part of either count.
func (g Guaranteed) Satisfied(messagesPerRound []int, total int) bool {
	if g.Scope == ScopeTotal {
		return total >= g.MinMessages
	}
	for _, m := range messagesPerRound {
		if m < g.MinMessages {
			return false
		}
	}
	return true
}

// Broadcast delivers all of a sender's messages in a round, or none. Each
// sender's draw is independent of the others.
type Broadcast struct {
	Mode BroadcastMode
}

func (Broadcast) deliveryModel() {}

func (b Broadcast) String() string {
	return fmt.Sprintf("broadcast(probability_mode=%s)", b.Mode)
}

// FromSpec converts a parsed model spec into a Model.
func FromSpec(spec ir.DeliveryModelSpec) (Model, error) {
	switch spec.Type {
	case ir.DeliveryStandard:
		return Standard{}, nil
	case ir.DeliveryGuaranteed:
		raw, ok := spec.Params[ir.KeyMinMessages]
		if !ok {
			return nil, fmt.Errorf("guaranteed model: missing %s", ir.KeyMinMessages)
		}
		k, err := strconv.Atoi(raw)
		if err != nil || k < 0 {
			return nil, fmt.Errorf("guaranteed model: %s must be a non-negative integer, got %q", ir.KeyMinMessages, raw)
		}
		scope := Scope(spec.Params[ir.KeyScope])
		switch scope {
		case "":
			scope = ScopePerRound
		case ScopePerRound, ScopeTotal:
		default:
			return nil, fmt.Errorf("guaranteed model: unknown scope %q", scope)
		}
		return Guaranteed{MinMessages: k, Scope: scope}, nil
	case ir.DeliveryBroadcast:
		mode := BroadcastMode(spec.Params[ir.KeyProbabilityMode])
		switch mode {
		case "":
			mode = PerSource
		case PerSource, Uniform:
		default:
			return nil, fmt.Errorf("broadcast model: unknown probability mode %q", mode)
		}
		return Broadcast{Mode: mode}, nil
	default:
		return nil, fmt.Errorf("unknown delivery model type %q", spec.Type)
	}
}
