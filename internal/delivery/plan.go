package delivery

import (
	"fmt"
	"math/rand/v2"

	"github.com/roach88/consim/internal/ir"
)

// Slot is one directed message position, sender to receiver.
// Process ids are 1-based.
type Slot struct {
	Sender   int
	Receiver int
}

// Slots enumerates the canonical slots of a complete graph on n processes.
func Slots(n int) []Slot {
	slots := make([]Slot, 0, n*(n-1))
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if i != j {
				slots = append(slots, Slot{Sender: i, Receiver: j})
			}
		}
	}
	return slots
}

// Plan maps every sender to the Model governing its outbound batch.
type Plan struct {
	global     Model
	overrides  map[int]Model
	guarantees []Guaranteed
}

// NewPlan resolves delivery specs. Senders without an override use the
// global spec, or Standard when there is none.
func NewPlan(specs []ir.DeliveryModelSpec) (*Plan, error) {
	plan := &Plan{global: Standard{}, overrides: make(map[int]Model)}
	haveGlobal := false

	for i, spec := range specs {
		m, err := FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("delivery_models[%d]: %w", i, err)
		}
		if spec.ProcessID == nil {
			if haveGlobal {
				return nil, fmt.Errorf("delivery_models[%d]: more than one global model", i)
			}
			haveGlobal = true
			plan.global = m
		} else {
			if _, dup := plan.overrides[*spec.ProcessID]; dup {
				return nil, fmt.Errorf("delivery_models[%d]: duplicate model for process %d", i, *spec.ProcessID)
			}
			plan.overrides[*spec.ProcessID] = m
		}
		if g, ok := m.(Guaranteed); ok {
			plan.guarantees = append(plan.guarantees, g)
		}
	}
	return plan, nil
}

// SingleModel returns a plan applying m to every sender.
func SingleModel(m Model) *Plan {
	plan := &Plan{global: m, overrides: make(map[int]Model)}
	if g, ok := m.(Guaranteed); ok {
		plan.guarantees = []Guaranteed{g}
	}
	return plan
}

// ModelFor returns the model governing sender's messages.
func (p *Plan) ModelFor(sender int) Model {
	if m, ok := p.overrides[sender]; ok {
		return m
	}
	return p.global
}

// Guarantees returns every Guaranteed model in the plan.
func (p *Plan) Guarantees() []Guaranteed {
	return p.guarantees
}

// Satisfied reports whether a run meets every guarantee in the plan.
func (p *Plan) Satisfied(messagesPerRound []int, total int) bool {
	for _, g := range p.guarantees {
		if !g.Satisfied(messagesPerRound, total) {
			return false
		}
	}
	return true
}

// Deliver decides one round of slots. Slots must be grouped by sender;
// the RNG is consumed in slot order so equal seeds give equal rounds.
func (p *Plan) Deliver(prob float64, slots []Slot, rng *rand.Rand) []bool {
	delivered := make([]bool, len(slots))

	var (
		lastSender = -1
		senderDraw bool
	)
	for i, s := range slots {
		switch p.ModelFor(s.Sender).(type) {
		case Broadcast:
			if s.Sender != lastSender {
				senderDraw = bernoulli(rng, prob)
				lastSender = s.Sender
			}
			delivered[i] = senderDraw
		default:
			delivered[i] = bernoulli(rng, prob)
		}
	}
	return delivered
}

// Apply decides one round of the n*(n-1) canonical slots under a single
// model.
func Apply(m Model, prob float64, n int, rng *rand.Rand) []bool {
	return SingleModel(m).Deliver(prob, Slots(n), rng)
}
