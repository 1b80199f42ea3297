package compiler

import (
	"fmt"

	"github.com/roach88/consim/internal/delivery"
	"github.com/roach88/consim/internal/ir"
)

// Warning reports a protocol feature that is legal but likely unintended.
//
// Warnings are not errors because the protocol still runs:
//   - a phase that can never activate within the configured rounds
//   - a guaranteed model no run can satisfy
//   - a declared parameter no rule reads
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Level   string `json:"level"` // "warning" or "info"
}

const (
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Analyze performs static checks of p against a run of the given length.
// A protocol without findings returns an empty list.
func Analyze(p *ir.ProtocolIR, rounds int) []Warning {
	warnings := []Warning{}

	if len(p.RoundPhases()) == 0 {
		warnings = append(warnings, Warning{
			Field:   "phases",
			Message: "no round phases: values never change between rounds",
			Level:   LevelInfo,
		})
	}

	for i, ph := range p.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		switch {
		case ph.Kind == ir.PhaseAfterRounds && ph.After >= rounds:
			warnings = append(warnings, Warning{
				Field:   field,
				Message: fmt.Sprintf("AFTER %d ROUNDS never runs in a %d-round experiment", ph.After, rounds),
				Level:   LevelWarning,
			})
		case ph.Kind == ir.PhaseFirstRound && rounds == 0:
			warnings = append(warnings, Warning{
				Field:   field,
				Message: "FIRST ROUND never runs in a 0-round experiment",
				Level:   LevelWarning,
			})
		}
	}

	slotsPerRound := p.NumProcesses * (p.NumProcesses - 1)
	for i, spec := range p.DeliveryModels {
		m, err := delivery.FromSpec(spec)
		if err != nil {
			continue // reported by Validate
		}
		g, ok := m.(delivery.Guaranteed)
		if !ok {
			continue
		}
		limit := slotsPerRound
		if g.Scope == delivery.ScopeTotal {
			limit = slotsPerRound * rounds
		}
		if g.MinMessages > limit {
			warnings = append(warnings, Warning{
				Field:   fmt.Sprintf("delivery_models[%d]", i),
				Message: fmt.Sprintf("%s can never be satisfied: at most %d messages are delivered", g, limit),
				Level:   LevelWarning,
			})
		}
	}

	refs := referencedParams(p)
	if refs.leader {
		if _, ok := p.Leader(); !ok {
			warnings = append(warnings, Warning{
				Field:   "params.leader",
				Message: "is_leader is used but ROLES declares no leader; every run will fail",
				Level:   LevelWarning,
			})
		}
	}
	var unused []string
	for _, name := range p.ParamNames() {
		if name == ir.ParamLeader || name == ir.ParamChannelMode {
			continue
		}
		if !refs.names[name] {
			unused = append(unused, name)
		}
	}
	for _, name := range unused {
		warnings = append(warnings, Warning{
			Field:   "params." + name,
			Message: fmt.Sprintf("parameter %q is never used", name),
			Level:   LevelInfo,
		})
	}

	return warnings
}

type paramRefs struct {
	names  map[string]bool
	leader bool
}

// referencedParams walks every rule and the INITIAL rule.
func referencedParams(p *ir.ProtocolIR) paramRefs {
	refs := paramRefs{names: make(map[string]bool)}

	var expr func(ir.Expr)
	var pred func(ir.Predicate)
	var update func(ir.Update)

	expr = func(e ir.Expr) {
		switch n := e.(type) {
		case ir.ParamRef:
			refs.names[n.Name] = true
		case ir.BinaryOp:
			expr(n.Left)
			expr(n.Right)
		}
	}
	pred = func(pr ir.Predicate) {
		switch n := pr.(type) {
		case ir.IsLeader:
			refs.leader = true
		case ir.Comparison:
			expr(n.Left)
			expr(n.Right)
		case ir.Logical:
			for _, op := range n.Operands {
				pred(op)
			}
		}
	}
	update = func(u ir.Update) {
		switch n := u.(type) {
		case ir.Conditional:
			pred(n.Cond)
			update(n.Then)
			update(n.Else)
		case ir.ConditionalNoElse:
			pred(n.Cond)
			update(n.Then)
		case ir.Assign:
			expr(n.Value)
		case ir.IfReceivedDiff:
			expr(n.Then)
			expr(n.Else)
		}
	}

	if p.InitRule != nil {
		expr(p.InitRule)
	}
	for _, ph := range p.Phases {
		update(ph.Rule)
	}
	return refs
}
