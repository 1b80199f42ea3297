package ir

import (
	"fmt"
	"sort"
)

// Canonical converts the protocol into plain maps and slices suitable for
// MarshalCanonical. Sum-type nodes become objects with a "kind" key.
func (p *ProtocolIR) Canonical() (map[string]any, error) {
	out := map[string]any{
		"name":          p.Name,
		"num_processes": p.NumProcesses,
		"state_var":     p.StateVar,
		"channel":       string(p.Channel),
	}
	if p.StateDomain != "" {
		out["state_domain"] = p.StateDomain
	}
	if p.InitValues != nil {
		out["init_values"] = floatsToAny(p.InitValues)
	}
	if p.InitRule != nil {
		rule, err := CanonicalExpr(p.InitRule)
		if err != nil {
			return nil, fmt.Errorf("init_rule: %w", err)
		}
		out["init_rule"] = rule
	}

	metrics := make([]any, len(p.Metrics))
	for i, m := range p.Metrics {
		metrics[i] = string(m)
	}
	out["metrics"] = metrics

	params := make(map[string]any, len(p.Params))
	for k, v := range p.Params {
		params[k] = v
	}
	out["params"] = params

	phases := make([]any, len(p.Phases))
	for i, ph := range p.Phases {
		rule, err := CanonicalUpdate(ph.Rule)
		if err != nil {
			return nil, fmt.Errorf("phases[%d]: %w", i, err)
		}
		entry := map[string]any{"kind": string(ph.Kind), "rule": rule}
		if ph.Kind == PhaseAfterRounds {
			entry["after"] = ph.After
		}
		phases[i] = entry
	}
	out["phases"] = phases

	models := make([]any, len(p.DeliveryModels))
	for i, s := range p.DeliveryModels {
		entry := map[string]any{"model_type": string(s.Type)}
		if len(s.Params) > 0 {
			params := make(map[string]any, len(s.Params))
			for k, v := range s.Params {
				params[k] = v
			}
			entry["params"] = params
		}
		if s.ProcessID != nil {
			entry["process_id"] = *s.ProcessID
		}
		models[i] = entry
	}
	out["delivery_models"] = models

	return out, nil
}

// MarshalJSON renders the protocol as canonical JSON.
func (p ProtocolIR) MarshalJSON() ([]byte, error) {
	m, err := p.Canonical()
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(m)
}

// CanonicalExpr converts an expression tree to maps.
func CanonicalExpr(e Expr) (map[string]any, error) {
	switch n := e.(type) {
	case SelfValue:
		return map[string]any{"kind": "self"}, nil
	case ParamRef:
		return map[string]any{"kind": "param", "name": n.Name}, nil
	case Literal:
		return map[string]any{"kind": "literal", "value": n.Value}, nil
	case BinaryOp:
		left, err := CanonicalExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := CanonicalExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "binary", "op": string(n.Op), "left": left, "right": right}, nil
	case Aggregate:
		out := map[string]any{"kind": "aggregate", "func": string(n.Func), "source": string(n.Source)}
		if n.Source == SourceFiltered {
			out["senders"] = intsToAny(n.Senders)
			out["include_self"] = n.IncludeSelf
		}
		return out, nil
	case ReceivedOther:
		return map[string]any{"kind": "received_other"}, nil
	case ValueFrom:
		return map[string]any{"kind": "value_from", "sender": n.Sender}, nil
	case nil:
		return nil, fmt.Errorf("nil expression")
	default:
		return nil, fmt.Errorf("unknown expression type: %T", e)
	}
}

// CanonicalPredicate converts a predicate tree to maps.
func CanonicalPredicate(p Predicate) (map[string]any, error) {
	switch n := p.(type) {
	case ReceivedAny:
		return map[string]any{"kind": "received_any"}, nil
	case ReceivedAll:
		return map[string]any{"kind": "received_all"}, nil
	case ReceivedAtLeast:
		return map[string]any{"kind": "received_at_least", "k": n.K}, nil
	case ReceivedMajority:
		return map[string]any{"kind": "received_majority"}, nil
	case ReceivedDiff:
		return map[string]any{"kind": "received_diff", "var": n.Var}, nil
	case ReceivedFrom:
		return map[string]any{"kind": "received_from", "sender": n.Sender}, nil
	case IsLeader:
		return map[string]any{"kind": "is_leader"}, nil
	case Comparison:
		left, err := CanonicalExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := CanonicalExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "compare", "op": string(n.Op), "left": left, "right": right}, nil
	case Logical:
		operands := make([]any, len(n.Operands))
		for i, op := range n.Operands {
			c, err := CanonicalPredicate(op)
			if err != nil {
				return nil, err
			}
			operands[i] = c
		}
		return map[string]any{"kind": "logical", "op": string(n.Op), "operands": operands}, nil
	case nil:
		return nil, fmt.Errorf("nil predicate")
	default:
		return nil, fmt.Errorf("unknown predicate type: %T", p)
	}
}

// CanonicalUpdate converts an update rule tree to maps.
func CanonicalUpdate(u Update) (map[string]any, error) {
	switch n := u.(type) {
	case Conditional:
		cond, err := CanonicalPredicate(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := CanonicalUpdate(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := CanonicalUpdate(n.Else)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "if", "cond": cond, "then": then, "else": els}, nil
	case ConditionalNoElse:
		cond, err := CanonicalPredicate(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := CanonicalUpdate(n.Then)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "if", "cond": cond, "then": then}, nil
	case Assign:
		value, err := CanonicalExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "assign", "target": n.Target, "value": value}, nil
	case SimpleOp:
		return map[string]any{"kind": "simple", "op": string(n.Op)}, nil
	case IfReceivedDiff:
		then, err := CanonicalExpr(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := CanonicalExpr(n.Else)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "if_received_diff", "then": then, "else": els}, nil
	case nil:
		return nil, fmt.Errorf("nil update rule")
	default:
		return nil, fmt.Errorf("unknown update rule type: %T", u)
	}
}

func floatsToAny(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func intsToAny(vs []int) []any {
	sorted := append([]int(nil), vs...)
	sort.Ints(sorted)
	out := make([]any, len(sorted))
	for i, v := range sorted {
		out[i] = v
	}
	return out
}
