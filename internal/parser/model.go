package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/consim/internal/ir"
)

var processModelRe = regexp.MustCompile(`^process\s+(\S+)\s*:\s*(.*)$`)

// modelArgs describes the arguments a delivery model accepts.
type modelArgs struct {
	positional []string          // canonical key per position
	aliases    map[string]string // accepted key -> canonical key
	defaults   map[string]string
}

var modelSignatures = map[ir.DeliveryType]modelArgs{
	ir.DeliveryStandard: {},
	ir.DeliveryGuaranteed: {
		positional: []string{ir.KeyMinMessages, ir.KeyScope},
		aliases:    map[string]string{ir.KeyMinMessages: ir.KeyMinMessages, "k": ir.KeyMinMessages, "min": ir.KeyMinMessages, ir.KeyScope: ir.KeyScope},
		defaults:   map[string]string{ir.KeyScope: ir.ScopePerRound},
	},
	ir.DeliveryBroadcast: {
		positional: []string{ir.KeyProbabilityMode},
		aliases:    map[string]string{ir.KeyProbabilityMode: ir.KeyProbabilityMode, "mode": ir.KeyProbabilityMode},
		defaults:   map[string]string{ir.KeyProbabilityMode: ir.ModePerSource},
	},
}

func (p *parser) parseModels(s *section) ([]ir.DeliveryModelSpec, error) {
	var specs []ir.DeliveryModelSpec
	var global *ir.DeliveryModelSpec
	overridden := make(map[int]bool)

	if s != nil {
		for _, l := range s.body {
			var pid *int
			text := l.text
			if m := processModelRe.FindStringSubmatch(text); m != nil {
				id, err := p.processID(m[1], l.num)
				if err != nil {
					return nil, err
				}
				if overridden[id] {
					return nil, errorf(l.num, "MODEL: duplicate model for process %d", id)
				}
				overridden[id] = true
				pid = &id
				text = m[2]
			}

			spec, err := parseModel(text, l.num)
			if err != nil {
				return nil, err
			}
			spec.ProcessID = pid
			if pid == nil {
				if global != nil {
					return nil, errorf(l.num, "MODEL: more than one global delivery model")
				}
				global = &spec
			}
			specs = append(specs, spec)
		}
	}

	// Every sender needs a model: without a global spec, imply standard
	// unless each process has its own override.
	if global == nil && len(overridden) < p.n {
		specs = append([]ir.DeliveryModelSpec{{Type: ir.DeliveryStandard}}, specs...)
	}
	return specs, nil
}

func parseModel(text string, line int) (ir.DeliveryModelSpec, error) {
	text = strings.TrimSpace(text)
	name, args := text, ""
	if n, a, ok := splitCall(text); ok {
		name, args = n, a
	}
	typ := ir.DeliveryType(strings.ToLower(name))
	if !ir.ValidDeliveryTypes[typ] {
		return ir.DeliveryModelSpec{}, errorf(line, "MODEL: unknown delivery model %q (expected standard, guaranteed or broadcast)", text)
	}
	sig := modelSignatures[typ]

	params := make(map[string]string)
	if args != "" {
		items := splitTopLevel(args, ',')
		pos := 0
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				return ir.DeliveryModelSpec{}, errorf(line, "MODEL: empty argument in %q", text)
			}
			key, value, named := strings.Cut(item, "=")
			if named {
				canonical, ok := sig.aliases[strings.TrimSpace(key)]
				if !ok {
					return ir.DeliveryModelSpec{}, errorf(line, "MODEL: %s has no argument %q", typ, strings.TrimSpace(key))
				}
				params[canonical] = strings.TrimSpace(value)
				continue
			}
			if pos >= len(sig.positional) {
				return ir.DeliveryModelSpec{}, errorf(line, "MODEL: wrong argument count for %s: got %d, want at most %d", typ, len(items), len(sig.positional))
			}
			params[sig.positional[pos]] = item
			pos++
		}
	}
	for k, v := range sig.defaults {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	switch typ {
	case ir.DeliveryGuaranteed:
		k, ok := params[ir.KeyMinMessages]
		if !ok {
			return ir.DeliveryModelSpec{}, errorf(line, "MODEL: guaranteed requires min_messages")
		}
		if v, err := strconv.Atoi(k); err != nil || v < 0 {
			return ir.DeliveryModelSpec{}, errorf(line, "MODEL: min_messages must be a non-negative integer, got %q", k)
		}
		if sc := params[ir.KeyScope]; sc != ir.ScopePerRound && sc != ir.ScopeTotal {
			return ir.DeliveryModelSpec{}, errorf(line, "MODEL: scope must be per_round or total, got %q", sc)
		}
	case ir.DeliveryBroadcast:
		if m := params[ir.KeyProbabilityMode]; m != ir.ModePerSource && m != ir.ModeUniform {
			return ir.DeliveryModelSpec{}, errorf(line, "MODEL: probability_mode must be per_source or uniform, got %q", m)
		}
	}

	spec := ir.DeliveryModelSpec{Type: typ}
	if len(params) > 0 {
		spec.Params = params
	}
	return spec, nil
}
