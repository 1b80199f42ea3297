package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/consim/internal/ir"
)

var reservedNames = map[string]bool{
	ir.ParamLeader:      true,
	ir.ParamChannelMode: true,
	ir.ParamIndex:       true,
	ir.ParamNumNodes:    true,
	"self":              true,
	"inbox":             true,
	"all":               true,
}

func (p *parser) parseState(s *section, out *ir.ProtocolIR) error {
	text := s.content()
	name, domain := text, ""
	if i := strings.Index(text, "∈"); i >= 0 {
		name, domain = text[:i], text[i+len("∈"):]
	} else if fields := strings.Fields(text); len(fields) > 2 && fields[1] == "in" {
		name = fields[0]
		domain = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text[len(fields[0]):]), "in"))
	}
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(strings.TrimSuffix(name, "_i"), "[i]")
	if !identRe.MatchString(name) || reservedNames[name] {
		return errorf(s.line, "STATE: expected a variable name, got %q", text)
	}
	p.stateVar = name
	out.StateVar = name
	out.StateDomain = strings.TrimSpace(domain)
	return nil
}

func parseNumber(s string) (float64, bool) {
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if !numberRe.MatchString(digits) {
		return 0, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func (p *parser) parseParameters(s *section, out *ir.ProtocolIR) error {
	for _, item := range listItems(s.body) {
		name, value, ok := strings.Cut(item.text, "=")
		if !ok {
			return errorf(item.num, "PARAMETERS: expected <name> = <value>, got %q", item.text)
		}
		name = strings.TrimSpace(name)
		if !identRe.MatchString(name) {
			return errorf(item.num, "PARAMETERS: invalid parameter name %q", name)
		}
		if reservedNames[name] || name == p.stateVar {
			return errorf(item.num, "PARAMETERS: parameter name %q is reserved", name)
		}
		if _, dup := out.Params[name]; dup {
			return errorf(item.num, "PARAMETERS: duplicate parameter %q", name)
		}
		v, ok := parseNumber(strings.TrimSpace(value))
		if !ok {
			return errorf(item.num, "PARAMETERS: expected a number for %q, got %q", name, strings.TrimSpace(value))
		}
		out.Params[name] = v
	}
	return nil
}

func (p *parser) parseInitializer(out *ir.ProtocolIR) error {
	values, hasValues := p.sections[secInitialValues]
	rule, hasRule := p.sections[secInitial]

	switch {
	case hasValues && hasRule:
		line := max(values.line, rule.line)
		return errorf(line, "INITIAL VALUES and INITIAL are mutually exclusive")
	case hasValues:
		return p.parseInitialValues(values, out)
	case hasRule:
		return p.parseInitialRule(rule, out)
	}
	_, err := p.require(secInitialValues, "INITIAL VALUES: [...] or INITIAL: <expression>")
	return err
}

func (p *parser) parseInitialValues(s *section, out *ir.ProtocolIR) error {
	text := strings.TrimSpace(s.content())
	if strings.HasPrefix(text, "[") {
		if !strings.HasSuffix(text, "]") {
			return errorf(s.line, "INITIAL VALUES: unclosed '['")
		}
		text = text[1 : len(text)-1]
	}
	var values []float64
	for _, item := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		v, ok := parseNumber(item)
		if !ok {
			return errorf(s.line, "INITIAL VALUES: expected a number, got %q", item)
		}
		values = append(values, v)
	}
	if len(values) != p.n {
		return errorf(s.line, "INITIAL VALUES has %d values, PROCESSES is %d", len(values), p.n)
	}
	out.InitValues = values
	return nil
}

func (p *parser) parseInitialRule(s *section, out *ir.ProtocolIR) error {
	text := s.content()
	if text == "" {
		return errorf(s.line, "INITIAL: expected an expression in i and n")
	}
	if lhs, rhs, ok := cutAssignment(text); ok {
		if !p.isSelfRef(lhs) {
			return errorf(s.line, "INITIAL: assignment target %q is not the state variable %q", strings.TrimSpace(lhs), p.stateVar)
		}
		text = rhs
	}
	e, err := p.expr(text, s.line)
	if err != nil {
		return err
	}
	out.InitRule = e
	return nil
}

func (p *parser) parseChannel(s *section, out *ir.ProtocolIR) error {
	ws := words(s.content())
	if len(ws) == 0 {
		return errorf(s.line, "CHANNEL: expected stochastic or reliable")
	}
	switch mode := ir.ChannelMode(strings.ToLower(ws[0].text)); mode {
	case ir.ChannelStochastic:
		out.Params[ir.ParamChannelMode] = 0
		out.Channel = mode
	case ir.ChannelReliable:
		out.Params[ir.ParamChannelMode] = 1
		out.Channel = mode
	default:
		return errorf(s.line, "CHANNEL: expected stochastic or reliable, got %q", ws[0].text)
	}
	return nil
}

func (p *parser) parseRoles(s *section, out *ir.ProtocolIR) error {
	for _, item := range listItems(s.body) {
		sep := strings.IndexAny(item.text, "=:")
		if sep < 0 {
			return errorf(item.num, "ROLES: expected <role> = <process id>, got %q", item.text)
		}
		role := strings.TrimSpace(item.text[:sep])
		value := strings.TrimSpace(item.text[sep+1:])
		if role != ir.ParamLeader {
			return errorf(item.num, "ROLES: unknown role %q", role)
		}
		id, err := p.processID(value, item.num)
		if err != nil {
			return err
		}
		out.Params[ir.ParamLeader] = float64(id)
	}
	return nil
}

// processID parses a 1-based process id and checks it against PROCESSES.
func (p *parser) processID(s string, line int) (int, error) {
	if !intRe.MatchString(s) {
		return 0, errorf(line, "expected a process id, got %q", s)
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 || id > p.n {
		return 0, errorf(line, "process id %s out of range 1..%d", s, p.n)
	}
	return id, nil
}

func parseMetrics(s *section) ([]ir.Metric, error) {
	var metrics []ir.Metric
	seen := make(map[ir.Metric]bool)
	for _, item := range listItems(s.body) {
		for _, f := range strings.Fields(item.text) {
			m := ir.Metric(strings.ToLower(f))
			if m != ir.MetricDiscrepancy && m != ir.MetricConsensus {
				return nil, errorf(item.num, "METRICS: unknown metric %q (expected discrepancy or consensus)", f)
			}
			if !seen[m] {
				seen[m] = true
				metrics = append(metrics, m)
			}
		}
	}
	if len(metrics) == 0 {
		return nil, errorf(s.line, "METRICS: expected at least one metric")
	}
	return metrics, nil
}
