package parser

import (
	"os"
	"strconv"
	"strings"

	"github.com/roach88/consim/internal/ir"
)

type sectionKind int

const (
	secProtocol sectionKind = iota
	secProcesses
	secState
	secParameters
	secInitialValues
	secInitial
	secChannel
	secRoles
	secModel
	secUpdateRule
	secMetrics
)

// sectionKeywords is ordered so that "INITIAL VALUES" is tried before
// "INITIAL". rank gives the ordering constraint between sections; sections
// sharing a rank may appear in either order.
var sectionKeywords = []struct {
	kind    sectionKind
	keyword string
	rank    int
}{
	{secProtocol, "PROTOCOL", 0},
	{secProcesses, "PROCESSES", 1},
	{secState, "STATE", 2},
	{secParameters, "PARAMETERS", 3},
	{secInitialValues, "INITIAL VALUES", 3},
	{secInitial, "INITIAL", 3},
	{secChannel, "CHANNEL", 4},
	{secRoles, "ROLES", 4},
	{secModel, "MODEL", 5},
	{secUpdateRule, "UPDATE RULE", 6},
	{secMetrics, "METRICS", 7},
}

func (k sectionKind) String() string {
	return sectionKeywords[k].keyword
}

func (k sectionKind) rank() int {
	return sectionKeywords[k].rank
}

type section struct {
	kind sectionKind
	line int
	body []srcLine // inline content after the colon comes first
}

// content joins the section body into one string.
func (s *section) content() string {
	parts := make([]string, len(s.body))
	for i, l := range s.body {
		parts[i] = l.text
	}
	return strings.Join(parts, " ")
}

// matchHeader recognizes a section header line.
func matchHeader(text string) (sectionKind, string, bool) {
	for _, kw := range sectionKeywords {
		if !strings.HasPrefix(text, kw.keyword) {
			continue
		}
		rest := text[len(kw.keyword):]
		trimmed := strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(trimmed, ":") {
			return kw.kind, strings.TrimSpace(trimmed[1:]), true
		}
		// PROTOCOL takes its name without a colon.
		if kw.kind == secProtocol && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			return kw.kind, strings.TrimSpace(rest), true
		}
	}
	return 0, "", false
}

func splitSections(lines []srcLine) ([]*section, error) {
	var sections []*section
	seen := make(map[sectionKind]bool)
	lastRank := -1
	var last sectionKind

	for _, l := range lines {
		kind, inline, ok := matchHeader(l.text)
		if !ok {
			if len(sections) == 0 {
				return nil, errorf(l.num, "expected PROTOCOL <name>, got %q", l.text)
			}
			cur := sections[len(sections)-1]
			cur.body = append(cur.body, l)
			continue
		}
		if len(sections) == 0 && kind != secProtocol {
			return nil, errorf(l.num, "expected PROTOCOL <name>, got %q", l.text)
		}
		if seen[kind] {
			return nil, errorf(l.num, "duplicate %s section", kind)
		}
		if kind.rank() < lastRank {
			return nil, errorf(l.num, "%s section must come before %s", kind, last)
		}
		seen[kind] = true
		lastRank = kind.rank()
		last = kind

		s := &section{kind: kind, line: l.num}
		if inline != "" {
			s.body = append(s.body, srcLine{num: l.num, text: inline})
		}
		sections = append(sections, s)
	}
	return sections, nil
}

// parser carries the facts earlier sections establish for later ones.
type parser struct {
	stateVar string
	n        int
	sections map[sectionKind]*section
	lastLine int
}

// Parse parses protocol text into IR.
func Parse(text string) (*ir.ProtocolIR, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, errorf(1, "empty protocol: expected PROTOCOL <name>")
	}
	sections, err := splitSections(lines)
	if err != nil {
		return nil, err
	}

	p := &parser{
		sections: make(map[sectionKind]*section, len(sections)),
		lastLine: lines[len(lines)-1].num,
	}
	for _, s := range sections {
		p.sections[s.kind] = s
	}
	return p.build()
}

// ParseFile reads and parses a protocol file.
func ParseFile(path string) (*ir.ProtocolIR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// require returns the section or a ParseError naming where it was expected.
func (p *parser) require(kind sectionKind, what string) (*section, error) {
	if s, ok := p.sections[kind]; ok {
		return s, nil
	}
	line := p.lastLine
	for k := kind + 1; k <= secMetrics; k++ {
		if s, ok := p.sections[k]; ok && k.rank() > kind.rank() {
			line = s.line
			break
		}
	}
	return nil, errorf(line, "missing %s section: expected %s", kind, what)
}

func (p *parser) build() (*ir.ProtocolIR, error) {
	out := &ir.ProtocolIR{Params: make(map[string]float64)}

	s, _ := p.require(secProtocol, "PROTOCOL <name>")
	name := s.content()
	if name == "" {
		return nil, errorf(s.line, "expected PROTOCOL <name>")
	}
	out.Name = name

	s, err := p.require(secProcesses, "PROCESSES: <n>")
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(s.content())
	if err != nil || n < 1 {
		return nil, errorf(s.line, "PROCESSES must be a positive integer, got %q", s.content())
	}
	p.n = n
	out.NumProcesses = n

	s, err = p.require(secState, "STATE: <var> ∈ <domain>")
	if err != nil {
		return nil, err
	}
	if err := p.parseState(s, out); err != nil {
		return nil, err
	}

	if s, ok := p.sections[secParameters]; ok {
		if err := p.parseParameters(s, out); err != nil {
			return nil, err
		}
	}
	if err := p.parseInitializer(out); err != nil {
		return nil, err
	}

	s, err = p.require(secChannel, "CHANNEL: stochastic | reliable")
	if err != nil {
		return nil, err
	}
	if err := p.parseChannel(s, out); err != nil {
		return nil, err
	}
	if s, ok := p.sections[secRoles]; ok {
		if err := p.parseRoles(s, out); err != nil {
			return nil, err
		}
	}

	models, err := p.parseModels(p.sections[secModel])
	if err != nil {
		return nil, err
	}
	out.DeliveryModels = models

	if s, ok := p.sections[secUpdateRule]; ok {
		phases, err := p.parsePhases(s)
		if err != nil {
			return nil, err
		}
		out.Phases = phases
	}

	out.Metrics = ir.DefaultMetrics
	if s, ok := p.sections[secMetrics]; ok {
		metrics, err := parseMetrics(s)
		if err != nil {
			return nil, err
		}
		out.Metrics = metrics
	}

	return out, nil
}
