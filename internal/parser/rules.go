package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/consim/internal/ir"
)

var phaseHeaderRe = regexp.MustCompile(`^(EACH ROUND|FIRST ROUND|AFTER\s+(\d+)\s+ROUNDS?|UNTIL CONSENSUS|END)\s*:\s*(.*)$`)

var simpleOps = map[string]ir.SimpleOpKind{
	"average":  ir.SimpleAverage,
	"min":      ir.SimpleMin,
	"max":      ir.SimpleMax,
	"midpoint": ir.SimpleMidpoint,
}

type phaseBlock struct {
	phase ir.UpdatePhase
	line  int
	body  []srcLine
}

// parsePhases splits the UPDATE RULE body at phase headers. Rule lines that
// precede any header form an implicit EACH ROUND phase.
func (p *parser) parsePhases(s *section) ([]ir.UpdatePhase, error) {
	var blocks []*phaseBlock
	hasEnd := false

	for _, l := range s.body {
		m := phaseHeaderRe.FindStringSubmatch(l.text)
		if m == nil {
			if len(blocks) == 0 {
				blocks = append(blocks, &phaseBlock{phase: ir.UpdatePhase{Kind: ir.PhaseEachRound}, line: l.num})
			}
			cur := blocks[len(blocks)-1]
			cur.body = append(cur.body, l)
			continue
		}

		b := &phaseBlock{line: l.num}
		switch {
		case m[1] == "EACH ROUND":
			b.phase.Kind = ir.PhaseEachRound
		case m[1] == "FIRST ROUND":
			b.phase.Kind = ir.PhaseFirstRound
		case m[1] == "UNTIL CONSENSUS":
			b.phase.Kind = ir.PhaseUntilConsensus
		case m[1] == "END":
			if hasEnd {
				return nil, errorf(l.num, "UPDATE RULE: at most one END phase is allowed")
			}
			hasEnd = true
			b.phase.Kind = ir.PhaseEnd
		default:
			k, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, errorf(l.num, "UPDATE RULE: invalid round count in %q", l.text)
			}
			b.phase.Kind = ir.PhaseAfterRounds
			b.phase.After = k
		}
		if inline := strings.TrimSpace(m[3]); inline != "" {
			b.body = append(b.body, srcLine{num: l.num, text: inline})
		}
		blocks = append(blocks, b)
	}

	phases := make([]ir.UpdatePhase, 0, len(blocks))
	for _, b := range blocks {
		if len(b.body) == 0 {
			return nil, errorf(b.line, "UPDATE RULE: phase %s has no rule", b.phase.Kind)
		}
		rule, rest, err := p.rule(b.body)
		if err != nil {
			return nil, err
		}
		if len(rest) > 0 {
			return nil, errorf(rest[0].num, "unexpected %q after rule", rest[0].text)
		}
		b.phase.Rule = rule
		phases = append(phases, b.phase)
	}
	return phases, nil
}

// rule parses one update rule starting at lines[0] and returns the lines
// it did not consume.
func (p *parser) rule(lines []srcLine) (ir.Update, []srcLine, error) {
	l := lines[0]
	rest, isIf := cutWord(l.text, "if")
	if !isIf {
		if l.text == "else" || l.text == "end" || strings.HasPrefix(l.text, "else ") {
			return nil, nil, errorf(l.num, "unexpected %q", l.text)
		}
		u, err := p.statement(l)
		return u, lines[1:], err
	}

	then, ok := firstTopLevelWord(rest, "then")
	if !ok {
		return nil, nil, errorf(l.num, "expected 'then' in %q", l.text)
	}
	cond, err := p.predicate(rest[:then.start], l.num)
	if err != nil {
		return nil, nil, err
	}
	body := strings.TrimSpace(rest[then.end:])
	if body != "" {
		u, err := p.inlineIf(cond, body, l.num)
		return u, lines[1:], err
	}
	return p.blockIf(cond, lines)
}

// inlineIf handles "if P then R [else R]" on one line. A nested inline if
// claims the nearest else.
func (p *parser) inlineIf(cond ir.Predicate, body string, line int) (ir.Update, error) {
	thenText, elseText := body, ""
	nested := 0
	for _, w := range words(body) {
		if w.depth != 0 {
			continue
		}
		if w.text == "if" {
			nested++
		}
		if w.text == "else" {
			if nested == 0 {
				thenText, elseText = strings.TrimSpace(body[:w.start]), strings.TrimSpace(body[w.end:])
				if elseText == "" {
					return nil, errorf(line, "expected rule after 'else'")
				}
				break
			}
			nested--
		}
	}

	thenRule, err := p.single(thenText, line)
	if err != nil {
		return nil, err
	}
	if elseText == "" {
		return p.conditional(cond, thenRule, nil), nil
	}
	elseRule, err := p.single(elseText, line)
	if err != nil {
		return nil, err
	}
	return p.conditional(cond, thenRule, elseRule), nil
}

func (p *parser) single(text string, line int) (ir.Update, error) {
	u, rest, err := p.rule([]srcLine{{num: line, text: text}})
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errorf(line, "unexpected %q", rest[0].text)
	}
	return u, nil
}

// blockIf handles an "if P then" header followed by a rule, an optional
// else branch and a closing "end". "else if P then" chains share the end of
// the innermost if.
func (p *parser) blockIf(cond ir.Predicate, lines []srcLine) (ir.Update, []srcLine, error) {
	header := lines[0]
	if len(lines) < 2 {
		return nil, nil, errorf(header.num, "expected rule after 'then'")
	}
	thenRule, rest, err := p.rule(lines[1:])
	if err != nil {
		return nil, nil, err
	}
	if len(rest) == 0 {
		return nil, nil, errorf(header.num, "unterminated if block: expected 'end'")
	}

	next := rest[0]
	switch {
	case next.text == "end":
		return p.conditional(cond, thenRule, nil), rest[1:], nil
	case next.text == "else":
		if len(rest) < 2 {
			return nil, nil, errorf(next.num, "expected rule after 'else'")
		}
		elseRule, after, err := p.rule(rest[1:])
		if err != nil {
			return nil, nil, err
		}
		return p.closeBlock(header, cond, thenRule, elseRule, after)
	case strings.HasPrefix(next.text, "else "):
		inline := srcLine{num: next.num, text: strings.TrimSpace(next.text[len("else "):])}
		chained := strings.HasPrefix(inline.text, "if ") && strings.HasSuffix(inline.text, " then")
		elseRule, after, err := p.rule(append([]srcLine{inline}, rest[1:]...))
		if err != nil {
			return nil, nil, err
		}
		if chained {
			return p.conditional(cond, thenRule, elseRule), after, nil
		}
		return p.closeBlock(header, cond, thenRule, elseRule, after)
	}
	return nil, nil, errorf(next.num, "expected 'else' or 'end', got %q", next.text)
}

func (p *parser) closeBlock(header srcLine, cond ir.Predicate, thenRule, elseRule ir.Update, rest []srcLine) (ir.Update, []srcLine, error) {
	if len(rest) == 0 || rest[0].text != "end" {
		return nil, nil, errorf(header.num, "unterminated if block: expected 'end'")
	}
	return p.conditional(cond, thenRule, elseRule), rest[1:], nil
}

// conditional builds the IR for an if. "if received_diff then x ← a else
// x ← b" becomes IfReceivedDiff.
func (p *parser) conditional(cond ir.Predicate, thenRule, elseRule ir.Update) ir.Update {
	if elseRule == nil {
		return ir.ConditionalNoElse{Cond: cond, Then: thenRule}
	}
	if _, ok := cond.(ir.ReceivedDiff); ok {
		a, okThen := thenRule.(ir.Assign)
		b, okElse := elseRule.(ir.Assign)
		if okThen && okElse {
			return ir.IfReceivedDiff{Then: a.Value, Else: b.Value}
		}
	}
	return ir.Conditional{Cond: cond, Then: thenRule, Else: elseRule}
}

func (p *parser) statement(l srcLine) (ir.Update, error) {
	if op, ok := simpleOps[l.text]; ok {
		return ir.SimpleOp{Op: op}, nil
	}
	lhs, rhs, ok := cutAssignment(l.text)
	if !ok {
		return nil, errorf(l.num, "unknown rule %q: expected an assignment, an if, or one of average, min, max, midpoint", l.text)
	}
	if !p.isSelfRef(lhs) {
		return nil, errorf(l.num, "assignment target %q is not the state variable %q", strings.TrimSpace(lhs), p.stateVar)
	}
	value, err := p.expr(rhs, l.num)
	if err != nil {
		return nil, err
	}
	return ir.Assign{Target: p.stateVar, Value: value}, nil
}

// cutAssignment splits "lhs ← rhs". The arrow forms are tried before a
// plain "=" so comparisons in the right-hand side are not mistaken for it.
func cutAssignment(s string) (string, string, bool) {
	for _, op := range []string{"←", "<-", ":="} {
		if i := topLevelIndex(s, op); i >= 0 {
			return s[:i], s[i+len(op):], true
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			continue
		}
		if i > 0 && strings.IndexByte("<>!=:", s[i-1]) >= 0 {
			continue
		}
		if i+1 < len(s) && s[i+1] == '=' {
			i++
			continue
		}
		return s[:i], s[i+1:], true
	}
	return "", "", false
}
