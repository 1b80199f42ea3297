package parser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// srcLine is a non-blank source line with comments removed.
type srcLine struct {
	num  int
	text string
}

// symbolReplacer runs before NFKC so that the subscript-i form of the state
// variable cannot collide with a plain identifier ("xᵢ" would fold to "xi").
var symbolReplacer = strings.NewReplacer(
	"ᵢ", "_i",
	"≥", ">=",
	"≤", "<=",
	"≠", "!=",
	"−", "-",
	"×", "*",
	"÷", "/",
)

// fold normalizes one line of source text.
func fold(s string) string {
	return norm.NFKC.String(symbolReplacer.Replace(s))
}

func splitLines(text string) []srcLine {
	var out []srcLine
	for i, raw := range strings.Split(text, "\n") {
		s := raw
		if idx := strings.IndexByte(s, '#'); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(fold(s))
		if s == "" {
			continue
		}
		out = append(out, srcLine{num: i + 1, text: s})
	}
	return out
}

var (
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	numberRe = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	intRe    = regexp.MustCompile(`^\d+$`)
)

func isOpen(c byte) bool  { return c == '(' || c == '[' || c == '{' }
func isClose(c byte) bool { return c == ')' || c == ']' || c == '}' }

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// checkBalanced verifies that brackets of every kind nest correctly.
func checkBalanced(s string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isOpen(c):
			stack = append(stack, c)
		case isClose(c):
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Errorf("unbalanced %q", c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return nil
}

// matchingClose returns the index of the bracket closing the one at open.
func matchingClose(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch {
		case isOpen(s[i]):
			depth++
		case isClose(s[i]):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripParens removes one pair of parentheses wrapping all of s.
func stripParens(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || matchingClose(s, 0) != len(s)-1 {
		return s, false
	}
	return strings.TrimSpace(s[1 : len(s)-1]), true
}

// splitCall splits "name(args)" where the call spans all of s.
func splitCall(s string) (name, args string, ok bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || matchingClose(s, open) != len(s)-1 {
		return "", "", false
	}
	name = strings.TrimSpace(s[:open])
	if !identRe.MatchString(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(s[open+1 : len(s)-1]), true
}

// topLevelIndex returns the first index of tok outside all brackets, or -1.
func topLevelIndex(s, tok string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case isOpen(s[i]):
			depth++
		case isClose(s[i]):
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], tok):
			return i
		}
	}
	return -1
}

// splitTopLevel splits s on sep outside all brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case isOpen(s[i]):
			depth++
		case isClose(s[i]):
			depth--
		case depth == 0 && s[i] == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// word is a maximal run of identifier bytes.
type word struct {
	text       string
	start, end int
	depth      int
}

func words(s string) []word {
	var out []word
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isOpen(c):
			depth++
			i++
		case isClose(c):
			depth--
			i++
		case isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			out = append(out, word{text: s[i:j], start: i, end: j, depth: depth})
			i = j
		default:
			i++
		}
	}
	return out
}

// splitTopLevelWord splits s around every occurrence of the keyword kw
// outside all brackets.
func splitTopLevelWord(s, kw string) []string {
	var parts []string
	start := 0
	for _, w := range words(s) {
		if w.depth == 0 && w.text == kw {
			parts = append(parts, s[start:w.start])
			start = w.end
		}
	}
	return append(parts, s[start:])
}

// firstTopLevelWord returns the first occurrence of kw outside all brackets.
func firstTopLevelWord(s, kw string) (word, bool) {
	for _, w := range words(s) {
		if w.depth == 0 && w.text == kw {
			return w, true
		}
	}
	return word{}, false
}

// cutWord strips a leading keyword. "not(a)" and "not a" both match "not".
func cutWord(s, kw string) (string, bool) {
	if !strings.HasPrefix(s, kw) {
		return s, false
	}
	rest := s[len(kw):]
	if rest == "" || isWordByte(rest[0]) {
		return s, false
	}
	return strings.TrimSpace(rest), true
}

// listItems splits comma or line separated entries of a section.
func listItems(lines []srcLine) []srcLine {
	var out []srcLine
	for _, l := range lines {
		for _, part := range splitTopLevel(l.text, ',') {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, srcLine{num: l.num, text: part})
			}
		}
	}
	return out
}

// compact removes all whitespace.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
