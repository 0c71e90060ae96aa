package infer

import (
	"regexp"
)

var identifierPattern = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)

// Identifiers returns the identifier-like tokens of text, de-duplicated in
// first-seen order. Keywords are not filtered: a token only matters if a
// node with that label exists.
func Identifiers(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, tok := range identifierPattern.FindAllString(text, -1) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Rule extracts a target label from action text.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp

	// Extract picks the label from the submatches of Pattern. When nil the
	// first capture group is used.
	Extract func(submatches []string) string
}

func (r Rule) extract(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if r.Extract != nil {
		label := r.Extract(m)
		return label, label != ""
	}
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Match is the result of a successful rule match.
type Match struct {
	Rule  string
	Label string
}

// Matcher tries rules in order; the first match wins.
type Matcher struct {
	rules []Rule
}

// NewMatcher creates a matcher over the given rules, tried in order.
func NewMatcher(rules ...Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Match returns the first rule match for text.
func (m *Matcher) Match(text string) (Match, bool) {
	for _, r := range m.rules {
		if label, ok := r.extract(text); ok {
			return Match{Rule: r.Name, Label: label}, true
		}
	}
	return Match{}, false
}

// Rules returns the matcher's rules in priority order.
func (m *Matcher) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}

// ActionRules are the default action target rules, in priority order.
func ActionRules() []Rule {
	return []Rule{
		{Name: "assign", Pattern: regexp.MustCompile(`([a-zA-Z_]\w*)\s*:=`)},
		{Name: "insert", Pattern: regexp.MustCompile(`insert\s+.+\s+into\s+([a-zA-Z_]\w*)`)},
		{Name: "update", Pattern: regexp.MustCompile(`update\s+\w+\s+in\s+([a-zA-Z_]\w*)\s+with`)},
		{Name: "delete", Pattern: regexp.MustCompile(`delete\s+\w+\s+in\s+([a-zA-Z_]\w*)\s+where`)},
	}
}
