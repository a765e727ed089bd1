// Package intent provides a cheap, LLM-independent classifier that
// guesses whether a user request needs a new or updated capability.
// The result biases the next model dispatch via a hint message; the
// model retains final authority over what actually happens.
package intent

import (
	"regexp"
	"strings"

	"github.com/nbriggs/artificer/internal/tools"
)

// Analysis is the classifier's recommendation for one query.
type Analysis struct {
	// RequiresNewTool is true when the query expresses creation intent
	// and no existing capability already covers it.
	RequiresNewTool bool
	// ShouldUpdateExisting is true when the query asks to change an
	// existing capability, or expresses creation intent for something
	// a registered capability already covers.
	ShouldUpdateExisting bool
	// MatchingTool is the existing capability that appears to cover
	// the query, when one was found.
	MatchingTool *tools.Tool
	// SuggestedName is a snake_case capability name derived from the
	// query. Only set when creation or update intent was detected.
	SuggestedName string
	// SuggestedRequirements is the query with creation boilerplate
	// stripped, limited to the first two sentences.
	SuggestedRequirements string
}

// Analyzer classifies a query against the available capabilities.
// Implementations must be stateless; the agent loop calls Analyze once
// per user turn before dispatching to the model.
type Analyzer interface {
	Analyze(query string, available []*tools.Tool) Analysis
}

// RuleAnalyzer is a keyword-table heuristic. It is deliberately
// approximate: the tables are tuned for literal fixture phrases, and
// misclassification costs only a wasted hint message.
type RuleAnalyzer struct {
	rules RuleSet
}

// NewRuleAnalyzer creates an analyzer with the given rule tables.
func NewRuleAnalyzer(rules RuleSet) *RuleAnalyzer {
	return &RuleAnalyzer{rules: rules}
}

var nonWord = regexp.MustCompile(`[^a-z0-9_]+`)

// Analyze implements Analyzer. Detection priority: existing-capability
// match, explicit creation phrases, implicit action-verb/domain-noun
// co-occurrence, then update intent.
func (a *RuleAnalyzer) Analyze(query string, available []*tools.Tool) Analysis {
	q := strings.ToLower(query)
	words := a.significantWords(q)

	matched := a.findMatching(q, words, available)
	explicit := a.hasCreationPhrase(q)
	verb, noun, implicit := a.findActionDomain(q)
	if matched != nil {
		implicit = false
	}
	updated := a.findUpdateTarget(q, available)

	analysis := Analysis{
		MatchingTool:         matched,
		RequiresNewTool:      (explicit || implicit) && matched == nil,
		ShouldUpdateExisting: updated != nil || (matched != nil && explicit),
	}
	if updated != nil && analysis.MatchingTool == nil {
		analysis.MatchingTool = updated
	}

	if !analysis.RequiresNewTool && !analysis.ShouldUpdateExisting {
		return analysis
	}

	switch {
	case analysis.ShouldUpdateExisting && analysis.MatchingTool != nil:
		analysis.SuggestedName = analysis.MatchingTool.Name
	case verb != "" && noun != "":
		analysis.SuggestedName = noun + "_" + a.rules.ActionVerbs[verb]
	case len(words) >= 2:
		analysis.SuggestedName = sanitizeName(words[0] + "_" + words[1])
	case len(words) == 1:
		analysis.SuggestedName = sanitizeName(words[0])
	default:
		analysis.SuggestedName = "custom_tool"
	}

	analysis.SuggestedRequirements = a.extractRequirements(query)
	return analysis
}

// findMatching looks for a capability that could already answer the
// query: a direct name mention, or at least two meaningful keywords
// shared between the query and the capability description.
func (a *RuleAnalyzer) findMatching(q string, words []string, available []*tools.Tool) *tools.Tool {
	for _, t := range available {
		if mentionsName(q, t.Name) {
			return t
		}
	}

	for _, t := range available {
		descWords := a.significantWords(strings.ToLower(t.Description))
		shared := 0
		for _, w := range words {
			for _, d := range descWords {
				if w == d {
					shared++
					break
				}
			}
		}
		if shared >= 2 {
			return t
		}
	}
	return nil
}

func (a *RuleAnalyzer) hasCreationPhrase(q string) bool {
	for _, p := range a.rules.CreationPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

// findActionDomain reports the first action verb and domain noun that
// co-occur in the query.
func (a *RuleAnalyzer) findActionDomain(q string) (verb, noun string, found bool) {
	for v := range a.rules.ActionVerbs {
		if strings.Contains(q, v) {
			verb = v
			break
		}
	}
	if verb == "" {
		return "", "", false
	}
	for _, n := range a.rules.DomainNouns {
		if strings.Contains(q, n) {
			return verb, n, true
		}
	}
	return "", "", false
}

// findUpdateTarget reports a capability whose name is mentioned
// alongside an update verb.
func (a *RuleAnalyzer) findUpdateTarget(q string, available []*tools.Tool) *tools.Tool {
	hasVerb := false
	for _, v := range a.rules.UpdateVerbs {
		if strings.Contains(q, v) {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		return nil
	}
	for _, t := range available {
		if mentionsName(q, t.Name) {
			return t
		}
	}
	return nil
}

// significantWords tokenizes text, dropping stopwords and words shorter
// than three characters.
func (a *RuleAnalyzer) significantWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})

	var out []string
	for _, f := range fields {
		if len(f) < 3 || a.rules.Stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// extractRequirements strips creation/update boilerplate from the query
// and keeps the first two sentences.
func (a *RuleAnalyzer) extractRequirements(query string) string {
	req := strings.TrimSpace(query)
	lower := strings.ToLower(req)

	prefixes := []string{
		"create a tool that can", "create a tool that", "create a tool to", "create a tool",
		"make a tool that can", "make a tool that", "make a tool to", "make a tool",
		"build a tool that can", "build a tool that", "build a tool to", "build a tool",
		"write a tool that can", "write a tool that", "write a tool to",
		"i need a tool that can", "i need a tool that", "i need a tool to", "i need a tool",
		"can you create", "can you make", "please create", "please make",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			req = strings.TrimSpace(req[len(p):])
			break
		}
	}

	sentences := splitSentences(req)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	req = strings.TrimSpace(strings.Join(sentences, " "))
	if req == "" {
		req = strings.TrimSpace(query)
	}
	return req
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			if part := strings.TrimSpace(s[start : i+1]); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

// mentionsName reports whether the query mentions a capability name,
// either verbatim or with underscores spoken as spaces.
func mentionsName(q, name string) bool {
	name = strings.ToLower(name)
	if strings.Contains(q, name) {
		return true
	}
	return strings.Contains(q, strings.ReplaceAll(name, "_", " "))
}

// sanitizeName lowercases and snake_cases a candidate capability name.
func sanitizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = nonWord.ReplaceAllString(s, "")
	s = strings.Trim(s, "_")
	if s == "" {
		return "custom_tool"
	}
	return s
}
