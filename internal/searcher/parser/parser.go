// Package parser turns a research query into the normalised term list and
// the signals the planner and strategies key off.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
)

// QueryPlan is the parsed form of a query.
type QueryPlan struct {
	RawQuery     string
	Phrase       string
	Terms        []string
	ExcludeTerms []string
}

// Parse splits query into distinct search terms. A word prefixed with "-"
// or following NOT is excluded instead. Phrase is the lower-cased query with
// whitespace collapsed, used for exact-phrase matching.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		RawQuery:     query,
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	words := strings.Fields(query)
	kept := make([]string, 0, len(words))
	seen := make(map[string]struct{})
	excludeNext := false
	for _, word := range words {
		if strings.EqualFold(word, "NOT") && word == strings.ToUpper(word) {
			excludeNext = true
			continue
		}
		exclude := excludeNext
		excludeNext = false
		if strings.HasPrefix(word, "-") && len(word) > 1 {
			exclude = true
			word = word[1:]
		}
		tokens := tokenizer.Tokenize(word)
		if exclude {
			for _, tok := range tokens {
				plan.ExcludeTerms = append(plan.ExcludeTerms, tok.Term)
			}
			continue
		}
		kept = append(kept, word)
		for _, tok := range tokens {
			if _, dup := seen[tok.Term]; dup {
				continue
			}
			seen[tok.Term] = struct{}{}
			plan.Terms = append(plan.Terms, tok.Term)
		}
	}
	plan.Phrase = strings.ToLower(strings.Join(kept, " "))
	return plan
}

// Query returns the positive part of the query as text.
func (p *QueryPlan) Query() string {
	return strings.Join(p.Terms, " ")
}

// Empty reports whether the query has no searchable terms.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// HasAny reports whether any term of the plan starts with one of keywords.
func (p *QueryPlan) HasAny(keywords ...string) bool {
	for _, term := range p.Terms {
		for _, kw := range keywords {
			if strings.HasPrefix(term, kw) {
				return true
			}
		}
	}
	return false
}

// Excludes reports whether text contains an excluded term.
func (p *QueryPlan) Excludes(text string) bool {
	if len(p.ExcludeTerms) == 0 {
		return false
	}
	for _, term := range tokenizer.Terms(text) {
		for _, ex := range p.ExcludeTerms {
			if term == ex {
				return true
			}
		}
	}
	return false
}
