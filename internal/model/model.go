// Package model holds the result types shared by the retrieval strategies,
// the analyzer and the research controller.
package model

import (
	"sort"
	"unicode/utf8"
)

// Tool identifies the retrieval strategy that produced a result. The set
// is closed; Tools lists every member.
type Tool string

const (
	ToolDirectMatch Tool = "direct_match"
	ToolLexical     Tool = "lexical"
	ToolStructural  Tool = "structural"
	ToolConfigScan  Tool = "config_scan"
	ToolVector      Tool = "vector"
	ToolHybrid      Tool = "hybrid"
)

// Tools returns every Tool in planning order.
func Tools() []Tool {
	return []Tool{ToolDirectMatch, ToolLexical, ToolStructural, ToolConfigScan, ToolVector, ToolHybrid}
}

// Valid reports whether t is a known Tool.
func (t Tool) Valid() bool {
	for _, known := range Tools() {
		if t == known {
			return true
		}
	}
	return false
}

func (t Tool) String() string {
	return string(t)
}

// MaxContentLength bounds SearchResult.Content.
const MaxContentLength = 500

// SearchResult is one hit from one strategy. Results are never modified
// after creation.
type SearchResult struct {
	Source         string         `json:"source"`
	Content        string         `json:"content"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SearchQuery    string         `json:"search_query"`
	ToolUsed       Tool           `json:"tool_used"`
}

// Truncate cuts s to MaxContentLength runes, marking the cut with "...".
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxContentLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxContentLength]) + "..."
}

// SortByRelevance orders results by descending relevance, breaking ties by
// source then tool so the order is deterministic.
func SortByRelevance(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ToolUsed < b.ToolUsed
	})
}

// DistinctSources returns the unique sources of results in first-seen order.
func DistinctSources(results []SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	var out []string
	for _, r := range results {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}
