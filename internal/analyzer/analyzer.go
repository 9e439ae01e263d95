// Package analyzer derives themes, keywords, insights and follow-up
// queries from a ranked result set. Every output is a pure function of its
// input, so identical results always produce identical analyses.
package analyzer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
)

const (
	DefaultHighRelevance   = 0.7
	DefaultThemeMinResults = 3
	DefaultMaxFollowUps    = 5
	DefaultKeywordCount    = 20

	themeMinKeywords    = 2
	followUpMinCount    = 3
	followUpMaxTerms    = 5
	topFileCount        = 3
	maxFileConnections  = 5
	maxCodeElements     = 10
	minKeywordLength    = 4
	noHighRelevanceText = "No high-relevance results found"
)

// Theme is a named keyword cluster.
type Theme struct {
	Name     string
	Keywords []string
}

// Themes is the fixed theme table. A result counts toward a theme when at
// least two of its keywords prefix a token of the result content.
var Themes = []Theme{
	{"data_processing", []string{"data", "process", "transform", "parse", "convert"}},
	{"api_integration", []string{"api", "request", "response", "endpoint", "http"}},
	{"database", []string{"database", "query", "table", "sql", "model"}},
	{"authentication", []string{"auth", "login", "token", "user", "password"}},
	{"configuration", []string{"config", "setting", "parameter", "option", "environment"}},
	{"error_handling", []string{"error", "exception", "try", "catch", "handle"}},
	{"testing", []string{"test", "mock", "assert", "spec", "unit"}},
	{"logging", []string{"log", "debug", "info", "warn", "error"}},
	{"performance", []string{"performance", "optimize", "cache", "speed", "memory"}},
	{"security", []string{"security", "encrypt", "decrypt", "hash", "secure"}},
}

// TermCount is a term and how often it occurred.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// CodeElements are the distinct declarations seen in result content.
type CodeElements struct {
	Functions []string `json:"functions"`
	Classes   []string `json:"classes"`
}

// LengthStats describe result content lengths in characters.
type LengthStats struct {
	AvgLength float64 `json:"avg_length"`
	MaxLength int     `json:"max_length"`
	MinLength int     `json:"min_length"`
}

// Statistics summarise a result set.
type Statistics struct {
	TotalResults       int          `json:"total_results"`
	UniqueFiles        int          `json:"unique_files"`
	AvgRelevance       float64      `json:"avg_relevance"`
	MaxRelevance       float64      `json:"max_relevance"`
	MinRelevance       float64      `json:"min_relevance"`
	ToolsUsed          []model.Tool `json:"tools_used"`
	ContentLengthStats LengthStats  `json:"content_length_stats"`
}

// FileConnection counts how often two sources appear together in one
// result set: every pair of results from the two files is one co-occurrence.
type FileConnection struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Count int    `json:"count"`
}

func (c FileConnection) String() string {
	return fmt.Sprintf("%s <-> %s (%d)", c.A, c.B, c.Count)
}

// Relationships link the files of a result set.
type Relationships struct {
	FileConnections []FileConnection `json:"file_connections"`
}

// Analysis is the full content analysis of one result set.
type Analysis struct {
	Keywords      []TermCount    `json:"keywords"`
	FileTypes     map[string]int `json:"file_types"`
	Themes        map[string]int `json:"themes"`
	CodeElements  CodeElements   `json:"code_elements"`
	Relationships Relationships  `json:"relationships"`
	Statistics    Statistics     `json:"statistics"`
}

// Analyzer holds the thresholds used for insights and follow-ups.
type Analyzer struct {
	HighRelevance   float64
	ThemeMinResults int
	MaxFollowUps    int
	KeywordCount    int
}

func New() *Analyzer {
	return &Analyzer{
		HighRelevance:   DefaultHighRelevance,
		ThemeMinResults: DefaultThemeMinResults,
		MaxFollowUps:    DefaultMaxFollowUps,
		KeywordCount:    DefaultKeywordCount,
	}
}

// Analyze computes every facet of results. query terms are left out of the
// keyword list.
func (a *Analyzer) Analyze(results []model.SearchResult, query string) Analysis {
	return Analysis{
		Keywords:     Keywords(results, query, a.KeywordCount),
		FileTypes:    FileTypes(results),
		Themes:       DetectThemes(results),
		CodeElements: DetectCodeElements(results),
		Relationships: Relationships{
			FileConnections: FileConnections(results, maxFileConnections),
		},
		Statistics: Stats(results),
	}
}

// Insights describes the high-relevance part of results: recurring
// themes, the busiest files and the number of hits per tool.
func (a *Analyzer) Insights(results []model.SearchResult) []string {
	high := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if r.RelevanceScore >= a.HighRelevance {
			high = append(high, r)
		}
	}
	if len(high) == 0 {
		return []string{noHighRelevanceText}
	}

	var insights []string
	themes := DetectThemes(high)
	for _, theme := range Themes {
		if n := themes[theme.Name]; n >= a.ThemeMinResults {
			insights = append(insights, fmt.Sprintf("Recurring theme: '%s' appears in %d results", theme.Name, n))
		}
	}
	for _, fc := range topFiles(high, topFileCount) {
		insights = append(insights, fmt.Sprintf("High activity in file: %s (%d relevant matches)", fc.Term, fc.Count))
	}
	perTool := make(map[model.Tool]int)
	for _, r := range high {
		perTool[r.ToolUsed]++
	}
	for _, tool := range model.Tools() {
		if n := perTool[tool]; n > 0 {
			insights = append(insights, fmt.Sprintf("Tool '%s' found %d relevant results", tool, n))
		}
	}
	return insights
}

// FollowUps proposes at most MaxFollowUps next queries built from frequent
// new terms, the busiest files and the kinds of code found.
func (a *Analyzer) FollowUps(results []model.SearchResult, originalQuery string) []string {
	if len(results) == 0 {
		return nil
	}
	var out []string

	var terms []string
	for _, tc := range Keywords(results, originalQuery, a.KeywordCount) {
		if tc.Count >= followUpMinCount {
			terms = append(terms, tc.Term)
		}
		if len(terms) == followUpMaxTerms {
			break
		}
	}
	if len(terms) > 0 {
		out = append(out, "Explore related concepts: "+strings.Join(terms, ", "))
	}

	if files := topFiles(results, topFileCount); len(files) > 0 {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Term
		}
		out = append(out, "Deep dive into specific files: "+strings.Join(names, ", "))
	}

	code := DetectCodeElements(results)
	if len(code.Functions) > 0 {
		out = append(out, "Analyze function implementations and relationships")
	}
	if len(code.Classes) > 0 {
		out = append(out, "Explore class hierarchies and inheritance patterns")
	}

	if len(out) > a.MaxFollowUps {
		out = out[:a.MaxFollowUps]
	}
	return out
}

// DetectThemes counts, per theme, the results whose content hits at least
// two distinct theme keywords.
func DetectThemes(results []model.SearchResult) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		terms := tokenizer.UniqueTerms(r.Content)
		for _, theme := range Themes {
			hits := 0
			for _, kw := range theme.Keywords {
				if hasPrefixedTerm(terms, kw) {
					hits++
				}
			}
			if hits >= themeMinKeywords {
				counts[theme.Name]++
			}
		}
	}
	return counts
}

func hasPrefixedTerm(terms []string, prefix string) bool {
	for _, t := range terms {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// Keywords returns the n most frequent content terms, most frequent first
// with ties in alphabetical order. Stop words, numbers, short terms and
// terms of query are skipped. n <= 0 returns all.
func Keywords(results []model.SearchResult, query string, n int) []TermCount {
	skip := make(map[string]struct{})
	for _, t := range tokenizer.Terms(query) {
		skip[t] = struct{}{}
	}
	counts := make(map[string]int)
	for _, r := range results {
		for _, t := range tokenizer.Terms(r.Content) {
			if len(t) < minKeywordLength || tokenizer.IsStopWord(t) || isNumeric(t) {
				continue
			}
			if _, ok := skip[t]; ok {
				continue
			}
			counts[t]++
		}
	}
	return sortedCounts(counts, n)
}

// FileTypes counts results per lower-cased file extension.
func FileTypes(results []model.SearchResult) map[string]int {
	types := make(map[string]int)
	for _, r := range results {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Source)), ".")
		if ext != "" {
			types[ext]++
		}
	}
	return types
}

// DetectCodeElements collects up to ten distinct function and class names
// declared in result content, in order of appearance.
func DetectCodeElements(results []model.SearchResult) CodeElements {
	var ce CodeElements
	seenFn := make(map[string]bool)
	seenCls := make(map[string]bool)
	for _, r := range results {
		for _, d := range Declarations(r.Content) {
			switch d.Kind {
			case KindFunction:
				if !seenFn[d.Name] && len(ce.Functions) < maxCodeElements {
					seenFn[d.Name] = true
					ce.Functions = append(ce.Functions, d.Name)
				}
			case KindClass, KindType:
				if !seenCls[d.Name] && len(ce.Classes) < maxCodeElements {
					seenCls[d.Name] = true
					ce.Classes = append(ce.Classes, d.Name)
				}
			}
		}
	}
	return ce
}

// Stats summarises results. An empty set gives the zero value.
func Stats(results []model.SearchResult) Statistics {
	if len(results) == 0 {
		return Statistics{}
	}
	s := Statistics{
		TotalResults: len(results),
		UniqueFiles:  len(model.DistinctSources(results)),
		MaxRelevance: results[0].RelevanceScore,
		MinRelevance: results[0].RelevanceScore,
	}
	used := make(map[model.Tool]bool)
	sum := 0.0
	lengths := &s.ContentLengthStats
	lengths.MinLength = utf8.RuneCountInString(results[0].Content)
	totalLength := 0
	for _, r := range results {
		n := utf8.RuneCountInString(r.Content)
		totalLength += n
		lengths.MaxLength = max(lengths.MaxLength, n)
		lengths.MinLength = min(lengths.MinLength, n)
		sum += r.RelevanceScore
		if r.RelevanceScore > s.MaxRelevance {
			s.MaxRelevance = r.RelevanceScore
		}
		if r.RelevanceScore < s.MinRelevance {
			s.MinRelevance = r.RelevanceScore
		}
		used[r.ToolUsed] = true
	}
	s.AvgRelevance = sum / float64(len(results))
	lengths.AvgLength = float64(totalLength) / float64(len(results))
	for _, tool := range model.Tools() {
		if used[tool] {
			s.ToolsUsed = append(s.ToolsUsed, tool)
		}
	}
	return s
}

// FileConnections returns the n most connected source pairs of results.
// Pairs are ordered by count descending, then by name; within a pair A < B.
func FileConnections(results []model.SearchResult, n int) []FileConnection {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Source]++
	}
	sources := make([]string, 0, len(counts))
	for src := range counts {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	out := make([]FileConnection, 0)
	for i, a := range sources {
		for _, b := range sources[i+1:] {
			out = append(out, FileConnection{A: a, B: b, Count: counts[a] * counts[b]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// topFiles returns the n sources with the most results, ties by source.
func topFiles(results []model.SearchResult, n int) []TermCount {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Source]++
	}
	return sortedCounts(counts, n)
}

func sortedCounts(counts map[string]int, n int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, c := range counts {
		out = append(out, TermCount{Term: term, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
