// Package report turns a research outcome into a structured report and
// renders it as markdown, JSON or plain text.
package report

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
)

const (
	// HighRelevance is the score a result needs to be listed as a finding.
	HighRelevance = 0.7

	MaxInsights         = 10
	MaxIterationInsight = 3
	MaxFindings         = 5
	MaxFiles            = 10
	SnippetLength       = 300

	// ComprehensiveResults is the result count above which filtering is
	// recommended.
	ComprehensiveResults = 100
	// NarrowSources is the source count below which widening the search is
	// recommended.
	NarrowSources = 5
	// LowConfidence is the score below which refining the query is
	// recommended.
	LowConfidence = 0.5
)

type IterationSummary struct {
	Number            int      `json:"number"`
	Query             string   `json:"query"`
	Results           int      `json:"results"`
	Insights          []string `json:"insights,omitempty"`
	ThresholdFallback bool     `json:"threshold_fallback,omitempty"`
}

type Finding struct {
	Rank      int        `json:"rank"`
	Source    string     `json:"source"`
	Relevance float64    `json:"relevance"`
	Tool      model.Tool `json:"tool"`
	Snippet   string     `json:"snippet"`
}

type FileStat struct {
	Source       string  `json:"source"`
	Matches      int     `json:"matches"`
	MaxRelevance float64 `json:"max_relevance"`
}

type ToolStat struct {
	Tool         model.Tool `json:"tool"`
	Results      int        `json:"results"`
	AvgRelevance float64    `json:"avg_relevance"`
}

// Report is the structured form of a research outcome.
type Report struct {
	RunID           string             `json:"run_id"`
	Query           string             `json:"query"`
	Directory       string             `json:"directory"`
	Confidence      float64            `json:"confidence_score"`
	TotalResults    int                `json:"total_results"`
	FilesAnalyzed   int                `json:"files_analyzed"`
	FilesDiscovered int                `json:"files_discovered"`
	Aborted         bool               `json:"aborted"`
	Duration        time.Duration      `json:"duration"`
	KeyInsights     []string           `json:"key_insights"`
	Iterations      []IterationSummary `json:"iterations"`
	Findings        []Finding          `json:"findings"`
	Files           []FileStat         `json:"files"`
	Tools           []ToolStat         `json:"tools"`
	Recommendations []string           `json:"recommendations"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// Build summarises out.
func Build(out *research.Outcome) *Report {
	r := &Report{
		RunID:           out.RunID,
		Query:           out.Query,
		Directory:       out.Directory,
		Confidence:      out.Confidence,
		TotalResults:    len(out.Results),
		FilesAnalyzed:   len(model.DistinctSources(out.Results)),
		FilesDiscovered: out.FilesDiscovered,
		Aborted:         out.Aborted,
		Duration:        out.Duration,
		Warnings:        out.Warnings,
	}

	insights := out.Insights
	if len(insights) > MaxInsights {
		insights = insights[:MaxInsights]
	}
	r.KeyInsights = insights

	for _, it := range out.Iterations {
		ins := it.Insights
		if len(ins) > MaxIterationInsight {
			ins = ins[:MaxIterationInsight]
		}
		r.Iterations = append(r.Iterations, IterationSummary{
			Number:            it.Number + 1,
			Query:             it.Query,
			Results:           len(it.Results),
			Insights:          ins,
			ThresholdFallback: it.ThresholdFallback,
		})
	}

	r.Findings = findings(out.Results)
	r.Files = fileStats(out.Results)
	r.Tools = toolStats(out.Results)
	r.Recommendations = recommendations(out, r.FilesAnalyzed)
	return r
}

func findings(results []model.SearchResult) []Finding {
	var high []model.SearchResult
	for _, res := range results {
		if res.RelevanceScore >= HighRelevance {
			high = append(high, res)
		}
	}
	model.SortByRelevance(high)
	if len(high) > MaxFindings {
		high = high[:MaxFindings]
	}
	out := make([]Finding, len(high))
	for i, res := range high {
		out[i] = Finding{
			Rank:      i + 1,
			Source:    res.Source,
			Relevance: res.RelevanceScore,
			Tool:      res.ToolUsed,
			Snippet:   snippet(res.Content),
		}
	}
	return out
}

// fileStats ranks sources by match count, then best relevance, then name.
func fileStats(results []model.SearchResult) []FileStat {
	byFile := make(map[string]*FileStat)
	for _, res := range results {
		fs, ok := byFile[res.Source]
		if !ok {
			fs = &FileStat{Source: res.Source}
			byFile[res.Source] = fs
		}
		fs.Matches++
		fs.MaxRelevance = max(fs.MaxRelevance, res.RelevanceScore)
	}
	out := make([]FileStat, 0, len(byFile))
	for _, fs := range byFile {
		out = append(out, *fs)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Matches != b.Matches {
			return a.Matches > b.Matches
		}
		if a.MaxRelevance != b.MaxRelevance {
			return a.MaxRelevance > b.MaxRelevance
		}
		return a.Source < b.Source
	})
	if len(out) > MaxFiles {
		out = out[:MaxFiles]
	}
	return out
}

// toolStats ranks tools by average relevance; ties keep planning order.
func toolStats(results []model.SearchResult) []ToolStat {
	sums := make(map[model.Tool]float64)
	counts := make(map[model.Tool]int)
	for _, res := range results {
		sums[res.ToolUsed] += res.RelevanceScore
		counts[res.ToolUsed]++
	}
	var out []ToolStat
	for _, tool := range model.Tools() {
		if n := counts[tool]; n > 0 {
			out = append(out, ToolStat{Tool: tool, Results: n, AvgRelevance: sums[tool] / float64(n)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgRelevance > out[j].AvgRelevance })
	return out
}

func recommendations(out *research.Outcome, sources int) []string {
	var recs []string
	if out.Confidence < LowConfidence {
		recs = append(recs,
			"Consider refining the query for more specific results",
			"Try alternative search terms or approaches",
		)
	}
	if len(out.Results) > ComprehensiveResults {
		recs = append(recs, "Results are comprehensive but may benefit from filtering")
	}
	if sources < NarrowSources {
		recs = append(recs, "Consider expanding search to include more file types")
	}
	if out.ThresholdFallback {
		recs = append(recs, "No result reached the similarity threshold; consider lowering it")
	}
	if out.Aborted {
		recs = append(recs, fmt.Sprintf("The run stopped at its step ceiling after %d steps; raise research.maxSteps for a complete run", out.Steps))
	}
	return recs
}

func snippet(content string) string {
	if utf8.RuneCountInString(content) <= SnippetLength {
		return content
	}
	return string([]rune(content)[:SnippetLength]) + "..."
}
