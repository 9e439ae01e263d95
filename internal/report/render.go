package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

// Format selects a renderer.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatPlain    Format = "plain"
)

// ParseFormat maps a user-supplied format name. The empty string selects
// markdown.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "plain", "text", "txt":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("%w: unknown report format %q", apperrors.ErrInvalidInput, name)
	}
}

// Render writes r to w in format f.
func Render(w io.Writer, r *Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatPlain:
		_, err := io.WriteString(w, r.Plain())
		return err
	case FormatMarkdown, "":
		_, err := io.WriteString(w, r.Markdown())
		return err
	default:
		return fmt.Errorf("%w: unknown report format %q", apperrors.ErrInvalidInput, f)
	}
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Research Report")
	line("**Query:** %s", r.Query)
	line("**Confidence Score:** %.2f/1.0", r.Confidence)
	line("**Total Results:** %d", r.TotalResults)
	line("**Files Analyzed:** %d", r.FilesAnalyzed)
	if r.Aborted {
		line("**Status:** stopped at step ceiling, results are partial")
	}
	line("")

	if len(r.KeyInsights) > 0 {
		line("## Key Insights")
		for i, insight := range r.KeyInsights {
			line("%d. %s", i+1, insight)
		}
		line("")
	}

	if len(r.Iterations) > 0 {
		line("## Research Process")
		for _, it := range r.Iterations {
			line("### Iteration %d", it.Number)
			line("**Query:** %s", it.Query)
			line("**Results Found:** %d", it.Results)
			if len(it.Insights) > 0 {
				line("**Insights:**")
				for _, insight := range it.Insights {
					line("- %s", insight)
				}
			}
			line("")
		}
	}

	if len(r.Findings) > 0 {
		line("## Most Relevant Findings")
		for _, f := range r.Findings {
			line("### %d. %s", f.Rank, f.Source)
			line("**Relevance:** %.2f", f.Relevance)
			line("**Tool Used:** %s", f.Tool)
			line("**Content:**")
			line("```")
			line("%s", f.Snippet)
			line("```")
			line("")
		}
	}

	if len(r.Files) > 0 {
		line("## File Analysis")
		line("| File | Matches | Max Relevance |")
		line("|------|---------|---------------|")
		for _, f := range r.Files {
			line("| %s | %d | %.2f |", f.Source, f.Matches, f.MaxRelevance)
		}
		line("")
	}

	if len(r.Tools) > 0 {
		line("## Search Strategy Performance")
		line("| Tool | Results | Avg Relevance |")
		line("|------|---------|---------------|")
		for _, t := range r.Tools {
			line("| %s | %d | %.2f |", t.Tool, t.Results, t.AvgRelevance)
		}
		line("")
	}

	line("## Recommendations")
	for _, rec := range r.Recommendations {
		line("- %s", rec)
	}

	if len(r.Warnings) > 0 {
		line("")
		line("## Warnings")
		for _, w := range r.Warnings {
			line("- %s", w)
		}
	}
	return b.String()
}

// Plain renders the report as unformatted text.
func (r *Report) Plain() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("RESEARCH REPORT")
	line("Query: %s", r.Query)
	line("Confidence: %.2f", r.Confidence)
	line("Results: %d across %d files (%d discovered)", r.TotalResults, r.FilesAnalyzed, r.FilesDiscovered)
	if r.Aborted {
		line("Status: stopped at step ceiling")
	}

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		line("")
		line("%s:", title)
		for _, item := range items {
			line("  - %s", item)
		}
	}

	section("Key insights", r.KeyInsights)

	var process []string
	for _, it := range r.Iterations {
		process = append(process, fmt.Sprintf("iteration %d: %q (%d results)", it.Number, it.Query, it.Results))
	}
	section("Research process", process)

	var found []string
	for _, f := range r.Findings {
		found = append(found, fmt.Sprintf("%s [%s %.2f] %s", f.Source, f.Tool, f.Relevance, oneLine(f.Snippet)))
	}
	section("Most relevant findings", found)

	var files []string
	for _, f := range r.Files {
		files = append(files, fmt.Sprintf("%s: %d matches, max %.2f", f.Source, f.Matches, f.MaxRelevance))
	}
	section("Files", files)

	var tools []string
	for _, t := range r.Tools {
		tools = append(tools, fmt.Sprintf("%s: %d results, avg %.2f", t.Tool, t.Results, t.AvgRelevance))
	}
	section("Strategies", tools)

	section("Recommendations", r.Recommendations)
	section("Warnings", r.Warnings)
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
