// Package strategy executes the retrieval strategies of a research
// iteration against a built corpus. The set of strategies is the closed
// model.Tool enum and Execute is the only dispatch point.
package strategy

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/fuser"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

const (
	maxLinesPerFile      = 5
	phraseMatchRelevance = 0.9
	structuralStep       = 0.2
	configScanWeight     = 0.8
	maxMatchedElements   = 5
)

// Options tune the individual strategies.
type Options struct {
	TopK                 int
	Ranker               ranker.Params
	Weights              fuser.Weights
	VectorThreshold      float64
	DirectMatchThreshold float64
}

func DefaultOptions() Options {
	return Options{
		TopK:                 10,
		Ranker:               ranker.DefaultParams(),
		Weights:              fuser.DefaultWeights(),
		VectorThreshold:      0.1,
		DirectMatchThreshold: 0.4,
	}
}

// OptionsFromConfig maps the research and retrieval sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	r := cfg.Retrieval
	return Options{
		TopK:                 cfg.Research.TopK,
		Ranker:               ranker.Params{K1: r.K1, B: r.B, Scale: r.ScoreScale},
		Weights:              fuser.Weights{Dense: r.DenseWeight, Sparse: r.SparseWeight},
		VectorThreshold:      r.VectorThreshold,
		DirectMatchThreshold: r.DirectMatchThreshold,
	}
}

// Digest identifies o. Two option sets with the same digest produce the
// same results for the same corpus and query.
func (o Options) Digest() string {
	raw := fmt.Sprintf("topk=%d|k1=%g|b=%g|scale=%g|dense=%g|sparse=%g|vector=%g|direct=%g",
		o.TopK, o.Ranker.K1, o.Ranker.B, o.Ranker.Scale,
		o.Weights.Dense, o.Weights.Sparse, o.VectorThreshold, o.DirectMatchThreshold)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:8])
}

// Dispatcher runs strategies against one corpus. It holds no mutable state
// and is safe for concurrent use.
type Dispatcher struct {
	corpus *indexer.Corpus
	opts   Options
	logger *slog.Logger
}

func NewDispatcher(corpus *indexer.Corpus, opts Options) *Dispatcher {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	return &Dispatcher{
		corpus: corpus,
		opts:   opts,
		logger: slog.Default().With("component", "strategy-dispatcher"),
	}
}

// Fingerprint identifies the corpus the dispatcher searches.
func (d *Dispatcher) Fingerprint() string {
	return d.corpus.Fingerprint
}

// Options returns the effective options, defaults applied.
func (d *Dispatcher) Options() Options {
	return d.opts
}

// Execute runs tool for query. Results from files containing an excluded
// query term are dropped. An unknown tool is an error.
func (d *Dispatcher) Execute(ctx context.Context, tool model.Tool, query string) ([]model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan := parser.Parse(query)
	if plan.Empty() {
		return []model.SearchResult{}, nil
	}

	var (
		results []model.SearchResult
		err     error
	)
	switch tool {
	case model.ToolDirectMatch:
		results, err = d.directMatch(ctx, plan)
	case model.ToolLexical:
		results = d.lexical(plan)
	case model.ToolStructural:
		results, err = d.structural(ctx, plan)
	case model.ToolConfigScan:
		results, err = d.configScan(ctx, plan)
	case model.ToolVector:
		results = d.vector(plan)
	case model.ToolHybrid:
		results = d.hybrid(plan)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", apperrors.ErrInvalidInput, tool)
	}
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", tool, err)
	}
	results = d.dropExcluded(plan, results)
	d.logger.Debug("strategy executed",
		"strategy", tool,
		"query", query,
		"results", len(results),
	)
	return results, nil
}

func (d *Dispatcher) result(plan *parser.QueryPlan, tool model.Tool, source, content string, relevance float64, meta map[string]any) model.SearchResult {
	return model.SearchResult{
		Source:         source,
		Content:        model.Truncate(content),
		RelevanceScore: relevance,
		Metadata:       meta,
		SearchQuery:    plan.RawQuery,
		ToolUsed:       tool,
	}
}

// directMatch scores each line by the fraction of query terms it contains.
// A line holding the whole query phrase scores phraseMatchRelevance.
func (d *Dispatcher) directMatch(ctx context.Context, plan *parser.QueryPlan) ([]model.SearchResult, error) {
	results := make([]model.SearchResult, 0)
	for _, f := range d.corpus.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kept := 0
		for i, line := range strings.Split(f.Text, "\n") {
			if kept == maxLinesPerFile {
				break
			}
			matched := matchedTerms(plan.Terms, line)
			fraction := float64(len(matched)) / float64(len(plan.Terms))
			if len(matched) == 0 || fraction < d.opts.DirectMatchThreshold {
				continue
			}
			relevance := fraction
			if plan.Phrase != "" && strings.Contains(strings.ToLower(line), plan.Phrase) {
				relevance = phraseMatchRelevance
			}
			results = append(results, d.result(plan, model.ToolDirectMatch, f.Source, strings.TrimSpace(line), relevance, map[string]any{
				"line_number":   i + 1,
				"matched_terms": matched,
			}))
			kept++
		}
	}
	return results, nil
}

func (d *Dispatcher) lexical(plan *parser.QueryPlan) []model.SearchResult {
	ranked := ranker.Search(d.corpus.Lexical, plan.Query(), d.opts.TopK, d.opts.Ranker)
	results := make([]model.SearchResult, 0, len(ranked))
	for _, sd := range ranked {
		doc, _ := d.corpus.Lexical.Document(sd.DocID)
		results = append(results, d.result(plan, model.ToolLexical, doc.Source, doc.RawText, sd.Relevance, map[string]any{
			"bm25_score":    sd.Score,
			"matched_terms": sd.MatchedTerms,
		}))
	}
	return results
}

func (d *Dispatcher) vector(plan *parser.QueryPlan) []model.SearchResult {
	matches := d.corpus.Vector.Query(plan.Query(), d.opts.TopK, d.opts.VectorThreshold)
	results := make([]model.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, d.result(plan, model.ToolVector, m.Source, m.Text, m.Similarity, map[string]any{
			"chunk_id":   m.ChunkID,
			"similarity": m.Similarity,
		}))
	}
	return results
}

// hybrid asks each side for twice the final k so that sources ranked low
// by one side can still surface through the other.
func (d *Dispatcher) hybrid(plan *parser.QueryPlan) []model.SearchResult {
	k := d.opts.TopK * 2
	q := plan.Query()

	matches := d.corpus.Vector.Query(q, k, d.opts.VectorThreshold)
	dense := make([]fuser.Candidate, 0, len(matches))
	for _, m := range matches {
		dense = append(dense, fuser.Candidate{Source: m.Source, Score: m.Similarity, Content: m.Text})
	}
	ranked := ranker.Search(d.corpus.Lexical, q, k, d.opts.Ranker)
	sparse := make([]fuser.Candidate, 0, len(ranked))
	for _, sd := range ranked {
		doc, _ := d.corpus.Lexical.Document(sd.DocID)
		sparse = append(sparse, fuser.Candidate{Source: doc.Source, Score: sd.Relevance, Content: doc.RawText})
	}

	fused := fuser.Fuse(dense, sparse, d.opts.Weights, d.opts.TopK)
	results := make([]model.SearchResult, 0, len(fused))
	for _, f := range fused {
		results = append(results, d.result(plan, model.ToolHybrid, f.Source, f.Content, f.Score, map[string]any{
			"dense_score":  f.Dense,
			"sparse_score": f.Sparse,
		}))
	}
	return results
}

// structural adds structuralStep for every declaration whose name contains
// a query term, one result per code file.
func (d *Dispatcher) structural(ctx context.Context, plan *parser.QueryPlan) ([]model.SearchResult, error) {
	results := make([]model.SearchResult, 0)
	for _, f := range d.corpus.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !analyzer.IsCode(f.Source) {
			continue
		}
		var elements []string
		for _, decl := range analyzer.Declarations(f.Text) {
			name := strings.ToLower(decl.Name)
			for _, term := range plan.Terms {
				if strings.Contains(name, term) {
					elements = append(elements, decl.Kind+": "+decl.Name)
					break
				}
			}
		}
		if len(elements) == 0 {
			continue
		}
		relevance := float64(len(elements)) * structuralStep
		if relevance > 1 {
			relevance = 1
		}
		shown := elements
		if len(shown) > maxMatchedElements {
			shown = shown[:maxMatchedElements]
		}
		results = append(results, d.result(plan, model.ToolStructural, f.Source,
			"Code structure matches: "+strings.Join(shown, ", "), relevance,
			map[string]any{"matched_elements": elements}))
	}
	return results, nil
}

// configScan reports the first matching lines of configuration files.
func (d *Dispatcher) configScan(ctx context.Context, plan *parser.QueryPlan) ([]model.SearchResult, error) {
	results := make([]model.SearchResult, 0)
	for _, f := range d.corpus.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !analyzer.IsConfig(f.Source) {
			continue
		}
		var lines []string
		matching := 0
		best := 0.0
		for i, line := range strings.Split(f.Text, "\n") {
			matched := matchedTerms(plan.Terms, line)
			if len(matched) == 0 {
				continue
			}
			matching++
			if fraction := float64(len(matched)) / float64(len(plan.Terms)); fraction > best {
				best = fraction
			}
			if len(lines) < maxLinesPerFile {
				lines = append(lines, fmt.Sprintf("Line %d: %s", i+1, strings.TrimSpace(line)))
			}
		}
		if matching == 0 {
			continue
		}
		results = append(results, d.result(plan, model.ToolConfigScan, f.Source,
			strings.Join(lines, "\n"), configScanWeight*best,
			map[string]any{"matching_lines": matching}))
	}
	return results, nil
}

func (d *Dispatcher) dropExcluded(plan *parser.QueryPlan, results []model.SearchResult) []model.SearchResult {
	if len(plan.ExcludeTerms) == 0 {
		return results
	}
	excluded := make(map[string]bool)
	kept := results[:0]
	for _, r := range results {
		drop, ok := excluded[r.Source]
		if !ok {
			text, _ := d.corpus.Text(r.Source)
			drop = plan.Excludes(text)
			excluded[r.Source] = drop
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	return kept
}

// matchedTerms returns the query terms present in line, in query order.
func matchedTerms(terms []string, line string) []string {
	lineTerms := tokenizer.Terms(line)
	if len(lineTerms) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(lineTerms))
	for _, t := range lineTerms {
		present[t] = struct{}{}
	}
	var matched []string
	for _, t := range terms {
		if _, ok := present[t]; ok {
			matched = append(matched, t)
		}
	}
	return matched
}
