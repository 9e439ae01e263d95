package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/tracing"
)

// Executor runs one strategy for one query.
type Executor interface {
	Execute(ctx context.Context, tool model.Tool, query string) ([]model.SearchResult, error)
}

// CorpusBuilder discovers, extracts and indexes the files of a directory.
type CorpusBuilder interface {
	Build(ctx context.Context, root string) (*indexer.Corpus, error)
}

// ExecutorFactory binds an Executor to a built corpus.
type ExecutorFactory func(corpus *indexer.Corpus) Executor

// Settings bound a run.
type Settings struct {
	MaxIterations       int
	SimilarityThreshold float64
	MaxSteps            int
	SearchParallelism   int
	RelevantResultCap   int
	FallbackTopN        int
	FollowUp            FollowUpSelector
	Trace               bool
	// NewExecutor, when set, replaces the controller's factory for the run.
	NewExecutor ExecutorFactory
}

func DefaultSettings() Settings {
	return Settings{
		MaxIterations:       3,
		SimilarityThreshold: 0.3,
		MaxSteps:            50,
		SearchParallelism:   4,
		RelevantResultCap:   20,
		FallbackTopN:        10,
		FollowUp:            SelectFirst,
	}
}

// SettingsFromConfig maps the research section of cfg.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	r := cfg.Research
	selector, err := SelectorByName(r.FollowUpStrategy)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		MaxIterations:       r.MaxIterations,
		SimilarityThreshold: r.SimilarityThreshold,
		MaxSteps:            r.MaxSteps,
		SearchParallelism:   r.SearchParallelism,
		RelevantResultCap:   r.RelevantResultCap,
		FallbackTopN:        r.FallbackTopN,
		FollowUp:            selector,
		Trace:               cfg.Tracing.Enabled,
	}, nil
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxSteps <= 0 {
		s.MaxSteps = d.MaxSteps
	}
	if s.SearchParallelism <= 0 {
		s.SearchParallelism = d.SearchParallelism
	}
	if s.RelevantResultCap <= 0 {
		s.RelevantResultCap = d.RelevantResultCap
	}
	if s.FallbackTopN <= 0 {
		s.FallbackTopN = d.FallbackTopN
	}
	if s.FollowUp == nil {
		s.FollowUp = d.FollowUp
	}
	return s
}

// Controller runs research state machines. It keeps no per-run state and
// may run several research runs at once.
type Controller struct {
	builder     CorpusBuilder
	newExecutor ExecutorFactory
	analyzer    *analyzer.Analyzer
	settings    Settings
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records run and strategy metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithAnalyzer replaces the default content analyzer.
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(c *Controller) { c.analyzer = a }
}

func NewController(builder CorpusBuilder, newExecutor ExecutorFactory, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		builder:     builder,
		newExecutor: newExecutor,
		analyzer:    analyzer.New(),
		settings:    settings.withDefaults(),
		logger:      slog.Default().With("component", "research-controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the effective settings.
func (c *Controller) Settings() Settings {
	return c.settings
}

// Run researches query over directory with the controller's settings.
func (c *Controller) Run(ctx context.Context, query, directory string) (*Outcome, error) {
	return c.RunWith(ctx, query, directory, c.settings)
}

// RunWith researches query over directory with settings. An empty query or
// a missing directory fails before any work starts. Cancelling ctx stops
// the run at the next stage boundary and returns an error wrapping
// ErrCancelled.
func (c *Controller) RunWith(ctx context.Context, query, directory string, settings Settings) (*Outcome, error) {
	if strings.TrimSpace(query) == "" || parser.Parse(query).Empty() {
		return nil, fmt.Errorf("%w: query %q has no searchable terms", apperrors.ErrInvalidQuery, query)
	}
	root, err := discovery.ValidateRoot(directory)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "research", runID)
	span.SetAttr("query", query)

	r := &run{
		c:      c,
		st:     newState(runID, query, root, settings.withDefaults()),
		logger: logger.FromContext(ctx).With("component", "research-controller"),
	}
	r.logger.Info("research run started", "query", query, "directory", root)

	err = r.loop(ctx)
	span.End()
	if err != nil {
		c.observeRun("cancelled", started, nil)
		r.logger.Warn("research run cancelled", "stage", r.st.Status, "error", err)
		return nil, err
	}

	out := r.st.outcome(started)
	out.StageDurations = span.StageDurations()
	if r.st.Settings.Trace {
		span.Log(r.logger)
	}
	status := "completed"
	if out.Aborted {
		status = "aborted"
	}
	c.observeRun(status, started, out)
	r.logger.Info("research run completed",
		"confidence", out.Confidence,
		"iterations", len(out.Iterations),
		"results", len(out.Results),
		"steps", out.Steps,
		"aborted", out.Aborted,
		"duration", out.Duration,
	)
	return out, nil
}

func (c *Controller) observeRun(status string, started time.Time, out *Outcome) {
	if c.metrics == nil {
		return
	}
	c.metrics.ResearchRunsTotal.WithLabelValues(status).Inc()
	c.metrics.ResearchRunDuration.Observe(time.Since(started).Seconds())
	if out != nil {
		c.metrics.ResearchConfidence.Observe(out.Confidence)
		c.metrics.ResearchIterations.Observe(float64(len(out.Iterations)))
	}
}

// run is the state of one Run call.
type run struct {
	c      *Controller
	st     *State
	exec   Executor
	logger *slog.Logger
}

// loop executes one stage per step until the run completes. The context
// and the step ceiling are checked between stages only.
func (r *run) loop(ctx context.Context) error {
	for r.st.Status != StatusCompleted {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w at %s: %w", apperrors.ErrCancelled, r.st.Status, err)
		}
		if r.st.Steps >= r.st.Settings.MaxSteps && r.st.Status != StatusSynthesizing {
			r.abort()
			continue
		}
		r.st.Steps++

		stageCtx, span := tracing.StartChildSpan(ctx, strings.ToLower(string(r.st.Status)))
		var err error
		switch r.st.Status {
		case StatusPlanning:
			r.plan(stageCtx)
		case StatusSearching:
			err = r.search(stageCtx)
		case StatusAnalyzing:
			r.analyze()
		case StatusIterating:
			r.iterate()
		case StatusSynthesizing:
			r.synthesize()
		}
		span.End()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) abort() {
	r.st.Aborted = true
	msg := fmt.Sprintf("%v: step ceiling of %d reached at %s, finishing with partial results",
		apperrors.ErrIterationLimit, r.st.Settings.MaxSteps, r.st.Status)
	r.st.warn(msg)
	r.logger.Warn("step ceiling reached", "steps", r.st.Steps, "stage", r.st.Status)
	r.st.Pending = nil
	r.st.transition(StatusSynthesizing)
}

// plan builds the corpus and chooses the first strategies. A failed build
// leaves an empty corpus so the run still completes.
func (r *run) plan(ctx context.Context) {
	corpus, err := r.c.builder.Build(ctx, r.st.Directory)
	if err != nil {
		r.st.warn(fmt.Sprintf("index build failed, continuing with an empty index: %v", err))
		r.logger.Warn("index build failed", "error", err)
		corpus = indexer.NewCorpus(r.st.Directory, nil, indexer.ChunkOptions{})
	}
	for _, f := range corpus.Failures {
		r.st.warn(fmt.Sprintf("skipped %s: %v", f.Path, f.Err))
	}
	files := make([]string, 0, corpus.Len())
	for _, f := range corpus.Files() {
		files = append(files, f.Source)
	}
	r.st.Files = files
	newExecutor := r.c.newExecutor
	if r.st.Settings.NewExecutor != nil {
		newExecutor = r.st.Settings.NewExecutor
	}
	r.exec = newExecutor(corpus)

	r.st.Strategies = Plan(r.st.OriginalQuery)
	r.st.Pending = append([]model.Tool(nil), r.st.Strategies...)
	r.st.Iteration = 0
	r.logger.Info("research planned",
		"files", len(files),
		"strategies", r.st.Strategies,
	)
	r.st.transition(StatusSearching)
}

// search runs the next batch of pending strategies concurrently. Each
// strategy writes only its own slot; the slots are merged in queue order
// once all of them have finished.
func (r *run) search(ctx context.Context) error {
	if len(r.st.Pending) == 0 {
		r.st.transition(StatusAnalyzing)
		return nil
	}
	n := min(len(r.st.Pending), r.st.Settings.SearchParallelism)
	batch := r.st.Pending[:n]
	query := r.st.CurrentQuery

	type slot struct {
		results  []model.SearchResult
		err      error
		duration time.Duration
	}
	slots := make([]slot, len(batch))
	var g errgroup.Group
	for i, tool := range batch {
		g.Go(func() error {
			start := time.Now()
			results, err := r.exec.Execute(ctx, tool, query)
			slots[i] = slot{results: results, err: err, duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w during search: %w", apperrors.ErrCancelled, err)
	}

	for i, tool := range batch {
		s := slots[i]
		rec := StrategyRun{
			Iteration: r.st.Iteration,
			Tool:      tool,
			Query:     query,
			Results:   len(s.results),
			Duration:  s.duration,
		}
		outcome := "success"
		if s.err != nil {
			outcome = "error"
			rec.Results = 0
			rec.Error = s.err.Error()
			r.st.warn(fmt.Sprintf("strategy %s failed: %v", tool, s.err))
			r.logger.Warn("strategy failed", "strategy", tool, "error", s.err)
		} else {
			r.st.Results = append(r.st.Results, s.results...)
		}
		r.st.Runs = append(r.st.Runs, rec)
		r.st.Completed = append(r.st.Completed, tool)
		if m := r.c.metrics; m != nil {
			m.StrategyExecutions.WithLabelValues(string(tool), outcome).Inc()
			m.StrategyResultsCount.WithLabelValues(string(tool)).Observe(float64(rec.Results))
		}
		r.logger.Debug("strategy finished", "strategy", tool, "results", rec.Results, "duration", s.duration)
	}
	r.st.Pending = r.st.Pending[n:]
	if len(r.st.Pending) == 0 {
		r.st.transition(StatusAnalyzing)
		return nil
	}
	r.st.transition(StatusSearching)
	return nil
}

// analyze filters the accumulated results, records an iteration and
// decides between refining and synthesising.
func (r *run) analyze() {
	s := r.st.Settings
	if len(r.st.Results) == 0 {
		r.st.Iterations = append(r.st.Iterations, Iteration{
			Number: r.st.Iteration,
			Query:  r.st.CurrentQuery,
			Status: StatusAnalyzing,
		})
		r.logger.Info("no results found, synthesising")
		r.st.transition(StatusSynthesizing)
		return
	}

	relevant, fallback := FilterRelevant(r.st.Results, s.SimilarityThreshold, s.FallbackTopN)
	a := r.c.analyzer
	it := Iteration{
		Number:            r.st.Iteration,
		Query:             r.st.CurrentQuery,
		Results:           relevant,
		Insights:          a.Insights(relevant),
		FollowUpQuestions: a.FollowUps(relevant, r.st.OriginalQuery),
		Status:            StatusAnalyzing,
		ThresholdFallback: fallback,
		Analysis:          a.Analyze(relevant, r.st.OriginalQuery),
	}
	r.st.Iterations = append(r.st.Iterations, it)
	r.st.Insights = append(r.st.Insights, it.Insights...)
	if fallback {
		r.st.warn(fmt.Sprintf("no result reached relevance %.2f in iteration %d, using the top %d instead",
			s.SimilarityThreshold, r.st.Iteration, len(relevant)))
	}
	r.logger.Info("iteration analysed",
		"iteration", r.st.Iteration,
		"relevant", len(relevant),
		"insights", len(it.Insights),
		"follow_ups", len(it.FollowUpQuestions),
		"threshold_fallback", fallback,
	)

	if r.st.Iteration < s.MaxIterations && len(it.FollowUpQuestions) > 0 && len(relevant) < s.RelevantResultCap {
		r.st.transition(StatusIterating)
		return
	}
	r.st.transition(StatusSynthesizing)
}

// iterate switches to the selected follow-up and resets the strategy queue.
func (r *run) iterate() {
	last := r.st.Iterations[len(r.st.Iterations)-1]
	if len(last.FollowUpQuestions) == 0 {
		r.st.transition(StatusSynthesizing)
		return
	}
	r.st.CurrentQuery = r.st.Settings.FollowUp(last.FollowUpQuestions)
	r.st.Iteration++
	r.st.Pending = IterationStrategies(r.st.Iteration)
	r.st.Completed = nil
	r.logger.Info("refining query", "iteration", r.st.Iteration, "query", r.st.CurrentQuery)
	r.st.transition(StatusSearching)
}

func (r *run) synthesize() {
	r.st.Confidence = Confidence(r.st.Results, len(r.st.Iterations))
	r.st.transition(StatusCompleted)
}

// FilterRelevant keeps the results scoring at least threshold, in their
// original order. When none do, it falls back to the topN best results and
// reports the fallback.
func FilterRelevant(results []model.SearchResult, threshold float64, topN int) ([]model.SearchResult, bool) {
	relevant := make([]model.SearchResult, 0, len(results))
	for _, res := range results {
		if res.RelevanceScore >= threshold {
			relevant = append(relevant, res)
		}
	}
	if len(relevant) > 0 || len(results) == 0 {
		return relevant, false
	}
	ranked := append([]model.SearchResult(nil), results...)
	model.SortByRelevance(ranked)
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, true
}

// IsCancelled reports whether err ended a run through cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, apperrors.ErrCancelled)
}
