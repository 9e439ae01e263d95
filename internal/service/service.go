// Package service wires the research pipeline together: corpus building,
// strategy execution with optional caching, the research controller, report
// rendering, run history and analytics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/strategy"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/resilience"
)

// Request describes one research run. Nil overrides keep the configured
// value.
type Request struct {
	Query               string   `json:"query"`
	Directory           string   `json:"directory"`
	MaxIterations       *int     `json:"max_iterations,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	DenseWeight         *float64 `json:"dense_weight,omitempty"`
	SparseWeight        *float64 `json:"sparse_weight,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	Format              string   `json:"format,omitempty"`
}

// Result is a finished run with its structured and rendered report.
type Result struct {
	Outcome *research.Outcome
	Report  *report.Report
	Format  report.Format
}

type Service struct {
	cfg        *config.Config
	builder    research.CorpusBuilder
	controller *research.Controller
	cacheStore cache.Store
	breaker    *resilience.CircuitBreaker
	runs       store.Store
	collector  *analytics.Collector
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Service)

// WithMetrics instruments the engine, controller and cache.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache memoises strategy results in store.
func WithCache(store cache.Store) Option {
	return func(s *Service) { s.cacheStore = store }
}

// WithStore records every finished run in runs.
func WithStore(runs store.Store) Option {
	return func(s *Service) { s.runs = runs }
}

// WithCollector publishes analytics events for every finished run.
func WithCollector(c *analytics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

// WithBuilder replaces the indexing engine.
func WithBuilder(b research.CorpusBuilder) Option {
	return func(s *Service) { s.builder = b }
}

func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		logger: slog.Default().With("component", "research-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		var engineOpts []indexer.EngineOption
		if s.metrics != nil {
			engineOpts = append(engineOpts, indexer.WithEngineMetrics(s.metrics))
		}
		s.builder = indexer.NewEngine(cfg, engineOpts...)
	}
	if s.cacheStore != nil {
		s.breaker = cache.NewBreaker(s.metrics)
	}

	settings, err := research.SettingsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("research settings: %w", err)
	}
	var controllerOpts []research.Option
	if s.metrics != nil {
		controllerOpts = append(controllerOpts, research.WithMetrics(s.metrics))
	}
	s.controller = research.NewController(s.builder, s.executorFor, settings, controllerOpts...)
	return s, nil
}

func (s *Service) executorFor(corpus *indexer.Corpus) research.Executor {
	return s.executorWith(corpus, strategy.OptionsFromConfig(s.cfg))
}

func (s *Service) executorWith(corpus *indexer.Corpus, opts strategy.Options) research.Executor {
	d := strategy.NewDispatcher(corpus, opts)
	if s.cacheStore == nil {
		return d
	}
	return cache.New(d, s.cacheStore, d.Fingerprint(), s.cfg.Redis.CacheTTL, s.metrics,
		cache.WithBreaker(s.breaker),
		cache.WithOptionsDigest(d.Options().Digest()),
	)
}

// Run researches req and builds its report. The rendered report is stored
// in Outcome.Report. History and analytics failures are logged, never
// returned.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if err := s.checkRoot(req.Directory); err != nil {
		return nil, err
	}
	settings := s.controller.Settings()
	if req.MaxIterations != nil {
		if *req.MaxIterations < 0 {
			return nil, fmt.Errorf("%w: max_iterations must be >= 0", apperrors.ErrInvalidInput)
		}
		settings.MaxIterations = *req.MaxIterations
	}
	if req.SimilarityThreshold != nil {
		if t := *req.SimilarityThreshold; t < 0 || t > 1 {
			return nil, fmt.Errorf("%w: similarity_threshold must be in [0,1]", apperrors.ErrInvalidInput)
		}
		settings.SimilarityThreshold = *req.SimilarityThreshold
	}
	opts, err := s.strategyOptions(req)
	if err != nil {
		return nil, err
	}
	settings.NewExecutor = func(corpus *indexer.Corpus) research.Executor {
		return s.executorWith(corpus, opts)
	}

	var out *research.Outcome
	err = resilience.WithTimeout(ctx, s.cfg.Research.RunTimeout, "research run", func(ctx context.Context) error {
		var runErr error
		out, runErr = s.controller.RunWith(ctx, req.Query, req.Directory, settings)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	rep := report.Build(out)
	var sb strings.Builder
	if err := report.Render(&sb, rep, format); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	out.Report = sb.String()

	s.record(ctx, out)
	return &Result{Outcome: out, Report: rep, Format: format}, nil
}

// strategyOptions applies the retrieval overrides of req to the configured
// strategy options.
func (s *Service) strategyOptions(req Request) (strategy.Options, error) {
	opts := strategy.OptionsFromConfig(s.cfg)
	if req.TopK != nil {
		if *req.TopK < 1 {
			return opts, fmt.Errorf("%w: top_k must be >= 1", apperrors.ErrInvalidInput)
		}
		opts.TopK = *req.TopK
	}
	if req.DenseWeight != nil {
		if w := *req.DenseWeight; w < 0 || w > 1 {
			return opts, fmt.Errorf("%w: dense_weight must be in [0,1]", apperrors.ErrInvalidInput)
		}
		opts.Weights.Dense = *req.DenseWeight
	}
	if req.SparseWeight != nil {
		if w := *req.SparseWeight; w < 0 || w > 1 {
			return opts, fmt.Errorf("%w: sparse_weight must be in [0,1]", apperrors.ErrInvalidInput)
		}
		opts.Weights.Sparse = *req.SparseWeight
	}
	return opts, nil
}

func (s *Service) record(ctx context.Context, out *research.Outcome) {
	log := logger.FromContext(ctx)
	if s.runs != nil {
		if err := s.runs.Save(context.WithoutCancel(ctx), out); err != nil {
			log.Warn("failed to save run", "run_id", out.RunID, "error", err)
		}
	}
	if s.collector != nil {
		s.collector.TrackAll(out.RunID, analytics.Events(out, middleware.GetRequestID(ctx)))
	}
}

// checkRoot rejects directories outside the configured allowed roots.
// With no allowed roots every directory is accepted.
func (s *Service) checkRoot(dir string) error {
	roots := s.cfg.Server.AllowedRoots
	if len(roots) == 0 || strings.TrimSpace(dir) == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrInvalidDirectory, dir, err)
	}
	for _, root := range roots {
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(r, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside the allowed roots", apperrors.ErrInvalidDirectory, dir)
}

// Stats discovers the files of dir and summarises them.
func (s *Service) Stats(dir string) (discovery.Stats, error) {
	if err := s.checkRoot(dir); err != nil {
		return discovery.Stats{}, err
	}
	root, err := discovery.ValidateRoot(dir)
	if err != nil {
		return discovery.Stats{}, err
	}
	paths, err := discovery.Discover(root, discovery.OptionsFromConfig(s.cfg.Discovery, s.cfg.Indexer.MaxFiles))
	if err != nil {
		return discovery.Stats{}, err
	}
	return discovery.GetStats(paths), nil
}

// History lists recent runs. It fails with ErrNotConfigured when no run
// store is wired.
func (s *Service) History(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: run history is disabled", apperrors.ErrNotConfigured)
	}
	return s.runs.List(ctx, limit)
}

// Lookup returns one stored run.
func (s *Service) Lookup(ctx context.Context, runID string) (*store.RunRecord, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: run history is disabled", apperrors.ErrNotConfigured)
	}
	return s.runs.Get(ctx, runID)
}
