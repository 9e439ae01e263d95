// Package indexer turns a research directory into a searchable Corpus:
// files are discovered, extracted on a bounded worker pool and indexed in
// one atomic build.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
)

type Engine struct {
	extractor *extract.Extractor
	discovery discovery.Options
	chunk     ChunkOptions
	workers   int
	writer    *segment.Writer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineMetrics records indexing metrics in m.
func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSegmentCache persists lexical indexes under dir and reuses them for
// an unchanged corpus. An empty dir disables the cache.
func WithSegmentCache(dir string) EngineOption {
	return func(e *Engine) {
		if dir != "" {
			e.writer = segment.NewWriter(dir)
		}
	}
}

// WithDiscovery overrides the discovery options taken from the config.
func WithDiscovery(opts discovery.Options) EngineOption {
	return func(e *Engine) { e.discovery = opts }
}

func NewEngine(cfg *config.Config, opts ...EngineOption) *Engine {
	e := &Engine{
		extractor: extract.New(cfg.Indexer.MaxFileSize),
		discovery: discovery.OptionsFromConfig(cfg.Discovery, cfg.Indexer.MaxFiles),
		chunk: ChunkOptions{
			Size:    cfg.Retrieval.ChunkSize,
			Overlap: cfg.Retrieval.ChunkOverlap,
		},
		workers: cfg.Indexer.Workers,
		logger:  slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	if cfg.Indexer.CacheDir != "" && e.writer == nil {
		e.writer = segment.NewWriter(cfg.Indexer.CacheDir)
	}
	return e
}

// Build discovers and extracts the files under root and indexes them.
// Files that fail extraction are recorded in Corpus.Failures and left out.
// It fails only when root cannot be walked or ctx is done.
func (e *Engine) Build(ctx context.Context, root string) (*Corpus, error) {
	start := time.Now()
	root, err := discovery.ValidateRoot(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIndexBuild, err)
	}
	paths, err := discovery.Discover(root, e.discovery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIndexBuild, err)
	}

	files, failures, err := e.extractAll(ctx, root, paths)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(files)
	snap := e.loadSegment(fingerprint)
	c := newCorpus(root, files, e.chunk, snap)
	c.Failures = failures
	if snap == nil {
		e.saveSegment(c)
	}

	e.observe(c)
	e.logger.Info("corpus indexed",
		"root", root,
		"files", c.Len(),
		"failures", len(failures),
		"terms", len(c.Lexical.Stats().DocumentFrequency),
		"chunks", c.Vector.Len(),
		"cached", c.Cached,
		"duration", time.Since(start),
	)
	return c, nil
}

// extractAll reads paths on an ants pool. Each task writes only its own
// slot so the output keeps the discovery order.
func (e *Engine) extractAll(ctx context.Context, root string, paths []string) ([]File, []Failure, error) {
	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: creating extraction pool: %w", apperrors.ErrIndexBuild, err)
	}
	defer pool.Release()

	type slot struct {
		content extract.Content
		err     error
	}
	slots := make([]slot, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return
			}
			slots[i].content, slots[i].err = e.extractor.Read(path)
		})
		if submitErr != nil {
			wg.Done()
			slots[i].err = fmt.Errorf("%w: %v", apperrors.ErrExtraction, submitErr)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: extraction interrupted: %w", apperrors.ErrIndexBuild, err)
	}

	files := make([]File, 0, len(paths))
	var failures []Failure
	for i, path := range paths {
		if err := slots[i].err; err != nil {
			if !extract.IsUnsupported(err) {
				e.logger.Warn("extraction failed", "path", path, "error", err)
			}
			failures = append(failures, Failure{Path: sourceOf(root, path), Err: err})
			continue
		}
		files = append(files, File{
			Source: sourceOf(root, path),
			Path:   path,
			Text:   slots[i].content.Text,
			Size:   slots[i].content.Size,
		})
	}
	return files, failures, nil
}

// loadSegment returns the cached lexical snapshot for fingerprint, or nil
// when there is none or it cannot be read.
func (e *Engine) loadSegment(fingerprint string) *index.Snapshot {
	if e.writer == nil {
		return nil
	}
	path := e.writer.Path(fingerprint)
	r, err := segment.OpenReader(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("ignoring unreadable index segment", "segment", path, "error", err)
		}
		return nil
	}
	defer r.Close()
	snap, err := r.Snapshot()
	if err != nil {
		e.logger.Warn("ignoring unreadable index segment", "segment", path, "error", err)
		return nil
	}
	return &snap
}

func (e *Engine) saveSegment(c *Corpus) {
	if e.writer == nil || c.Len() == 0 {
		return
	}
	path, err := e.writer.Write(c.Fingerprint, c.Lexical.Snapshot())
	if err != nil {
		e.logger.Warn("writing index segment failed", "error", err)
		return
	}
	e.logger.Debug("index segment written", "segment", path)
}

func (e *Engine) observe(c *Corpus) {
	if e.metrics == nil {
		return
	}
	e.metrics.DocsIndexedTotal.Add(float64(c.Len()))
	e.metrics.ExtractionFailures.Add(float64(len(c.Failures)))
	for name, d := range c.BuildTimes {
		e.metrics.IndexBuildDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

// sourceOf is path relative to root with forward slashes.
func sourceOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
