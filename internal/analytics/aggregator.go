package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/kafka"
)

type AggregatedStats struct {
	TotalRuns         int64        `json:"total_runs"`
	AbortedRuns       int64        `json:"aborted_runs"`
	ZeroResultRuns    int64        `json:"zero_result_runs"`
	AvgConfidence     float64      `json:"avg_confidence"`
	AvgIterations     float64      `json:"avg_iterations"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	Strategies        []ToolStats  `json:"strategies"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	RunsPerMinute     float64      `json:"runs_per_minute"`
}

// ToolStats summarises the executions of one strategy.
type ToolStats struct {
	Tool         model.Tool `json:"tool"`
	Executions   int64      `json:"executions"`
	Errors       int64      `json:"errors"`
	ZeroResults  int64      `json:"zero_results"`
	AvgResults   float64    `json:"avg_results"`
	AvgLatencyMs float64    `json:"avg_latency_ms"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type toolTotals struct {
	executions, errors, zero, results, latency int64
}

// Aggregator folds analytics events into running statistics. It is safe
// for concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totalRuns         int64
	abortedRuns       int64
	zeroResultRuns    int64
	confidenceSum     float64
	iterationSum      int64
	latencies         []int64
	tools             map[model.Tool]*toolTotals
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		tools:             make(map[model.Tool]*toolTotals),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Consume feeds the aggregator from consumer until ctx is done.
func (a *Aggregator) Consume(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator starting")
	return consumer.Start(ctx)
}

// HandleEvent adapts agg to a kafka.MessageHandler. Undecodable messages
// are logged and skipped so one bad event cannot stall the consumer.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := decode(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds a StrategyEvent or RunEvent into the statistics. Other
// values are ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case StrategyEvent:
		a.recordStrategy(e)
	case RunEvent:
		a.recordRun(e)
	}
}

func (a *Aggregator) recordStrategy(e StrategyEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tools[e.Tool]
	if !ok {
		t = &toolTotals{}
		a.tools[e.Tool] = t
	}
	t.executions++
	t.latency += e.LatencyMs
	switch {
	case e.Error != "":
		t.errors++
	case e.Results == 0:
		t.zero++
	}
	t.results += int64(e.Results)
}

func (a *Aggregator) recordRun(e RunEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalRuns++
	if e.Aborted {
		a.abortedRuns++
	}
	a.confidenceSum += e.Confidence
	a.iterationSum += int64(e.Iterations)
	a.latencies = append(a.latencies, e.LatencyMs)
	a.queryCounts[e.Query]++
	if e.Results == 0 {
		a.zeroResultRuns++
		a.zeroResultQueries[e.Query]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRuns:      a.totalRuns,
		AbortedRuns:    a.abortedRuns,
		ZeroResultRuns: a.zeroResultRuns,
	}
	if a.totalRuns > 0 {
		stats.AvgConfidence = a.confidenceSum / float64(a.totalRuns)
		stats.AvgIterations = float64(a.iterationSum) / float64(a.totalRuns)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	for _, tool := range model.Tools() {
		t, ok := a.tools[tool]
		if !ok {
			continue
		}
		stats.Strategies = append(stats.Strategies, ToolStats{
			Tool:         tool,
			Executions:   t.executions,
			Errors:       t.errors,
			ZeroResults:  t.zero,
			AvgResults:   float64(t.results) / float64(t.executions),
			AvgLatencyMs: float64(t.latency) / float64(t.executions),
		})
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.RunsPerMinute = float64(stats.TotalRuns) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries; equal counts sort by query.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Recorder is a Publisher that folds events straight into an Aggregator.
// It stands in for Kafka when analytics run in a single process.
type Recorder struct {
	Agg *Aggregator
}

func (r Recorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		r.Agg.Record(e.Value)
	}
	return nil
}
