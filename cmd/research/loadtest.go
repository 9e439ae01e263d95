package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultLoadQueries = []string{
	"configuration loading",
	"error handling",
	"request handler",
	"database connection",
	"cache invalidation",
	"authentication token",
	"retry backoff",
	"logging setup",
}

type loadOptions struct {
	BaseURL       string
	Directory     string
	Concurrency   int
	Duration      time.Duration
	MaxIterations int
	Queries       []string
}

// loadStats accumulates request outcomes from all workers.
type loadStats struct {
	mu          sync.Mutex
	total       int64
	success     int64
	failed      int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{statusCodes: make(map[int]int64)}
}

func (s *loadStats) record(d time.Duration, status int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.failed++
		return
	}
	if status >= 200 && status < 300 {
		s.success++
	} else {
		s.failed++
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
}

func loadtestCmd() *cobra.Command {
	cfg := loadOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Send concurrent research requests to a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Concurrency < 1 {
				return errors.New("--concurrency must be >= 1")
			}
			if len(cfg.Queries) == 0 {
				return errors.New("at least one --query is required")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Target:      %s\nConcurrency: %d\nDuration:    %s\nQueries:     %d\n\n",
				cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Queries))

			stats, err := runLoad(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printLoadReport(out, stats, cfg.Duration)
			if stats.total == 0 {
				return errors.New("no requests completed; is the api running?")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the research api")
	f.StringVarP(&cfg.Directory, "dir", "d", ".", "directory the api should research")
	f.IntVar(&cfg.Concurrency, "concurrency", 4, "number of concurrent workers")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	f.IntVar(&cfg.MaxIterations, "max-iterations", 1, "max_iterations sent with each request")
	f.StringSliceVarP(&cfg.Queries, "query", "q", defaultLoadQueries, "queries to cycle through")
	return cmd
}

func runLoad(parent context.Context, cfg loadOptions) (*loadStats, error) {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(parent, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				body, err := json.Marshal(map[string]any{
					"query":          cfg.Queries[i%len(cfg.Queries)],
					"directory":      cfg.Directory,
					"max_iterations": cfg.MaxIterations,
				})
				if err != nil {
					return err
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/research", bytes.NewReader(body))
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	return stats, g.Wait()
}

func printLoadReport(w io.Writer, s *loadStats, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(w, "Total Requests:  %d\nSuccessful:      %d\nErrors:          %d\n", s.total, s.success, s.failed)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.failed)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/duration.Seconds())
	}

	if len(s.latencies) > 0 {
		sorted := slices.Clone(s.latencies)
		slices.Sort(sorted)
		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  min  %s\n  avg  %s\n", sorted[0], sum/time.Duration(len(sorted)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "  p%-3.0f %s\n", p, latencyPercentile(sorted, p))
		}
		fmt.Fprintf(w, "  max  %s\n", sorted[len(sorted)-1])
	}

	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	fmt.Fprintln(w, "\nStatus Codes:")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}
}

func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
