package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
)

type runFlags struct {
	dir           string
	format        string
	output        string
	maxIterations int
	threshold     float64
	denseWeight   float64
	sparseWeight  float64
	topK          int
	maxSteps      int
	timeout       time.Duration
	trace         bool
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Research a question over a directory and print the report",
		Long: `Indexes the files under --dir, runs the planned search strategies,
refines the query with follow-up questions for up to --max-iterations
iterations and prints a report with the findings and a confidence score.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd, strings.Join(args, " "), f)
		},
	}
	cmd.Flags().StringVarP(&f.dir, "dir", "d", ".", "directory to research")
	cmd.Flags().StringVarP(&f.format, "format", "f", "markdown", "report format: markdown, json or plain")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "override research.maxIterations")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "override research.similarityThreshold")
	cmd.Flags().Float64Var(&f.denseWeight, "dense-weight", 0, "override retrieval.denseWeight for hybrid search")
	cmd.Flags().Float64Var(&f.sparseWeight, "sparse-weight", 0, "override retrieval.sparseWeight for hybrid search")
	cmd.Flags().IntVar(&f.topK, "top-k", 0, "override research.topK")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "override research.maxSteps")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "override research.runTimeout")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "log the stage span tree at the end of the run")
	return cmd
}

func runResearch(cmd *cobra.Command, query string, f runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("max-steps") {
		cfg.Research.MaxSteps = f.maxSteps
	}
	if flags.Changed("timeout") {
		cfg.Research.RunTimeout = f.timeout
	}
	if f.trace {
		cfg.Tracing.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := openBackends(ctx, cfg)
	defer b.Close()

	opts := b.options()
	if cfg.Metrics.Enabled {
		reg, m := newRegistry()
		opts = append(opts, service.WithMetrics(m))
		if ms, err := metrics.StartServer(cfg.Metrics.Port, reg); err != nil {
			slog.Warn("metrics server not started", "port", cfg.Metrics.Port, "error", err)
		} else {
			defer ms.Stop()
		}
	}
	svc, err := service.New(cfg, opts...)
	if err != nil {
		return err
	}

	req := service.Request{Query: query, Directory: f.dir, Format: f.format}
	if flags.Changed("max-iterations") {
		req.MaxIterations = &f.maxIterations
	}
	if flags.Changed("threshold") {
		req.SimilarityThreshold = &f.threshold
	}
	if flags.Changed("dense-weight") {
		req.DenseWeight = &f.denseWeight
	}
	if flags.Changed("sparse-weight") {
		req.SparseWeight = &f.sparseWeight
	}
	if flags.Changed("top-k") {
		req.TopK = &f.topK
	}

	res, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer file.Close()
		w = file
	}
	if _, err := io.WriteString(w, res.Outcome.Report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if f.output != "" {
		slog.Info("report written", "path", f.output, "confidence", res.Outcome.Confidence)
	}
	return nil
}
