package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
)

const consumerGroup = "research-api"

func newRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.New(reg)
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the research API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting research api", "port", cfg.Server.Port)
	b := openBackends(ctx, cfg)
	defer b.Close()

	reg, m := newRegistry()
	aggregator := analytics.NewAggregator()

	opts := append(b.options(), service.WithMetrics(m))
	var local *analytics.Collector
	switch {
	case b.collector != nil:
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ResearchEvents, consumerGroup, analytics.HandleEvent(aggregator))
		go func() {
			if err := aggregator.Consume(ctx, consumer); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
	default:
		local = analytics.NewCollector(analytics.Recorder{Agg: aggregator}, 1000, 1, time.Second)
		local.Start(ctx)
		defer local.Close()
		opts = append(opts, service.WithCollector(local))
	}
	if b.runs == nil {
		opts = append(opts, service.WithStore(store.NewMemory(100)))
	} else {
		go b.runs.SnapshotEvery(ctx, aggregator, 5*time.Minute)
	}

	svc, err := service.New(cfg, opts...)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("workspace", func(ctx context.Context) health.ComponentHealth {
		for _, root := range cfg.Server.AllowedRoots {
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				return health.ComponentHealth{Status: health.StatusDown, Message: fmt.Sprintf("allowed root %s is not a directory", root)}
			}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if b.redis != nil {
		checker.Register("redis", health.PingCheck(b.redis.Ping, true))
	}
	if b.pg != nil {
		checker.Register("postgres", health.PingCheck(b.pg.Ping, true))
	}
	if b.producer != nil {
		checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}, true))
	}

	limiter := ratelimit.New(time.Minute)
	defer limiter.Stop()

	h := router.New(router.Deps{
		Handler:        handler.New(svc),
		Health:         checker,
		Analytics:      analytics.NewHandler(aggregator),
		Metrics:        m,
		Gatherer:       reg,
		Limiter:        limiter,
		RateLimit:      cfg.Server.RateLimit,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		if ms, err := metrics.StartServer(cfg.Metrics.Port, reg); err != nil {
			slog.Warn("metrics server not started", "port", cfg.Metrics.Port, "error", err)
		} else {
			defer ms.Stop()
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("research api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	// In-flight requests may still track analytics until Shutdown returns.
	<-shutdownDone
	slog.Info("research api stopped")
	return nil
}
