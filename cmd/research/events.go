package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/kafka"
)

func eventsCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Aggregate the research events topic and print the statistics",
		Long: `Reads the research events topic from its first offset for --window
(or until interrupted) and prints the aggregated run and strategy
statistics as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Kafka.Enabled {
				return errors.New("events needs kafka: set kafka.enabled or RE_KAFKA_ENABLED=true")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, window)
			defer cancel()

			agg := analytics.NewAggregator()
			consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ResearchEvents, "", analytics.HandleEvent(agg))
			if err := agg.Consume(ctx, consumer); err != nil {
				slog.Warn("consumer stopped with error", "error", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(agg.Stats())
		},
	}
	cmd.Flags().DurationVarP(&window, "window", "w", 10*time.Second, "how long to read the topic")
	return cmd
}
