package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/redis"
)

// backends holds the optional external services. Unavailable services
// are logged and left nil; the engine runs without them.
type backends struct {
	redis     *pkgredis.Client
	pg        *postgres.Client
	runs      *store.Postgres
	producer  *kafka.Producer
	collector *analytics.Collector
}

func openBackends(ctx context.Context, cfg *config.Config) *backends {
	b := &backends{}

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, strategy caching disabled", "error", err)
		} else {
			b.redis = client
			slog.Info("strategy cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, run history disabled", "error", err)
		} else {
			runs := store.NewPostgres(db)
			if err := runs.Migrate(ctx); err != nil {
				slog.Warn("run store migration failed, run history disabled", "error", err)
				db.Close()
			} else {
				b.pg = db
				b.runs = runs
				slog.Info("run history enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
			}
		}
	}

	if cfg.Kafka.Enabled {
		b.producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ResearchEvents)
		b.collector = analytics.NewCollector(b.producer, 1000, 50, 2*time.Second)
		b.collector.Start(ctx)
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.ResearchEvents)
	}
	return b
}

// options maps the available backends to service options.
func (b *backends) options() []service.Option {
	var opts []service.Option
	if b.redis != nil {
		opts = append(opts, service.WithCache(b.redis))
	}
	if b.runs != nil {
		opts = append(opts, service.WithStore(b.runs))
	}
	if b.collector != nil {
		opts = append(opts, service.WithCollector(b.collector))
	}
	return opts
}

// Close flushes the analytics collector before closing the producer.
func (b *backends) Close() {
	if b.collector != nil {
		b.collector.Close()
		if n := b.collector.Dropped(); n > 0 {
			slog.Warn("analytics events dropped", "count", n)
		}
	}
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			slog.Warn("closing kafka producer", "error", err)
		}
	}
	if b.redis != nil {
		b.redis.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}

func requireHistory(b *backends) (*store.Postgres, error) {
	if b.runs == nil {
		return nil, fmt.Errorf("run history needs postgres: set postgres.enabled or RE_POSTGRES_ENABLED=true")
	}
	return b.runs, nil
}
