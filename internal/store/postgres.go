package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/postgres"
)

// Schema creates the tables the Postgres store needs.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS research_runs (
	    run_id           TEXT PRIMARY KEY,
	    query            TEXT NOT NULL,
	    directory        TEXT NOT NULL,
	    status           TEXT NOT NULL,
	    confidence       DOUBLE PRECISION NOT NULL,
	    iterations       INTEGER NOT NULL,
	    results          INTEGER NOT NULL,
	    files_discovered INTEGER NOT NULL,
	    warnings         INTEGER NOT NULL,
	    aborted          BOOLEAN NOT NULL DEFAULT false,
	    started_at       TIMESTAMPTZ NOT NULL,
	    duration_ms      BIGINT NOT NULL,
	    outcome          JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS research_runs_started_at_idx ON research_runs (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
	    id          BIGSERIAL PRIMARY KEY,
	    data        JSONB NOT NULL,
	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Postgres stores runs in the research_runs table and analytics snapshots
// in analytics_snapshots.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.Migrate(ctx, Schema...); err != nil {
		return fmt.Errorf("migrating run store: %w", err)
	}
	return nil
}

// Save upserts out.
func (p *Postgres) Save(ctx context.Context, out *research.Outcome) error {
	rec, err := NewRecord(out)
	if err != nil {
		return err
	}
	_, err = p.db.DB.ExecContext(ctx,
		`INSERT INTO research_runs
		    (run_id, query, directory, status, confidence, iterations, results,
		     files_discovered, warnings, aborted, started_at, duration_ms, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (run_id) DO UPDATE SET
		    status = EXCLUDED.status,
		    confidence = EXCLUDED.confidence,
		    outcome = EXCLUDED.outcome`,
		rec.RunID, rec.Query, rec.Directory, rec.Status, rec.Confidence, rec.Iterations, rec.Results,
		rec.FilesDiscovered, rec.Warnings, rec.Aborted, rec.StartedAt, rec.DurationMs, []byte(rec.Outcome),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.RunID, err)
	}
	p.logger.Debug("run saved", "run_id", rec.RunID)
	return nil
}

// List returns up to limit runs, newest first, without their outcomes.
func (p *Postgres) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT run_id, query, directory, status, confidence, iterations, results,
		        files_discovered, warnings, aborted, started_at, duration_ms
		 FROM research_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Query, &r.Directory, &r.Status, &r.Confidence, &r.Iterations,
			&r.Results, &r.FilesDiscovered, &r.Warnings, &r.Aborted, &r.StartedAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var r RunRecord
	var outcome []byte
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT run_id, query, directory, status, confidence, iterations, results,
		        files_discovered, warnings, aborted, started_at, duration_ms, outcome
		 FROM research_runs WHERE run_id = $1`,
		runID,
	).Scan(&r.RunID, &r.Query, &r.Directory, &r.Status, &r.Confidence, &r.Iterations,
		&r.Results, &r.FilesDiscovered, &r.Warnings, &r.Aborted, &r.StartedAt, &r.DurationMs, &outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	r.Outcome = json.RawMessage(outcome)
	return &r, nil
}

// SaveSnapshot persists an analytics snapshot.
func (p *Postgres) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = p.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	p.logger.Info("analytics snapshot saved", "total_runs", stats.TotalRuns)
	return nil
}

// LatestSnapshot returns the newest analytics snapshot, or nil when none
// has been saved.
func (p *Postgres) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// SnapshotEvery saves agg's statistics every interval until ctx is done,
// then once more on the way out.
func (p *Postgres) SnapshotEvery(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.SaveSnapshot(ctx, agg.Stats()); err != nil {
				p.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
				p.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}
