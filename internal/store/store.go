// Package store keeps the history of completed research runs, in
// PostgreSQL or in memory.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

var ErrNotFound = fmt.Errorf("run %w", apperrors.ErrNotFound)

// RunRecord is the stored summary of one run. Outcome holds the full
// outcome as JSON and is only populated by Get.
type RunRecord struct {
	RunID           string          `json:"run_id"`
	Query           string          `json:"query"`
	Directory       string          `json:"directory"`
	Status          string          `json:"status"`
	Confidence      float64         `json:"confidence_score"`
	Iterations      int             `json:"iterations"`
	Results         int             `json:"results"`
	FilesDiscovered int             `json:"files_discovered"`
	Warnings        int             `json:"warnings"`
	Aborted         bool            `json:"aborted"`
	StartedAt       time.Time       `json:"started_at"`
	DurationMs      int64           `json:"duration_ms"`
	Outcome         json.RawMessage `json:"outcome,omitempty"`
}

// Store persists finished runs.
type Store interface {
	Save(ctx context.Context, out *research.Outcome) error
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Get(ctx context.Context, runID string) (*RunRecord, error)
}

// NewRecord summarises out.
func NewRecord(out *research.Outcome) (RunRecord, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return RunRecord{}, fmt.Errorf("marshaling outcome %s: %w", out.RunID, err)
	}
	status := "completed"
	if out.Aborted {
		status = "aborted"
	}
	return RunRecord{
		RunID:           out.RunID,
		Query:           out.Query,
		Directory:       out.Directory,
		Status:          status,
		Confidence:      out.Confidence,
		Iterations:      len(out.Iterations),
		Results:         len(out.Results),
		FilesDiscovered: out.FilesDiscovered,
		Warnings:        len(out.Warnings),
		Aborted:         out.Aborted,
		StartedAt:       out.StartedAt.UTC(),
		DurationMs:      out.Duration.Milliseconds(),
		Outcome:         data,
	}, nil
}

// Memory is a bounded in-process Store. Once full, the oldest run is
// evicted.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	records  []RunRecord
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Save(_ context.Context, out *research.Outcome) error {
	rec, err := NewRecord(out)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].RunID == rec.RunID {
			m.records[i] = rec
			return nil
		}
	}
	m.records = append(m.records, rec)
	if len(m.records) > m.capacity {
		m.records = m.records[len(m.records)-m.capacity:]
	}
	return nil
}

// List returns up to limit runs, newest first, without their outcomes.
func (m *Memory) List(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	out := make([]RunRecord, len(m.records))
	copy(out, m.records)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Outcome = nil
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, runID string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.RunID == runID {
			r := rec
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
}
