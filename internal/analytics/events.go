// Package analytics publishes research events to Kafka and aggregates them
// back into usage statistics.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
)

type EventType string

const (
	EventStrategy EventType = "strategy_execution"
	EventRun      EventType = "research_run"
)

// StrategyEvent records one strategy execution inside a run.
type StrategyEvent struct {
	Type      EventType  `json:"type"`
	RunID     string     `json:"run_id"`
	Tool      model.Tool `json:"tool"`
	Query     string     `json:"query"`
	Iteration int        `json:"iteration"`
	Results   int        `json:"results"`
	LatencyMs int64      `json:"latency_ms"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// RunEvent records a finished research run.
type RunEvent struct {
	Type            EventType `json:"type"`
	RunID           string    `json:"run_id"`
	Query           string    `json:"query"`
	Directory       string    `json:"directory"`
	Status          string    `json:"status"`
	Confidence      float64   `json:"confidence"`
	Iterations      int       `json:"iterations"`
	Results         int       `json:"results"`
	FilesDiscovered int       `json:"files_discovered"`
	Warnings        int       `json:"warnings"`
	Aborted         bool      `json:"aborted"`
	LatencyMs       int64     `json:"latency_ms"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id,omitempty"`
}

// Events converts a finished run into one event per strategy execution
// followed by a single run event.
func Events(out *research.Outcome, requestID string) []any {
	events := make([]any, 0, len(out.Strategies)+1)
	ts := out.StartedAt
	for _, s := range out.Strategies {
		events = append(events, StrategyEvent{
			Type:      EventStrategy,
			RunID:     out.RunID,
			Tool:      s.Tool,
			Query:     s.Query,
			Iteration: s.Iteration,
			Results:   s.Results,
			LatencyMs: s.Duration.Milliseconds(),
			Error:     s.Error,
			Timestamp: ts,
		})
	}
	status := "completed"
	if out.Aborted {
		status = "aborted"
	}
	events = append(events, RunEvent{
		Type:            EventRun,
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
		LatencyMs:       out.Duration.Milliseconds(),
		Timestamp:       ts.Add(out.Duration),
		RequestID:       requestID,
	})
	return events
}

// decode parses a message value into a StrategyEvent or RunEvent according
// to its type field.
func decode(value []byte) (any, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch envelope.Type {
	case EventStrategy:
		var e StrategyEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding strategy event: %w", err)
		}
		return e, nil
	case EventRun:
		var e RunEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding run event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", envelope.Type)
	}
}
