// Package research drives a research run: it plans strategies, searches,
// analyses the results and decides whether to refine the query before
// synthesising a confidence score.
package research

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
)

// Status is a stage of the research state machine.
type Status string

const (
	StatusPlanning     Status = "PLANNING"
	StatusSearching    Status = "SEARCHING"
	StatusAnalyzing    Status = "ANALYZING"
	StatusIterating    Status = "ITERATING"
	StatusSynthesizing Status = "SYNTHESIZING"
	StatusCompleted    Status = "COMPLETED"
)

// transitions lists the legal successors of every status.
var transitions = map[Status][]Status{
	StatusPlanning:     {StatusSearching, StatusSynthesizing},
	StatusSearching:    {StatusSearching, StatusAnalyzing, StatusSynthesizing},
	StatusAnalyzing:    {StatusIterating, StatusSynthesizing},
	StatusIterating:    {StatusSearching, StatusSynthesizing},
	StatusSynthesizing: {StatusCompleted},
}

// CanTransition reports whether the state machine may move from s to next.
// SYNTHESIZING is reachable from every running stage so the step ceiling
// can always end a run.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Iteration is the record of one completed analysis pass. It is appended
// to the run and never changed afterwards.
type Iteration struct {
	Number            int                  `json:"iteration_number"`
	Query             string               `json:"query"`
	Results           []model.SearchResult `json:"results"`
	Insights          []string             `json:"insights"`
	FollowUpQuestions []string             `json:"follow_up_questions"`
	Status            Status               `json:"status"`
	ThresholdFallback bool                 `json:"threshold_fallback"`
	Analysis          analyzer.Analysis    `json:"analysis"`
}

// StrategyRun records one strategy execution.
type StrategyRun struct {
	Iteration int           `json:"iteration"`
	Tool      model.Tool    `json:"tool"`
	Query     string        `json:"query"`
	Results   int           `json:"results"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// State is the mutable aggregate of one run. Only the controller's stage
// functions write to it, one stage at a time.
type State struct {
	RunID         string
	OriginalQuery string
	CurrentQuery  string
	Directory     string
	Iteration     int
	Status        Status
	Steps         int
	Aborted       bool

	Files      []string
	Strategies []model.Tool
	Pending    []model.Tool
	Completed  []model.Tool

	Results    []model.SearchResult
	Insights   []string
	Iterations []Iteration
	Runs       []StrategyRun
	Warnings   []string
	History    []Status

	Confidence float64
	Settings   Settings
}

func newState(runID, query, directory string, settings Settings) *State {
	return &State{
		RunID:         runID,
		OriginalQuery: query,
		CurrentQuery:  query,
		Directory:     directory,
		Status:        StatusPlanning,
		History:       []Status{StatusPlanning},
		Settings:      settings,
	}
}

// transition moves the state to next. Illegal transitions panic: they are
// programming errors in the controller, not runtime conditions.
func (s *State) transition(next Status) {
	if !s.Status.CanTransition(next) {
		panic("research: illegal transition " + string(s.Status) + " -> " + string(next))
	}
	s.Status = next
	s.History = append(s.History, next)
}

func (s *State) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// Outcome is what a run returns to its caller.
type Outcome struct {
	RunID             string                   `json:"run_id"`
	Query             string                   `json:"query"`
	Directory         string                   `json:"directory"`
	Status            Status                   `json:"status"`
	Confidence        float64                  `json:"confidence_score"`
	Results           []model.SearchResult     `json:"results"`
	Insights          []string                 `json:"insights"`
	Iterations        []Iteration              `json:"iterations"`
	Strategies        []StrategyRun            `json:"strategies"`
	Warnings          []string                 `json:"warnings"`
	History           []Status                 `json:"history"`
	FilesDiscovered   int                      `json:"files_discovered"`
	Steps             int                      `json:"steps"`
	Aborted           bool                     `json:"aborted"`
	ThresholdFallback bool                     `json:"threshold_fallback"`
	StartedAt         time.Time                `json:"started_at"`
	Duration          time.Duration            `json:"duration"`
	StageDurations    map[string]time.Duration `json:"stage_durations"`
	Report            string                   `json:"report,omitempty"`
}

func (s *State) outcome(started time.Time) *Outcome {
	out := &Outcome{
		RunID:           s.RunID,
		Query:           s.OriginalQuery,
		Directory:       s.Directory,
		Status:          s.Status,
		Confidence:      s.Confidence,
		Results:         s.Results,
		Insights:        s.Insights,
		Iterations:      s.Iterations,
		Strategies:      s.Runs,
		Warnings:        s.Warnings,
		History:         s.History,
		FilesDiscovered: len(s.Files),
		Steps:           s.Steps,
		Aborted:         s.Aborted,
		StartedAt:       started,
		Duration:        time.Since(started),
	}
	if n := len(s.Iterations); n > 0 {
		out.ThresholdFallback = s.Iterations[n-1].ThresholdFallback
	}
	return out
}
