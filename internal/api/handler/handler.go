// Package handler implements the research engine's HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Researcher is the subset of service.Service the handlers call.
type Researcher interface {
	Run(ctx context.Context, req service.Request) (*service.Result, error)
	History(ctx context.Context, limit int) ([]store.RunRecord, error)
	Lookup(ctx context.Context, runID string) (*store.RunRecord, error)
	Stats(dir string) (discovery.Stats, error)
}

type Handler struct {
	svc    Researcher
	logger *slog.Logger
}

func New(svc Researcher) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "api-handler"),
	}
}

type researchResponse struct {
	Outcome *research.Outcome `json:"outcome"`
	Report  *report.Report    `json:"report"`
}

// Research runs a research request from the JSON body and returns the
// outcome with its structured report. Outcome.report carries the rendering
// in the requested format.
func (h *Handler) Research(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req service.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	res, err := h.svc.Run(r.Context(), req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("research run failed", "error", err)
		} else {
			log.Info("research request rejected", "status", status, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, researchResponse{Outcome: res.Outcome, Report: res.Report})
}

// ListRuns returns recent runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 100)
	}

	runs, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

// GetRun returns one stored run including its full outcome.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "run id is required")
		return
	}
	rec, err := h.svc.Lookup(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to fetch run", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Stats summarises the files a run over ?directory= would see.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("directory")
	if dir == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'directory' is required")
		return
	}
	stats, err := h.svc.Stats(dir)
	if err != nil {
		h.fail(w, r, "failed to collect stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrNotConfigured) {
		logger.FromContext(r.Context()).Error(msg, "error", err)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
