package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
)

// Handler serves the aggregated research statistics.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the aggregate as JSON. ?tool=<name> narrows the response to
// one strategy and ?top=<n> shortens the query lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()

	if raw := r.URL.Query().Get("tool"); raw != "" {
		tool := model.Tool(raw)
		if !tool.Valid() {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown tool: " + raw})
			return
		}
		for _, s := range stats.Strategies {
			if s.Tool == tool {
				h.writeJSON(w, http.StatusOK, s)
				return
			}
		}
		h.writeJSON(w, http.StatusOK, ToolStats{Tool: tool})
		return
	}

	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		stats.TopQueries = stats.TopQueries[:min(n, len(stats.TopQueries))]
		stats.ZeroResultQueries = stats.ZeroResultQueries[:min(n, len(stats.ZeroResultQueries))]
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
