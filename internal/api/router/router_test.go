package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/middleware"
)

func setup(t *testing.T) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "cache.md"),
		[]byte("# Cache\n\nThe cache layer stores strategy results in redis.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cache.go"),
		[]byte("package cache\n\nfunc NewCache() *Cache { return &Cache{} }\n"), 0o644))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc, err := service.New(config.Default(), service.WithMetrics(m), service.WithStore(store.NewMemory(10)))
	require.NoError(t, err)

	limiter := ratelimit.New(time.Hour)
	t.Cleanup(limiter.Stop)

	return New(Deps{
		Handler:        handler.New(svc),
		Health:         health.NewChecker(),
		Analytics:      analytics.NewHandler(analytics.NewAggregator()),
		Metrics:        m,
		Gatherer:       reg,
		Limiter:        limiter,
		RateLimit:      2,
		RequestTimeout: time.Minute,
	}), root
}

func TestRouterEndToEnd(t *testing.T) {
	h, root := setup(t)

	body, _ := json.Marshal(map[string]any{"query": "cache layer", "directory": root})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/research", bytes.NewReader(body))
	req.Header.Set(pkgmw.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(pkgmw.RequestIDHeader))

	var resp struct {
		Outcome struct {
			RunID  string `json:"run_id"`
			Report string `json:"report"`
		} `json:"outcome"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Outcome.RunID)
	assert.True(t, strings.HasPrefix(resp.Outcome.Report, "# Research Report"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+resp.Outcome.RunID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?directory="+root, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "research_runs_total")
}

func TestRouterRateLimitsResearch(t *testing.T) {
	h, root := setup(t)
	body := `{"query":"cache","directory":"` + root + `"}`

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/research", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterUnknownMethod(t *testing.T) {
	h, _ := setup(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
