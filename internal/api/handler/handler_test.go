package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/research"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

type fakeResearcher struct {
	got     service.Request
	runErr  error
	runs    []store.RunRecord
	histErr error
}

func (f *fakeResearcher) Run(_ context.Context, req service.Request) (*service.Result, error) {
	f.got = req
	if f.runErr != nil {
		return nil, f.runErr
	}
	out := &research.Outcome{RunID: "run-1", Query: req.Query, Confidence: 0.7, Report: "# Research Report"}
	return &service.Result{Outcome: out, Report: &report.Report{RunID: "run-1"}, Format: report.FormatMarkdown}, nil
}

func (f *fakeResearcher) History(_ context.Context, limit int) ([]store.RunRecord, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeResearcher) Lookup(_ context.Context, id string) (*store.RunRecord, error) {
	for _, r := range f.runs {
		if r.RunID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (f *fakeResearcher) Stats(dir string) (discovery.Stats, error) {
	if dir == "/missing" {
		return discovery.Stats{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidDirectory, dir)
	}
	return discovery.Stats{TotalFiles: 2, CountsByExtension: map[string]int{".go": 2}}, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestResearch(t *testing.T) {
	f := &fakeResearcher{}
	h := New(f)

	body := `{"query":"login flow","directory":"/srv","max_iterations":1,"top_k":3,"dense_weight":0.7,"sparse_weight":0.3,"format":"json"}`
	rec := httptest.NewRecorder()
	h.Research(rec, httptest.NewRequest(http.MethodPost, "/api/v1/research", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Outcome research.Outcome `json:"outcome"`
		Report  report.Report    `json:"report"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "run-1", resp.Outcome.RunID)
	assert.Equal(t, "run-1", resp.Report.RunID)
	assert.Equal(t, "login flow", f.got.Query)
	require.NotNil(t, f.got.MaxIterations)
	assert.Equal(t, 1, *f.got.MaxIterations)
	require.NotNil(t, f.got.TopK)
	assert.Equal(t, 3, *f.got.TopK)
	require.NotNil(t, f.got.DenseWeight)
	assert.InDelta(t, 0.7, *f.got.DenseWeight, 1e-9)
	require.NotNil(t, f.got.SparseWeight)
	assert.InDelta(t, 0.3, *f.got.SparseWeight, 1e-9)
	assert.Equal(t, "json", f.got.Format)
}

func TestResearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		runErr error
		want   int
	}{
		{"malformed body", `{"query":`, nil, http.StatusBadRequest},
		{"unknown field", `{"query":"x","depth":3}`, nil, http.StatusBadRequest},
		{"invalid query", `{"query":"","directory":"/srv"}`, fmt.Errorf("%w: empty", apperrors.ErrInvalidQuery), http.StatusBadRequest},
		{"invalid directory", `{"query":"x","directory":"/nope"}`, fmt.Errorf("%w: /nope", apperrors.ErrInvalidDirectory), http.StatusBadRequest},
		{"timeout", `{"query":"x","directory":"/srv"}`, fmt.Errorf("%w: %w", apperrors.ErrCancelled, context.DeadlineExceeded), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeResearcher{runErr: tt.runErr})
			rec := httptest.NewRecorder()
			h.Research(rec, httptest.NewRequest(http.MethodPost, "/api/v1/research", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestListRuns(t *testing.T) {
	f := &fakeResearcher{runs: []store.RunRecord{{RunID: "a"}, {RunID: "b"}, {RunID: "c"}}}
	h := New(f)

	rec := httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs  []store.RunRecord `json:"runs"`
		Count int               `json:"count"`
		Limit int               `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 2, body.Limit)

	rec = httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = New(&fakeResearcher{histErr: fmt.Errorf("%w: disabled", apperrors.ErrNotConfigured)})
	rec = httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRun(t *testing.T) {
	h := New(&fakeResearcher{runs: []store.RunRecord{{RunID: "a", Query: "q"}}})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got store.RunRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "q", got.Query)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/zzz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	h := New(&fakeResearcher{})

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?directory=/srv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats discovery.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalFiles)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?directory=/missing", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
