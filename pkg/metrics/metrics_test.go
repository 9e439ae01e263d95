package metrics

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, g prometheus.Gatherer) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(g).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewRegistersWithSuppliedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ResearchRunsTotal.WithLabelValues("completed").Inc()
	m.StrategyExecutions.WithLabelValues("lexical", "ok").Add(2)
	m.DocsIndexedTotal.Add(3)

	body := scrape(t, reg)
	assert.Contains(t, body, `research_runs_total{status="completed"} 1`)
	assert.Contains(t, body, `strategy_executions_total{outcome="ok",strategy="lexical"} 2`)
	assert.Contains(t, body, "documents_indexed_total 3")

	// A second registration against the same registry must fail.
	assert.Panics(t, func() { New(reg) })
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestStartServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ResearchRunsTotal.WithLabelValues("aborted").Inc()

	s, err := StartServer(0, reg)
	require.NoError(t, err)
	defer s.Stop()

	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `research_runs_total{status="aborted"} 1`)

	resp2, err := http.Get("http://127.0.0.1:" + port + "/")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
