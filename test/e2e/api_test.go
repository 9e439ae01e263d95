// Package e2e contains end-to-end tests that exercise a running research
// API (`research serve`) with whatever backends it was started with.
//
// Prerequisites:
//   - research serve listening on E2E_API_URL (default http://localhost:8080)
//   - E2E_WORKSPACE pointing at a directory inside the server's allowed roots
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	APIURL    string
	Workspace string
}

func loadE2EConfig(t *testing.T) e2eConfig {
	t.Helper()
	cfg := e2eConfig{
		APIURL:    envOrDefault("E2E_API_URL", "http://localhost:8080"),
		Workspace: os.Getenv("E2E_WORKSPACE"),
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(cfg.APIURL + "/health/live")
	if err != nil {
		t.Skipf("research api unavailable: %v", err)
	}
	resp.Body.Close()
	return cfg
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestAPIHealth verifies the health endpoints respond.
func TestAPIHealth(t *testing.T) {
	cfg := loadE2EConfig(t)
	client := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Get(cfg.APIURL + path)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestResearchAndHistory runs a research request against the workspace and
// polls the run history until the run shows up.
func TestResearchAndHistory(t *testing.T) {
	cfg := loadE2EConfig(t)
	if cfg.Workspace == "" {
		t.Skip("E2E_WORKSPACE not set")
	}
	client := &http.Client{Timeout: 60 * time.Second}

	payload := fmt.Sprintf(`{"query":"configuration handler","directory":%q,"max_iterations":1}`, cfg.Workspace)
	resp, err := client.Post(cfg.APIURL+"/api/v1/research", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("research request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Outcome struct {
			RunID      string  `json:"run_id"`
			Confidence float64 `json:"confidence_score"`
		} `json:"outcome"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	runID := result.Outcome.RunID
	t.Logf("research run %s finished with confidence %.2f", runID, result.Outcome.Confidence)

	var found bool
	for attempt := 0; attempt < 10; attempt++ {
		r, err := client.Get(cfg.APIURL + "/api/v1/runs/" + runID)
		if err == nil {
			r.Body.Close()
			if r.StatusCode == http.StatusOK {
				found = true
				break
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	if !found {
		t.Errorf("run %s not found in history", runID)
	}
}

// TestAnalytics verifies the aggregated statistics are served.
func TestAnalytics(t *testing.T) {
	cfg := loadE2EConfig(t)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.APIURL + "/api/v1/analytics")
	if err != nil {
		t.Fatalf("analytics request failed: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding analytics: %v", err)
	}
	t.Logf("analytics: total_runs=%v, avg_confidence=%v", stats["total_runs"], stats["avg_confidence"])

	for _, field := range []string{"total_runs", "avg_confidence", "strategies"} {
		if _, ok := stats[field]; !ok {
			t.Errorf("missing expected field: %s", field)
		}
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
