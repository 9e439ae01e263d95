package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Indexer.Workers = 3
	return cfg
}

func TestEngineBuild(t *testing.T) {
	root := writeTree(t, map[string]string{
		"README.md":         "the research engine indexes local files",
		"src/main.go":       "package main\n\nfunc main() {}\n",
		"docs/guide.html":   "<html><body><p>index guide</p><script>x()</script></body></html>",
		"assets/logo.pdf":   "%PDF-1.4",
		"data/blob.bin":     "\x00\x01",
		".git/config":       "[core]",
		"node_modules/x.js": "module.exports = 1",
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c, err := NewEngine(testConfig(), WithEngineMetrics(m)).Build(context.Background(), root)
	require.NoError(t, err)

	var sources []string
	for _, f := range c.Files() {
		sources = append(sources, f.Source)
	}
	assert.Equal(t, []string{"README.md", "docs/guide.html", "src/main.go"}, sources)

	text, ok := c.Text("docs/guide.html")
	require.True(t, ok)
	assert.Equal(t, "index guide", text)

	require.Len(t, c.Failures, 2)
	assert.Equal(t, "assets/logo.pdf", c.Failures[0].Path)
	assert.True(t, extract.IsUnsupported(c.Failures[0].Err))
	assert.Equal(t, "data/blob.bin", c.Failures[1].Path)

	assert.Equal(t, 3, c.Lexical.DocCount())
	assert.NotEmpty(t, c.Lexical.Postings("index"))
	assert.False(t, c.Cached)
	assert.Equal(t, 3.0, counterValue(t, reg, "documents_indexed_total"))
	assert.Equal(t, 2.0, counterValue(t, reg, "extraction_failures_total"))
}

func TestEngineBuildEmptyDirectory(t *testing.T) {
	c, err := NewEngine(testConfig()).Build(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Lexical.Postings("anything"))
}

func TestEngineBuildErrors(t *testing.T) {
	_, err := NewEngine(testConfig()).Build(context.Background(), "/no/such/dir")
	assert.ErrorIs(t, err, apperrors.ErrIndexBuild)
	assert.ErrorIs(t, err, apperrors.ErrInvalidDirectory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := writeTree(t, map[string]string{"a.txt": "alpha"})
	_, err = NewEngine(testConfig()).Build(ctx, root)
	assert.ErrorIs(t, err, apperrors.ErrIndexBuild)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineSegmentCache(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "alpha beta gamma",
		"b.txt": "beta delta",
	})
	cacheDir := t.TempDir()
	e := NewEngine(testConfig(), WithSegmentCache(cacheDir))

	first, err := e.Build(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	_, err = os.Stat(filepath.Join(cacheDir, first.Fingerprint+".spdx"))
	require.NoError(t, err)

	second, err := e.Build(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Lexical.Postings("beta"), second.Lexical.Postings("beta"))
	assert.Equal(t, first.Lexical.Stats().AvgDocumentLength, second.Lexical.Stats().AvgDocumentLength)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("changed"), 0644))
	third, err := e.Build(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	a := []File{{Source: "a", Text: "1"}, {Source: "b", Text: "2"}}
	b := []File{{Source: "b", Text: "2"}, {Source: "a", Text: "1"}}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint([]File{{Source: "a", Text: "1"}}))
}
