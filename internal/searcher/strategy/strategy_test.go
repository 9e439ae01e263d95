package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

func testCorpus() *indexer.Corpus {
	files := []indexer.File{
		{Source: "notes.md", Text: "cache invalidation strategy\nthe cache layer sits in front\nunrelated text here"},
		{Source: "server.go", Text: "package server\n\nfunc ParseConfig(path string) error {\n\treturn nil\n}\n\nfunc (s *Server) HandleRequest() {\n}\n\ntype ConfigLoader struct {\n}\n"},
		{Source: "app.yaml", Text: "server:\n  port: 8080\ncache:\n  ttl: 10m\n"},
		{Source: "readme.txt", Text: "quick brown fox jumps over the lazy dog"},
	}
	return indexer.NewCorpus("/tmp/research", files, indexer.ChunkOptions{Size: 100, Overlap: 10})
}

func bySource(results []model.SearchResult) map[string][]model.SearchResult {
	out := make(map[string][]model.SearchResult)
	for _, r := range results {
		out[r.Source] = append(out[r.Source], r)
	}
	return out
}

func TestDirectMatch(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())
	results, err := d.Execute(context.Background(), model.ToolDirectMatch, "cache invalidation")
	require.NoError(t, err)

	got := bySource(results)
	require.Len(t, got["notes.md"], 2)
	assert.InDelta(t, 0.9, got["notes.md"][0].RelevanceScore, 1e-9)
	assert.Equal(t, 1, got["notes.md"][0].Metadata["line_number"])
	assert.InDelta(t, 0.5, got["notes.md"][1].RelevanceScore, 1e-9)
	assert.Equal(t, "the cache layer sits in front", got["notes.md"][1].Content)
	require.Len(t, got["app.yaml"], 1)
	assert.Equal(t, 3, got["app.yaml"][0].Metadata["line_number"])
	assert.Empty(t, got["readme.txt"])

	for _, r := range results {
		assert.Equal(t, model.ToolDirectMatch, r.ToolUsed)
		assert.Equal(t, "cache invalidation", r.SearchQuery)
	}
}

func TestDirectMatchLineLimit(t *testing.T) {
	text := ""
	for i := 0; i < 8; i++ {
		text += "retry budget exhausted\n"
	}
	c := indexer.NewCorpus("", []indexer.File{{Source: "log.txt", Text: text}}, indexer.ChunkOptions{Size: 100})
	results, err := NewDispatcher(c, DefaultOptions()).Execute(context.Background(), model.ToolDirectMatch, "retry")
	require.NoError(t, err)
	assert.Len(t, results, maxLinesPerFile)
}

func TestLexicalExcludesNonMatching(t *testing.T) {
	files := []indexer.File{
		{Source: "a.txt", Text: "the quick fox"},
		{Source: "b.txt", Text: "the quick dog"},
	}
	c := indexer.NewCorpus("", files, indexer.ChunkOptions{Size: 100})
	results, err := NewDispatcher(c, DefaultOptions()).Execute(context.Background(), model.ToolLexical, "fox")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].Source)
	assert.Equal(t, "the quick fox", results[0].Content)
	assert.GreaterOrEqual(t, results[0].RelevanceScore, 0.0)
	assert.LessOrEqual(t, results[0].RelevanceScore, 1.0)
}

func TestStructural(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())
	results, err := d.Execute(context.Background(), model.ToolStructural, "config loader")
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "server.go", r.Source)
	assert.InDelta(t, 0.4, r.RelevanceScore, 1e-9)
	assert.Equal(t, "Code structure matches: function: ParseConfig, type: ConfigLoader", r.Content)
	assert.Equal(t, []string{"function: ParseConfig", "type: ConfigLoader"}, r.Metadata["matched_elements"])
}

func TestConfigScan(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())
	results, err := d.Execute(context.Background(), model.ToolConfigScan, "cache ttl")
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "app.yaml", r.Source)
	assert.Equal(t, "Line 3: cache:\nLine 4: ttl: 10m", r.Content)
	assert.InDelta(t, 0.4, r.RelevanceScore, 1e-9)
	assert.Equal(t, 2, r.Metadata["matching_lines"])
}

func TestVectorOutOfVocabulary(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())
	results, err := d.Execute(context.Background(), model.ToolVector, "zebra giraffe")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = d.Execute(context.Background(), model.ToolVector, "fox")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "readme.txt", results[0].Source)
	assert.Equal(t, "readme.txt", results[0].Metadata["chunk_id"])
}

func TestHybridWeightsBothSides(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())
	results, err := d.Execute(context.Background(), model.ToolHybrid, "invalidation")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	r := results[0]
	assert.Equal(t, "notes.md", r.Source)
	dense := r.Metadata["dense_score"].(float64)
	sparse := r.Metadata["sparse_score"].(float64)
	assert.Greater(t, dense, 0.0)
	assert.Greater(t, sparse, 0.0)
	assert.InDelta(t, 0.6*dense+0.4*sparse, r.RelevanceScore, 1e-9)
}

func TestExcludedTermsDropSources(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())
	results, err := d.Execute(context.Background(), model.ToolDirectMatch, "cache -layer")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "app.yaml", results[0].Source)
}

func TestExecuteErrors(t *testing.T) {
	d := NewDispatcher(testCorpus(), DefaultOptions())

	_, err := d.Execute(context.Background(), model.Tool("grep"), "cache")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Execute(ctx, model.ToolLexical, "cache")
	assert.ErrorIs(t, err, context.Canceled)

	results, err := d.Execute(context.Background(), model.ToolLexical, "a b")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmptyCorpus(t *testing.T) {
	d := NewDispatcher(indexer.NewCorpus("", nil, indexer.ChunkOptions{Size: 100}), DefaultOptions())
	for _, tool := range model.Tools() {
		results, err := d.Execute(context.Background(), tool, "anything at all")
		require.NoError(t, err, tool)
		assert.Empty(t, results, tool)
	}
}

func TestOptionsDigest(t *testing.T) {
	base := DefaultOptions()
	assert.Equal(t, base.Digest(), DefaultOptions().Digest())

	topK := base
	topK.TopK = 1
	weights := base
	weights.Weights.Dense = 0.9
	bm25 := base
	bm25.Ranker.K1 = 1.2
	threshold := base
	threshold.DirectMatchThreshold = 0.5

	seen := map[string]bool{base.Digest(): true}
	for _, o := range []Options{topK, weights, bm25, threshold} {
		assert.False(t, seen[o.Digest()], "%+v", o)
		seen[o.Digest()] = true
	}
}

func TestDispatcherOptionsApplyDefaults(t *testing.T) {
	d := NewDispatcher(testCorpus(), Options{})
	assert.Equal(t, DefaultOptions().TopK, d.Options().TopK)
}

func TestSingleFileCorpusHasNoVectorMatches(t *testing.T) {
	c := indexer.NewCorpus("", []indexer.File{{Source: "only.txt", Text: "quick brown fox"}}, indexer.ChunkOptions{Size: 100})
	d := NewDispatcher(c, DefaultOptions())

	vector, err := d.Execute(context.Background(), model.ToolVector, "fox")
	require.NoError(t, err)
	assert.Empty(t, vector)

	lexical, err := d.Execute(context.Background(), model.ToolLexical, "fox")
	require.NoError(t, err)
	require.Len(t, lexical, 1)
	assert.Zero(t, lexical[0].RelevanceScore)
}
