package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolValid(t *testing.T) {
	for _, tool := range Tools() {
		assert.True(t, tool.Valid(), tool)
	}
	assert.False(t, Tool("grep").Valid())
	assert.Len(t, Tools(), 6)
}

func TestTruncate(t *testing.T) {
	short := "short content"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("é", MaxContentLength+10)
	got := Truncate(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, MaxContentLength+3, len([]rune(got)))
}

func TestSortByRelevance(t *testing.T) {
	results := []SearchResult{
		{Source: "b", RelevanceScore: 0.5, ToolUsed: ToolLexical},
		{Source: "a", RelevanceScore: 0.5, ToolUsed: ToolVector},
		{Source: "a", RelevanceScore: 0.5, ToolUsed: ToolLexical},
		{Source: "c", RelevanceScore: 0.9, ToolUsed: ToolHybrid},
	}
	SortByRelevance(results)

	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.Source + "/" + r.ToolUsed.String()
	}
	assert.Equal(t, []string{"c/hybrid", "a/lexical", "a/vector", "b/lexical"}, got)
}

func TestDistinctSources(t *testing.T) {
	results := []SearchResult{{Source: "x"}, {Source: "y"}, {Source: "x"}}
	assert.Equal(t, []string{"x", "y"}, DistinctSources(results))
	assert.Nil(t, DistinctSources(nil))
}
