package fuser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseWeightedSum(t *testing.T) {
	dense := []Candidate{{Source: "both.go", Score: 0.8, Content: "dense text"}, {Source: "dense.go", Score: 0.5}}
	sparse := []Candidate{{Source: "both.go", Score: 0.5, Content: "sparse text"}, {Source: "sparse.go", Score: 0.9}}

	got := Fuse(dense, sparse, DefaultWeights(), 10)
	want := []Fused{
		{Source: "both.go", Score: 0.6*0.8 + 0.4*0.5, Dense: 0.8, Sparse: 0.5, Content: "dense text"},
		{Source: "sparse.go", Score: 0.4 * 0.9, Sparse: 0.9},
		{Source: "dense.go", Score: 0.6 * 0.5, Dense: 0.5},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Fuse mismatch (-want +got):\n%s", diff)
	}
}

func TestFuseMissingSideContributesZero(t *testing.T) {
	w := Weights{Dense: 0.7, Sparse: 0.3}
	got := Fuse(nil, []Candidate{{Source: "only-sparse", Score: 1}}, w, 5)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Dense)
	assert.InDelta(t, 0.3, got[0].Score, 1e-12)

	got = Fuse([]Candidate{{Source: "only-dense", Score: 1}}, nil, w, 5)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.7, got[0].Score, 1e-12)
}

func TestFuseTakesBestChunkPerSource(t *testing.T) {
	dense := []Candidate{
		{Source: "doc", Score: 0.2, Content: "chunk 0"},
		{Source: "doc", Score: 0.9, Content: "chunk 3"},
		{Source: "doc", Score: 0.4, Content: "chunk 1"},
	}
	got := Fuse(dense, nil, DefaultWeights(), 10)
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Dense)
	assert.Equal(t, "chunk 3", got[0].Content)
}

func TestFuseTopKAndTieBreak(t *testing.T) {
	sparse := []Candidate{
		{Source: "c", Score: 0.5},
		{Source: "a", Score: 0.5},
		{Source: "b", Score: 0.5},
		{Source: "d", Score: 0.1},
	}
	got := Fuse(nil, sparse, DefaultWeights(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Source)
	assert.Equal(t, "b", got[1].Source)

	all := Fuse(nil, sparse, DefaultWeights(), 0)
	assert.Len(t, all, 4)
	assert.Equal(t, "d", all[3].Source)
}

func TestFuseEmpty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, DefaultWeights(), 10))
}
