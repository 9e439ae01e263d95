// Package fuser combines lexical and vector rankings for the same query
// into one hybrid ranking.
package fuser

import (
	"container/heap"
)

const (
	DefaultDenseWeight  = 0.6
	DefaultSparseWeight = 0.4
)

// Weights scale the two sides of the fusion. They should sum to 1 so fused
// scores stay in [0,1], but this is not enforced.
type Weights struct {
	Dense  float64
	Sparse float64
}

func DefaultWeights() Weights {
	return Weights{Dense: DefaultDenseWeight, Sparse: DefaultSparseWeight}
}

// Candidate is one scored hit from either side, keyed by source.
type Candidate struct {
	Source  string
	Score   float64
	Content string
}

// Fused is one hybrid hit. Dense and Sparse are the per-side scores that
// went into Score; a side that did not return the source contributes 0.
type Fused struct {
	Source  string
	Score   float64
	Dense   float64
	Sparse  float64
	Content string
}

// Fuse unions dense and sparse by source. When a side returns a source
// more than once (several chunks of one file) its best score is used. The
// top k by fused score are returned, ties broken by source ascending.
// k <= 0 returns every fused source.
func Fuse(dense, sparse []Candidate, w Weights, k int) []Fused {
	bySource := make(map[string]*Fused)
	get := func(source string) *Fused {
		f, ok := bySource[source]
		if !ok {
			f = &Fused{Source: source}
			bySource[source] = f
		}
		return f
	}
	denseSeen := make(map[string]bool)
	for _, c := range dense {
		f := get(c.Source)
		if !denseSeen[c.Source] || c.Score > f.Dense {
			f.Dense = c.Score
			f.Content = c.Content
			denseSeen[c.Source] = true
		}
	}
	sparseSeen := make(map[string]bool)
	for _, c := range sparse {
		f := get(c.Source)
		if !sparseSeen[c.Source] || c.Score > f.Sparse {
			f.Sparse = c.Score
			sparseSeen[c.Source] = true
			if !denseSeen[c.Source] {
				f.Content = c.Content
			}
		}
	}

	limit := k
	if limit <= 0 {
		limit = len(bySource)
	}
	h := &fusedHeap{}
	heap.Init(h)
	for _, f := range bySource {
		f.Score = w.Dense*f.Dense + w.Sparse*f.Sparse
		heap.Push(h, *f)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]Fused, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Fused)
	}
	return result
}

// fusedHeap is a min-heap: the root is the worst entry kept so far.
type fusedHeap []Fused

func (h fusedHeap) Len() int { return len(h) }

func (h fusedHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Source > h[j].Source
}

func (h fusedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fusedHeap) Push(x any) {
	*h = append(*h, x.(Fused))
}

func (h *fusedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
