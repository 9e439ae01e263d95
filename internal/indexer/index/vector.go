package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
)

// SparseVector maps a term to its weight.
type SparseVector map[string]float64

// Match is one vector-index hit.
type Match struct {
	ChunkID    string
	Source     string
	Text       string
	Similarity float64
}

// Vector is a sparse TF-IDF index over document chunks. Every stored
// vector is L2-normalised, so cosine similarity reduces to a dot product.
type Vector struct {
	mu      sync.RWMutex
	idf     map[string]float64
	vectors map[string]SparseVector
	chunks  map[string]Document
	ids     []string
}

func NewVector() *Vector {
	return &Vector{
		idf:     make(map[string]float64),
		vectors: make(map[string]SparseVector),
		chunks:  make(map[string]Document),
	}
}

// ChunkDocuments splits each document into word windows. A document that
// fits in one window keeps its own ID; otherwise chunk i gets the ID
// "<id>#chunk_<i>".
func ChunkDocuments(docs []Document, size, overlap int) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		parts := tokenizer.Chunk(doc.RawText, size, overlap)
		if len(parts) == 1 {
			out = append(out, NewDocument(doc.ID, doc.Source, parts[0]))
			continue
		}
		for i, part := range parts {
			out = append(out, NewDocument(fmt.Sprintf("%s#chunk_%d", doc.ID, i), doc.Source, part))
		}
	}
	return out
}

// Build replaces the index with chunks. Chunks without tokens are not
// indexed. It returns the number of chunks indexed.
func (v *Vector) Build(chunks []Document) int {
	byID := make(map[string]Document, len(chunks))
	counts := make(map[string]map[string]int, len(chunks))
	df := make(map[string]int)
	for _, chunk := range chunks {
		if len(chunk.Tokens) == 0 {
			continue
		}
		if _, dup := byID[chunk.ID]; dup {
			continue
		}
		tc := tokenizer.TermCounts(chunk.Tokens)
		for term := range tc {
			df[term]++
		}
		byID[chunk.ID] = chunk
		counts[chunk.ID] = tc
	}

	n := float64(len(byID))
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = computeIDF(n, freq)
	}

	vectors := make(map[string]SparseVector, len(byID))
	ids := make([]string, 0, len(byID))
	for id, chunk := range byID {
		vec := make(SparseVector, len(counts[id]))
		total := float64(len(chunk.Tokens))
		for term, c := range counts[id] {
			if w := float64(c) / total * idf[term]; w > 0 {
				vec[term] = w
			}
		}
		vectors[id] = normalize(vec)
		ids = append(ids, id)
	}
	sort.Strings(ids)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.idf = idf
	v.vectors = vectors
	v.chunks = byID
	v.ids = ids
	return len(ids)
}

// Embed weights query terms against the indexed vocabulary. Terms the
// index has never seen get no weight.
func (v *Vector) Embed(query string) SparseVector {
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return SparseVector{}
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	total := float64(len(tokens))
	vec := make(SparseVector)
	for term, c := range tokenizer.TermCounts(tokens) {
		if w := float64(c) / total * v.idf[term]; w > 0 {
			vec[term] = w
		}
	}
	return normalize(vec)
}

// Query returns up to k chunks whose cosine similarity to query is at least
// threshold, best first with ties broken by chunk ID. A query with no
// in-vocabulary terms returns no matches. k <= 0 means no limit.
func (v *Vector) Query(query string, k int, threshold float64) []Match {
	qv := v.Embed(query)
	if len(qv) == 0 {
		return nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	matches := make([]Match, 0)
	for _, id := range v.ids {
		sim := math.Round(math.Min(dot(qv, v.vectors[id]), 1)*1e6) / 1e6
		if sim <= 0 || sim < threshold {
			continue
		}
		chunk := v.chunks[id]
		matches = append(matches, Match{
			ChunkID:    id,
			Source:     chunk.Source,
			Text:       chunk.RawText,
			Similarity: sim,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// VectorOf returns the stored vector for a chunk.
func (v *Vector) VectorOf(chunkID string) (SparseVector, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vec, ok := v.vectors[chunkID]
	return vec, ok
}

// IDF returns the inverse document frequency of term, or 0 when the term
// is not in the vocabulary.
func (v *Vector) IDF(term string) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idf[term]
}

func (v *Vector) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.ids)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero norm.
func Cosine(a, b SparseVector) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, sim))
}

// computeIDF is ln(N/(df+1)) floored at zero; a term in every chunk
// carries no weight.
func computeIDF(n float64, df int) float64 {
	if n == 0 {
		return 0
	}
	return math.Max(0, math.Log(n/float64(df+1)))
}

func dot(a, b SparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	sum := 0.0
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}

func norm(v SparseVector) float64 {
	sum := 0.0
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

func normalize(v SparseVector) SparseVector {
	n := norm(v)
	if n == 0 {
		return SparseVector{}
	}
	for term, w := range v {
		v[term] = w / n
	}
	return v
}
