// Package ranker implements BM25 scoring over a lexical index. Raw scores
// are unbounded; Relevance maps them into [0,1] so they compose with the
// other scorers.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/indexer/tokenizer"
)

const (
	DefaultK1    = 1.5
	DefaultB     = 0.75
	DefaultScale = 10.0
)

type ScoredDoc struct {
	DocID        string  `json:"doc_id"`
	Score        float64 `json:"score"`
	Relevance    float64 `json:"relevance"`
	MatchedTerms int     `json:"matched_terms"`
}

// RankParams carries the corpus statistics and BM25 constants for one
// ranking pass.
type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	K1           float64
	B            float64
	Scale        float64
}

type DocInfo struct {
	DocLength int
}

// Params are the tunable BM25 constants.
type Params struct {
	K1    float64
	B     float64
	Scale float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB, Scale: DefaultScale}
}

// Rank scores every document that appears in at least one posting list.
// Documents sharing no term with the query never enter the result. Ties
// are broken by document ID ascending. limit <= 0 means no limit.
func Rank(
	postingsPerTerm map[string]index.PostingList,
	params RankParams,
	getDocInfo func(docID string) DocInfo,
	limit int,
) []ScoredDoc {
	scores := make(map[string]float64)
	matched := make(map[string]int)
	for _, postings := range postingsPerTerm {
		idf := computeIDF(params.TotalDocs, int64(len(postings)))
		for _, posting := range postings {
			info := getDocInfo(posting.DocID)
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(info.DocLength),
				params.AvgDocLength,
				params.K1,
				params.B,
			)
			scores[posting.DocID] += idf * tfNorm
			matched[posting.DocID]++
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		score = math.Round(score*10000) / 10000
		result = append(result, ScoredDoc{
			DocID:        docID,
			Score:        score,
			Relevance:    Relevance(score, params.Scale),
			MatchedTerms: matched[docID],
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Search tokenizes query and ranks the documents of idx against its
// distinct terms.
func Search(idx *index.Lexical, query string, k int, p Params) []ScoredDoc {
	terms := tokenizer.UniqueTerms(query)
	if len(terms) == 0 {
		return nil
	}
	stats := idx.Stats()
	if stats.DocumentCount == 0 {
		return nil
	}
	postingsPerTerm := make(map[string]index.PostingList, len(terms))
	for _, term := range terms {
		if postings := idx.Postings(term); len(postings) > 0 {
			postingsPerTerm[term] = postings
		}
	}
	if len(postingsPerTerm) == 0 {
		return nil
	}
	params := RankParams{
		TotalDocs:    int64(stats.DocumentCount),
		AvgDocLength: stats.AvgDocumentLength,
		K1:           p.K1,
		B:            p.B,
		Scale:        p.Scale,
	}
	return Rank(postingsPerTerm, params, func(docID string) DocInfo {
		return DocInfo{DocLength: idx.DocLength(docID)}
	}, k)
}

// Relevance maps a raw BM25 score into [0,1] by dividing by scale.
func Relevance(score, scale float64) float64 {
	if scale <= 0 {
		scale = DefaultScale
	}
	return math.Max(0, math.Min(score/scale, 1))
}

// computeIDF is ln((N-df+0.5)/(df+0.5)) floored at zero so a term present
// in more than half the corpus never lowers a score.
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Max(0, math.Log(numerator/denominator))
}

func computeTFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
