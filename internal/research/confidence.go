package research

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
)

const (
	// MinConfidence is reported when a run found nothing, and floors every
	// other score.
	MinConfidence = 0.1

	relevanceFactorScale = 2.0
	iterationSaturation  = 3.0
	sourceSaturation     = 10.0
)

// Confidence averages three factors, each capped at 1: twice the mean
// relevance of results, the number of analysis passes over three, and the
// number of distinct sources over ten.
func Confidence(results []model.SearchResult, iterations int) float64 {
	if len(results) == 0 {
		return MinConfidence
	}
	sum := 0.0
	for _, r := range results {
		sum += r.RelevanceScore
	}
	f1 := math.Min(sum/float64(len(results))*relevanceFactorScale, 1)
	f2 := math.Min(float64(iterations)/iterationSaturation, 1)
	f3 := math.Min(float64(len(model.DistinctSources(results)))/sourceSaturation, 1)
	return math.Max(MinConfidence, math.Min((f1+f2+f3)/3, 1))
}
