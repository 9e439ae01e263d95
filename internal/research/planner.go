package research

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/parser"
)

var (
	structuralKeywords = []string{"function", "method", "class", "api", "data", "process", "transform"}
	configKeywords     = []string{"config", "setting", "parameter"}
)

// retrievalMinWords is the word count above which a query also gets the
// vector and hybrid strategies.
const retrievalMinWords = 3

// Plan chooses the strategies for the first iteration of query. The result
// depends only on query and is always in model.Tools order.
func Plan(query string) []model.Tool {
	plan := parser.Parse(query)
	want := map[model.Tool]bool{
		model.ToolDirectMatch: true,
		model.ToolLexical:     true,
	}
	if plan.HasAny(structuralKeywords...) {
		want[model.ToolStructural] = true
	}
	if plan.HasAny(configKeywords...) {
		want[model.ToolConfigScan] = true
	}
	if len(strings.Fields(query)) > retrievalMinWords {
		want[model.ToolVector] = true
		want[model.ToolHybrid] = true
	}
	tools := make([]model.Tool, 0, len(want))
	for _, t := range model.Tools() {
		if want[t] {
			tools = append(tools, t)
		}
	}
	return tools
}

// IterationStrategies is the strategy queue for a refinement iteration.
// Dense strategies join from the second refinement onwards.
func IterationStrategies(iteration int) []model.Tool {
	tools := []model.Tool{model.ToolDirectMatch, model.ToolLexical}
	if iteration > 1 {
		tools = append(tools, model.ToolVector, model.ToolHybrid)
	}
	return tools
}

// FollowUpSelector picks the next query from non-empty follow-ups.
type FollowUpSelector func(followUps []string) string

// SelectFirst takes the first suggestion.
func SelectFirst(followUps []string) string {
	return followUps[0]
}

// SelectLongest takes the longest suggestion, the earliest on a tie.
func SelectLongest(followUps []string) string {
	best := followUps[0]
	for _, f := range followUps[1:] {
		if len(f) > len(best) {
			best = f
		}
	}
	return best
}

// SelectorByName maps a configured selector name to its function. An empty
// name selects the first suggestion.
func SelectorByName(name string) (FollowUpSelector, error) {
	switch name {
	case "", "first":
		return SelectFirst, nil
	case "longest":
		return SelectLongest, nil
	default:
		return nil, fmt.Errorf("unknown follow-up selector %q", name)
	}
}
