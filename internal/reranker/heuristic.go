package reranker

import (
	"strings"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/retrieval"
)

// scoreTieBreak weights the retrieval score so it only separates equal overlap ratios.
const scoreTieBreak = 1e-6

// HeuristicRank scores each hit by the share of query tokens its text contains
// and returns them best first.
func HeuristicRank(query string, hits []retrieval.Hit) []ScoredHit {
	tokens := retrieval.QueryTokens(query)
	out := make([]ScoredHit, len(hits))
	for i, h := range hits {
		out[i] = ScoredHit{
			Hit:         h,
			RerankScore: overlapRatio(tokens, strings.ToLower(h.Text)) + scoreTieBreak*h.Score,
		}
	}
	sortByScore(out)
	return out
}

func overlapRatio(tokens []string, text string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}
