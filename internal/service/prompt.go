package service

import (
	"fmt"
	"strings"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/memory"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/reranker"
)

// dedupThreshold is the Jaccard similarity above which a passage repeats an earlier one.
const dedupThreshold = 0.7

const defaultSystemPrompt = `You are a customer support assistant for an online shop. Answer using ONLY the provided FAQ passages.

Rules:
- Reply in the customer's language
- Give the direct answer first, in 2-5 sentences
- Quote amounts, deadlines and conditions exactly as the passages state them
- If the passages don't cover the question, say so and point to the contact form
- Never invent policies, prices or dates`

// buildPrompt lays out instructions, session history, FAQ passages and the question.
func buildPrompt(systemPrompt string, passages []reranker.ScoredHit, query string, history []memory.Message) string {
	var sb strings.Builder

	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("## Conversation History\n")
		sb.WriteString("(Previous exchanges in this session for context)\n\n")
		sb.WriteString(memory.FormatForPrompt(history))
		sb.WriteString("\n")
	}

	// Scores are left out so they don't bias the model.
	sb.WriteString("## FAQ Passages\n\n")
	if len(passages) == 0 {
		sb.WriteString("(no passages found)\n\n")
	}
	for i, p := range passages {
		fmt.Fprintf(&sb, "[Doc %d] (id: %s)\n", i+1, p.ID)
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Question\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString("## Answer (be brief and direct)\n")

	return sb.String()
}

// deduplicatePassages drops passages whose word set overlaps an earlier, better
// ranked passage by at least threshold (Jaccard).
func deduplicatePassages(passages []reranker.ScoredHit, threshold float64) []reranker.ScoredHit {
	if len(passages) <= 1 {
		return passages
	}

	wordSets := make([]map[string]struct{}, len(passages))
	for i, p := range passages {
		wordSets[i] = tokenize(p.Text)
	}

	keep := make([]bool, len(passages))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(passages); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(passages); j++ {
			if keep[j] && jaccardSimilarity(wordSets[i], wordSets[j]) >= threshold {
				keep[j] = false
			}
		}
	}

	out := make([]reranker.ScoredHit, 0, len(passages))
	for i, p := range passages {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// tokenize converts content into a set of lowercase words for similarity comparison.
func tokenize(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	wordSet := make(map[string]struct{}, len(words))
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]{}=<>、。！？「」")
		if len([]rune(word)) > 1 {
			wordSet[word] = struct{}{}
		}
	}
	return wordSet
}

// jaccardSimilarity returns a value between 0 (no overlap) and 1 (identical).
func jaccardSimilarity(set1, set2 map[string]struct{}) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for word := range set1 {
		if _, ok := set2[word]; ok {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}
