package reranker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/llm"
)

// maxPassageRunes truncates each passage in the scoring prompt.
const maxPassageRunes = 500

// LLMLoader uses a general LLM as the precision scorer. The model sees the query
// and every candidate together, approximating a cross-encoder.
type LLMLoader struct {
	client llm.LLM
	model  string
}

// NewLLMLoader creates a loader that scores with model on client.
func NewLLMLoader(client llm.LLM, model string) *LLMLoader {
	return &LLMLoader{client: client, model: model}
}

// Load validates the configuration. The LLM is reached lazily on the first Score.
func (l *LLMLoader) Load(context.Context) (PrecisionScorer, error) {
	if l.client == nil {
		return nil, errors.New("no LLM client configured for rerank")
	}
	if l.model == "" {
		return nil, ErrNoModelLocation
	}
	return &LLMScorer{client: l.client, model: l.model}, nil
}

// LLMScorer asks an LLM for per-passage relevance scores.
type LLMScorer struct {
	client llm.LLM
	model  string
}

func (s *LLMScorer) ModelName() string { return s.model }

// relevanceScore represents the structured output from the LLM.
type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason,omitempty"`
}

type llmRerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Score returns one relevance score in [0, 1] per candidate.
func (s *LLMScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	response, err := s.client.Generate(ctx, buildRerankPrompt(query, candidates), llm.GenerateOptions{
		Model:       s.model,
		Temperature: 0.0,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM reranking failed: %w", err)
	}
	return parseRerankResponse(response, len(candidates))
}

// buildRerankPrompt constructs the prompt for LLM-based reranking.
func buildRerankPrompt(query string, candidates []string) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system for an online shop's customer support FAQ. ")
	sb.WriteString("Score how well each passage answers the customer's question.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Passages to score:\n")
	for i, text := range candidates {
		if r := []rune(text); len(r) > maxPassageRunes {
			text = string(r[:maxPassageRunes]) + "..."
		}
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, text)
	}

	sb.WriteString(`Score each passage from 0.0 to 1.0 based on relevance to the question.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant passages should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseRerankResponse extracts scores from the LLM response. Passages the model
// skipped get 0.5.
func parseRerankResponse(response string, numResults int) ([]float64, error) {
	response = strings.TrimSpace(response)

	// Models often wrap the JSON in a markdown fence.
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	response = strings.TrimSpace(response)

	var parsed llmRerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	scores := make([]float64, numResults)
	for i := range scores {
		scores[i] = 0.5
	}
	for _, s := range parsed.Scores {
		if s.DocIndex < 0 || s.DocIndex >= numResults {
			continue
		}
		scores[s.DocIndex] = min(max(s.Score, 0), 1)
	}
	return scores, nil
}

var (
	_ Loader          = (*LLMLoader)(nil)
	_ PrecisionScorer = (*LLMScorer)(nil)
)
