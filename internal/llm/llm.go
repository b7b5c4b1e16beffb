// Package llm provides the text-generation clients used for answers and LLM-based rerank scoring.
package llm

import (
	"context"
	"fmt"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/router"
)

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model specifies the LLM model to use (e.g., "gpt-oss:20b").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic, 1.0 = creative).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// LLM defines the interface for Large Language Model clients.
type LLM interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	// It blocks until the full response is received or an error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// TierModels names the model serving each router tier.
type TierModels struct {
	Economy string
	Premium string
}

// TieredGenerator turns a router tier into a concrete model call.
type TieredGenerator struct {
	client       LLM
	models       TierModels
	systemPrompt string
	temperature  float32
}

// NewTieredGenerator creates a generator that answers with the given system prompt.
func NewTieredGenerator(client LLM, models TierModels, systemPrompt string) *TieredGenerator {
	return &TieredGenerator{
		client:       client,
		models:       models,
		systemPrompt: systemPrompt,
		temperature:  DefaultTemperature,
	}
}

// ModelFor returns the model name configured for tier.
func (g *TieredGenerator) ModelFor(tier router.Tier) (string, error) {
	switch tier {
	case router.TierEconomy:
		return g.models.Economy, nil
	case router.TierPremium:
		return g.models.Premium, nil
	default:
		return "", fmt.Errorf("no model configured for tier %q", tier)
	}
}

// Generate produces an answer for prompt on the model mapped to tier.
func (g *TieredGenerator) Generate(ctx context.Context, prompt string, tier router.Tier) (string, error) {
	model, err := g.ModelFor(tier)
	if err != nil {
		return "", err
	}
	return g.client.Generate(ctx, prompt, GenerateOptions{
		Model:        model,
		SystemPrompt: g.systemPrompt,
		Temperature:  g.temperature,
	})
}
