package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "faq_passages", cfg.RetrievalIndex)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetrievalTimeBudget)
	assert.Equal(t, 24, cfg.RerankCandidateWindow)
	assert.Equal(t, 1, cfg.RouterMaxPremiumPerRequest)
	assert.Empty(t, cfg.RouterForceTier)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_MOCK_ENABLED", "true")
	t.Setenv("ROUTER_FORCE_TIER", "premium")
	t.Setenv("RETRIEVAL_TIME_BUDGET", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.RetrievalMockEnabled)
	assert.Equal(t, "premium", cfg.RouterForceTier)
	assert.Equal(t, 250*time.Millisecond, cfg.RetrievalTimeBudget)
}

func TestValidate(t *testing.T) {
	t.Run("Should reject unknown forced tier", func(t *testing.T) {
		t.Setenv("ROUTER_FORCE_TIER", "gold")
		_, err := Load()
		assert.ErrorContains(t, err, "ROUTER_FORCE_TIER")
	})

	t.Run("Should accept model aliases for the forced tier", func(t *testing.T) {
		for _, tier := range []string{"120b", "20b", "Premium"} {
			t.Setenv("ROUTER_FORCE_TIER", tier)
			cfg, err := Load()
			require.NoError(t, err, tier)
			assert.Equal(t, tier, cfg.RouterForceTier)
		}
	})

	t.Run("Should reject zero premium budget", func(t *testing.T) {
		t.Setenv("ROUTER_MAX_PREMIUM_PER_REQUEST", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "ROUTER_MAX_PREMIUM_PER_REQUEST")
	})

	t.Run("Should reject unknown rerank backend", func(t *testing.T) {
		t.Setenv("RERANK_BACKEND", "onnx")
		_, err := Load()
		assert.Error(t, err)
	})
}
