package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recall(v float64) *float64 { return &v }

func TestRouter_Route(t *testing.T) {
	tests := []struct {
		name        string
		rc          RouteContext
		wantTier    Tier
		wantUsed    int
		wantReasons []string
		notReasons  []string
	}{
		{
			name:        "Should stay economy without signals",
			rc:          RouteContext{ContextTokens: 300, Recall: recall(0.7), Max120bPerRequest: 1},
			wantTier:    TierEconomy,
			wantUsed:    0,
			wantReasons: []string{ReasonBaseEconomy},
		},
		{
			name:        "Should escalate on a sensitive safety tag",
			rc:          RouteContext{SafetyTag: "legal", Recall: recall(0.95), Max120bPerRequest: 1},
			wantTier:    TierPremium,
			wantUsed:    1,
			wantReasons: []string{ReasonSafetyTag},
			notReasons:  []string{ReasonDowngrade},
		},
		{
			name:        "Should escalate on low recall",
			rc:          RouteContext{Recall: recall(0.4), ConversationDepth: 5, Max120bPerRequest: 2},
			wantTier:    TierPremium,
			wantUsed:    1,
			wantReasons: []string{ReasonLowRecall},
		},
		{
			name:        "Should escalate on high complexity in a long conversation",
			rc:          RouteContext{Complexity: ComplexityHigh, Recall: recall(0.9), ConversationDepth: 3, Max120bPerRequest: 1},
			wantTier:    TierPremium,
			wantUsed:    1,
			wantReasons: []string{ReasonHighComplexity},
		},
		{
			name: "Should downgrade token escalation in a shallow high-recall turn",
			rc: RouteContext{
				ContextTokens:     2500,
				Recall:            recall(0.9),
				Complexity:        ComplexityLow,
				SafetyTag:         "none",
				ConversationDepth: 1,
				Used120bCount:     0,
				Max120bPerRequest: 1,
			},
			wantTier:    TierEconomy,
			wantUsed:    0,
			wantReasons: []string{ReasonContextTokens, ReasonDowngrade},
		},
		{
			name:     "Should not downgrade when recall is unknown",
			rc:       RouteContext{ContextTokens: 2500, ConversationDepth: 1, Max120bPerRequest: 1},
			wantTier: TierPremium,
			wantUsed: 1,
		},
		{
			name:        "Should force economy when the budget is exhausted",
			rc:          RouteContext{SafetyTag: "security", RequiresSafeMode: true, Used120bCount: 1, Max120bPerRequest: 1},
			wantTier:    TierEconomy,
			wantUsed:    1,
			wantReasons: []string{ReasonBudgetExhausted},
			notReasons:  []string{ReasonSafetyTag, ReasonSafeMode},
		},
		{
			name:        "Should clamp a zero budget to one",
			rc:          RouteContext{Complexity: ComplexityHigh, ConversationDepth: 4, Max120bPerRequest: 0},
			wantTier:    TierPremium,
			wantUsed:    1,
			wantReasons: []string{ReasonHighComplexity},
		},
		{
			name:        "Should escalate safe mode and skip the downgrade",
			rc:          RouteContext{RequiresSafeMode: true, Recall: recall(0.95), ConversationDepth: 1, Max120bPerRequest: 1},
			wantTier:    TierPremium,
			wantUsed:    1,
			wantReasons: []string{ReasonBaseEconomy, ReasonSafeMode},
			notReasons:  []string{ReasonDowngrade},
		},
		{
			name:        "Should escalate legal intent",
			rc:          RouteContext{IntentType: "legal", Recall: recall(0.95), Max120bPerRequest: 3, Used120bCount: 1},
			wantTier:    TierPremium,
			wantUsed:    2,
			wantReasons: []string{ReasonLegalIntent},
		},
		{
			name:       "Should not count twice when safe mode and a base rule both apply",
			rc:         RouteContext{RequiresSafeMode: true, Recall: recall(0.3), ConversationDepth: 1, Max120bPerRequest: 2},
			wantTier:   TierPremium,
			wantUsed:   1,
			notReasons: []string{ReasonSafeMode, ReasonDowngrade},
		},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(tt.rc)
			assert.Equal(t, tt.wantTier, d.Tier)
			assert.Equal(t, tt.wantUsed, d.Used120bCount)
			require.NotEmpty(t, d.Reasons)
			for _, key := range tt.wantReasons {
				assert.True(t, d.HasReason(key), "missing reason %q in %v", key, d.Reasons)
			}
			for _, key := range tt.notReasons {
				assert.False(t, d.HasReason(key), "unexpected reason %q in %v", key, d.Reasons)
			}
		})
	}
}

func TestRouter_SafeModeWithBudget(t *testing.T) {
	r := New()
	for depth := 0; depth < 5; depth++ {
		for _, rec := range []*float64{nil, recall(0.1), recall(0.99)} {
			d := r.Route(RouteContext{
				RequiresSafeMode:  true,
				Recall:            rec,
				ConversationDepth: depth,
				Max120bPerRequest: 2,
				Used120bCount:     1,
			})
			assert.Equal(t, TierPremium, d.Tier)
			assert.Equal(t, 2, d.Used120bCount)
		}
	}
}

func TestRouter_Forced(t *testing.T) {
	t.Run("Should pin premium and count it", func(t *testing.T) {
		d := New(WithForcedTier(TierPremium)).Route(RouteContext{Used120bCount: 5, Max120bPerRequest: 1})
		assert.Equal(t, TierPremium, d.Tier)
		assert.Equal(t, 6, d.Used120bCount)
		assert.True(t, d.HasReason(ReasonForced))
	})

	t.Run("Should pin economy over every signal", func(t *testing.T) {
		d := New(WithForcedTier(TierEconomy)).Route(RouteContext{SafetyTag: "legal", RequiresSafeMode: true, Max120bPerRequest: 1})
		assert.Equal(t, TierEconomy, d.Tier)
		assert.Equal(t, 0, d.Used120bCount)
	})
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{"": "", "economy": TierEconomy, "20b": TierEconomy, " Premium ": TierPremium, "120b": TierPremium} {
		got, err := ParseTier(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTier("70b")
	assert.Error(t, err)
}

func TestDecision_HasReason(t *testing.T) {
	d := Decision{Reasons: []string{"low_recall: 0.40 < 0.60"}}
	assert.True(t, d.HasReason(ReasonLowRecall))
	assert.False(t, d.HasReason("low"))
}
