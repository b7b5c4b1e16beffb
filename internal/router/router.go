// Package router decides per turn whether answer generation runs on the economy
// or the premium model tier.
//
// Decisions are pure functions of the RouteContext plus the forced tier fixed at
// construction. The premium budget counter is request-local: callers thread
// Decision.Used120bCount into the next RouteContext of the same request.
package router

import (
	"fmt"
	"strings"
)

// Tier selects the model family used for answer generation.
type Tier string

const (
	TierEconomy Tier = "economy"
	TierPremium Tier = "premium"
)

// ParseTier accepts "economy", "premium" or the model aliases "20b"/"120b".
// An empty string yields no tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "economy", "20b":
		return TierEconomy, nil
	case "premium", "120b":
		return TierPremium, nil
	default:
		return "", fmt.Errorf("unknown model tier %q", s)
	}
}

// Complexity is the upstream estimate of how involved the question is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

const (
	// ContextTokenThreshold is the prompt size above which the premium tier is preferred.
	ContextTokenThreshold = 2000

	// LowRecallThreshold marks retrieval too weak for the economy tier.
	LowRecallThreshold = 0.6

	// HighRecallThreshold allows a shallow conversation to downgrade back to economy.
	HighRecallThreshold = 0.8

	// ShallowDepth is the largest conversation depth eligible for the downgrade.
	ShallowDepth = 2

	// IntentLegal is the intent type that always warrants the premium tier.
	IntentLegal = "legal"
)

var sensitiveTags = map[string]struct{}{
	"legal":    {},
	"security": {},
	"policy":   {},
}

// RouteContext carries the turn signals the router decides on.
type RouteContext struct {
	ContextTokens     int
	Recall            *float64
	Complexity        Complexity
	SafetyTag         string
	ConversationDepth int
	Used120bCount     int
	Max120bPerRequest int
	IntentType        string
	RequiresSafeMode  bool
}

// Decision is the routing outcome. Reasons are never empty and follow the
// order in which the rules fired.
type Decision struct {
	Tier          Tier     `json:"tier"`
	Reasons       []string `json:"reasons"`
	Used120bCount int      `json:"used120bCount"`
}

// Reason keys. Each reason string starts with one of these.
const (
	ReasonForced          = "forced"
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonSafetyTag       = "safety_tag"
	ReasonContextTokens   = "context_tokens"
	ReasonLowRecall       = "low_recall"
	ReasonHighComplexity  = "high_complexity"
	ReasonBaseEconomy     = "base_economy"
	ReasonSafeMode        = "safe_mode"
	ReasonLegalIntent     = "legal_intent"
	ReasonDowngrade       = "downgrade_shallow_high_recall"
)

// HasReason reports whether any reason carries the given key.
func (d Decision) HasReason(key string) bool {
	for _, r := range d.Reasons {
		if r == key || strings.HasPrefix(r, key+":") {
			return true
		}
	}
	return false
}

// Router applies the tier rules.
type Router struct {
	forced Tier
}

// Option configures a Router.
type Option func(*Router)

// WithForcedTier pins every decision to tier. An empty tier disables the override.
func WithForcedTier(tier Tier) Option {
	return func(r *Router) {
		r.forced = tier
	}
}

// New creates a Router.
func New(opts ...Option) *Router {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns the tier for one turn.
func (r *Router) Route(rc RouteContext) Decision {
	used := rc.Used120bCount
	if used < 0 {
		used = 0
	}
	max120b := rc.Max120bPerRequest
	if max120b < 1 {
		max120b = 1
	}

	if r.forced != "" {
		d := Decision{
			Tier:          r.forced,
			Reasons:       []string{fmt.Sprintf("%s: tier pinned to %s", ReasonForced, r.forced)},
			Used120bCount: used,
		}
		if r.forced == TierPremium {
			d.Used120bCount++
		}
		return d
	}

	if used >= max120b {
		return Decision{
			Tier:          TierEconomy,
			Reasons:       []string{fmt.Sprintf("%s: %d/%d premium calls used", ReasonBudgetExhausted, used, max120b)},
			Used120bCount: used,
		}
	}

	var reasons []string
	safetyFired := false
	if _, ok := sensitiveTags[strings.ToLower(rc.SafetyTag)]; ok {
		safetyFired = true
		reasons = append(reasons, fmt.Sprintf("%s: %s", ReasonSafetyTag, rc.SafetyTag))
	}
	if rc.ContextTokens > ContextTokenThreshold {
		reasons = append(reasons, fmt.Sprintf("%s: %d > %d", ReasonContextTokens, rc.ContextTokens, ContextTokenThreshold))
	}
	if rc.Recall != nil && *rc.Recall < LowRecallThreshold {
		reasons = append(reasons, fmt.Sprintf("%s: %.2f < %.2f", ReasonLowRecall, *rc.Recall, LowRecallThreshold))
	}
	if rc.Complexity == ComplexityHigh {
		reasons = append(reasons, fmt.Sprintf("%s: %s", ReasonHighComplexity, rc.Complexity))
	}

	tier := TierEconomy
	if len(reasons) > 0 {
		tier = TierPremium
	} else {
		reasons = append(reasons, fmt.Sprintf("%s: no escalation signal", ReasonBaseEconomy))
	}

	counted := false
	if tier == TierEconomy && rc.RequiresSafeMode {
		tier = TierPremium
		used++
		counted = true
		reasons = append(reasons, fmt.Sprintf("%s: safe mode requested", ReasonSafeMode))
	}
	legal := strings.EqualFold(rc.IntentType, IntentLegal)
	if tier == TierEconomy && legal {
		tier = TierPremium
		used++
		counted = true
		reasons = append(reasons, fmt.Sprintf("%s: intent %s", ReasonLegalIntent, rc.IntentType))
	}

	baseOnly := tier == TierPremium && !counted && !safetyFired && !rc.RequiresSafeMode && !legal
	if baseOnly && rc.ConversationDepth <= ShallowDepth && rc.Recall != nil && *rc.Recall >= HighRecallThreshold {
		reasons = append(reasons, fmt.Sprintf("%s: depth %d <= %d, recall %.2f >= %.2f",
			ReasonDowngrade, rc.ConversationDepth, ShallowDepth, *rc.Recall, HighRecallThreshold))
		return Decision{Tier: TierEconomy, Reasons: reasons, Used120bCount: used}
	}

	if tier == TierPremium && !counted {
		used++
	}
	return Decision{Tier: tier, Reasons: reasons, Used120bCount: used}
}
