// Package router scores query complexity and applies a priority-ordered rule
// set to choose a model tier before each inference request. Routing never
// fails: any internal error fails open to the configured default tier.
package router

import (
	"context"
	"fmt"

	"github.com/effective-security/xlog"

	"github.com/effective-security/agentrun/pkg/llms"
	"github.com/effective-security/agentrun/pkg/metricskey"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentrun", "router")

// Tier is a model capability tier.
type Tier string

const (
	// TierFast is the cheap and fast tier.
	TierFast Tier = "fast"
	// TierBalanced is the mid tier.
	TierBalanced Tier = "balanced"
	// TierPowerful is the most capable tier.
	TierPowerful Tier = "powerful"
)

// tierRank orders tiers for floor comparisons.
var tierRank = map[Tier]int{
	TierFast:     0,
	TierBalanced: 1,
	TierPowerful: 2,
}

// tierCost is the relative cost factor per tier, used for the estimated
// cost delta reported with each decision.
var tierCost = map[Tier]float64{
	TierFast:     0.2,
	TierBalanced: 1.0,
	TierPowerful: 5.0,
}

// Config holds the router thresholds and tier-to-model mapping.
type Config struct {
	// Models maps each tier to a concrete model identifier.
	Models map[Tier]string `json:"models" yaml:"models"`
	// LowThreshold and HighThreshold split the 0-100 complexity score
	// into three bands: <=low fast, low<s<=high balanced, >high powerful.
	LowThreshold  int `json:"low_threshold,omitempty" yaml:"low_threshold,omitempty"`
	HighThreshold int `json:"high_threshold,omitempty" yaml:"high_threshold,omitempty"`
	// DefaultTier applies when no rule matches; also the cost baseline.
	DefaultTier Tier `json:"default_tier,omitempty" yaml:"default_tier,omitempty"`
	// AgentOverrides force a tier for specific agents and short-circuit
	// the rule engine entirely.
	AgentOverrides map[string]Tier `json:"agent_overrides,omitempty" yaml:"agent_overrides,omitempty"`
	// AgentFloors pin critical agents to a minimum tier regardless of
	// the computed score, e.g. a security or incident-response agent.
	AgentFloors map[string]Tier `json:"agent_floors,omitempty" yaml:"agent_floors,omitempty"`
}

const (
	DefaultLowThreshold  = 30
	DefaultHighThreshold = 70
)

// Context is the routing input for one model call.
type Context struct {
	Message        string
	History        []llms.Message
	EnabledTools   int
	AgentID        string
	UserPreference string
}

// Decision is the routing outcome, attached to logs and metrics but never
// persisted by the router.
type Decision struct {
	InputModelPreference string  `json:"input_model_preference,omitempty"`
	ComplexityScore      int     `json:"complexity_score"`
	Tier                 Tier    `json:"tier"`
	ChosenModel          string  `json:"chosen_model"`
	Reason               string  `json:"reason"`
	EstimatedCostDelta   float64 `json:"estimated_cost_delta"`
}

// Router picks a model tier per request.
type Router struct {
	cfg Config
}

// New creates a Router, applying threshold defaults.
func New(cfg Config) *Router {
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = DefaultLowThreshold
	}
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = DefaultHighThreshold
	}
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = TierBalanced
	}
	return &Router{cfg: cfg}
}

// Route computes a routing decision. It never returns an error: on any
// internal failure it falls back to the default tier.
func (r *Router) Route(ctx context.Context, rc Context) (decision Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "router_failed_open",
				"agent", rc.AgentID,
				"err", fmt.Sprint(rec),
			)
			decision = r.defaultDecision(rc)
		}
	}()

	decision = r.route(ctx, rc)

	metricskey.StatsRouterDecisions.IncrCounter(1, string(decision.Tier), decision.Reason)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "routed",
		"agent", rc.AgentID,
		"tier", string(decision.Tier),
		"score", decision.ComplexityScore,
		"reason", decision.Reason,
	)
	return decision
}

func (r *Router) route(ctx context.Context, rc Context) Decision {
	score := scoreComplexity(rc.Message, rc.History, rc.EnabledTools)

	// Explicit user-requested model is the highest-priority rule.
	if rc.UserPreference != "" {
		return r.decision(rc, score, "", rc.UserPreference, "user_requested_model")
	}

	// Per-agent static overrides short-circuit the rule engine.
	if tier, ok := r.cfg.AgentOverrides[rc.AgentID]; ok {
		return r.decision(rc, score, tier, "", "agent_override")
	}

	// Critical-agent pins: at least the configured floor, regardless of score.
	if floor, ok := r.cfg.AgentFloors[rc.AgentID]; ok {
		tier := r.tierForScore(score)
		if tierRank[tier] < tierRank[floor] {
			tier = floor
		}
		return r.decision(rc, score, tier, "", "critical_agent_pin")
	}

	// Priority-ordered rules: first match wins.
	switch {
	case score <= r.cfg.LowThreshold:
		return r.decision(rc, score, TierFast, "", "low_complexity")
	case score > r.cfg.HighThreshold:
		return r.decision(rc, score, TierPowerful, "", "high_complexity")
	case hasCodegenIntent(rc.Message):
		return r.decision(rc, score, TierBalanced, "", "code_generation")
	case rc.EnabledTools >= 3:
		return r.decision(rc, score, TierBalanced, "", "multi_tool_context")
	case len(rc.History) >= 10:
		return r.decision(rc, score, TierBalanced, "", "long_conversation")
	case rc.EnabledTools == 0:
		return r.decision(rc, score, TierFast, "", "short_toolless_query")
	}

	return r.decision(rc, score, r.cfg.DefaultTier, "", "default")
}

// decision assembles the Decision; model wins over tier when both are given.
func (r *Router) decision(rc Context, score int, tier Tier, model, reason string) Decision {
	if model == "" {
		model = r.cfg.Models[tier]
	} else if tier == "" {
		tier = r.tierForModel(model)
	}
	return Decision{
		InputModelPreference: rc.UserPreference,
		ComplexityScore:      score,
		Tier:                 tier,
		ChosenModel:          model,
		Reason:               reason,
		EstimatedCostDelta:   tierCost[tier] - tierCost[r.cfg.DefaultTier],
	}
}

func (r *Router) defaultDecision(rc Context) Decision {
	return Decision{
		InputModelPreference: rc.UserPreference,
		Tier:                 r.cfg.DefaultTier,
		ChosenModel:          r.cfg.Models[r.cfg.DefaultTier],
		Reason:               "failed_open_default",
	}
}

func (r *Router) tierForScore(score int) Tier {
	switch {
	case score <= r.cfg.LowThreshold:
		return TierFast
	case score > r.cfg.HighThreshold:
		return TierPowerful
	default:
		return TierBalanced
	}
}

func (r *Router) tierForModel(model string) Tier {
	for tier, m := range r.cfg.Models {
		if m == model {
			return tier
		}
	}
	return ""
}
