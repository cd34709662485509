// Package toolfilter bounds the number of tool schemas sent to the model
// while keeping the tools relevant to the query available. Each schema costs
// context tokens; the filter scores every connected tool against the query,
// the agent's priorities and its usage history, then truncates to a cap.
package toolfilter

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/effective-security/xlog"

	"github.com/effective-security/agentrun/mcpconn"
	"github.com/effective-security/agentrun/pkg/metricskey"
	"github.com/effective-security/agentrun/store"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentrun", "toolfilter")

const (
	// DefaultMaxTools is the default visible-tool cap, independently
	// configurable per agent preset.
	DefaultMaxTools = 20

	// averageToolSchemaTokens is the heuristic context cost of one tool
	// schema, used only for the tokens-saved estimate.
	averageToolSchemaTokens = 350

	// Score weights. Each contribution is independently bounded.
	usageWeightPerCall     = 3
	usageWeightCap         = 30
	queryRelevanceWeight   = 40
	priorityCategoryWeight = 25
	recencyBonus           = 10
	recencyWindow          = 24 * time.Hour
)

// fallbackCategories keeps cold-start sessions from going toolless: with an
// empty query and no usage history these categories are treated as detected.
var fallbackCategories = []string{CategorySearch, CategoryMetrics, CategoryIncident, CategoryLogs}

// Strategy is the per-request filter strategy, optionally derived from an
// agent preset. Never persisted by the filter.
type Strategy struct {
	Query              string
	AgentID            string
	PriorityCategories []string
	// MaxTools caps the selected set; zero means DefaultMaxTools.
	MaxTools int
	// ForceInclude lists qualified tool names that bypass scoring and are
	// always retained, counted against the cap.
	ForceInclude []string
}

// Metadata reports what the filter did, for observability only.
type Metadata struct {
	TotalAvailable       int      `json:"total_available"`
	Loaded               int      `json:"loaded"`
	Filtered             int      `json:"filtered"`
	EstimatedTokensSaved int      `json:"estimated_tokens_saved"`
	Categories           []string `json:"categories,omitempty"`
}

// Result is the selected, ranked subset of tools plus metadata.
type Result struct {
	Selected []mcpconn.ToolDescriptor
	Metadata Metadata
}

// Filter selects a bounded, ranked subset of connected tools.
type Filter struct {
	usage store.UsageStore
}

// New creates a Filter over the given usage store; a nil store scores all
// tools with zero usage weight.
func New(usage store.UsageStore) *Filter {
	return &Filter{usage: usage}
}

// Filter scores and ranks the descriptors against the strategy and truncates
// to the cap. Scoring is deterministic: identical inputs and unchanged usage
// history yield an identical selection and ordering.
func (f *Filter) Filter(ctx context.Context, descriptors []mcpconn.ToolDescriptor, strategy Strategy) Result {
	maxTools := strategy.MaxTools
	if maxTools <= 0 {
		maxTools = DefaultMaxTools
	}

	var usage map[string]store.ToolUsage
	if f.usage != nil {
		usage = f.usage.Usage(ctx)
	}

	queryCategories := DetectCategories(strategy.Query)
	if strategy.Query == "" && len(usage) == 0 {
		// Cold start: empty query and no history. A non-empty query that
		// matches no category keeps its zero relevance signal.
		queryCategories = fallbackCategories
	}

	total := len(descriptors)

	// A cap at or above the available count returns all tools unfiltered.
	if maxTools >= total {
		selected := make([]mcpconn.ToolDescriptor, len(descriptors))
		copy(selected, descriptors)
		return Result{
			Selected: selected,
			Metadata: Metadata{
				TotalAvailable: total,
				Loaded:         total,
				Categories:     queryCategories,
			},
		}
	}

	type candidate struct {
		descriptor mcpconn.ToolDescriptor
		score      int
		forced     bool
	}

	now := time.Now()
	candidates := make([]candidate, 0, total)
	for _, d := range descriptors {
		categories := CategorizeTool(d)

		score := 0
		if u, ok := usage[d.QualifiedName]; ok {
			score += min(int(u.Count)*usageWeightPerCall, usageWeightCap)
			if now.Sub(u.LastUsed) <= recencyWindow {
				score += recencyBonus
			}
		}
		if intersects(categories, queryCategories) {
			score += queryRelevanceWeight
		}
		if intersects(categories, strategy.PriorityCategories) {
			score += priorityCategoryWeight
		}

		candidates = append(candidates, candidate{
			descriptor: d,
			score:      score,
			forced:     slices.Contains(strategy.ForceInclude, d.QualifiedName),
		})
	}

	// Forced tools first, then by descending score; ties preserve original
	// discovery order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].forced != candidates[j].forced {
			return candidates[i].forced
		}
		return candidates[i].score > candidates[j].score
	})

	limit := min(maxTools, len(candidates))
	// Force-included tools are always retained even above the cap.
	for limit < len(candidates) && candidates[limit].forced {
		limit++
	}

	selected := make([]mcpconn.ToolDescriptor, 0, limit)
	for _, c := range candidates[:limit] {
		selected = append(selected, c.descriptor)
	}

	loaded := len(selected)
	saved := (total - loaded) * averageToolSchemaTokens

	metricskey.StatsFilterToolsLoaded.IncrCounter(float64(loaded), strategy.AgentID)
	metricskey.StatsFilterTokensSaved.IncrCounter(float64(saved), strategy.AgentID)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tools_filtered",
		"agent", strategy.AgentID,
		"total", total,
		"loaded", loaded,
		"categories", queryCategories,
	)

	return Result{
		Selected: selected,
		Metadata: Metadata{
			TotalAvailable:       total,
			Loaded:               loaded,
			Filtered:             total - loaded,
			EstimatedTokensSaved: saved,
			Categories:           queryCategories,
		},
	}
}
