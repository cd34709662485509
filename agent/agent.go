// Package agent runs the tool-augmented conversation loop: connect tool
// servers, filter the tool surface, route to a model tier, then alternate
// model calls and tool executions until the model stops asking for tools.
package agent

import (
	"context"
	"time"

	"github.com/effective-security/agentrun/mcpconn"
	"github.com/effective-security/agentrun/pkg/llms"
	"github.com/effective-security/agentrun/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentrun", "agent")

const (
	// DefaultMaxIterations bounds the model/tool alternation of one run.
	DefaultMaxIterations = 20
	// DefaultModelMaxTokens is the per-call output token ceiling.
	DefaultModelMaxTokens = 4096
	// DefaultHeartbeatInterval paces keepalive frames on the stream.
	DefaultHeartbeatInterval = 15 * time.Second
	// DefaultToolTimeout bounds one tool invocation.
	DefaultToolTimeout = 60 * time.Second
	// DefaultModelTimeout bounds one model call.
	DefaultModelTimeout = 120 * time.Second
	// DefaultMaxToolResultBytes caps a tool payload fed back to the model.
	DefaultMaxToolResultBytes = 50 * 1024
	// DefaultMinSubstantiveLength is the terminal-response length below
	// which a warning is logged.
	DefaultMinSubstantiveLength = 20
)

// Config holds the loop limits and toggles. Zero values take defaults.
type Config struct {
	MaxIterations        int
	ModelMaxTokens       int
	HeartbeatInterval    time.Duration
	ToolTimeout          time.Duration
	ModelTimeout         time.Duration
	MaxToolResultBytes   int
	MinSubstantiveLength int
	// Verbose enables thinking passthrough, raw tool inputs and
	// tool_result frames on the stream.
	Verbose bool
	// AllowRerouting re-evaluates the model choice after each tool turn;
	// off by default so one run stays on one model.
	AllowRerouting bool
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ModelMaxTokens <= 0 {
		c.ModelMaxTokens = DefaultModelMaxTokens
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	if c.MaxToolResultBytes <= 0 {
		c.MaxToolResultBytes = DefaultMaxToolResultBytes
	}
	if c.MinSubstantiveLength <= 0 {
		c.MinSubstantiveLength = DefaultMinSubstantiveLength
	}
	return c
}

// Request describes one conversation turn to run.
type Request struct {
	// AgentID selects router overrides, filter priorities and metrics tags.
	AgentID string
	// SystemPrompt is the cacheable system segment.
	SystemPrompt string
	// Query is the newest user turn.
	Query string
	// History is the prior conversation, system prompt excluded.
	History []llms.Message
	// EnabledServers limits which configured tool servers are dialed;
	// empty dials all of them.
	EnabledServers []string
	// Overlays are per-user server overrides, keyed by server id.
	Overlays map[string]*mcpconn.UserOverlay
	// PriorityCategories bias the tool filter toward the agent's domain.
	PriorityCategories []string
	// MaxTools caps the tool surface; zero takes the filter default.
	MaxTools int
	// ForceTools lists qualified tool names that bypass filtering.
	ForceTools []string
	// ModelPreference is an explicit model request; it outranks every
	// routing rule.
	ModelPreference string
	// ThinkingBudget enables extended thinking when positive.
	ThinkingBudget int
}

// RunResult is the terminal outcome of one run.
type RunResult struct {
	SessionID  string
	Response   string
	Iterations int
	ToolCalls  int
	Model      string
	TokenUsage llms.TokenUsage
	// CacheReadTokens and CacheWriteTokens report prompt-cache activity
	// across all model calls of the run.
	CacheReadTokens  int64
	CacheWriteTokens int64
	// FailedServers lists tool servers that did not connect.
	FailedServers []string
	// Capped reports termination by the iteration ceiling.
	Capped bool
}

// ToolInvoker is the connection surface the loop needs from the tool server
// manager.
type ToolInvoker interface {
	Connect(ctx context.Context, enabledServerIDs []string, overlays map[string]*mcpconn.UserOverlay) (*mcpconn.ConnectResult, error)
	Invoke(ctx context.Context, qualifiedName string, args map[string]any) *mcpconn.ExecutionResult
	CloseAll()
}

var _ ToolInvoker = (*mcpconn.Manager)(nil)

// ModelProvider resolves a routed model name into a callable model.
type ModelProvider interface {
	ModelFor(name string) (llms.Model, error)
}

// Option configures a Loop.
type Option func(*Loop)

// WithCallback installs a lifecycle callback.
func WithCallback(cb Callback) Option {
	return func(a *Loop) {
		a.callback = cb
	}
}

// WithUsageStore installs the tool usage store shared with the filter.
func WithUsageStore(s store.UsageStore) Option {
	return func(a *Loop) {
		a.usage = s
	}
}
