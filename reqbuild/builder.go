// Package reqbuild assembles outbound inference requests with explicit
// cache-boundary markers. A request has three independently cacheable
// segments that change at different frequencies: the system prompt (rarely),
// the tool list (per filter decision), and the message history up to but
// excluding the newest user turn (every turn). Keeping the segments explicit
// makes the caching contract testable independently of the transport.
package reqbuild

import (
	"sync"

	"github.com/effective-security/agentrun/pkg/llms"
)

// CacheableRequest is one assembled inference request. Each segment is
// independently markable as a cache boundary; an unsupported provider gets
// a semantically identical uncached request.
type CacheableRequest struct {
	SystemPrompt string
	SystemCached bool

	Tools       []llms.Tool
	ToolsCached bool

	// Messages is the conversation history, system prompt excluded.
	Messages []llms.Message
	// CachedMessages is the length of the message prefix eligible for
	// caching: everything before the newest user turn. Zero disables the
	// history segment.
	CachedMessages int

	Model          string
	MaxTokens      int
	ThinkingBudget int
}

// LLMMessages returns the full message list for the model call, with the
// system prompt as the leading message.
func (r *CacheableRequest) LLMMessages() []llms.Message {
	messages := make([]llms.Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		messages = append(messages, llms.MessageFromTextParts(llms.RoleSystem, r.SystemPrompt))
	}
	messages = append(messages, r.Messages...)
	return messages
}

// CallOptions lowers the request into provider call options, including the
// prompt cache policy for the marked segments.
func (r *CacheableRequest) CallOptions() []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithModel(r.Model),
		llms.WithMaxTokens(r.MaxTokens),
	}
	if len(r.Tools) > 0 {
		opts = append(opts, llms.WithTools(r.Tools))
	}
	if r.ThinkingBudget > 0 {
		opts = append(opts, llms.WithThinkingBudget(r.ThinkingBudget))
	}

	var breakpoints []llms.PromptCacheBreakpoint
	if r.SystemCached && r.SystemPrompt != "" {
		breakpoints = append(breakpoints, llms.SystemBreakpoint())
	}
	if r.ToolsCached && len(r.Tools) > 0 {
		breakpoints = append(breakpoints, llms.ToolsBreakpoint())
	}
	if r.CachedMessages > 0 {
		// Message indexes are into LLMMessages, which prepends the
		// system prompt when present.
		offset := 0
		if r.SystemPrompt != "" {
			offset = 1
		}
		breakpoints = append(breakpoints, llms.MessageBreakpoint(r.CachedMessages-1+offset))
	}
	if len(breakpoints) > 0 {
		opts = append(opts, llms.WithPromptCachePolicy(&llms.PromptCachePolicy{Breakpoints: breakpoints}))
	}
	return opts
}

// CacheStats accumulates prompt-cache token counters across a session.
// Advisory only; never affects request correctness.
type CacheStats struct {
	mu          sync.Mutex
	readTokens  int64
	writeTokens int64
}

// Observe records the cache counters of one model call.
func (s *CacheStats) Observe(usage llms.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readTokens += usage.CacheReadTokens
	s.writeTokens += usage.CacheWriteTokens
}

// Snapshot returns the accumulated cache read and write token counts.
func (s *CacheStats) Snapshot() (readTokens, writeTokens int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTokens, s.writeTokens
}

// Builder assembles cache-aware requests and tracks session cache statistics.
type Builder struct {
	stats CacheStats
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Stats exposes the session's aggregate cache statistics.
func (b *Builder) Stats() *CacheStats {
	return &b.stats
}

// Observe records cache counters from one model response.
func (b *Builder) Observe(usage llms.TokenUsage) {
	b.stats.Observe(usage)
}

// Build assembles a request for the given model. Cache boundaries are marked
// only when the provider supports prompt caching; the semantic content is
// identical either way.
func (b *Builder) Build(model llms.Model, systemPrompt string, tools []llms.Tool, messages []llms.Message, maxTokens, thinkingBudget int) *CacheableRequest {
	cached := model.GetProviderType().Supports(llms.CapabilityPromptCache)

	req := &CacheableRequest{
		SystemPrompt:   systemPrompt,
		SystemCached:   cached && systemPrompt != "",
		Tools:          tools,
		ToolsCached:    cached && len(tools) > 0,
		Messages:       messages,
		Model:          model.GetName(),
		MaxTokens:      maxTokens,
		ThinkingBudget: thinkingBudget,
	}
	if cached {
		req.CachedMessages = historyCacheEnd(messages)
	}
	return req
}

// historyCacheEnd returns the length of the message prefix before the newest
// user turn. Tool-result messages count as user turns: they are delivered as
// user messages at the provider level.
func historyCacheEnd(messages []llms.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case llms.RoleHuman, llms.RoleTool:
			return i
		}
	}
	return 0
}
