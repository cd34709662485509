package reqbuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/agentrun/pkg/llms"
)

type fakeModel struct {
	name     string
	provider llms.ProviderType
}

func (m *fakeModel) GetName() string                    { return m.name }
func (m *fakeModel) GetProviderType() llms.ProviderType { return m.provider }
func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func sampleTools() []llms.Tool {
	return []llms.Tool{
		{Type: "function", Function: &llms.FunctionDefinition{Name: "pd__list_incidents"}},
		{Type: "function", Function: &llms.FunctionDefinition{Name: "gh__create_issue"}},
	}
}

func sampleHistory() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "first question"),
		llms.MessageFromTextParts(llms.RoleAI, "first answer"),
		llms.MessageFromTextParts(llms.RoleHuman, "second question"),
	}
}

func TestBuildCachingProvider(t *testing.T) {
	b := NewBuilder()
	model := &fakeModel{name: "claude-sonnet", provider: llms.ProviderAnthropic}

	req := b.Build(model, "You are a helpful SRE assistant.", sampleTools(), sampleHistory(), 4096, 0)

	assert.True(t, req.SystemCached)
	assert.True(t, req.ToolsCached)
	// everything before the newest user turn is cacheable
	assert.Equal(t, 2, req.CachedMessages)
	assert.Equal(t, "claude-sonnet", req.Model)
	assert.Equal(t, 4096, req.MaxTokens)
}

func TestBuildDegradation(t *testing.T) {
	b := NewBuilder()
	model := &fakeModel{name: "mock", provider: llms.ProviderMock}

	req := b.Build(model, "You are a helpful SRE assistant.", sampleTools(), sampleHistory(), 4096, 0)

	// same semantic content, no cache markers
	assert.False(t, req.SystemCached)
	assert.False(t, req.ToolsCached)
	assert.Zero(t, req.CachedMessages)
	assert.Equal(t, "You are a helpful SRE assistant.", req.SystemPrompt)
	assert.Len(t, req.Tools, 2)
	assert.Len(t, req.Messages, 3)

	opts := applyOptions(req.CallOptions())
	assert.Nil(t, opts.PromptCachePolicy)
}

func TestBuildEmptySegments(t *testing.T) {
	b := NewBuilder()
	model := &fakeModel{name: "claude-sonnet", provider: llms.ProviderAnthropic}

	req := b.Build(model, "", nil, sampleHistory(), 1024, 0)
	assert.False(t, req.SystemCached)
	assert.False(t, req.ToolsCached)

	opts := applyOptions(req.CallOptions())
	require.NotNil(t, opts.PromptCachePolicy)
	// only the history breakpoint remains
	require.Len(t, opts.PromptCachePolicy.Breakpoints, 1)
	assert.Equal(t, llms.PromptCacheTargetMessage, opts.PromptCachePolicy.Breakpoints[0].Target.Kind)
}

func TestLLMMessages(t *testing.T) {
	req := &CacheableRequest{
		SystemPrompt: "system",
		Messages:     sampleHistory(),
	}
	messages := req.LLMMessages()
	require.Len(t, messages, 4)
	assert.Equal(t, llms.RoleSystem, messages[0].Role)
	assert.Equal(t, llms.RoleHuman, messages[1].Role)

	// no system prompt, no leading message
	req.SystemPrompt = ""
	assert.Len(t, req.LLMMessages(), 3)
}

func TestCallOptionsBreakpoints(t *testing.T) {
	req := &CacheableRequest{
		SystemPrompt:   "system",
		SystemCached:   true,
		Tools:          sampleTools(),
		ToolsCached:    true,
		Messages:       sampleHistory(),
		CachedMessages: 2,
		Model:          "claude-sonnet",
		MaxTokens:      2048,
		ThinkingBudget: 1024,
	}

	opts := applyOptions(req.CallOptions())
	assert.Equal(t, "claude-sonnet", opts.Model)
	assert.Equal(t, 2048, opts.MaxTokens)
	assert.Equal(t, 1024, opts.ThinkingBudget)
	assert.Len(t, opts.Tools, 2)

	require.NotNil(t, opts.PromptCachePolicy)
	bps := opts.PromptCachePolicy.Breakpoints
	require.Len(t, bps, 3)
	assert.Equal(t, llms.PromptCacheTargetSystem, bps[0].Target.Kind)
	assert.Equal(t, llms.PromptCacheTargetTools, bps[1].Target.Kind)
	assert.Equal(t, llms.PromptCacheTargetMessage, bps[2].Target.Kind)
	// index is into LLMMessages, shifted by the leading system message
	assert.Equal(t, 2, bps[2].Target.MessageIndex)
}

func TestHistoryCacheEnd(t *testing.T) {
	assert.Equal(t, 0, historyCacheEnd(nil))
	assert.Equal(t, 0, historyCacheEnd([]llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "only turn"),
	}))

	// tool-result messages count as user turns
	messages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "question"),
		llms.MessageFromTextParts(llms.RoleAI, "calling a tool"),
		llms.MessageFromToolResponses(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "t1", Content: "result"}),
	}
	assert.Equal(t, 2, historyCacheEnd(messages))
}

func TestCacheStats(t *testing.T) {
	b := NewBuilder()
	b.Observe(llms.TokenUsage{CacheReadTokens: 100, CacheWriteTokens: 40})
	b.Observe(llms.TokenUsage{CacheReadTokens: 60})

	read, write := b.Stats().Snapshot()
	assert.Equal(t, int64(160), read)
	assert.Equal(t, int64(40), write)
}

func applyOptions(opts []llms.CallOption) *llms.CallOptions {
	out := &llms.CallOptions{}
	for _, opt := range opts {
		opt(out)
	}
	return out
}
