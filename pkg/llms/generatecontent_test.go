package llms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/agentrun/pkg/llms"
)

func TestMessageHelpers(t *testing.T) {
	msg := llms.MessageFromTextParts(llms.RoleSystem, "a", "b")
	assert.Equal(t, llms.RoleSystem, msg.Role)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "a\nb", msg.GetContent())

	msg = llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
		ID:   "tc_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "alpha__search",
			Arguments: `{"query":"x"}`,
		},
	})
	require.Len(t, msg.Parts, 1)
	call, ok := msg.Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "alpha__search", call.FunctionCall.Name)

	msg = llms.MessageFromToolResponses(llms.RoleTool,
		llms.ToolCallResponse{ToolCallID: "tc_1", Name: "alpha__search", Content: "one"},
		llms.ToolCallResponse{ToolCallID: "tc_2", Name: "beta__fetch", Content: "two", IsError: true},
	)
	assert.Equal(t, llms.RoleTool, msg.Role)
	require.Len(t, msg.Parts, 2)
	second, ok := msg.Parts[1].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.True(t, second.IsError)
	assert.Equal(t, "one\ntwo", msg.GetContent())
}

func TestToolCallsFromChoices(t *testing.T) {
	assert.Empty(t, llms.ToolCallsFromChoices(nil))

	calls := llms.ToolCallsFromChoices([]*llms.ContentChoice{
		{ToolCalls: []llms.ToolCall{
			{ID: "tc_1", FunctionCall: &llms.FunctionCall{Name: "first"}},
			{ID: "tc_2", FunctionCall: &llms.FunctionCall{Name: "second"}},
		}},
		{ToolCalls: []llms.ToolCall{
			{ID: "tc_3", FunctionCall: &llms.FunctionCall{Name: "third"}},
		}},
	})
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"tc_1", "tc_2", "tc_3"},
		[]string{calls[0].ID, calls[1].ID, calls[2].ID})
}

func TestTokenUsage(t *testing.T) {
	var usage llms.TokenUsage
	usage.Add(llms.TokenUsage{InputTokens: 100, OutputTokens: 20})
	usage.Add(llms.TokenUsage{InputTokens: 50, OutputTokens: 10, CacheReadTokens: 40, CacheWriteTokens: 8})

	assert.Equal(t, int64(150), usage.InputTokens)
	assert.Equal(t, int64(30), usage.OutputTokens)
	assert.Equal(t, int64(40), usage.CacheReadTokens)
	assert.Equal(t, int64(8), usage.CacheWriteTokens)
	assert.Equal(t, int64(180), usage.TotalTokens())
}
