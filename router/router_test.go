package router

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/agentrun/pkg/llms"
)

func testConfig() Config {
	return Config{
		Models: map[Tier]string{
			TierFast:     "claude-haiku",
			TierBalanced: "claude-sonnet",
			TierPowerful: "claude-opus",
		},
		AgentOverrides: map[string]Tier{
			"formatter": TierFast,
		},
		AgentFloors: map[string]Tier{
			"security": TierPowerful,
		},
	}
}

func TestRouteSimpleQuery(t *testing.T) {
	r := New(testConfig())

	d := r.Route(context.Background(), Context{Message: "What is the capital of France?"})
	assert.LessOrEqual(t, d.ComplexityScore, 30)
	assert.Equal(t, TierFast, d.Tier)
	assert.Equal(t, "claude-haiku", d.ChosenModel)
	assert.Equal(t, "low_complexity", d.Reason)
	assert.Negative(t, d.EstimatedCostDelta)
}

func TestRouteHighComplexity(t *testing.T) {
	r := New(testConfig())

	message := "Analyze the root cause of the distributed database migration failure step by step, " +
		"compare the trade-off between the kubernetes deployment architecture and the terraform infra, " +
		"correlate the latency trend with the dataset breakdown and forecast the aggregate percentile statistics, " +
		"then implement a script to fix the bug and write a function with a unit test. " +
		strings.Repeat("Include every relevant detail about the protocol and concurrency model. ", 5)

	history := make([]llms.Message, 12)
	d := r.Route(context.Background(), Context{
		Message:      message,
		History:      history,
		EnabledTools: 8,
	})
	assert.Greater(t, d.ComplexityScore, 70)
	assert.LessOrEqual(t, d.ComplexityScore, 100)
	assert.Equal(t, TierPowerful, d.Tier)
	assert.Equal(t, "claude-opus", d.ChosenModel)
	assert.Equal(t, "high_complexity", d.Reason)
	assert.Positive(t, d.EstimatedCostDelta)
}

func TestRouteUserPreferenceWins(t *testing.T) {
	r := New(testConfig())

	// the explicit preference outranks every other rule, including overrides
	d := r.Route(context.Background(), Context{
		Message:        "hi",
		AgentID:        "formatter",
		UserPreference: "claude-opus",
	})
	assert.Equal(t, "claude-opus", d.ChosenModel)
	assert.Equal(t, "user_requested_model", d.Reason)
	assert.Equal(t, "claude-opus", d.InputModelPreference)
	assert.Equal(t, TierPowerful, d.Tier)

	// an unknown preferred model is still honored, with no tier mapping
	d = r.Route(context.Background(), Context{
		Message:        "hi",
		UserPreference: "my-custom-model",
	})
	assert.Equal(t, "my-custom-model", d.ChosenModel)
	assert.Equal(t, Tier(""), d.Tier)
}

func TestRouteAgentOverride(t *testing.T) {
	r := New(testConfig())

	message := "Analyze the root cause of the distributed migration step by step and compare the trade-off " +
		strings.Repeat("with plenty of supporting technical detail about kubernetes and terraform ", 10)
	d := r.Route(context.Background(), Context{Message: message, AgentID: "formatter"})
	assert.Equal(t, TierFast, d.Tier)
	assert.Equal(t, "agent_override", d.Reason)
}

func TestRouteAgentFloor(t *testing.T) {
	r := New(testConfig())

	// a trivial query still gets at least the floor tier
	d := r.Route(context.Background(), Context{Message: "hi", AgentID: "security"})
	assert.Equal(t, TierPowerful, d.Tier)
	assert.Equal(t, "critical_agent_pin", d.Reason)
	assert.LessOrEqual(t, d.ComplexityScore, 30)
}

func TestRouteMidBandRules(t *testing.T) {
	r := New(testConfig())

	// mid-band score with codegen intent
	message := "Implement a refactor of the authentication module and write a function " +
		"with a unit test covering the database schema migration and the tls certificate handling " +
		strings.Repeat("including all relevant validation paths ", 6)
	d := r.Route(context.Background(), Context{Message: message})
	require.Greater(t, d.ComplexityScore, 30)
	require.LessOrEqual(t, d.ComplexityScore, 70)
	assert.Equal(t, TierBalanced, d.Tier)
	assert.Equal(t, "code_generation", d.Reason)

	// mid-band score, no codegen, several tools enabled
	message = "Investigate the latency trend across the deployment and correlate it with " +
		"the database saturation metrics, then explain why the aggregate percentile moved " +
		strings.Repeat("during the incident window ", 6)
	d = r.Route(context.Background(), Context{Message: message, EnabledTools: 5})
	require.Greater(t, d.ComplexityScore, 30)
	require.LessOrEqual(t, d.ComplexityScore, 70)
	assert.Equal(t, TierBalanced, d.Tier)
	assert.Equal(t, "multi_tool_context", d.Reason)
}

func TestRouteDefaults(t *testing.T) {
	r := New(Config{Models: map[Tier]string{
		TierFast:     "fast-model",
		TierBalanced: "balanced-model",
		TierPowerful: "powerful-model",
	}})

	d := r.Route(context.Background(), Context{Message: "hello"})
	assert.Equal(t, TierFast, d.Tier)
	assert.Equal(t, "fast-model", d.ChosenModel)
}

func TestScoreComplexity(t *testing.T) {
	// clamped to [0,100]
	assert.GreaterOrEqual(t, scoreComplexity("", nil, 0), 0)

	message := strings.Repeat("analyze compare trade-off step by step kubernetes docker database migration "+
		"aggregate percentile forecast implement refactor unit test search fetch lookup ", 50)
	history := make([]llms.Message, 50)
	assert.LessOrEqual(t, scoreComplexity(message, history, 100), 100)

	// each factor is individually capped
	long := strings.Repeat("x", 10000)
	assert.Equal(t, lengthCap, scoreComplexity(long, nil, 0))
}

func TestHasCodegenIntent(t *testing.T) {
	assert.True(t, hasCodegenIntent("Please implement the parser"))
	assert.True(t, hasCodegenIntent("can you write a function for this"))
	assert.False(t, hasCodegenIntent("what time is it"))
}
