package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/agentrun/agent"
	"github.com/effective-security/agentrun/config"
	"github.com/effective-security/agentrun/router"
)

const testConfigYAML = `
servers:
  grafana:
    transport: http
    url: https://grafana.example.com/mcp
    headers:
      Authorization: "Bearer ${GRAFANA_TOKEN}"
router:
  default_tier: balanced
  models:
    fast: claude-haiku
    balanced: claude-sonnet
    powerful: claude-opus
agents:
  incident-responder:
    priority_categories: [incident, observability]
    max_tools: 15
    force_tools: [grafana__search]
    model: claude-opus
    system_prompt: "You handle production incidents."
llm:
  providers:
    - name: anthropic
      token: ${ANTHROPIC_API_KEY}
      default_model: claude-sonnet
      available_models: [claude-haiku, claude-sonnet, claude-opus]
`

func TestLoad(t *testing.T) {
	t.Setenv("GRAFANA_TOKEN", "tok-123")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	file := filepath.Join(t.TempDir(), "agentrun.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testConfigYAML), 0o644))

	cfg, err := config.Load(file)
	require.NoError(t, err)

	require.Contains(t, cfg.Servers, "grafana")
	assert.Equal(t, "https://grafana.example.com/mcp", cfg.Servers["grafana"].URL)
	assert.Equal(t, "Bearer tok-123", cfg.Servers["grafana"].Headers["Authorization"])

	assert.Equal(t, router.TierBalanced, cfg.Router.DefaultTier)
	assert.Equal(t, "claude-haiku", cfg.Router.Models[router.TierFast])
	require.Len(t, cfg.LLM.Providers, 1)
	assert.Equal(t, "sk-test", cfg.LLM.Providers[0].Token)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyPreset(t *testing.T) {
	cfg := &config.Config{
		Agents: map[string]config.AgentPreset{
			"incident-responder": {
				PriorityCategories: []string{"incident"},
				MaxTools:           15,
				ForceTools:         []string{"grafana__search"},
				Model:              "claude-opus",
				SystemPrompt:       "You handle production incidents.",
			},
		},
	}

	req := &agent.Request{AgentID: "incident-responder"}
	cfg.Apply(req)
	assert.Equal(t, []string{"incident"}, req.PriorityCategories)
	assert.Equal(t, 15, req.MaxTools)
	assert.Equal(t, []string{"grafana__search"}, req.ForceTools)
	assert.Equal(t, "claude-opus", req.ModelPreference)
	assert.Equal(t, "You handle production incidents.", req.SystemPrompt)

	// explicit request fields outrank the preset
	req = &agent.Request{
		AgentID:         "incident-responder",
		MaxTools:        5,
		ModelPreference: "claude-haiku",
	}
	cfg.Apply(req)
	assert.Equal(t, 5, req.MaxTools)
	assert.Equal(t, "claude-haiku", req.ModelPreference)
	assert.Equal(t, []string{"incident"}, req.PriorityCategories)

	// unknown agent leaves the request untouched
	req = &agent.Request{AgentID: "other"}
	cfg.Apply(req)
	assert.Zero(t, req.MaxTools)
	assert.Empty(t, req.SystemPrompt)
}

func TestUsageStore(t *testing.T) {
	cfg := &config.Config{}
	st := cfg.UsageStore()
	require.NotNil(t, st)

	cfg.Redis.Addr = "localhost:6379"
	st = cfg.UsageStore()
	require.NotNil(t, st)
}
