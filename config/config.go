// Package config loads the runtime configuration: the tool server catalog,
// routing thresholds, per-agent presets and the model provider catalog.
package config

import (
	"github.com/effective-security/agentrun/agent"
	"github.com/effective-security/agentrun/llmfactory"
	"github.com/effective-security/agentrun/mcpconn"
	"github.com/effective-security/agentrun/router"
	"github.com/effective-security/agentrun/store"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/redis/go-redis/v9"
)

// Config is the top level runtime configuration.
type Config struct {
	// Servers is the tool server catalog, keyed by server id.
	Servers map[string]mcpconn.ServerConfig `json:"servers" yaml:"servers"`
	// Router holds the model routing thresholds and tier models.
	Router router.Config `json:"router" yaml:"router"`
	// Agents holds per-agent presets, keyed by agent id.
	Agents map[string]AgentPreset `json:"agents,omitempty" yaml:"agents,omitempty"`
	// LLM is the model provider catalog.
	LLM llmfactory.Config `json:"llm" yaml:"llm"`
	// Redis enables the shared tool usage store when set; the in-memory
	// store is used otherwise.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// AgentPreset seeds request fields for a named agent.
type AgentPreset struct {
	PriorityCategories []string `json:"priority_categories,omitempty" yaml:"priority_categories,omitempty"`
	MaxTools           int      `json:"max_tools,omitempty" yaml:"max_tools,omitempty"`
	ForceTools         []string `json:"force_tools,omitempty" yaml:"force_tools,omitempty"`
	// Model pins the agent to a model, outranking the router thresholds.
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	ThinkingBudget int    `json:"thinking_budget,omitempty" yaml:"thinking_budget,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// RedisConfig for the shared usage store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Load reads and expands the configuration from file.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsageStore returns the configured tool usage store.
func (c *Config) UsageStore() store.UsageStore {
	if c.Redis.Addr == "" {
		return store.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	return store.NewRedisStore(client, values.StringsCoalesce(c.Redis.Prefix, "agentrun"))
}

// Apply copies the preset for req.AgentID onto unset request fields.
func (c *Config) Apply(req *agent.Request) {
	preset, ok := c.Agents[req.AgentID]
	if !ok {
		return
	}
	if len(req.PriorityCategories) == 0 {
		req.PriorityCategories = preset.PriorityCategories
	}
	if req.MaxTools == 0 {
		req.MaxTools = preset.MaxTools
	}
	if len(req.ForceTools) == 0 {
		req.ForceTools = preset.ForceTools
	}
	if req.ModelPreference == "" {
		req.ModelPreference = preset.Model
	}
	if req.ThinkingBudget == 0 {
		req.ThinkingBudget = preset.ThinkingBudget
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = preset.SystemPrompt
	}
}
