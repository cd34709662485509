package llmfactory

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentrun/pkg/llms"
	"github.com/effective-security/agentrun/pkg/llms/anthropic"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentrun", "llmfactory")

type Factory interface {
	DefaultModel() (llms.Model, error)
	ModelByName(name string) (llms.Model, error)
	// ModelFor resolves a routed model identifier against the configured
	// providers.
	ModelFor(model string) (llms.Model, error)
}

// Load returns a factory from the config at location
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	byName  map[string]llms.Model
	byModel map[string]llms.Model
	lock    sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:     cfg,
		byName:  make(map[string]llms.Model),
		byModel: make(map[string]llms.Model),
	}
	return f
}

// NewLLM creates a model client for the provider, pinned to model when set,
// otherwise to the provider's default model.
func NewLLM(cfg *ProviderConfig, model string) (llms.Model, error) {
	var opts []anthropic.Option
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if model == "" {
		model = cfg.DefaultModel
	}
	opts = append(opts, anthropic.WithModel(model))
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	if cfg.Anthropic.BetaHeader != "" {
		opts = append(opts, anthropic.WithAnthropicBetaHeader(cfg.Anthropic.BetaHeader))
	}
	return anthropic.New(opts...)
}

// DefaultModel returns the first configured provider's default model
func (f *factory) DefaultModel() (llms.Model, error) {
	if len(f.cfg.Providers) == 0 {
		return nil, errors.New("no providers configured")
	}
	return f.ModelByName(f.cfg.Providers[0].Name)
}

func (f *factory) ModelByName(name string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if client, ok := f.byName[name]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Providers {
		if cfg.Name == name {
			model, err := NewLLM(cfg, "")
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"name", cfg.Name,
				"model", cfg.DefaultModel)

			f.byName[name] = model
			return model, nil
		}
	}
	return nil, errors.Newf("provider not found for name: %s", name)
}

func (f *factory) ModelFor(model string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if client, ok := f.byModel[model]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Providers {
		if cfg.DefaultModel == model || slices.Contains(cfg.AvailableModels, model) {
			client, err := NewLLM(cfg, model)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"name", cfg.Name,
				"model", model)

			f.byModel[model] = client
			return client, nil
		}
	}
	return nil, errors.Newf("provider not found for model: %s", model)
}
