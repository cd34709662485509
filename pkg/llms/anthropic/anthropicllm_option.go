package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TokenEnvVarName is the environment variable holding the API key when no
// token option is supplied.
const TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

// Options configure the client construction. The model is required; the
// token falls back to TokenEnvVarName.
type Options struct {
	Token   string
	Model   string
	BaseURL string

	// HTTPClient overrides the transport, for proxies and tests.
	HTTPClient option.HTTPClient

	// BetaHeader is sent as the 'anthropic-beta' header when set, enabling
	// preview API features.
	BetaHeader string
}

// Option mutates Options during New.
type Option func(*Options)

// WithToken sets the API token, overriding the environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the model identifier used for requests.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL overrides the API endpoint, for gateways and test servers.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient injects the HTTP client performing the requests.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithAnthropicBetaHeader enables preview API features via the
// 'anthropic-beta' header.
func WithAnthropicBetaHeader(value string) Option {
	return func(opts *Options) {
		opts.BetaHeader = value
	}
}
