package mcpconn

import (
	"maps"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Transport identifies how a tool server is reached. The variant is decided
// once at configuration load time; transport-specific fields are only
// meaningful for their own variant.
type Transport string

const (
	// TransportStdio is a local-process server. It is recognized in
	// configuration but not supported by this runtime; connecting reports
	// a per-server failure instead of spawning a process.
	TransportStdio Transport = "stdio"
	// TransportSSE is a proxy/SSE server. The endpoint URL may be given
	// directly or extracted from a command-style argument list.
	TransportSSE Transport = "sse"
	// TransportHTTP is a direct streaming-HTTP server.
	TransportHTTP Transport = "http"
)

var ErrUnsupportedTransport = errors.New("mcpconn: unsupported transport")

// ServerConfig is the base configuration of one tool server.
type ServerConfig struct {
	Transport Transport `json:"transport" yaml:"transport"`

	// URL and Headers configure the sse and http transports.
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Command and Args describe proxy invocations; for the sse transport
	// the endpoint URL is extracted from the argument list when URL is
	// not set directly.
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env is the per-server environment used for ${VAR} interpolation,
	// consulted before the process environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// RequiredEnv lists environment keys that must resolve for the server
	// to be usable.
	RequiredEnv []string `json:"required_env,omitempty" yaml:"required_env,omitempty"`

	// Categories are the server's declared domain categories, inherited
	// by every tool it exposes.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// UserOverlay is a per-user configuration overlay merged field-by-field over
// the base server configuration: resolved credentials, a custom endpoint,
// extra headers.
type UserOverlay struct {
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Merge applies a user overlay over the base configuration. User values take
// precedence field-by-field; header and env maps are merged key-by-key.
func (c ServerConfig) Merge(overlay *UserOverlay) ServerConfig {
	if overlay == nil {
		return c
	}
	merged := c
	if overlay.URL != "" {
		merged.URL = overlay.URL
	}
	if len(overlay.Headers) > 0 {
		merged.Headers = make(map[string]string, len(c.Headers)+len(overlay.Headers))
		maps.Copy(merged.Headers, c.Headers)
		maps.Copy(merged.Headers, overlay.Headers)
	}
	if len(overlay.Env) > 0 {
		merged.Env = make(map[string]string, len(c.Env)+len(overlay.Env))
		maps.Copy(merged.Env, c.Env)
		maps.Copy(merged.Env, overlay.Env)
	}
	return merged
}

// ExpandEnv interpolates ${VAR} references, resolving against the per-server
// environment first and the process environment second.
func ExpandEnv(s string, env map[string]string) string {
	return os.Expand(s, func(key string) string {
		if v, ok := env[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
}

// Endpoint resolves the server's endpoint URL with environment interpolation
// applied. For the sse transport a URL embedded in the proxy argument list is
// used when no URL is configured directly.
func (c ServerConfig) Endpoint() (string, error) {
	switch c.Transport {
	case TransportHTTP:
		if c.URL == "" {
			return "", errors.New("mcpconn: http transport requires a url")
		}
		return ExpandEnv(c.URL, c.Env), nil
	case TransportSSE:
		if c.URL != "" {
			return ExpandEnv(c.URL, c.Env), nil
		}
		if u := urlFromArgs(c.Args, c.Env); u != "" {
			return u, nil
		}
		return "", errors.New("mcpconn: sse transport requires a url or a command argument containing one")
	case TransportStdio:
		return "", errors.WithMessage(ErrUnsupportedTransport, "local process servers cannot be launched by this runtime")
	default:
		return "", errors.WithMessagef(ErrUnsupportedTransport, "%q", c.Transport)
	}
}

// ResolvedHeaders returns the configured headers with environment
// interpolation applied.
func (c ServerConfig) ResolvedHeaders() map[string]string {
	if len(c.Headers) == 0 {
		return nil
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = ExpandEnv(v, c.Env)
	}
	return headers
}

// MissingEnv returns the declared required environment keys that resolve to
// an empty value.
func (c ServerConfig) MissingEnv() []string {
	var missing []string
	for _, key := range c.RequiredEnv {
		if c.Env[key] == "" && os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// urlFromArgs extracts the first http(s) URL from a command-style argument
// list, after environment interpolation.
func urlFromArgs(args []string, env map[string]string) string {
	for _, arg := range args {
		expanded := ExpandEnv(arg, env)
		if !strings.HasPrefix(expanded, "http://") && !strings.HasPrefix(expanded, "https://") {
			continue
		}
		if _, err := url.Parse(expanded); err == nil {
			return expanded
		}
	}
	return ""
}
