package mcpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	base := ServerConfig{
		Transport: TransportHTTP,
		URL:       "https://base.example.com/mcp",
		Headers: map[string]string{
			"Authorization": "Bearer base",
			"X-Team":        "sre",
		},
		Env: map[string]string{
			"REGION": "us-east-1",
		},
	}

	t.Run("nil overlay", func(t *testing.T) {
		merged := base.Merge(nil)
		assert.Equal(t, base, merged)
	})

	t.Run("field by field", func(t *testing.T) {
		merged := base.Merge(&UserOverlay{
			URL: "https://user.example.com/mcp",
			Headers: map[string]string{
				"Authorization": "Bearer user",
				"X-User":        "alice",
			},
			Env: map[string]string{
				"REGION": "eu-west-1",
			},
		})

		assert.Equal(t, "https://user.example.com/mcp", merged.URL)
		assert.Equal(t, "Bearer user", merged.Headers["Authorization"])
		assert.Equal(t, "sre", merged.Headers["X-Team"])
		assert.Equal(t, "alice", merged.Headers["X-User"])
		assert.Equal(t, "eu-west-1", merged.Env["REGION"])

		// base maps are not mutated
		assert.Equal(t, "Bearer base", base.Headers["Authorization"])
		assert.Equal(t, "us-east-1", base.Env["REGION"])
	})
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MCP_TOKEN", "from-process")

	assert.Equal(t, "Bearer from-process", ExpandEnv("Bearer ${MCP_TOKEN}", nil))
	// per-server env wins over the process environment
	assert.Equal(t, "Bearer from-server", ExpandEnv("Bearer ${MCP_TOKEN}", map[string]string{"MCP_TOKEN": "from-server"}))
	assert.Equal(t, "plain", ExpandEnv("plain", nil))
	assert.Equal(t, "", ExpandEnv("${UNSET_VAR_12345}", nil))
}

func TestEndpoint(t *testing.T) {
	t.Run("http requires url", func(t *testing.T) {
		_, err := ServerConfig{Transport: TransportHTTP}.Endpoint()
		require.Error(t, err)

		endpoint, err := ServerConfig{
			Transport: TransportHTTP,
			URL:       "https://tools.example.com/mcp",
		}.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "https://tools.example.com/mcp", endpoint)
	})

	t.Run("http url interpolation", func(t *testing.T) {
		endpoint, err := ServerConfig{
			Transport: TransportHTTP,
			URL:       "https://${TOOLS_HOST}/mcp",
			Env:       map[string]string{"TOOLS_HOST": "tools.internal"},
		}.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "https://tools.internal/mcp", endpoint)
	})

	t.Run("sse url from args", func(t *testing.T) {
		endpoint, err := ServerConfig{
			Transport: TransportSSE,
			Command:   "npx",
			Args:      []string{"-y", "mcp-remote", "https://proxy.example.com/sse"},
		}.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "https://proxy.example.com/sse", endpoint)
	})

	t.Run("sse direct url wins", func(t *testing.T) {
		endpoint, err := ServerConfig{
			Transport: TransportSSE,
			URL:       "https://direct.example.com/sse",
			Args:      []string{"https://ignored.example.com/sse"},
		}.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "https://direct.example.com/sse", endpoint)
	})

	t.Run("sse without url", func(t *testing.T) {
		_, err := ServerConfig{
			Transport: TransportSSE,
			Args:      []string{"-y", "some-proxy"},
		}.Endpoint()
		require.Error(t, err)
	})

	t.Run("stdio unsupported", func(t *testing.T) {
		_, err := ServerConfig{
			Transport: TransportStdio,
			Command:   "uvx",
			Args:      []string{"some-local-server"},
		}.Endpoint()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedTransport)
	})

	t.Run("unknown transport", func(t *testing.T) {
		_, err := ServerConfig{Transport: "websocket"}.Endpoint()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedTransport)
	})
}

func TestResolvedHeaders(t *testing.T) {
	cfg := ServerConfig{
		Headers: map[string]string{
			"Authorization": "Bearer ${API_TOKEN}",
			"X-Static":      "value",
		},
		Env: map[string]string{"API_TOKEN": "secret"},
	}
	headers := cfg.ResolvedHeaders()
	assert.Equal(t, "Bearer secret", headers["Authorization"])
	assert.Equal(t, "value", headers["X-Static"])

	assert.Nil(t, ServerConfig{}.ResolvedHeaders())
}

func TestMissingEnv(t *testing.T) {
	t.Setenv("PRESENT_TOKEN", "value")

	cfg := ServerConfig{
		RequiredEnv: []string{"PRESENT_TOKEN", "ABSENT_TOKEN_12345"},
	}
	assert.Equal(t, []string{"ABSENT_TOKEN_12345"}, cfg.MissingEnv())

	cfg.Env = map[string]string{"ABSENT_TOKEN_12345": "inline"}
	assert.Empty(t, cfg.MissingEnv())
}
