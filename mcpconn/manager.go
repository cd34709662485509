package mcpconn

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/effective-security/agentrun/pkg/metricskey"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentrun", "mcpconn")

// State is the lifecycle state of one server connection.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
	StateDisconnected State = "disconnected"
)

// mcpClient is the subset of the MCP client used by the manager.
type mcpClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Connection tracks one live server connection. Owned exclusively by the
// manager of a single request; never shared across requests.
type Connection struct {
	ServerID  string
	Transport Transport
	Endpoint  string
	State     State

	client mcpClient
}

// ConnectResult reports the outcome of discovery across all enabled servers.
type ConnectResult struct {
	Descriptors  []ToolDescriptor
	ConnectedIDs []string
	FailedIDs    []string
}

// ExecutionResult is the outcome of one tool invocation.
type ExecutionResult struct {
	Success bool
	// Data is json.RawMessage when the payload is valid JSON, a string otherwise.
	Data       any
	Error      string
	DurationMs int64
}

// Content renders the result payload for a tool_result block.
func (r *ExecutionResult) Content() string {
	if !r.Success {
		return r.Error
	}
	switch data := r.Data.(type) {
	case json.RawMessage:
		return string(data)
	case string:
		return data
	default:
		js, _ := json.Marshal(data)
		return string(js)
	}
}

// Manager owns the tool server connections of one request. Connections are
// established concurrently, used serially by the agent loop, and closed on
// every exit path.
type Manager struct {
	servers map[string]ServerConfig

	mu    sync.Mutex
	conns map[string]*Connection

	// dial is overridable in tests.
	dial func(ctx context.Context, cfg ServerConfig, endpoint string) (mcpClient, error)
}

// NewManager creates a connection manager over the given server configurations.
func NewManager(servers map[string]ServerConfig) *Manager {
	return &Manager{
		servers: servers,
		conns:   make(map[string]*Connection),
		dial:    dialServer,
	}
}

// Connect establishes connections to the enabled servers concurrently and
// lists their tools. One server's failure never blocks or fails the others;
// failed servers are reported in FailedIDs with a diagnostic log entry.
func (m *Manager) Connect(ctx context.Context, enabledServerIDs []string, overlays map[string]*UserOverlay) (*ConnectResult, error) {
	type serverTools struct {
		serverID    string
		descriptors []ToolDescriptor
	}

	var mu sync.Mutex
	var connected []serverTools
	var failed []string

	var wg errgroup.Group
	for _, serverID := range enabledServerIDs {
		wg.Go(func() error {
			cfg, ok := m.servers[serverID]
			if !ok {
				mu.Lock()
				failed = append(failed, serverID)
				mu.Unlock()
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "server_not_configured",
					"server", serverID,
				)
				return nil
			}
			cfg = cfg.Merge(overlays[serverID])

			descriptors, err := m.connectServer(ctx, serverID, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, serverID)
				metricskey.StatsServerConnectFailed.IncrCounter(1, serverID)
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "server_connect_failed",
					"server", serverID,
					"transport", string(cfg.Transport),
					"err", err.Error(),
				)
				return nil
			}
			connected = append(connected, serverTools{serverID: serverID, descriptors: descriptors})
			metricskey.StatsServerConnected.IncrCounter(1, serverID)
			return nil
		})
	}
	// Per-server failures are collected, not returned.
	_ = wg.Wait()

	// Stable discovery order regardless of connect completion order.
	sort.Slice(connected, func(i, j int) bool {
		return connected[i].serverID < connected[j].serverID
	})
	sort.Strings(failed)

	result := &ConnectResult{FailedIDs: failed}
	for _, st := range connected {
		result.ConnectedIDs = append(result.ConnectedIDs, st.serverID)
		result.Descriptors = append(result.Descriptors, st.descriptors...)
	}
	return result, nil
}

// connectServer opens one connection, transitions its state, and fetches the
// server's tool list once.
func (m *Manager) connectServer(ctx context.Context, serverID string, cfg ServerConfig) ([]ToolDescriptor, error) {
	conn := &Connection{
		ServerID:  serverID,
		Transport: cfg.Transport,
		State:     StateConnecting,
	}

	if missing := cfg.MissingEnv(); len(missing) > 0 {
		conn.State = StateFailed
		return nil, errors.Errorf("mcpconn: server %s: missing required environment: %s", serverID, strings.Join(missing, ", "))
	}

	endpoint, err := cfg.Endpoint()
	if err != nil {
		conn.State = StateFailed
		return nil, err
	}
	conn.Endpoint = endpoint

	cli, err := m.dial(ctx, cfg, endpoint)
	if err != nil {
		conn.State = StateFailed
		return nil, errors.WithMessagef(err, "mcpconn: server %s: failed to connect to %s", serverID, endpoint)
	}
	conn.client = cli
	conn.State = StateConnected

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "server_connected",
		"server", serverID,
		"transport", string(cfg.Transport),
		"endpoint", endpoint,
	)

	listed, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = cli.Close()
		conn.State = StateFailed
		return nil, errors.WithMessagef(err, "mcpconn: server %s: failed to list tools", serverID)
	}

	m.mu.Lock()
	m.conns[serverID] = conn
	m.mu.Unlock()

	descriptors := make([]ToolDescriptor, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		descriptors = append(descriptors, ToolDescriptor{
			QualifiedName: QualifiedName(serverID, tool.Name),
			Name:          tool.Name,
			Description:   tool.Description,
			InputSchema:   toolInputSchema(tool),
			Categories:    append([]string(nil), cfg.Categories...),
			SourceServer:  serverID,
		})
	}
	return descriptors, nil
}

// Invoke executes a tool by its qualified name through the owning connection.
// A missing connection fails fast; it is never retried or re-established.
func (m *Manager) Invoke(ctx context.Context, qualifiedName string, args map[string]any) *ExecutionResult {
	started := time.Now()
	fail := func(err error) *ExecutionResult {
		metricskey.StatsToolCallsFailed.IncrCounter(1, qualifiedName)
		return &ExecutionResult{
			Error:      err.Error(),
			DurationMs: time.Since(started).Milliseconds(),
		}
	}

	serverID, toolName, err := SplitQualifiedName(qualifiedName)
	if err != nil {
		return fail(err)
	}

	m.mu.Lock()
	conn := m.conns[serverID]
	m.mu.Unlock()
	if conn == nil || conn.State != StateConnected {
		return fail(errors.Errorf("mcpconn: no live connection for server %q (tool %q)", serverID, toolName))
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = toolName
	request.Params.Arguments = args

	result, err := conn.client.CallTool(ctx, request)
	if err != nil {
		return fail(errors.WithMessagef(err, "mcpconn: tool %s failed", qualifiedName))
	}

	var sb strings.Builder
	for _, content := range result.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[non-text content]")
		}
	}
	payload := sb.String()

	if result.IsError {
		return fail(errors.Errorf("mcpconn: tool %s returned error: %s", qualifiedName, payload))
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, qualifiedName)
	metricskey.PerfToolCall.MeasureSince(started, qualifiedName)

	res := &ExecutionResult{
		Success:    true,
		DurationMs: time.Since(started).Milliseconds(),
	}
	// Opportunistic JSON parse; fall back to raw text.
	if gjson.Valid(payload) {
		res.Data = json.RawMessage(payload)
	} else {
		res.Data = payload
	}
	return res
}

// Connected reports whether a live connection exists for the server.
func (m *Manager) Connected(serverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn := m.conns[serverID]
	return conn != nil && conn.State == StateConnected
}

// CloseAll closes every tracked connection. Close failures are logged and
// collected, never propagated; cleanup must not mask the loop's outcome.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		if conn.client == nil {
			continue
		}
		if err := conn.client.Close(); err != nil {
			logger.KV(xlog.WARNING,
				"status", "connection_close_failed",
				"server", conn.ServerID,
				"err", err.Error(),
			)
		}
		conn.State = StateDisconnected
	}
}

// dialServer opens a transport-specific MCP client and completes the
// start/initialize handshake. Stdio servers are reported as unsupported.
func dialServer(ctx context.Context, cfg ServerConfig, endpoint string) (mcpClient, error) {
	var cli *client.Client
	var err error

	switch cfg.Transport {
	case TransportSSE:
		var opts []transport.ClientOption
		if headers := cfg.ResolvedHeaders(); len(headers) > 0 {
			opts = append(opts, transport.WithHeaders(headers))
		}
		cli, err = client.NewSSEMCPClient(endpoint, opts...)
	case TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if headers := cfg.ResolvedHeaders(); len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		cli, err = client.NewStreamableHttpClient(endpoint, opts...)
	case TransportStdio:
		return nil, errors.WithMessage(ErrUnsupportedTransport, "local process servers cannot be launched by this runtime")
	default:
		return nil, errors.WithMessagef(ErrUnsupportedTransport, "%q", cfg.Transport)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mcpconn: failed to create client")
	}

	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, errors.Wrap(err, "mcpconn: failed to start client")
	}
	if _, err := cli.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		_ = cli.Close()
		return nil, errors.Wrap(err, "mcpconn: failed to initialize client")
	}
	return cli, nil
}

// toolInputSchema converts the MCP tool schema into a plain JSON-schema map.
func toolInputSchema(tool mcp.Tool) map[string]any {
	schema := map[string]any{
		"type": "object",
	}
	if tool.InputSchema.Type != "" {
		schema["type"] = tool.InputSchema.Type
	}
	if len(tool.InputSchema.Properties) > 0 {
		schema["properties"] = tool.InputSchema.Properties
	}
	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}
	return schema
}
