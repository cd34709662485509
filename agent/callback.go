package agent

import (
	"context"

	"github.com/effective-security/agentrun/pkg/llms"
	"github.com/effective-security/xlog"
)

// Callback receives lifecycle notifications from the loop.
type Callback interface {
	OnRunStart(ctx context.Context, req *Request)
	OnRunEnd(ctx context.Context, req *Request, result *RunResult)
	OnRunError(ctx context.Context, req *Request, err error)
	OnModelCallStart(ctx context.Context, model string, messages []llms.Message)
	OnModelCallEnd(ctx context.Context, model string, resp *llms.ContentResponse)
	OnToolStart(ctx context.Context, qualifiedName string, args map[string]any)
	OnToolEnd(ctx context.Context, qualifiedName string, content string)
	OnToolError(ctx context.Context, qualifiedName string, errMsg string)
}

// NoopCallback does nothing.
type NoopCallback struct{}

func NewNoopCallback() *NoopCallback {
	return &NoopCallback{}
}

var _ Callback = (*NoopCallback)(nil)

func (l *NoopCallback) OnRunStart(ctx context.Context, req *Request)                  {}
func (l *NoopCallback) OnRunEnd(ctx context.Context, req *Request, result *RunResult) {}
func (l *NoopCallback) OnRunError(ctx context.Context, req *Request, err error)       {}
func (l *NoopCallback) OnModelCallStart(ctx context.Context, model string, messages []llms.Message) {
}
func (l *NoopCallback) OnModelCallEnd(ctx context.Context, model string, resp *llms.ContentResponse) {
}
func (l *NoopCallback) OnToolStart(ctx context.Context, qualifiedName string, args map[string]any) {
}
func (l *NoopCallback) OnToolEnd(ctx context.Context, qualifiedName string, content string)  {}
func (l *NoopCallback) OnToolError(ctx context.Context, qualifiedName string, errMsg string) {}

// PackageLoggerCallback logs lifecycle events to the given logger.
type PackageLoggerCallback struct {
	logger *xlog.PackageLogger
}

func NewPackageLoggerCallback(logger *xlog.PackageLogger) *PackageLoggerCallback {
	return &PackageLoggerCallback{logger: logger}
}

var _ Callback = (*PackageLoggerCallback)(nil)

func (l *PackageLoggerCallback) OnRunStart(ctx context.Context, req *Request) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_start",
		"agent", req.AgentID,
	)
}

func (l *PackageLoggerCallback) OnRunEnd(ctx context.Context, req *Request, result *RunResult) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_end",
		"agent", req.AgentID,
		"iterations", result.Iterations,
		"tool_calls", result.ToolCalls,
	)
}

func (l *PackageLoggerCallback) OnRunError(ctx context.Context, req *Request, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "run_error",
		"agent", req.AgentID,
		"err", err.Error(),
	)
}

func (l *PackageLoggerCallback) OnModelCallStart(ctx context.Context, model string, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_start",
		"model", model,
		"messages", len(messages),
	)
}

func (l *PackageLoggerCallback) OnModelCallEnd(ctx context.Context, model string, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_end",
		"model", model,
		"choices", len(resp.Choices),
	)
}

func (l *PackageLoggerCallback) OnToolStart(ctx context.Context, qualifiedName string, args map[string]any) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", qualifiedName,
	)
}

func (l *PackageLoggerCallback) OnToolEnd(ctx context.Context, qualifiedName string, content string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", qualifiedName,
		"size", len(content),
	)
}

func (l *PackageLoggerCallback) OnToolError(ctx context.Context, qualifiedName string, errMsg string) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", qualifiedName,
		"err", errMsg,
	)
}
