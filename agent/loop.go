package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentrun/mcpconn"
	"github.com/effective-security/agentrun/pkg/llms"
	"github.com/effective-security/agentrun/pkg/metricskey"
	"github.com/effective-security/agentrun/reqbuild"
	"github.com/effective-security/agentrun/router"
	"github.com/effective-security/agentrun/store"
	"github.com/effective-security/agentrun/stream"
	"github.com/effective-security/agentrun/toolfilter"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Loop is the agent run orchestrator. One Loop can be reused for sequential
// runs; concurrent runs need separate Loops, since the tool connector holds
// per-run connections that CloseAll tears down.
type Loop struct {
	cfg       Config
	models    ModelProvider
	connector ToolInvoker
	router    *router.Router
	filter    *toolfilter.Filter
	usage     store.UsageStore
	callback  Callback
}

// New creates a Loop.
func New(cfg Config, models ModelProvider, connector ToolInvoker, rtr *router.Router, opts ...Option) *Loop {
	a := &Loop{
		cfg:       cfg.withDefaults(),
		models:    models,
		connector: connector,
		router:    rtr,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.usage == nil {
		a.usage = store.NewMemoryStore()
	}
	if a.callback == nil {
		a.callback = NewNoopCallback()
	}
	a.filter = toolfilter.New(a.usage)
	return a
}

// noopSink swallows frames when the caller runs without a stream.
type noopSink struct{}

func (noopSink) Send(stream.Event) error { return nil }
func (noopSink) Heartbeat() error        { return nil }

// Run executes one conversation turn: connect tool servers, pick the tool
// surface and model, then alternate model calls and tool executions until the
// model produces a final answer or the iteration ceiling is hit. Exactly one
// terminal frame is emitted, and tool server connections are closed on every
// exit path.
func (a *Loop) Run(ctx context.Context, req *Request, sink stream.Sink) (*RunResult, error) {
	started := time.Now()
	defer metricskey.PerfLoopRun.MeasureSince(started, req.AgentID)

	if sink == nil {
		sink = noopSink{}
	}

	sessionID := uuid.NewString()
	a.emit(ctx, sink, stream.Session(sessionID))
	a.callback.OnRunStart(ctx, req)

	defer a.connector.CloseAll()

	stopHeartbeat := a.startHeartbeat(ctx, sink)
	defer stopHeartbeat()

	result, err := a.run(ctx, req, sink, sessionID)

	// the terminal frame must be the last frame on the stream
	stopHeartbeat()

	if err != nil {
		metricskey.StatsLoopsFailed.IncrCounter(1, req.AgentID)
		a.callback.OnRunError(ctx, req, err)
		a.emit(ctx, sink, stream.Error(err.Error()))
		return nil, err
	}

	metricskey.StatsLoopsSucceeded.IncrCounter(1, req.AgentID)
	a.callback.OnRunEnd(ctx, req, result)
	a.emit(ctx, sink, stream.Done(result.Response, result.ToolCalls, result.Iterations, result.TokenUsage, result.FailedServers))
	return result, nil
}

func (a *Loop) run(ctx context.Context, req *Request, sink stream.Sink, sessionID string) (*RunResult, error) {
	a.emit(ctx, sink, stream.Status(stream.StatusThinking))

	conn, err := a.connector.Connect(ctx, req.EnabledServers, req.Overlays)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to connect tool servers")
	}

	filtered := a.filter.Filter(ctx, conn.Descriptors, toolfilter.Strategy{
		Query:              req.Query,
		AgentID:            req.AgentID,
		PriorityCategories: req.PriorityCategories,
		MaxTools:           req.MaxTools,
		ForceInclude:       req.ForceTools,
	})
	tools := mcpconn.ToLLMTools(filtered.Selected)

	decision := a.router.Route(ctx, router.Context{
		Message:        req.Query,
		History:        req.History,
		EnabledTools:   len(filtered.Selected),
		AgentID:        req.AgentID,
		UserPreference: req.ModelPreference,
	})
	model, err := a.models.ModelFor(decision.ChosenModel)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to resolve model %q", decision.ChosenModel)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"session", sessionID,
		"agent", req.AgentID,
		"model", decision.ChosenModel,
		"tier", decision.Tier,
		"reason", decision.Reason,
		"tools", len(tools),
		"servers_connected", len(conn.ConnectedIDs),
		"servers_failed", len(conn.FailedIDs),
	)

	messages := make([]llms.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	if req.Query != "" {
		messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, req.Query))
	}

	builder := reqbuild.NewBuilder()
	result := &RunResult{
		SessionID:     sessionID,
		Model:         model.GetName(),
		FailedServers: conn.FailedIDs,
	}

	var finalText string
	for iter := 1; iter <= a.cfg.MaxIterations; iter++ {
		result.Iterations = iter
		metricskey.StatsLoopIterations.IncrCounter(1, req.AgentID, model.GetName())

		breq := builder.Build(model, req.SystemPrompt, tools, messages, a.cfg.ModelMaxTokens, req.ThinkingBudget)
		choice, err := a.callModel(ctx, req, sink, model, builder, breq, result)
		if err != nil {
			return nil, err
		}

		messages = append(messages, assistantMessage(choice))

		if len(choice.ToolCalls) == 0 || choice.StopReason == llms.StopReasonMaxTokens {
			if choice.StopReason == llms.StopReasonMaxTokens {
				logger.ContextKV(ctx, xlog.WARNING,
					"session", sessionID,
					"status", "response_truncated",
					"stop_reason", choice.StopReason,
				)
			}
			finalText = choice.Content
			break
		}

		a.emit(ctx, sink, stream.Status(stream.StatusToolCalling))
		responses := a.executeToolCalls(ctx, sink, choice.ToolCalls)
		messages = append(messages, llms.MessageFromToolResponses(llms.RoleTool, responses...))
		result.ToolCalls += len(responses)

		if iter == a.cfg.MaxIterations {
			metricskey.StatsLoopCapped.IncrCounter(1, req.AgentID)
			logger.ContextKV(ctx, xlog.WARNING,
				"session", sessionID,
				"status", "iteration_ceiling",
				"iterations", iter,
			)
			result.Capped = true
			finalText = choice.Content
			break
		}

		if a.cfg.AllowRerouting {
			model = a.reroute(ctx, req, messages, len(tools), decision, result, model)
		}

		a.emit(ctx, sink, stream.Status(stream.StatusResponding))
	}

	if finalText == "" {
		finalText = lastAssistantText(messages)
	}
	if len(finalText) < a.cfg.MinSubstantiveLength {
		logger.ContextKV(ctx, xlog.WARNING,
			"session", sessionID,
			"status", "low_content_response",
			"size", len(finalText),
		)
	}

	result.Response = finalText
	result.CacheReadTokens, result.CacheWriteTokens = builder.Stats().Snapshot()
	return result, nil
}

func (a *Loop) callModel(ctx context.Context, req *Request, sink stream.Sink, model llms.Model, builder *reqbuild.Builder, breq *reqbuild.CacheableRequest, result *RunResult) (*llms.ContentChoice, error) {
	modelName := model.GetName()
	msgs := breq.LLMMessages()
	a.callback.OnModelCallStart(ctx, modelName, msgs)

	var streamedBytes int
	opts := breq.CallOptions()
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		streamedBytes += len(chunk)
		a.emit(ctx, sink, stream.Text(string(chunk)))
		return nil
	}))

	var reasonedBytes int
	if a.cfg.Verbose {
		opts = append(opts, llms.WithStreamingReasoningFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			reasonedBytes += len(chunk)
			a.emit(ctx, sink, stream.Thinking(string(chunk)))
			return nil
		}))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ModelTimeout)
	defer cancel()

	started := time.Now()
	resp, err := model.GenerateContent(callCtx, msgs, opts...)
	metricskey.PerfModelCall.MeasureSince(started, modelName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate content from %s", modelName)
	}
	a.callback.OnModelCallEnd(ctx, modelName, resp)

	builder.Observe(resp.Usage)
	result.TokenUsage.Add(resp.Usage)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(resp.Usage.InputTokens), req.AgentID, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(resp.Usage.OutputTokens), req.AgentID, modelName)
	metricskey.StatsLLMCacheReadTokens.IncrCounter(float64(resp.Usage.CacheReadTokens), req.AgentID, modelName)
	metricskey.StatsLLMCacheWriteTokens.IncrCounter(float64(resp.Usage.CacheWriteTokens), req.AgentID, modelName)

	if len(resp.Choices) == 0 {
		return nil, errors.Newf("model %s returned empty response", modelName)
	}
	choice := resp.Choices[0]

	// providers without streaming report the full text at once
	if a.cfg.Verbose && reasonedBytes == 0 && choice.ReasoningContent != "" {
		a.emit(ctx, sink, stream.Thinking(choice.ReasoningContent))
	}
	if streamedBytes == 0 && choice.Content != "" {
		a.emit(ctx, sink, stream.Text(choice.Content))
	}
	return choice, nil
}

// executeToolCalls runs the requested tools sequentially, preserving the
// model's order. Every tool call gets a paired response; failures become
// error results rather than aborting the loop.
func (a *Loop) executeToolCalls(ctx context.Context, sink stream.Sink, toolCalls []llms.ToolCall) []llms.ToolCallResponse {
	responses := make([]llms.ToolCallResponse, 0, len(toolCalls))
	for _, tc := range toolCalls {
		responses = append(responses, a.executeToolCall(ctx, sink, tc))
	}
	return responses
}

func (a *Loop) executeToolCall(ctx context.Context, sink stream.Sink, tc llms.ToolCall) llms.ToolCallResponse {
	name := tc.FunctionCall.Name
	rawArgs := tc.FunctionCall.Arguments

	var args map[string]any
	if rawArgs != "" && rawArgs != "{}" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			metricskey.StatsToolCallsFailed.IncrCounter(1, name)
			msg := "invalid tool arguments: " + err.Error()
			a.callback.OnToolError(ctx, name, msg)
			return llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       name,
				Content:    msg,
				IsError:    true,
			}
		}
	}

	var input json.RawMessage
	if a.cfg.Verbose && json.Valid([]byte(rawArgs)) {
		input = json.RawMessage(rawArgs)
	}
	a.emit(ctx, sink, stream.Tool(name, "running", summarizeParams(args), input))
	a.callback.OnToolStart(ctx, name, args)

	toolCtx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
	res := a.connector.Invoke(toolCtx, name, args)
	cancel()

	content := reduceToolContent(res.Content(), a.cfg.MaxToolResultBytes)
	if res.Success {
		a.callback.OnToolEnd(ctx, name, content)
		if err := a.usage.Record(ctx, name); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "usage_record_failed",
				"tool", name,
				"err", err.Error(),
			)
		}
	} else {
		a.callback.OnToolError(ctx, name, res.Error)
	}

	if a.cfg.Verbose {
		a.emit(ctx, sink, stream.ToolResult(name, res.Success, slices.StringUpto(content, 200)))
	}

	return llms.ToolCallResponse{
		ToolCallID: tc.ID,
		Name:       name,
		Content:    content,
		IsError:    !res.Success,
	}
}

// reroute re-evaluates the model choice after a tool turn. A resolution
// failure keeps the current model.
func (a *Loop) reroute(ctx context.Context, req *Request, messages []llms.Message, enabledTools int, decision router.Decision, result *RunResult, current llms.Model) llms.Model {
	redecision := a.router.Route(ctx, router.Context{
		Message:        req.Query,
		History:        messages,
		EnabledTools:   enabledTools,
		AgentID:        req.AgentID,
		UserPreference: req.ModelPreference,
	})
	if redecision.ChosenModel == decision.ChosenModel {
		return current
	}
	model, err := a.models.ModelFor(redecision.ChosenModel)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "reroute_model_unresolved",
			"model", redecision.ChosenModel,
			"err", err.Error(),
		)
		return current
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "rerouted",
		"from", decision.ChosenModel,
		"to", redecision.ChosenModel,
		"reason", redecision.Reason,
	)
	result.Model = model.GetName()
	return model
}

func (a *Loop) startHeartbeat(ctx context.Context, sink stream.Sink) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(a.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sink.Heartbeat(); err != nil {
					logger.ContextKV(ctx, xlog.WARNING,
						"status", "heartbeat_failed",
						"err", err.Error(),
					)
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}

// emit sends a frame, logging delivery failures without failing the run.
func (a *Loop) emit(ctx context.Context, sink stream.Sink, ev stream.Event) {
	if err := sink.Send(ev); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "stream_send_failed",
			"event", string(ev.Type),
			"err", err.Error(),
		)
	}
}

// assistantMessage rebuilds the assistant turn from a response choice so the
// next model call sees its own text and tool_use blocks.
func assistantMessage(choice *llms.ContentChoice) llms.Message {
	parts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
	if choice.Content != "" {
		parts = append(parts, llms.TextPart(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}
	if len(parts) == 0 {
		parts = append(parts, llms.TextPart(""))
	}
	return llms.Message{Role: llms.RoleAI, Parts: parts}
}

// lastAssistantText returns the most recent assistant text, skipping
// tool_use parts so internal call payloads never surface as the response.
func lastAssistantText(messages []llms.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llms.RoleAI {
			continue
		}
		for _, part := range messages[i].Parts {
			if text, ok := part.(llms.TextContent); ok && text.Text != "" {
				return text.Text
			}
		}
	}
	return ""
}
