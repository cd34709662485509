// Package stream defines the newline-delimited event frames emitted over a
// long-lived response stream, plus a writer that serializes them safely from
// concurrent producers.
package stream

import (
	"encoding/json"

	"github.com/effective-security/agentrun/pkg/llms"
)

// EventType discriminates the event frames.
type EventType string

const (
	// EventText carries incremental assistant text.
	EventText EventType = "text"
	// EventThinking carries incremental extended-thinking text; emitted only
	// in verbose mode.
	EventThinking EventType = "thinking"
	// EventTool reports a tool invocation starting.
	EventTool EventType = "tool"
	// EventToolResult reports a tool outcome; emitted only in verbose mode.
	EventToolResult EventType = "tool_result"
	// EventStatus reports a coarse loop phase.
	EventStatus EventType = "status"
	// EventSession announces the session id for resumption.
	EventSession EventType = "session"
	// EventDone is the single success terminator.
	EventDone EventType = "done"
	// EventError is the single failure terminator.
	EventError EventType = "error"
)

// Loop phases reported by status frames.
const (
	StatusThinking    = "thinking"
	StatusResponding  = "responding"
	StatusToolCalling = "tool_calling"
)

// Event is one frame on the stream. Only the fields of the frame's kind are
// populated; the rest are omitted from the wire format.
type Event struct {
	Type EventType `json:"type"`

	// text
	Content string `json:"content,omitempty"`

	// tool / tool_result
	Name         string          `json:"name,omitempty"`
	Status       string          `json:"status,omitempty"`
	ParamSummary string          `json:"paramSummary,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Success      *bool           `json:"success,omitempty"`
	Preview      string          `json:"preview,omitempty"`

	// session
	SessionID string `json:"sessionId,omitempty"`

	// done
	Response      string           `json:"response,omitempty"`
	ToolCalls     int              `json:"toolCalls,omitempty"`
	Iterations    int              `json:"iterations,omitempty"`
	TokenUsage    *llms.TokenUsage `json:"tokenUsage,omitempty"`
	FailedServers []string         `json:"failedServers,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Text returns an incremental text frame.
func Text(content string) Event {
	return Event{Type: EventText, Content: content}
}

// Thinking returns a verbose incremental extended-thinking frame.
func Thinking(content string) Event {
	return Event{Type: EventThinking, Content: content}
}

// Tool returns a tool invocation frame, optionally with the raw input in
// verbose mode.
func Tool(name, status, paramSummary string, input json.RawMessage) Event {
	return Event{
		Type:         EventTool,
		Name:         name,
		Status:       status,
		ParamSummary: paramSummary,
		Input:        input,
	}
}

// ToolResult returns a verbose tool outcome frame.
func ToolResult(name string, success bool, preview string) Event {
	return Event{
		Type:    EventToolResult,
		Name:    name,
		Success: &success,
		Preview: preview,
	}
}

// Status returns a loop-phase frame.
func Status(status string) Event {
	return Event{Type: EventStatus, Status: status}
}

// Session returns a session-id frame.
func Session(sessionID string) Event {
	return Event{Type: EventSession, SessionID: sessionID}
}

// Done returns the success terminator frame.
func Done(response string, toolCalls, iterations int, usage llms.TokenUsage, failedServers []string) Event {
	return Event{
		Type:          EventDone,
		Response:      response,
		ToolCalls:     toolCalls,
		Iterations:    iterations,
		TokenUsage:    &usage,
		FailedServers: failedServers,
	}
}

// Error returns the failure terminator frame.
func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}
