package mcpconn

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentrun/pkg/llms"
)

// QualifiedNameSeparator joins a server id and a tool name into the
// session-unique tool identity exposed to the model.
const QualifiedNameSeparator = "__"

// QualifiedName returns the `{serverId}__{toolName}` identity for a tool.
func QualifiedName(serverID, toolName string) string {
	return serverID + QualifiedNameSeparator + toolName
}

// SplitQualifiedName recovers the owning server id and the tool name from a
// qualified tool name.
func SplitQualifiedName(qualifiedName string) (serverID, toolName string, err error) {
	serverID, toolName, ok := strings.Cut(qualifiedName, QualifiedNameSeparator)
	if !ok || serverID == "" || toolName == "" {
		return "", "", errors.Errorf("mcpconn: invalid qualified tool name: %q", qualifiedName)
	}
	return serverID, toolName, nil
}

// ToolDescriptor is the normalized, provider-neutral representation of one
// callable tool. Immutable for the lifetime of the owning connection.
type ToolDescriptor struct {
	// QualifiedName is `{serverId}__{toolName}`, unique within a session.
	QualifiedName string `json:"qualified_name"`
	// Name is the tool name as exposed by the server.
	Name string `json:"name"`
	// Description is the tool description, used for relevance matching
	// and exposed to the model.
	Description string `json:"description"`
	// InputSchema is the JSON schema of the tool input.
	InputSchema map[string]any `json:"input_schema,omitempty"`
	// Categories are topic tags: the owning server's declared categories,
	// possibly extended by pattern matches downstream.
	Categories []string `json:"categories,omitempty"`
	// SourceServer is the id of the owning server.
	SourceServer string `json:"source_server"`
}

// ToLLMTools converts descriptors into tool definitions for the model,
// preserving order.
func ToLLMTools(descriptors []ToolDescriptor) []llms.Tool {
	if len(descriptors) == 0 {
		return nil
	}
	tools := make([]llms.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		var params any
		if d.InputSchema != nil {
			params = d.InputSchema
		}
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.QualifiedName,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
