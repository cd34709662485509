package llms

// PromptCacheTargetKind selects which segment of a request a cache
// breakpoint applies to. A request has three independently cacheable
// segments that change at different frequencies: the system prompt
// (rarely), the tool list (per filter decision), and the message history
// (every turn).
type PromptCacheTargetKind string

const (
	// PromptCacheTargetSystem marks the system prompt block.
	PromptCacheTargetSystem PromptCacheTargetKind = "system"
	// PromptCacheTargetTools marks the tool list. Providers place the
	// breakpoint on the last tool definition, covering the whole list.
	PromptCacheTargetTools PromptCacheTargetKind = "tools"
	// PromptCacheTargetMessage marks a message by index; the breakpoint
	// covers the prefix of the conversation up to and including it.
	PromptCacheTargetMessage PromptCacheTargetKind = "message"
)

// PromptCacheTarget identifies one breakpoint location.
type PromptCacheTarget struct {
	Kind PromptCacheTargetKind `json:"kind"`
	// MessageIndex is the index into the caller-provided messages, used
	// only with PromptCacheTargetMessage.
	MessageIndex int `json:"message_index,omitempty"`
}

// PromptCacheBreakpoint is one cache breakpoint in a request.
type PromptCacheBreakpoint struct {
	Target PromptCacheTarget `json:"target"`
}

// PromptCachePolicy lists the cache breakpoints for one request.
// Providers that do not support prompt caching ignore the policy and
// produce a semantically identical uncached request.
type PromptCachePolicy struct {
	Breakpoints []PromptCacheBreakpoint `json:"breakpoints"`
}

// SystemBreakpoint returns a breakpoint on the system prompt segment.
func SystemBreakpoint() PromptCacheBreakpoint {
	return PromptCacheBreakpoint{Target: PromptCacheTarget{Kind: PromptCacheTargetSystem}}
}

// ToolsBreakpoint returns a breakpoint on the tool list segment.
func ToolsBreakpoint() PromptCacheBreakpoint {
	return PromptCacheBreakpoint{Target: PromptCacheTarget{Kind: PromptCacheTargetTools}}
}

// MessageBreakpoint returns a breakpoint covering the conversation prefix
// up to and including the message at the given index.
func MessageBreakpoint(index int) PromptCacheBreakpoint {
	return PromptCacheBreakpoint{Target: PromptCacheTarget{
		Kind:         PromptCacheTargetMessage,
		MessageIndex: index,
	}}
}
