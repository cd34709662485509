package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentrun/pkg/llms"
)

// Anthropic allows at most four cache_control breakpoints per request.
const maxPromptCacheBreakpoints = 4

// applyPromptCachePolicy resolves segment-level cache breakpoints from the
// generic prompt cache policy into concrete cache_control markers on the
// Anthropic request:
//
//   - system: the last system block, covering the whole system prompt
//   - tools: the last tool definition, covering the whole tool list
//   - message: the last content block of the chat message the original
//     message index maps to, covering the conversation prefix
//
// chatIndexes maps original message indexes to Anthropic chat message
// positions, as returned by ProcessMessages.
func applyPromptCachePolicy(params *anthropic.MessageNewParams, policy *llms.PromptCachePolicy, chatIndexes []int) error {
	if policy == nil || len(policy.Breakpoints) == 0 {
		return nil
	}
	if len(policy.Breakpoints) > maxPromptCacheBreakpoints {
		return errors.Errorf("anthropic: too many prompt cache breakpoints: %d (max %d)", len(policy.Breakpoints), maxPromptCacheBreakpoints)
	}

	cacheControl := anthropic.NewCacheControlEphemeralParam()

	for _, bp := range policy.Breakpoints {
		switch bp.Target.Kind {
		case llms.PromptCacheTargetSystem:
			if len(params.System) == 0 {
				return errors.New("anthropic: prompt cache system target with no system blocks")
			}
			params.System[len(params.System)-1].CacheControl = cacheControl

		case llms.PromptCacheTargetTools:
			if len(params.Tools) == 0 {
				return errors.New("anthropic: prompt cache tools target with no tools")
			}
			cacheControlPtr := params.Tools[len(params.Tools)-1].GetCacheControl()
			if cacheControlPtr == nil {
				return errors.New("anthropic: prompt cache unsupported for tool definition")
			}
			*cacheControlPtr = cacheControl

		case llms.PromptCacheTargetMessage:
			idx := bp.Target.MessageIndex
			if idx < 0 || idx >= len(chatIndexes) {
				return errors.Errorf("anthropic: prompt cache message target out of range: %d", idx)
			}
			pos := chatIndexes[idx]
			if pos < 0 {
				return errors.Errorf("anthropic: prompt cache target message[%d] has no chat position", idx)
			}
			content := params.Messages[pos].Content
			if len(content) == 0 {
				return errors.Errorf("anthropic: prompt cache target message[%d] has no content", idx)
			}
			cacheControlPtr := content[len(content)-1].GetCacheControl()
			if cacheControlPtr == nil {
				return errors.Errorf("anthropic: prompt cache unsupported for message[%d]", idx)
			}
			*cacheControlPtr = cacheControl

		default:
			return errors.Errorf("anthropic: unsupported prompt cache target kind: %q", bp.Target.Kind)
		}
	}

	return nil
}
