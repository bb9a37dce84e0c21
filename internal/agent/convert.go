package agent

import (
	"encoding/json"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/tools"
)

// assistantLLMMessage converts one finished segment into the
// provider-facing message appended to the running prompt for the next
// iteration of the loop.
func assistantLLMMessage(seg *messageSegment) llm.Message {
	msg := llm.Message{Role: domain.RoleAssistant}
	if seg.text != "" {
		msg.Content = append(msg.Content, llm.Content{Type: llm.ContentText, Text: seg.text})
	}
	for _, c := range seg.calls {
		if c.parseErr != "" {
			continue // never presented back to the model as a real call
		}
		msg.Content = append(msg.Content, llm.Content{
			Type:     llm.ContentToolCall,
			ToolCall: &domain.ToolCall{ID: c.id, Name: c.name, Args: c.args},
		})
	}
	return msg
}

// toolResultLLMMessage converts a persisted tool result into the
// provider-facing tool-role message fed back on the next iteration.
func toolResultLLMMessage(result domain.ToolResult) llm.Message {
	body, _ := json.Marshal(result.Body)
	return llm.Message{
		Role: domain.RoleTool,
		Content: []llm.Content{{
			Type: llm.ContentToolResult,
			ToolResult: &llm.ToolResultContent{
				ToolCallID: result.ToolCallID,
				Content:    string(body),
				IsError:    result.Status != "ok",
			},
		}},
	}
}

// toDomainToolResult adapts a tools.Result (the tool-package's
// dispatch-time shape) into domain.ToolResult (the persisted-store
// shape), folding a tool_error into the same Body/Status envelope so
// the tool-result store has one uniform record per call.
func toDomainToolResult(callID, toolName string, result tools.Result) domain.ToolResult {
	dr := domain.ToolResult{ToolCallID: callID, ToolName: toolName, Status: result.Status}
	switch {
	case result.Error != nil:
		dr.Status = "tool_error"
		dr.Body = map[string]any{
			"type":       "tool_error",
			"name":       toolName,
			"code":       string(result.Error.Code),
			"error":      result.Error.Message,
			"error_type": result.Error.ErrorType,
		}
	case result.Body != nil:
		dr.Status = "ok"
		dr.Body = result.Body
	default:
		dr.Body = map[string]any{}
	}
	b, _ := json.Marshal(dr.Body)
	dr.SizeBytes = len(b)
	return dr
}

func resultSummary(result tools.Result) string {
	if result.Summary != "" {
		return result.Summary
	}
	if result.Error != nil {
		return result.Error.Message
	}
	return ""
}

// previewText renders the body used for the ≤500-char, whole-line
// truncated_preview kept inline in message history (spec.md §4.3
// point 4).
func previewText(result domain.ToolResult) string {
	b, err := json.MarshalIndent(result.Body, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
