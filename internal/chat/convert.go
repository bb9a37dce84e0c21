package chat

import (
	"context"
	"fmt"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store"
)

// historyToLLMMessages converts a dialog's persisted message log back
// into the provider-facing shape the agent loop streams against,
// rehydrating each tool message's full result body from the
// out-of-band tool-result store (spec.md §4.3 point 4: message history
// keeps only a lazy reference).
func historyToLLMMessages(ctx context.Context, messages []domain.Message, toolResults store.ToolResultStore) ([]llm.Message, error) {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Type {
		case domain.RoleUser:
			out = append(out, llm.Message{Role: domain.RoleUser, Content: []llm.Content{{Type: llm.ContentText, Text: m.Content}}})

		case domain.RoleAssistant:
			msg := llm.Message{Role: domain.RoleAssistant}
			if m.Content != "" {
				msg.Content = append(msg.Content, llm.Content{Type: llm.ContentText, Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				tc := tc
				msg.Content = append(msg.Content, llm.Content{Type: llm.ContentToolCall, ToolCall: &tc})
			}
			if len(msg.Content) > 0 {
				out = append(out, msg)
			}

		case domain.RoleTool:
			if m.ToolResult == nil {
				continue
			}
			content, isErr := "", m.ToolResult.Status != "ok"
			if toolResults != nil {
				full, found, err := toolResults.GetToolResult(ctx, m.DialogID, m.ToolResult.ToolCallID)
				if err != nil {
					return nil, fmt.Errorf("load tool result %s: %w", m.ToolResult.ToolCallID, err)
				}
				if found {
					content = fmt.Sprintf("%v", full.Body)
				}
			}
			if content == "" {
				content = m.ToolResult.Metadata.Summary
			}
			out = append(out, llm.Message{
				Role: domain.RoleTool,
				Content: []llm.Content{{
					Type: llm.ContentToolResult,
					ToolResult: &llm.ToolResultContent{
						ToolCallID: m.ToolResult.ToolCallID,
						Content:    content,
						IsError:    isErr,
					},
				}},
			})
		}
	}
	return out, nil
}
