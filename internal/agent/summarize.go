package agent

import (
	"context"
	"fmt"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
)

// maybeSummarize implements spec.md §4.2's "History summarization": if
// the estimated prompt token count exceeds Loop.TokenThreshold, invoke
// the summarizer (bracketed by summary_start/summary_end), then splice
// the produced summary in place of the summarized prefix of messages.
//
// The replacement is conservative: everything except the trailing user
// turn is folded into one user-role summary message, matching spec's
// "substituted for the summarized prefix on subsequent turns" — the
// chat service is responsible for not re-summarizing what a prior turn
// already persisted, by passing an already-trimmed req.History when a
// persisted summary exists.
func (l *Loop) maybeSummarize(ctx context.Context, req Request, messages *[]llm.Message) error {
	if l.Summarizer == nil || l.TokenThreshold <= 0 {
		return nil
	}
	if l.estimateTokens(*messages, req.Instructions) <= l.TokenThreshold {
		return nil
	}
	if len(*messages) < 2 {
		return nil // nothing worth summarizing
	}

	req.Emit(events.SummaryStart(req.DialogID))
	source := req.SummaryDialogHistory
	if source == nil {
		source = *messages
	}
	summary, err := l.Summarizer.Summarize(ctx, req.DialogID, source)
	req.Emit(events.SummaryEnd(req.DialogID))
	if err != nil {
		return fmt.Errorf("summarize dialog history: %w", err)
	}

	if req.OnSummary != nil {
		if err := req.OnSummary(summary); err != nil {
			return fmt.Errorf("persist dialog summary: %w", err)
		}
	}

	// RoleUser, not RoleSystem: the gemini provider folds RoleSystem
	// messages into the top-level system instruction and drops them
	// from the conversation turns, which would silently discard the
	// summary instead of presenting it as prior context.
	last := (*messages)[len(*messages)-1]
	*messages = []llm.Message{
		{Role: domain.RoleUser, Content: []llm.Content{{Type: llm.ContentText, Text: "Summary of earlier conversation:\n" + summary}}},
		last,
	}
	return nil
}

func (l *Loop) estimateTokens(messages []llm.Message, instructions string) int {
	if l.EstimateTokens != nil {
		return l.EstimateTokens(messages, instructions)
	}
	chars := len(instructions)
	for _, m := range messages {
		for _, c := range m.Content {
			chars += len(c.Text)
			if c.ToolResult != nil {
				chars += len(c.ToolResult.Content)
			}
		}
	}
	return chars / 4
}
