package chat

import (
	"context"
	"fmt"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
)

// drainText runs a single-shot, non-tool completion against binding and
// returns its accumulated text. Summarization and title generation are
// both one-shot workloads (spec.md §4.2, §4.3) with no SSE events of
// their own, so unlike the agent loop's streamOnce there is nothing to
// segment or forward — every DeltaText fragment is just concatenated.
func drainText(ctx context.Context, binding ProviderBinding, instructions string, messages []llm.Message) (string, error) {
	stream, err := binding.Provider.Stream(ctx, binding.Model, instructions, messages, nil)
	if err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}
	defer stream.Close()

	var text string
	for {
		delta, ok, err := stream.Next()
		if err != nil {
			return "", fmt.Errorf("read stream: %w", err)
		}
		if !ok {
			break
		}
		if delta.Kind == llm.DeltaText {
			text += delta.Text
		}
	}
	return text, nil
}

// summarizerAdapter backs agent.Summarizer with the summarize workload.
type summarizerAdapter struct {
	binding ProviderBinding
}

const summarizeInstructions = `Summarize the conversation so far into a short, dense paragraph an assistant could use as its only memory of it. Preserve decisions made, open questions, and any facts the user stated. Omit pleasantries and tool-call mechanics.`

func (a *summarizerAdapter) Summarize(ctx context.Context, dialogID string, history []llm.Message) (string, error) {
	return drainText(ctx, a.binding, summarizeInstructions, history)
}

// summarizer returns an agent.Summarizer backed by the summarize
// workload, or nil if none is configured (disabling mid-turn history
// summarization entirely).
func (s *Service) summarizer() *summarizerAdapter {
	binding, ok := s.Providers[llm.WorkloadSummarize]
	if !ok {
		return nil
	}
	return &summarizerAdapter{binding: binding}
}

const titleInstructions = `Produce a short title (under 8 words, no trailing punctuation) for this conversation, based on what the user is trying to accomplish.`

// GenerateTitle implements tools.DialogTitler for the generate_dialog_title
// tool, using the title workload.
func (s *Service) GenerateTitle(ctx context.Context, dialogID string) (string, error) {
	binding, ok := s.Providers[llm.WorkloadTitle]
	if !ok {
		return "", fmt.Errorf("no title provider configured")
	}
	page, err := s.Messages.History(ctx, dialogID, 0, 0)
	if err != nil {
		return "", fmt.Errorf("load dialog history: %w", err)
	}
	history, err := historyToLLMMessages(ctx, page.Messages, s.ToolResults)
	if err != nil {
		return "", fmt.Errorf("convert dialog history: %w", err)
	}
	return drainText(ctx, binding, titleInstructions, history)
}
