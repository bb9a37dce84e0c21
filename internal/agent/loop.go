// Package agent implements the agent loop from spec.md §4.2: stream the
// model's response, segment it into chat/reasoning SSE events,
// reconstruct tool-call deltas, dispatch tools through the registry,
// and repeat until the model stops requesting tools or the iteration
// budget is exhausted.
//
// Grounded on the teacher's pkg/controller/controller.go — its
// step/callModel/executeTool split drives the same call-model,
// dispatch-tool, call-model-again cycle — generalized from operative's
// discrete stream-entry-triggered steps into one continuous streaming
// loop, since spec.md requires per-chunk chat/reasoning SSE events
// rather than one buffered response appended per turn.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/rag"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/tools"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/versioning"
)

// MaxIterations bounds the tool-call loop per turn (spec.md §4.2's
// N_MAX); exceeding it force-exits the turn with tool_loop_exceeded.
const MaxIterations = 25

// ErrToolLoopExceeded is returned by Run when MaxIterations is hit.
var ErrToolLoopExceeded = fmt.Errorf("tool_loop_exceeded")

// Summarizer produces a summary of a dialog's earlier turns using the
// summarization workload (spec.md §4.2 "History summarization"),
// invoked when the prepared prompt's estimated token count exceeds
// Loop.TokenThreshold.
type Summarizer interface {
	Summarize(ctx context.Context, dialogID string, history []llm.Message) (string, error)
}

// Loop drives one dialog turn: streaming the model, segmenting events,
// dispatching tools, and persisting the resulting messages and
// reasoning/tool-result records.
type Loop struct {
	Provider    llm.Provider
	Tools       *tools.Registry
	Messages    store.MessageStore
	Reasoning   store.ReasoningStore
	ToolResults store.ToolResultStore
	Summarizer  Summarizer

	// TokenThreshold triggers summarization before a call once the
	// estimated prompt token count exceeds it; zero disables
	// summarization entirely.
	TokenThreshold int
	// EstimateTokens estimates a prompt's token count. If nil, a plain
	// total-character-count/4 heuristic is used — no tokenizer library
	// for any specific model vocabulary appears anywhere in the example
	// corpus, and a heuristic is sufficient to gate an optional
	// compaction pass rather than to bill usage precisely.
	EstimateTokens func(messages []llm.Message, instructions string) int
}

// Request is one turn's inputs, assembled by the chat service's context
// builder before the loop starts.
type Request struct {
	DialogID     string
	ModelName    string
	Instructions string
	// History is the prepared prompt: persisted summary (if any)
	// followed by the recent message window, already converted to
	// llm.Message, ending with the just-appended user turn.
	History     []llm.Message
	ProjectRoot string
	Versioning  *versioning.Tracker
	RAG         rag.Syncer
	Emit        func(events.Event)
	// Titler backs the generate_dialog_title tool; nil disables it.
	Titler tools.DialogTitler

	// SummaryDialogHistory is the full unsummarized history handed to
	// Summarizer, distinct from History (which may already have had a
	// prefix replaced by a persisted summary on a prior turn).
	SummaryDialogHistory []llm.Message
	// OnSummary persists the produced summary text into dialog metadata
	// so subsequent turns can reuse it instead of resummarizing.
	OnSummary func(summary string) error
}

// Run drives the loop until the model stops calling tools, the
// iteration budget is exhausted, or ctx is cancelled. It returns nil on
// a clean turn completion; callers translate a non-nil error into the
// SSE error{...} + done sequence (spec.md §4.6).
func (l *Loop) Run(ctx context.Context, req Request) error {
	toolCtx := tools.Context{
		Context:     ctx,
		ProjectRoot: req.ProjectRoot,
		DialogID:    req.DialogID,
		Versioning:  req.Versioning,
		RAG:         req.RAG,
		Emit:        req.Emit,
		Titler:      req.Titler,
	}
	if lookup, ok := l.ToolResults.(tools.ToolResultLookup); ok {
		toolCtx.ToolResults = lookup
	}

	messages := append([]llm.Message(nil), req.History...)

	for iteration := 0; ; iteration++ {
		if iteration >= MaxIterations {
			return ErrToolLoopExceeded
		}

		if err := l.maybeSummarize(ctx, req, &messages); err != nil {
			return err
		}

		segment, err := l.streamOnce(ctx, req, messages)
		if err != nil {
			if persistErr := l.persistPartialSegment(ctx, req, segment); persistErr != nil {
				return fmt.Errorf("persist partial assistant message: %w (stream error: %v)", persistErr, err)
			}
			return err
		}

		assistantMsg := &domain.Message{
			DialogID:  req.DialogID,
			Type:      domain.RoleAssistant,
			Content:   segment.text,
			ToolCalls: segment.toolCalls(),
		}
		if err := l.Messages.Append(ctx, assistantMsg); err != nil {
			return fmt.Errorf("persist assistant message: %w", err)
		}
		if segment.reasoning != "" && l.Reasoning != nil {
			block := &domain.ReasoningBlock{DialogID: req.DialogID, Content: segment.reasoning}
			if err := l.Reasoning.SaveReasoning(ctx, block, assistantMsg.Idx); err != nil {
				return fmt.Errorf("persist reasoning: %w", err)
			}
		}

		messages = append(messages, assistantLLMMessage(segment))

		if len(segment.calls) == 0 {
			return nil
		}

		currentTurnIDs := make(map[string]bool, len(segment.calls))
		for _, tc := range segment.calls {
			currentTurnIDs[tc.id] = true
		}
		toolCtx.CurrentTurnCallIDs = currentTurnIDs

		if err := l.executeToolCalls(ctx, req, &toolCtx, segment, &messages); err != nil {
			return err
		}
	}
}

// persistPartialSegment saves whatever text/reasoning a cancelled or
// failed stream produced before the error surfaced, per spec.md §4.1
// ("the partial assistant message is persisted up to the last completed
// chunk") and §7 ("if any partial assistant content was produced,
// persist it, then emit error + done"). Tool calls are deliberately not
// attached to this message: a call reconstructed from a truncated
// stream was never dispatched, so recording it would misrepresent what
// actually happened. A nil or entirely empty segment is a no-op.
func (l *Loop) persistPartialSegment(ctx context.Context, req Request, segment *messageSegment) error {
	if segment == nil || (segment.text == "" && segment.reasoning == "") {
		return nil
	}
	assistantMsg := &domain.Message{
		DialogID: req.DialogID,
		Type:     domain.RoleAssistant,
		Content:  segment.text,
	}
	if err := l.Messages.Append(ctx, assistantMsg); err != nil {
		return err
	}
	if segment.reasoning != "" && l.Reasoning != nil {
		block := &domain.ReasoningBlock{DialogID: req.DialogID, Content: segment.reasoning}
		if err := l.Reasoning.SaveReasoning(ctx, block, assistantMsg.Idx); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOutcome is one call's dispatch result, collected by index so
// dispatchedOutcomes can be replayed in call order regardless of which
// goroutine finishes first.
type dispatchOutcome struct {
	domainResult domain.ToolResult
	summary      string
}

// executeToolCalls emits tool_call for every reconstructed call in
// segment (in call order, so observers see calls announced in the
// order the model produced them), then dispatches them concurrently —
// spec.md §4.3 point 1's "parallel-dispatch calls whose tool declares
// itself independent (default), serially dispatch calls against
// mutating tools on the same path (contention resolved by path-lock)".
// Mutating calls against the same path still serialize: Registry.
// Dispatch's path-lock blocks inside the goroutine, it just no longer
// blocks the other calls' goroutines from starting. Once every call has
// finished, results are persisted and appended to messages in the
// original call order.
func (l *Loop) executeToolCalls(ctx context.Context, req Request, toolCtx *tools.Context, segment *messageSegment, messages *[]llm.Message) error {
	outcomes := make([]dispatchOutcome, len(segment.calls))

	var wg sync.WaitGroup
	for i, call := range segment.calls {
		args := call.args
		if args == nil {
			args = map[string]any{}
		}
		req.Emit(events.ToolCall(req.DialogID, call.name, args))

		wg.Add(1)
		go func(i int, call reconstructedCall, args map[string]any) {
			defer wg.Done()
			var result tools.Result
			if call.parseErr != "" {
				result = tools.Result{
					Status: "tool_error",
					Error:  &tools.ToolError{Code: domain.ToolErrParse, Message: call.parseErr},
				}
			} else {
				result = l.Tools.Dispatch(*toolCtx, domain.ToolCall{ID: call.id, Name: call.name, Args: args})
			}
			outcomes[i] = dispatchOutcome{
				domainResult: toDomainToolResult(call.id, call.name, result),
				summary:      resultSummary(result),
			}
		}(i, call, args)
	}
	wg.Wait()

	for i, call := range segment.calls {
		outcome := outcomes[i]
		domainResult := outcome.domainResult

		if l.ToolResults != nil {
			if err := l.ToolResults.SaveToolResult(ctx, req.DialogID, domainResult, outcome.summary); err != nil {
				return fmt.Errorf("persist tool result: %w", err)
			}
		}

		ref := &domain.ToolResultRef{
			ToolCallID: call.id,
			ToolName:   call.name,
			Status:     domainResult.Status,
			Metadata: domain.ToolResultMeta{
				SizeBytes:        domainResult.SizeBytes,
				Summary:          outcome.summary,
				TruncatedPreview: tools.MarshalSummaryPreview(previewText(domainResult)),
			},
			ResultRef: call.id,
		}
		toolMsg := &domain.Message{DialogID: req.DialogID, Type: domain.RoleTool, ToolResult: ref}
		if err := l.Messages.Append(ctx, toolMsg); err != nil {
			return fmt.Errorf("persist tool message: %w", err)
		}

		*messages = append(*messages, toolResultLLMMessage(domainResult))
	}
	return nil
}
