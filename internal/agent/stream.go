package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
)

// pendingCall accumulates one tool call's streamed deltas by ID
// (spec.md §4.2 "Tool-call reconstruction"): name is monotonic (a later
// non-empty NameDelta wins), argsJSON is a plain string concatenation
// of every ArgsFragment in arrival order, parsed only once the message
// finishes.
type pendingCall struct {
	index    int
	id       string
	name     string
	argsJSON string
}

// reconstructedCall is one fully-reconstructed tool call, either ready
// to dispatch (args parsed) or carrying a parse error to synthesize a
// tool_error result without invoking the tool.
type reconstructedCall struct {
	id       string
	name     string
	args     map[string]any
	parseErr string
}

// messageSegment is everything accumulated while streaming one model
// turn, ready to persist and to feed the next request.
type messageSegment struct {
	text      string
	reasoning string
	calls     []reconstructedCall
}

func (s *messageSegment) toolCalls() []domain.ToolCall {
	if len(s.calls) == 0 {
		return nil
	}
	out := make([]domain.ToolCall, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, domain.ToolCall{ID: c.id, Name: c.name, Args: c.args})
	}
	return out
}

// streamOnce drives a single model call to completion, emitting
// chat_start/chat/chat_end and reasoning_start/reasoning/reasoning_end
// as chunks arrive (spec.md §4.2 "Streaming segmentation"): chat_start
// fires on the first non-reasoning text chunk, chat_end before any tool
// call or at end of turn; reasoning brackets are independent. tool_call
// events themselves are emitted later, at the start of execution, not
// here.
func (l *Loop) streamOnce(ctx context.Context, req Request, messages []llm.Message) (*messageSegment, error) {
	stream, err := l.Provider.Stream(ctx, req.ModelName, req.Instructions, messages, l.toolSpecs())
	if err != nil {
		return nil, fmt.Errorf("start model stream: %w", err)
	}
	defer stream.Close()

	seg := &messageSegment{}
	pending := map[string]*pendingCall{}
	order := []string{}
	chatOpen := false
	reasoningOpen := false

	closeBrackets := func() {
		if chatOpen {
			req.Emit(events.ChatEnd(req.DialogID))
			chatOpen = false
		}
		if reasoningOpen {
			req.Emit(events.ReasoningEnd(req.DialogID))
			reasoningOpen = false
		}
	}

	for {
		select {
		case <-ctx.Done():
			closeBrackets()
			return seg, ctx.Err()
		default:
		}

		delta, ok, err := stream.Next()
		if err != nil {
			closeBrackets()
			return seg, fmt.Errorf("model stream: %w", err)
		}
		if !ok {
			closeBrackets()
			break
		}

		switch delta.Kind {
		case llm.DeltaReasoning:
			if !reasoningOpen {
				req.Emit(events.ReasoningStart(req.DialogID))
				reasoningOpen = true
			}
			seg.reasoning += delta.Text
			req.Emit(events.Reasoning(req.DialogID, delta.Text))

		case llm.DeltaText:
			if reasoningOpen {
				req.Emit(events.ReasoningEnd(req.DialogID))
				reasoningOpen = false
			}
			if !chatOpen {
				req.Emit(events.ChatStart(req.DialogID))
				chatOpen = true
			}
			seg.text += delta.Text
			req.Emit(events.Chat(req.DialogID, delta.Text))

		case llm.DeltaToolCallDelta:
			td := delta.ToolCall
			if td == nil {
				continue
			}
			key := td.ID
			if key == "" {
				key = fmt.Sprintf("idx-%d", td.Index)
			}
			pc, seen := pending[key]
			if !seen {
				pc = &pendingCall{index: td.Index, id: td.ID}
				pending[key] = pc
				order = append(order, key)
			}
			if td.NameDelta != "" {
				pc.name = td.NameDelta
			}
			if td.ID != "" {
				pc.id = td.ID
			}
			pc.argsJSON += td.ArgsFragment

		case llm.DeltaMessageFinished:
			closeBrackets()
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return pending[order[i]].index < pending[order[j]].index })
	for _, key := range order {
		pc := pending[key]
		seg.calls = append(seg.calls, reconstructPendingCall(pc))
	}

	return seg, nil
}

func reconstructPendingCall(pc *pendingCall) reconstructedCall {
	id := pc.id
	if id == "" {
		id = fmt.Sprintf("call-%d", pc.index)
	}
	rc := reconstructedCall{id: id, name: pc.name}
	if pc.argsJSON == "" {
		rc.args = map[string]any{}
		return rc
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(pc.argsJSON), &args); err != nil {
		rc.parseErr = fmt.Sprintf("malformed tool call arguments: %v", err)
		return rc
	}
	rc.args = args
	return rc
}

func (l *Loop) toolSpecs() []llm.ToolSpec {
	if l.Tools == nil {
		return nil
	}
	lite := l.Tools.Specs()
	specs := make([]llm.ToolSpec, 0, len(lite))
	for _, s := range lite {
		specs = append(specs, llm.ToolSpec{Name: s.Name, Schema: s.Schema})
	}
	return specs
}
