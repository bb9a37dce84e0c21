// Package llm defines the model-provider abstraction the agent loop
// streams against (spec.md §4.2). Providers are swappable per
// workload — chat, summarization, and title generation may each name a
// different model or even a different backing provider (spec.md §9
// supplemented feature: provider/workload split).
package llm

import (
	"context"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// Workload names which purpose a call serves, letting config bind
// distinct models to each without threading that choice through every
// call site.
type Workload string

const (
	WorkloadChat      Workload = "chat"
	WorkloadSummarize Workload = "summarize"
	WorkloadTitle     Workload = "title"
)

// ContentType tags one part of a Message or streamed Delta.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentReasoning  ContentType = "reasoning"
	ContentToolCall   ContentType = "tool_call"
	ContentToolResult ContentType = "tool_result"
)

// Content is one part of a conversation message, mirroring the
// teacher's model.Content shape.
type Content struct {
	Type ContentType

	Text string

	ToolCall   *domain.ToolCall
	ToolResult *ToolResultContent

	// ThoughtSignature is an opaque per-provider token that must be
	// round-tripped back on the next request for models (like Gemini)
	// that tie reasoning continuity to it.
	ThoughtSignature []byte
}

// ToolResultContent is the provider-facing shape of a tool result,
// distinct from domain.ToolResult (the persisted store record) because
// only a subset needs to reach the model.
type ToolResultContent struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is one turn of conversation handed to a Provider.
type Message struct {
	Role    domain.Role
	Content []Content
}

// ToolSpec describes one callable tool for the provider's function-
// calling declaration, independent of the tool registry's own
// execution-side Tool interface (internal/tools).
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any // JSON schema for the arguments object
}

// Provider is a swappable LLM backend (spec.md §9's "provider" concept).
type Provider interface {
	Name() string
	// Stream begins a streaming completion. Deltas arrive incrementally
	// through the returned Stream so the agent loop can segment them
	// into chat/reasoning SSE events as they arrive (spec.md §4.2
	// "Streaming segmentation") rather than waiting for the full
	// response.
	Stream(ctx context.Context, modelName, instructions string, messages []Message, tools []ToolSpec) (Stream, error)
}

// DeltaKind tags one increment yielded by a Stream.
type DeltaKind string

const (
	DeltaText           DeltaKind = "text"
	DeltaReasoning      DeltaKind = "reasoning"
	DeltaToolCallDelta  DeltaKind = "tool_call_delta"
	DeltaMessageFinished DeltaKind = "message_finished"
)

// ToolCallDelta is one partial or final fragment of a tool call as
// reconstructed by the agent loop (spec.md §4.2 "Tool-call
// reconstruction"): Name and ArgsFragment accumulate per Index/ID,
// with the final NameDelta for a given ID winning and ArgsFragment
// concatenated in arrival order before being parsed as JSON.
type ToolCallDelta struct {
	Index        int
	ID           string
	NameDelta    string
	ArgsFragment string
}

// Delta is one increment of a streaming completion.
type Delta struct {
	Kind             DeltaKind
	Text             string
	ToolCall         *ToolCallDelta
	ThoughtSignature []byte
}

// Stream is a live, cancellable model completion. Next blocks until the
// next Delta is available, returns ok=false once the stream is
// exhausted (after emitting a final DeltaMessageFinished), and surfaces
// any transport/provider error.
type Stream interface {
	Next() (Delta, bool, error)
	Close() error
}
