// Package gemini adapts Google's genai SDK to the llm.Provider
// interface, grounded on the teacher's pkg/model/gemini/gemini.go —
// same client wiring and content-conversion approach, reworked to
// stream deltas incrementally instead of buffering a FullMessage,
// since spec.md §4.2 requires per-chunk chat/reasoning SSE events
// rather than one aggregated response per turn.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
)

// Provider implements llm.Provider using the Google Gen AI SDK.
type Provider struct {
	client       *genai.Client
	chunkTimeout time.Duration
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Gemini provider bound to apiKey. chunkTimeout bounds how
// long a single Stream.Next() call may block waiting on the next chunk
// before the stream fails with a timeout error; zero disables the
// deadline.
func New(ctx context.Context, apiKey string, chunkTimeout time.Duration) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Provider{client: client, chunkTimeout: chunkTimeout}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Stream(ctx context.Context, modelName, instructions string, messages []llm.Message, tools []llm.ToolSpec) (llm.Stream, error) {
	slog.Debug("gemini stream", "model", modelName, "messages", len(messages), "tools", len(tools))

	var systemInstruction *genai.Content
	if instructions != "" {
		systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: instructions}}}
	}

	contents, err := toGenaiContents(messages)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Tools:             toGenaiTools(tools),
		SystemInstruction: systemInstruction,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	iter := p.client.Models.GenerateContentStream(streamCtx, modelName, contents, config)

	s := &stream{cancel: cancel, deltas: make(chan llm.Delta, 16), errCh: make(chan error, 1), chunkTimeout: p.chunkTimeout}
	go s.pump(iter)
	return s, nil
}

func toGenaiTools(tools []llm.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromMap(t.Schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// schemaFromMap converts a plain JSON-schema map (as produced by
// invopop/jsonschema for each tool's argument struct) into genai's
// typed Schema, since genai does not accept a raw map directly.
func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	var s genai.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	return &s
}

func toGenaiContents(messages []llm.Message) ([]*genai.Content, error) {
	var contents []*genai.Content
	toolNameByID := map[string]string{}

	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue // folded into SystemInstruction by the caller
		}

		var parts []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case llm.ContentText, llm.ContentReasoning:
				if c.Text == "" {
					continue
				}
				parts = append(parts, &genai.Part{Text: c.Text, ThoughtSignature: c.ThoughtSignature})
			case llm.ContentToolCall:
				if c.ToolCall == nil {
					continue
				}
				toolNameByID[c.ToolCall.ID] = c.ToolCall.Name
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: c.ToolCall.Name,
						Args: c.ToolCall.Args,
						ID:   c.ToolCall.ID,
					},
					ThoughtSignature: c.ThoughtSignature,
				})
			case llm.ContentToolResult:
				if c.ToolResult == nil {
					continue
				}
				name := toolNameByID[c.ToolResult.ToolCallID]
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						Name: name,
						ID:   c.ToolResult.ToolCallID,
						Response: map[string]any{
							"result":   c.ToolResult.Content,
							"is_error": c.ToolResult.IsError,
						},
					},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

// stream adapts genai's push-style iterator (an iter.Seq2 function) to
// llm.Stream's pull-style Next(), so the agent loop can read one delta
// at a time instead of blocking for the whole response.
type stream struct {
	cancel       context.CancelFunc
	deltas       chan llm.Delta
	errCh        chan error
	closed       bool
	chunkTimeout time.Duration
}

func (s *stream) pump(iter func(yield func(*genai.GenerateContentResponse, error) bool)) {
	defer close(s.deltas)
	toolIndex := map[string]int{}
	nextIndex := 0

	for resp, err := range iter {
		if err != nil {
			s.errCh <- err
			return
		}
		if resp == nil {
			continue
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.Text != "":
					kind := llm.DeltaText
					if part.Thought {
						kind = llm.DeltaReasoning
					}
					s.deltas <- llm.Delta{Kind: kind, Text: part.Text, ThoughtSignature: part.ThoughtSignature}
				case part.FunctionCall != nil:
					fc := part.FunctionCall
					id := fc.ID
					if id == "" {
						id = "call-" + uuid.New().String()
					}
					idx, ok := toolIndex[id]
					if !ok {
						idx = nextIndex
						nextIndex++
						toolIndex[id] = idx
					}
					argsJSON, _ := json.Marshal(fc.Args)
					s.deltas <- llm.Delta{
						Kind: llm.DeltaToolCallDelta,
						ToolCall: &llm.ToolCallDelta{
							Index:        idx,
							ID:           id,
							NameDelta:    fc.Name,
							ArgsFragment: string(argsJSON),
						},
						ThoughtSignature: part.ThoughtSignature,
					}
				}
			}
		}
	}
	s.deltas <- llm.Delta{Kind: llm.DeltaMessageFinished}
}

func (s *stream) Next() (llm.Delta, bool, error) {
	var timeoutCh <-chan time.Time
	if s.chunkTimeout > 0 {
		timer := time.NewTimer(s.chunkTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-s.errCh:
		return llm.Delta{}, false, err
	case d, ok := <-s.deltas:
		if !ok {
			return llm.Delta{}, false, nil
		}
		return d, true, nil
	case <-timeoutCh:
		s.cancel()
		return llm.Delta{}, false, fmt.Errorf("gemini stream: no chunk received within %s", s.chunkTimeout)
	}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
