// Package chat implements the chat service ingress from spec.md §4.1:
// accept a chat request, materialize the user turn under a pre-message
// checkpoint, run RAG's FullSync, assemble the LLM prompt, and drive the
// agent loop, forwarding its event stream to the caller.
//
// Grounded on the teacher's pkg/controller/controller.go step function
// as the outer dispatch (here narrowed to always "user sent a message"
// since spec.md's HTTP surface has only one chat entry point, not
// operative's poll-the-stream design) plus buildInstructions for the
// three-source system-prompt assembly pattern, generalized to
// AgentSmithy's OS/shell/IDE + code-context sections (the persisted
// summary travels as a leading history message, not in the prompt).
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/agent"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/rag"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/sse"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/tools"
)

// ProviderBinding names the model a workload runs against.
type ProviderBinding struct {
	Provider llm.Provider
	Model    string
}

// Environment describes the host running the agent, folded into the
// system prompt (spec.md §4.1: "includes OS/shell/IDE").
type Environment struct {
	OS    string
	Shell string
	IDE   string
}

// Service is the chat ingress: one instance serves every dialog in a
// single project.
type Service struct {
	ProjectRoot string
	Env         Environment

	Dialogs     store.DialogIndex
	Messages    store.MessageStore
	Reasoning   store.ReasoningStore
	ToolResults store.ToolResultStore
	FileEdits   store.FileEditStore

	RAG      rag.Syncer
	Tools    *tools.Registry
	Trackers *TrackerCache

	// Broker, if set, additionally fans every emitted event out to the
	// dev-console watch socket (internal/httpapi's websocket endpoint);
	// nil disables that secondary channel without affecting the primary
	// SSE stream.
	Broker *events.Broker

	Providers map[llm.Workload]ProviderBinding
	// TokenThreshold gates history summarization (spec.md §4.2); zero
	// disables it.
	TokenThreshold int

	dialogLocksMu sync.Mutex
	dialogLocks   map[string]*sync.Mutex
}

// NewService wires a Service with its own dialog-lock table.
func NewService() *Service {
	return &Service{dialogLocks: map[string]*sync.Mutex{}}
}

// Request is one incoming chat call (spec.md §4.1's
// {messages[], context, stream, dialog_id?}, narrowed to the single new
// user message this turn appends — prior turns are already persisted).
type Request struct {
	DialogID    string // empty selects/creates the current dialog
	Content     string
	CodeContext string // pre-formatted code context blob, if any
}

// dialogLock returns (creating if absent) the mutex serializing turns
// for dialogID (spec.md §4.1 "Acquire a per-dialog sequential lock").
func (s *Service) dialogLock(dialogID string) *sync.Mutex {
	s.dialogLocksMu.Lock()
	defer s.dialogLocksMu.Unlock()
	m, ok := s.dialogLocks[dialogID]
	if !ok {
		m = &sync.Mutex{}
		s.dialogLocks[dialogID] = m
	}
	return m
}

// Chat drives one full turn, writing every SSE frame to wr, and returns
// only once the turn (or its error path) has completed.
func (s *Service) Chat(ctx context.Context, wr *sse.Writer, req Request) error {
	dialogID, err := s.resolveDialogID(ctx, req.DialogID)
	if err != nil {
		wr.Finish(ctx, err)
		return err
	}

	lock := s.dialogLock(dialogID)
	if !lock.TryLock() {
		err := apperr.New(apperr.Conflict, "dialog_busy")
		wr.Finish(ctx, err)
		return err
	}
	defer lock.Unlock()

	if err := s.runTurn(ctx, wr, dialogID, req); err != nil {
		wr.Finish(ctx, err)
		return err
	}
	wr.Finish(ctx, nil)
	return nil
}

func (s *Service) resolveDialogID(ctx context.Context, dialogID string) (string, error) {
	if dialogID != "" {
		return dialogID, nil
	}
	current, err := s.Dialogs.CurrentDialogID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve current dialog: %w", err)
	}
	if current != "" {
		return current, nil
	}
	d := &domain.Dialog{ID: newDialogID()}
	if err := s.Dialogs.Create(ctx, d); err != nil {
		return "", fmt.Errorf("create default dialog: %w", err)
	}
	return d.ID, nil
}

func (s *Service) runTurn(ctx context.Context, wr *sse.Writer, dialogID string, req Request) error {
	tracker, err := s.Trackers.Get(dialogID)
	if err != nil {
		return fmt.Errorf("open checkpoint tracker: %w", err)
	}

	checkpointMsg := "Before user message: " + truncate(req.Content, 50)
	checkpointID, err := tracker.CreateCheckpoint(checkpointMsg)
	if err != nil {
		return fmt.Errorf("create pre-message checkpoint: %w", err)
	}
	session := tracker.ActiveSession().SessionName

	if err := wr.User(req.Content, checkpointID, session); err != nil {
		return fmt.Errorf("emit user event: %w", err)
	}
	userMsg := &domain.Message{
		DialogID:     dialogID,
		Type:         domain.RoleUser,
		Content:      req.Content,
		CheckpointID: checkpointID,
		SessionName:  session,
	}
	if err := s.Messages.Append(ctx, userMsg); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	if s.RAG != nil {
		if err := s.RAG.FullSync(ctx); err != nil {
			return fmt.Errorf("rag full sync: %w", err)
		}
	}

	dialog, found, err := s.Dialogs.Get(ctx, dialogID)
	if err != nil {
		return fmt.Errorf("load dialog: %w", err)
	}
	if !found {
		return apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", dialogID))
	}

	page, err := s.Messages.History(ctx, dialogID, 0, 0)
	if err != nil {
		return fmt.Errorf("load dialog history: %w", err)
	}
	// Drop any message already folded into the persisted summary
	// (spec.md §4.2: "substituted for the summarized prefix on
	// subsequent turns").
	unsummarized := page.Messages
	for i, m := range page.Messages {
		if m.Idx > dialog.SummarizedUpToIdx {
			unsummarized = page.Messages[i:]
			break
		}
	}
	history, err := historyToLLMMessages(ctx, unsummarized, s.ToolResults)
	if err != nil {
		return fmt.Errorf("convert dialog history: %w", err)
	}
	if dialog.Summary != "" {
		history = append([]llm.Message{{
			Role:    domain.RoleUser,
			Content: []llm.Content{{Type: llm.ContentText, Text: "Summary of earlier conversation:\n" + dialog.Summary}},
		}}, history...)
	}

	instructions := s.buildInstructions(req.CodeContext)

	binding, ok := s.Providers[llm.WorkloadChat]
	if !ok {
		return apperr.New(apperr.Internal, "no chat provider configured")
	}

	loop := &agent.Loop{
		Provider:       binding.Provider,
		Tools:          s.Tools,
		Messages:       s.Messages,
		Reasoning:      s.Reasoning,
		ToolResults:    s.ToolResults,
		TokenThreshold: s.TokenThreshold,
	}
	// Assigned only when non-nil: a nil *summarizerAdapter boxed into
	// the Summarizer interface would not compare equal to a plain nil,
	// defeating agent.Loop's "no summarizer configured" check.
	if sum := s.summarizer(); sum != nil {
		loop.Summarizer = sum
	}

	lastIdx := 0
	if len(page.Messages) > 0 {
		lastIdx = page.Messages[len(page.Messages)-1].Idx
	}
	agentReq := agent.Request{
		DialogID:     dialogID,
		ModelName:    binding.Model,
		Instructions: instructions,
		History:      history,
		ProjectRoot:  s.ProjectRoot,
		Versioning:   tracker,
		RAG:          s.RAG,
		Emit:         s.emitAdapter(wr, dialogID),
		Titler:       s,
		OnSummary: func(summary string) error {
			dialog.Summary = summary
			dialog.SummarizedUpToIdx = lastIdx
			return s.Dialogs.Update(ctx, &dialog)
		},
	}

	return loop.Run(ctx, agentReq)
}

// emitAdapter routes events.Event values produced by the agent loop
// through sse.Writer's typed, bracket-safe methods, and additionally
// records file_edit events into the file-edit audit trail (spec.md
// §4.4's staged-file bookkeeping is done by the Tracker; the durable
// per-dialog history of those edits lives in store.FileEditStore).
func (s *Service) emitAdapter(wr *sse.Writer, dialogID string) func(events.Event) {
	return func(ev events.Event) {
		if s.Broker != nil {
			s.Broker.Publish(ev)
		}
		switch ev.Type {
		case events.TypeChatStart:
			_ = wr.ChatStart()
		case events.TypeChat:
			_ = wr.Chat(ev.Content)
		case events.TypeChatEnd:
			_ = wr.ChatEnd()
		case events.TypeReasoningStart:
			_ = wr.ReasoningStart()
		case events.TypeReasoning:
			_ = wr.Reasoning(ev.Content)
		case events.TypeReasoningEnd:
			_ = wr.ReasoningEnd()
		case events.TypeSummaryStart:
			_ = wr.SummaryStart()
		case events.TypeSummaryEnd:
			_ = wr.SummaryEnd()
		case events.TypeToolCall:
			_ = wr.ToolCall(ev.Name, ev.Args)
		case events.TypeFileEdit:
			_ = wr.FileEdit(ev.File, ev.Diff, ev.Checkpoint)
			if s.FileEdits != nil {
				_ = s.FileEdits.Record(context.Background(), &domain.FileEditRecord{
					DialogID:     dialogID,
					FilePath:     ev.File,
					Diff:         ev.Diff,
					CheckpointID: ev.Checkpoint,
				})
			}
		}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newDialogID() string {
	return "dlg-" + uuid.New().String()
}
