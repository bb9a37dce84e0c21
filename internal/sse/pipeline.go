// Package sse implements the ordered, bookended SSE event pipeline
// described in spec.md §4.6. It is the Go-native, net/http-native
// replacement for the teacher's gorilla/websocket sync loop
// (pkg/server/websocket.go): instead of a writer goroutine polling a
// Subscribe() channel, a Writer here is handed directly to the agent
// loop as the sink it emits into, matching spec.md's "bounded channel
// from producer to consumer" design note.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
)

// shuttingDown is a process-wide flag flipped by the runtime on
// SIGINT/SIGTERM (spec.md §4.6 "Graceful shutdown").
var shuttingDown atomic.Bool

// SetShuttingDown flips the process-wide shutdown flag observed by every
// active stream.
func SetShuttingDown(v bool) { shuttingDown.Store(v) }

// IsShuttingDown reports the current value of the shutdown flag.
func IsShuttingDown() bool { return shuttingDown.Load() }

// bracket tracks the open/close state of a nested *_start/*_end pair so
// Writer can refuse to interleave brackets or double-close them.
type bracket struct {
	chatOpen      bool
	reasoningOpen bool
	summaryOpen   bool
}

// Writer emits well-formed SSE frames for a single chat stream and
// enforces the bracket/ordering invariants from spec.md §4.6 and §8
// property 2: chat_start/chat_end and reasoning_start/reasoning_end form
// properly nested, non-interleaving brackets; tool_call never appears
// inside an open chat bracket; an error is always followed by exactly
// one done; done is always last.
type Writer struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	dialogID string
	br       bracket
	errSent  bool
	doneSent bool
	logger   *slog.Logger
}

// NewWriter wraps w as an SSE frame writer for dialogID. It writes the
// standard SSE response headers immediately.
func NewWriter(w http.ResponseWriter, dialogID string, logger *slog.Logger) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apperr.New(apperr.Internal, "response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{w: w, flusher: flusher, dialogID: dialogID, logger: logger}, nil
}

func (wr *Writer) write(ev events.Event) error {
	ev.DialogID = wr.dialogID
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if _, err := fmt.Fprintf(wr.w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	wr.flusher.Flush()
	return nil
}

// User emits the user{...} event that opens a turn.
func (wr *Writer) User(content, checkpoint, session string) error {
	return wr.write(events.User(wr.dialogID, content, checkpoint, session))
}

// ChatStart opens the chat bracket. Returns an error if the chat bracket
// is already open; an open reasoning or summary bracket is not checked.
func (wr *Writer) ChatStart() error {
	wr.mu.Lock()
	if wr.br.chatOpen {
		wr.mu.Unlock()
		return apperr.New(apperr.Internal, "chat_start emitted while chat bracket already open")
	}
	wr.br.chatOpen = true
	wr.mu.Unlock()
	return wr.write(events.ChatStart(wr.dialogID))
}

// Chat emits a text chunk; must be called between ChatStart and ChatEnd.
func (wr *Writer) Chat(content string) error {
	return wr.write(events.Chat(wr.dialogID, content))
}

// ChatEnd closes the chat bracket.
func (wr *Writer) ChatEnd() error {
	wr.mu.Lock()
	wr.br.chatOpen = false
	wr.mu.Unlock()
	return wr.write(events.ChatEnd(wr.dialogID))
}

// ReasoningStart opens the reasoning bracket.
func (wr *Writer) ReasoningStart() error {
	wr.mu.Lock()
	wr.br.reasoningOpen = true
	wr.mu.Unlock()
	return wr.write(events.ReasoningStart(wr.dialogID))
}

func (wr *Writer) Reasoning(content string) error {
	return wr.write(events.Reasoning(wr.dialogID, content))
}

func (wr *Writer) ReasoningEnd() error {
	wr.mu.Lock()
	wr.br.reasoningOpen = false
	wr.mu.Unlock()
	return wr.write(events.ReasoningEnd(wr.dialogID))
}

func (wr *Writer) SummaryStart() error {
	wr.mu.Lock()
	wr.br.summaryOpen = true
	wr.mu.Unlock()
	return wr.write(events.SummaryStart(wr.dialogID))
}

func (wr *Writer) SummaryEnd() error {
	wr.mu.Lock()
	wr.br.summaryOpen = false
	wr.mu.Unlock()
	return wr.write(events.SummaryEnd(wr.dialogID))
}

// ToolCall emits a tool_call event. Per spec.md §4.2, this must only be
// called after any open chat bracket has been closed.
func (wr *Writer) ToolCall(name string, args map[string]any) error {
	wr.mu.Lock()
	open := wr.br.chatOpen
	wr.mu.Unlock()
	if open {
		return apperr.New(apperr.Internal, "tool_call emitted inside an open chat bracket")
	}
	return wr.write(events.ToolCall(wr.dialogID, name, args))
}

// FileEdit emits a file_edit notification.
func (wr *Writer) FileEdit(file, diff, checkpoint string) error {
	return wr.write(events.FileEdit(wr.dialogID, file, diff, checkpoint))
}

// Error emits the error event. It is a no-op (besides logging) if Done
// has already been sent, to avoid "generator ignored exit" class bugs.
func (wr *Writer) Error(code, message string) error {
	wr.mu.Lock()
	if wr.doneSent {
		wr.mu.Unlock()
		wr.logger.Warn("sse: error emitted after done, dropping", "dialog_id", wr.dialogID)
		return nil
	}
	wr.errSent = true
	wr.mu.Unlock()
	return wr.write(events.ErrorEvent(wr.dialogID, code, message))
}

// Done emits exactly one done event; subsequent calls are no-ops.
func (wr *Writer) Done() error {
	wr.mu.Lock()
	if wr.doneSent {
		wr.mu.Unlock()
		return nil
	}
	wr.doneSent = true
	wr.mu.Unlock()
	return wr.write(events.Done(wr.dialogID))
}

// CloseBracketsOnCancel force-closes any brackets still open, used on the
// cancellation path before emitting error+done (spec.md §4.2 "Cancellation").
func (wr *Writer) CloseBracketsOnCancel() {
	wr.mu.Lock()
	chatOpen, reasoningOpen, summaryOpen := wr.br.chatOpen, wr.br.reasoningOpen, wr.br.summaryOpen
	wr.mu.Unlock()
	if chatOpen {
		_ = wr.ChatEnd()
	}
	if reasoningOpen {
		_ = wr.ReasoningEnd()
	}
	if summaryOpen {
		_ = wr.SummaryEnd()
	}
}

// Finish is the standard terminal sequence for a turn: on a non-nil err
// it force-closes brackets, emits error then done; otherwise it just
// emits done (unless already sent).
func (wr *Writer) Finish(ctx context.Context, err error) {
	if shuttingDown.Load() {
		wr.CloseBracketsOnCancel()
		_ = wr.Error("shutdown", "server is shutting down")
		_ = wr.Done()
		return
	}
	if err != nil {
		wr.CloseBracketsOnCancel()
		code := string(apperr.KindOf(err))
		if ctx.Err() != nil {
			code = "cancelled"
		}
		_ = wr.Error(code, err.Error())
	}
	_ = wr.Done()
}
