package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/chat"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/sse"
)

// chatMessage is the wire shape of one entry in the request's messages
// array (spec.md §6: "{messages:[{role,content}], ...}"). Prior turns
// are already persisted by the time a new request arrives, so only the
// newest user message is actually consumed — see handleChat and
// lastUserContent.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// codeFile is one entry of context.current_file / context.open_files.
type codeFile struct {
	Path      string  `json:"path"`
	Language  string  `json:"language,omitempty"`
	Content   string  `json:"content"`
	Selection *string `json:"selection,omitempty"`
}

type chatContext struct {
	CurrentFile *codeFile  `json:"current_file,omitempty"`
	OpenFiles   []codeFile `json:"open_files,omitempty"`
}

type chatRequestBody struct {
	Messages []chatMessage `json:"messages"`
	Context  *chatContext  `json:"context,omitempty"`
	Stream   bool          `json:"stream"`
	DialogID string        `json:"dialog_id,omitempty"`
}

// buildCodeContext renders context.current_file/open_files into fenced
// code blocks with a path header, the formatted blob chat.Service's
// buildInstructions folds into the system prompt under "## Code
// Context" (SPEC_FULL.md's supplemented code-context feature, grounded
// on original_source/agentsmithy_server/rag/context_builder.py's
// current_file/open_files context shape).
func buildCodeContext(c *chatContext) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	renderFile := func(label string, f codeFile) {
		fmt.Fprintf(&b, "%s: %s\n", label, f.Path)
		if f.Selection != nil && *f.Selection != "" {
			fmt.Fprintf(&b, "Selection:\n```%s\n%s\n```\n", f.Language, *f.Selection)
		}
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", f.Language, f.Content)
	}
	if c.CurrentFile != nil {
		renderFile("Current file", *c.CurrentFile)
	}
	for _, f := range c.OpenFiles {
		renderFile("Open file", f)
	}
	return strings.TrimSpace(b.String())
}

// lastUserContent returns the content of the final "user"-role message,
// the one new turn this call appends (spec.md §4.1: "the newest user
// message"; everything before it is assumed already persisted).
func lastUserContent(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

// handleChat implements POST /api/chat (spec.md §6): SSE when the
// client both sends stream:true and asks for text/event-stream,
// otherwise a single assembled JSON response built by draining the SSE
// frames into memory first.
func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.errorResponse(w, http.StatusBadRequest, fmt.Errorf("decode request body: %w", err))
		return
	}

	req := chat.Request{
		DialogID:    body.DialogID,
		Content:     lastUserContent(body.Messages),
		CodeContext: buildCodeContext(body.Context),
	}

	wantsSSE := body.Stream && strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if wantsSSE {
		h.streamChat(w, r, req)
		return
	}
	h.assembleChat(w, r, req)
}

func (h *Handlers) streamChat(w http.ResponseWriter, r *http.Request, req chat.Request) {
	wr, err := sse.NewWriter(w, req.DialogID, h.Logger)
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	_ = h.Chat.Chat(r.Context(), wr, req)
}

// assembledResult is the single-JSON response shape for a non-streamed
// chat turn: the final assistant text, any tool calls the turn made,
// and the dialog it landed in.
type assembledResult struct {
	DialogID  string          `json:"dialog_id"`
	Content   string          `json:"content"`
	Reasoning string          `json:"reasoning,omitempty"`
	ToolCalls []events.Event  `json:"tool_calls,omitempty"`
	FileEdits []events.Event  `json:"file_edits,omitempty"`
	Error     *assembledError `json:"error,omitempty"`
}

type assembledError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// assembleChat runs the turn against an in-memory SSE recorder and
// folds the resulting frame sequence into one JSON body, so callers
// that never speak SSE (spec.md §6: "Otherwise returns a single JSON of
// assembled result") still go through the exact same chat.Service path
// as a streaming client.
func (h *Handlers) assembleChat(w http.ResponseWriter, r *http.Request, req chat.Request) {
	rec := httptest.NewRecorder()
	wr, err := sse.NewWriter(rec, req.DialogID, h.Logger)
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	turnErr := h.Chat.Chat(r.Context(), wr, req)

	result := assembledResult{DialogID: req.DialogID}
	scanner := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if result.DialogID == "" {
			result.DialogID = ev.DialogID
		}
		switch ev.Type {
		case events.TypeChat:
			result.Content += ev.Content
		case events.TypeReasoning:
			result.Reasoning += ev.Content
		case events.TypeToolCall, events.TypeFileEdit:
			if ev.Type == events.TypeToolCall {
				result.ToolCalls = append(result.ToolCalls, ev)
			} else {
				result.FileEdits = append(result.FileEdits, ev)
			}
		case events.TypeError:
			result.Error = &assembledError{Code: ev.Code, Message: ev.Error}
		}
	}
	if result.DialogID == "" {
		// No dialog_id in the request: the turn ran in the current dialog.
		if cur, err := h.Dialogs.CurrentDialogID(r.Context()); err == nil {
			result.DialogID = cur
		}
	}

	status := http.StatusOK
	if turnErr != nil {
		status = apperr.HTTPStatus(apperr.KindOf(turnErr))
	}
	h.jsonResponse(w, status, result)
}

// handleHealth implements GET /health: {status, port, pid,
// server_status, config_valid, config_errors}.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Runtime.Read()
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	resp := map[string]any{"status": "ok"}
	if doc != nil {
		resp["port"] = doc.Port
		resp["pid"] = doc.ServerPID
		resp["server_status"] = doc.ServerStatus
		resp["config_valid"] = doc.ConfigValid
		resp["config_errors"] = doc.ConfigErrors
	}
	h.jsonResponse(w, http.StatusOK, resp)
}
