package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// handleListDialogs implements GET /api/dialogs: list with
// sorting/pagination — sorted newest-updated-first, the order a picker
// UI wants a dialog list in; pagination is a simple limit/offset over
// that ordering (spec.md leaves the exact scheme unspecified beyond
// "list with sorting/pagination").
func (h *Handlers) handleListDialogs(w http.ResponseWriter, r *http.Request) {
	dialogs, err := h.Dialogs.List(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	// insertion-sort by UpdatedAt descending; dialog counts per project
	// are small enough that O(n^2) never matters here.
	for i := 1; i < len(dialogs); i++ {
		for j := i; j > 0 && dialogs[j].UpdatedAt.After(dialogs[j-1].UpdatedAt); j-- {
			dialogs[j], dialogs[j-1] = dialogs[j-1], dialogs[j]
		}
	}

	limit := parseIntOr(r.URL.Query().Get("limit"), 0)
	offset := parseIntOr(r.URL.Query().Get("offset"), 0)
	if offset > len(dialogs) {
		offset = len(dialogs)
	}
	dialogs = dialogs[offset:]
	if limit > 0 && limit < len(dialogs) {
		dialogs = dialogs[:limit]
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"dialogs": dialogs})
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (h *Handlers) handleCreateDialog(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title *string `json:"title,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	now := time.Now().UTC()
	d := &domain.Dialog{ID: "dlg-" + uuid.New().String(), Title: body.Title, CreatedAt: now, UpdatedAt: now}
	if err := h.Dialogs.Create(r.Context(), d); err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, d)
}

func (h *Handlers) handleGetDialog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, found, err := h.Dialogs.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !found {
		h.respondErr(w, apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", id)))
		return
	}
	h.jsonResponse(w, http.StatusOK, d)
}

func (h *Handlers) handleUpdateDialog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, found, err := h.Dialogs.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !found {
		h.respondErr(w, apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", id)))
		return
	}

	var patch struct {
		Title *string `json:"title,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if patch.Title != nil {
		d.Title = patch.Title
	}
	if err := h.Dialogs.Update(r.Context(), &d); err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, d)
}

func (h *Handlers) handleDeleteDialog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Dialogs.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleGetCurrentDialog(w http.ResponseWriter, r *http.Request) {
	id, err := h.Dialogs.CurrentDialogID(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{"dialog_id": id})
}

func (h *Handlers) handleSetCurrentDialog(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.errorResponse(w, http.StatusBadRequest, fmt.Errorf("missing id query parameter"))
		return
	}
	if err := h.Dialogs.SetCurrentDialogID(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{"dialog_id": id})
}

// handleDialogHistory implements GET /api/dialogs/{id}/history:
// cursor-paginated event list keyed by the message's dense idx.
func (h *Handlers) handleDialogHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := parseIntOr(r.URL.Query().Get("limit"), 0)
	before := parseIntOr(r.URL.Query().Get("before"), 0)

	page, err := h.Messages.History(r.Context(), id, limit, before)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"events":       page.Messages,
		"total_events": page.TotalEvents,
		"has_more":     page.HasMore,
		"first_idx":    page.FirstIdx,
		"last_idx":     page.LastIdx,
	})
}

func (h *Handlers) handleListToolResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	results, err := h.Tools.ListToolResults(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"tool_results": results})
}

func (h *Handlers) handleGetToolResult(w http.ResponseWriter, r *http.Request) {
	dialogID := r.PathValue("id")
	toolCallID := r.PathValue("tool_call_id")
	result, found, err := h.Tools.GetToolResult(r.Context(), dialogID, toolCallID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !found {
		h.respondErr(w, apperr.New(apperr.NotFound, fmt.Sprintf("tool result not found: %s", toolCallID)))
		return
	}
	h.jsonResponse(w, http.StatusOK, result)
}

// handleListCheckpoints implements GET /api/dialogs/{id}/checkpoints:
// {checkpoints:[{commit_id, message}], initial_checkpoint}.
func (h *Handlers) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dialog, found, err := h.Dialogs.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !found {
		h.respondErr(w, apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", id)))
		return
	}
	tracker, err := h.Trackers.Get(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	checkpoints, err := tracker.ListCheckpoints()
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"checkpoints":        checkpoints,
		"initial_checkpoint": dialog.InitialCheckpoint,
	})
}

func (h *Handlers) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		CheckpointID string `json:"checkpoint_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	tracker, err := h.Trackers.Get(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	_, newCheckpoint, err := tracker.RestoreCheckpoint(body.CheckpointID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{
		"restored_to":    body.CheckpointID,
		"new_checkpoint": newCheckpoint,
	})
}

func (h *Handlers) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Message string `json:"message,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	tracker, err := h.Trackers.Get(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	result, err := tracker.ApproveAll(body.Message)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if dialog, found, gerr := h.Dialogs.Get(r.Context(), id); gerr == nil && found {
		now := time.Now().UTC()
		dialog.LastApprovedAt = &now
		dialog.ActiveSession = result.NewSession
		_ = h.Dialogs.Update(r.Context(), &dialog)
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"approved_commit":  result.ApprovedCommit,
		"new_session":      result.NewSession,
		"commits_approved": result.CommitsApproved,
	})
}

func (h *Handlers) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tracker, err := h.Trackers.Get(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	result, err := tracker.ResetToApproved()
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if dialog, found, gerr := h.Dialogs.Get(r.Context(), id); gerr == nil && found {
		dialog.ActiveSession = result.NewSession
		_ = h.Dialogs.Update(r.Context(), &dialog)
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"reset_to":    result.ResetTo,
		"new_session": result.NewSession,
	})
}

// handleSession implements GET /api/dialogs/{id}/session:
// {active_session, session_ref, has_unapproved, last_approved_at, changed_files[]}.
func (h *Handlers) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dialog, found, err := h.Dialogs.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !found {
		h.respondErr(w, apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", id)))
		return
	}
	tracker, err := h.Trackers.Get(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	active := tracker.ActiveSession()
	changed, err := tracker.GetStagedFiles()
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"active_session":   active.SessionName,
		"session_ref":      active.RefName,
		"has_unapproved":   active.CheckpointsCount > 0,
		"last_approved_at": dialog.LastApprovedAt,
		"changed_files":    changed,
	})
}
