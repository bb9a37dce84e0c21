package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/config"
)

// handleGetConfig implements GET /api/config.
func (h *Handlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.Config.Get())
}

// handlePutConfig implements PUT /api/config: writes only to the global
// config file (spec.md §6: "global writable only"), then hot-reloads
// the layered snapshot every in-flight request reads from.
func (h *Handlers) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.Config
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	updated, err := h.Config.Update(patch)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, updated)
}

// handleRenameConfigEntity implements POST /api/config/rename.
func (h *Handlers) handleRenameConfigEntity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type    string `json:"type"`
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	refs, updated, err := h.Config.Rename(body.Type, body.OldName, body.NewName)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"success":            true,
		"old_name":           body.OldName,
		"new_name":           body.NewName,
		"updated_references": refs,
		"config":             updated,
	})
}
