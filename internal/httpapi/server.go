// Package httpapi is the REST/SSE surface from spec.md §6, built on
// net/http's method-and-path-pattern ServeMux the way the teacher's own
// pkg/server/server.go routes its operative/notes/sandbox endpoints —
// same jsonResponse/errorResponse helpers, same corsMiddleware wrapper,
// generalized from a WebSocket chat channel to an SSE one (internal/sse
// already carries that generalization) and expanded to the dialog,
// checkpoint, and config surfaces spec.md adds.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/chat"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/config"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/runtime"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/sse"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store"
)

// Handlers wires every dependency the HTTP surface needs. One instance
// serves one project.
type Handlers struct {
	Chat     *chat.Service
	Dialogs  store.DialogIndex
	Messages store.MessageStore
	Tools    store.ToolResultStore
	Trackers *chat.TrackerCache
	Config   *config.Manager
	Runtime  *runtime.Singleton
	Logger   *slog.Logger
	// Broker backs the dev-console watch socket (handleWatch); nil
	// disables that endpoint without affecting the primary SSE stream.
	Broker *events.Broker

	srv *http.Server
}

// Router builds the ServeMux for every endpoint in spec.md §6.
func (h *Handlers) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /api/dialogs", h.handleListDialogs)
	mux.HandleFunc("POST /api/dialogs", h.handleCreateDialog)
	mux.HandleFunc("GET /api/dialogs/current", h.handleGetCurrentDialog)
	mux.HandleFunc("PATCH /api/dialogs/current", h.handleSetCurrentDialog)
	mux.HandleFunc("GET /api/dialogs/{id}", h.handleGetDialog)
	mux.HandleFunc("PATCH /api/dialogs/{id}", h.handleUpdateDialog)
	mux.HandleFunc("DELETE /api/dialogs/{id}", h.handleDeleteDialog)
	mux.HandleFunc("GET /api/dialogs/{id}/history", h.handleDialogHistory)
	mux.HandleFunc("GET /api/dialogs/{id}/tool-results", h.handleListToolResults)
	mux.HandleFunc("GET /api/dialogs/{id}/tool-results/{tool_call_id}", h.handleGetToolResult)
	mux.HandleFunc("GET /api/dialogs/{id}/checkpoints", h.handleListCheckpoints)
	mux.HandleFunc("POST /api/dialogs/{id}/restore", h.handleRestore)
	mux.HandleFunc("POST /api/dialogs/{id}/approve", h.handleApprove)
	mux.HandleFunc("POST /api/dialogs/{id}/reset", h.handleReset)
	mux.HandleFunc("GET /api/dialogs/{id}/session", h.handleSession)

	mux.HandleFunc("GET /api/config", h.handleGetConfig)
	mux.HandleFunc("PUT /api/config", h.handlePutConfig)
	mux.HandleFunc("POST /api/config/rename", h.handleRenameConfigEntity)

	mux.HandleFunc("GET /api/watch", h.handleWatch)

	return h.shutdownMiddleware(h.corsMiddleware(mux))
}

// Start listens and serves on addr, blocking until Shutdown is called
// (mirroring the teacher's Server.Start/Shutdown split).
func (h *Handlers) Start(addr string) error {
	h.srv = &http.Server{Addr: addr, Handler: h.Router()}
	return h.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (h *Handlers) Shutdown(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}

// corsMiddleware mirrors the teacher's permissive local-tool CORS
// policy: this server only ever serves a single IDE/editor client on
// localhost, so a wildcard origin carries none of the cross-site risk
// it would for a public API.
func (h *Handlers) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// shutdownMiddleware rejects new work once the process-wide shutdown
// flag is set (spec.md §4.6 "Graceful shutdown"), so a client cannot
// start a fresh turn while the server is draining.
func (h *Handlers) shutdownMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sse.IsShuttingDown() && r.URL.Path != "/health" {
			h.errorResponse(w, http.StatusServiceUnavailable, fmt.Errorf("server is shutting down"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handlers) errorResponse(w http.ResponseWriter, status int, err error) {
	if h.Logger != nil {
		h.Logger.Error("httpapi: request failed", "error", err, "status", status)
	}
	h.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

// respondErr maps an apperr.Kind-tagged error to the right HTTP status
// (spec.md §7); unwrapped errors default to 500 via apperr.KindOf.
func (h *Handlers) respondErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if h.Logger != nil {
		h.Logger.Error("httpapi: request failed", "error", err, "status", status)
	}
	h.jsonResponse(w, status, map[string]string{"error": err.Error(), "code": string(kind)})
}
