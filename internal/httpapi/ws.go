package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin, matching the teacher's own
// pkg/server/websocket.go upgrader: this server only ever serves a
// single IDE/editor client on localhost, so there is no cross-site
// origin to police.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWatch serves a read-only "dev console" socket: every event the
// agent loop emits for dialog_id (or, with no query param, every
// dialog) is pushed to the client as JSON, one frame per message.
// Unlike spec.md's POST /api/chat SSE stream, this channel carries no
// request body and drives no turn — it exists purely for a second
// observer (a dashboard, a test harness) to watch a dialog without
// contending for the turn-driving SSE connection.
//
// Grounded on the teacher's handleChatWebSocket (pkg/server/
// websocket.go), narrowed from its bidirectional chat channel (reader
// loop appending user messages, writer loop polling Subscribe() for
// new stream entries) to a pure fan-out: spec.md's user input already
// has its own endpoint (POST /api/chat), so there is nothing for a
// reader loop here to append.
func (h *Handlers) handleWatch(w http.ResponseWriter, r *http.Request) {
	if h.Broker == nil {
		http.Error(w, "watch socket is disabled", http.StatusServiceUnavailable)
		return
	}
	dialogID := r.URL.Query().Get("dialog_id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("watch socket upgrade failed", "error", err)
		}
		return
	}
	defer ws.Close()

	ch, cancel := h.Broker.Subscribe(dialogID)
	defer cancel()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	go drainReads(ws)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainReads discards client frames (this socket is write-only from
// the server's perspective) until the connection closes, which is the
// only way the net/http server learns the client disconnected.
func drainReads(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
