package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
)

func TestHandleWatchStreamsPublishedEvents(t *testing.T) {
	h := &Handlers{Broker: events.NewBroker()}
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/watch?dialog_id=dlg-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial watch socket: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the subscription
	// before publishing, since Subscribe happens after Upgrade returns.
	time.Sleep(20 * time.Millisecond)
	h.Broker.Publish(events.Chat("dlg-1", "hello"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read watch frame: %v", err)
	}
	if got.DialogID != "dlg-1" || got.Content != "hello" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestHandleWatchDisabledWithoutBroker(t *testing.T) {
	h := &Handlers{}
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/watch"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail when no broker is configured")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %+v", resp)
	}
}
