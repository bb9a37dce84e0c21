package sse

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
)

func decodeFrames(t *testing.T, body string) []events.Event {
	t.Helper()
	var out []events.Event
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimPrefix(line, "data: ")
		if line == "" {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestWriterHappyPathOrdering(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, "d1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.User("hi", "c0", "session_1"); err != nil {
		t.Fatal(err)
	}
	if err := w.ChatStart(); err != nil {
		t.Fatal(err)
	}
	if err := w.Chat("hello"); err != nil {
		t.Fatal(err)
	}
	if err := w.ChatEnd(); err != nil {
		t.Fatal(err)
	}
	if err := w.ToolCall("read_file", map[string]any{"path": "a.go"}); err != nil {
		t.Fatal(err)
	}
	w.Finish(context.Background(), nil)

	frames := decodeFrames(t, rec.Body.String())
	wantTypes := []events.Type{
		events.TypeUser, events.TypeChatStart, events.TypeChat,
		events.TypeChatEnd, events.TypeToolCall, events.TypeDone,
	}
	if len(frames) != len(wantTypes) {
		t.Fatalf("got %d frames, want %d: %+v", len(frames), len(wantTypes), frames)
	}
	for i, want := range wantTypes {
		if frames[i].Type != want {
			t.Errorf("frame %d: got %s, want %s", i, frames[i].Type, want)
		}
	}
}

func TestToolCallInsideOpenChatBracketRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, "d1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.ChatStart(); err != nil {
		t.Fatal(err)
	}
	if err := w.ToolCall("read_file", nil); err == nil {
		t.Fatal("expected error emitting tool_call inside open chat bracket")
	}
}

func TestErrorAlwaysFollowedByExactlyOneDone(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, "d1", nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Finish(context.Background(), errFake{})
	w.Finish(context.Background(), errFake{}) // second call must not emit twice

	frames := decodeFrames(t, rec.Body.String())
	var errCount, doneCount int
	for _, f := range frames {
		if f.Type == events.TypeError {
			errCount++
		}
		if f.Type == events.TypeDone {
			doneCount++
		}
	}
	if errCount != 1 || doneCount != 1 {
		t.Fatalf("got %d errors, %d dones; want exactly 1 each: %+v", errCount, doneCount, frames)
	}
}

type errFake struct{}

func (errFake) Error() string { return "boom" }
