package gemini

import (
	"context"
	"testing"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
)

func TestStreamNextTimesOutWhenNoChunkArrives(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	cancelled := false
	s := &stream{
		cancel:       func() { cancelled = true; cancel() },
		deltas:       make(chan llm.Delta),
		errCh:        make(chan error, 1),
		chunkTimeout: 10 * time.Millisecond,
	}

	_, ok, err := s.Next()
	if ok {
		t.Fatal("expected ok=false on timeout")
	}
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !cancelled {
		t.Fatal("expected timeout to cancel the underlying stream context")
	}
}

func TestStreamNextReturnsDeltaBeforeTimeout(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	deltas := make(chan llm.Delta, 1)
	deltas <- llm.Delta{Kind: llm.DeltaText, Text: "hi"}

	s := &stream{
		cancel:       cancel,
		deltas:       deltas,
		errCh:        make(chan error, 1),
		chunkTimeout: 50 * time.Millisecond,
	}

	d, ok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || d.Text != "hi" {
		t.Fatalf("expected delta 'hi', got %+v ok=%v", d, ok)
	}
}

func TestStreamNextWithNoTimeoutBlocksUntilDelta(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	deltas := make(chan llm.Delta, 1)
	deltas <- llm.Delta{Kind: llm.DeltaText, Text: "hi"}

	s := &stream{cancel: cancel, deltas: deltas, errCh: make(chan error, 1)}

	d, ok, err := s.Next()
	if err != nil || !ok || d.Text != "hi" {
		t.Fatalf("expected delta 'hi' with no error, got %+v ok=%v err=%v", d, ok, err)
	}
}
