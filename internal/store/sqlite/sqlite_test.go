package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "messages.sqlite"), filepath.Join(dir, "dialogs"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMessageAppendAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := &domain.Message{DialogID: "d1", Type: domain.RoleUser, Content: "hello"}
		if err := s.Append(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.History(ctx, "d1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalEvents != 3 || len(page.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", page)
	}
	if page.Messages[0].Idx >= page.Messages[2].Idx {
		t.Fatalf("expected oldest-first ordering, got idxs %d,%d,%d",
			page.Messages[0].Idx, page.Messages[1].Idx, page.Messages[2].Idx)
	}
	if page.HasMore {
		t.Fatalf("expected no more pages for a full fetch, got HasMore=true")
	}
}

func TestMessageHistoryPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg := &domain.Message{DialogID: "d1", Type: domain.RoleAssistant, Content: "x"}
		if err := s.Append(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.History(ctx, "d1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages in page, got %d", len(page.Messages))
	}
	if !page.HasMore {
		t.Fatalf("expected HasMore=true with 5 total and a page of 2")
	}

	nextPage, err := s.History(ctx, "d1", 10, page.FirstIdx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nextPage.Messages) != 3 {
		t.Fatalf("expected remaining 3 messages, got %d", len(nextPage.Messages))
	}
	if nextPage.HasMore {
		t.Fatalf("expected no more pages after fetching the rest")
	}
}

func TestReasoningSaveGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	block := &domain.ReasoningBlock{DialogID: "d1", Content: "thinking..."}
	if err := s.SaveReasoning(ctx, block, 1); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.GetReasoning(ctx, "d1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Content != "thinking..." {
		t.Fatalf("unexpected reasoning block: found=%v got=%+v", found, got)
	}

	_, found, err = s.GetReasoning(ctx, "d1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no reasoning block for unused message idx")
	}
}

func TestToolResultSaveListGetLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result := domain.ToolResult{
		ToolCallID: "call-1",
		ToolName:   "read_file",
		Status:     "ok",
		Body:       map[string]any{"content": "hi"},
	}
	if err := s.SaveToolResult(ctx, "d1", result, "Read file: a.txt (1 lines)"); err != nil {
		t.Fatal(err)
	}

	metas, err := s.ListToolResults(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].ToolName != "read_file" {
		t.Fatalf("unexpected metadata list: %+v", metas)
	}

	got, found, err := s.GetToolResult(ctx, "d1", "call-1")
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Body["content"] != "hi" {
		t.Fatalf("unexpected tool result: found=%v got=%+v", found, got)
	}

	lookupGot, found, err := s.Lookup("d1", "call-1")
	if err != nil {
		t.Fatal(err)
	}
	if !found || lookupGot.ToolCallID != "call-1" {
		t.Fatalf("Lookup adapter mismatch: %+v", lookupGot)
	}

	_, found, err = s.GetToolResult(ctx, "d1", "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected not found for missing tool_call_id")
	}
}

func TestFileEditRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &domain.FileEditRecord{DialogID: "d1", FilePath: "main.py", Diff: "+print('hi')", CheckpointID: "c1", MessageIdx: 2}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	edits, err := s.ListForDialog(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(edits) != 1 || edits[0].FilePath != "main.py" {
		t.Fatalf("unexpected file edits: %+v", edits)
	}
}
