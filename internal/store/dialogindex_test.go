package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

func newTestIndex(t *testing.T) DialogIndex {
	t.Helper()
	idx, err := NewFileDialogIndex(filepath.Join(t.TempDir(), "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestDialogIndexCreateFirstBecomesCurrent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	title := "First"
	d := &domain.Dialog{ID: "d1", Title: &title}
	if err := idx.Create(ctx, d); err != nil {
		t.Fatal(err)
	}

	cur, err := idx.CurrentDialogID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur != "d1" {
		t.Fatalf("expected first created dialog to become current, got %q", cur)
	}
}

func TestDialogIndexGetListUpdateDelete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	titleOne, titleTwo := "One", "Two"
	if err := idx.Create(ctx, &domain.Dialog{ID: "d1", Title: &titleOne}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Create(ctx, &domain.Dialog{ID: "d2", Title: &titleTwo}); err != nil {
		t.Fatal(err)
	}

	all, err := idx.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 dialogs, got %d", len(all))
	}

	got, found, err := idx.Get(ctx, "d2")
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Title == nil || *got.Title != "Two" {
		t.Fatalf("unexpected Get result: found=%v got=%+v", found, got)
	}

	renamed := "Two Renamed"
	got.Title = &renamed
	if err := idx.Update(ctx, &got); err != nil {
		t.Fatal(err)
	}
	got2, _, err := idx.Get(ctx, "d2")
	if err != nil {
		t.Fatal(err)
	}
	if got2.Title == nil || *got2.Title != "Two Renamed" {
		t.Fatalf("expected rename to persist, got %+v", got2.Title)
	}

	if err := idx.Delete(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	remaining, err := idx.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != "d2" {
		t.Fatalf("expected only d2 to remain, got %+v", remaining)
	}
}

func TestDialogIndexUpdateMissingReturnsNotFound(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.Update(ctx, &domain.Dialog{ID: "missing"})
	if err == nil {
		t.Fatal("expected an error for updating a missing dialog")
	}
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected a NotFound apperr, got %v", err)
	}
}

func TestDialogIndexSetCurrentDialogID(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Create(ctx, &domain.Dialog{ID: "d1"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Create(ctx, &domain.Dialog{ID: "d2"}); err != nil {
		t.Fatal(err)
	}

	if err := idx.SetCurrentDialogID(ctx, "d2"); err != nil {
		t.Fatal(err)
	}
	cur, err := idx.CurrentDialogID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur != "d2" {
		t.Fatalf("expected current dialog to be d2, got %q", cur)
	}

	if err := idx.SetCurrentDialogID(ctx, "missing"); err == nil {
		t.Fatal("expected an error for setting current to a missing dialog")
	}
}

func TestDialogIndexDeleteCurrentFallsBackToRemaining(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Create(ctx, &domain.Dialog{ID: "d1"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Create(ctx, &domain.Dialog{ID: "d2"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.SetCurrentDialogID(ctx, "d1"); err != nil {
		t.Fatal(err)
	}

	if err := idx.Delete(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	cur, err := idx.CurrentDialogID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur != "d2" {
		t.Fatalf("expected current dialog to fall back to remaining d2, got %q", cur)
	}
}
