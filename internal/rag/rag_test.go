package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFullSyncReindexesOnMismatchAndRemovesMissing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	idx := NewNoopIndex()
	s := NewSyncer(dir, idx)
	ctx := context.Background()

	if err := s.OnMutate(ctx, "a.go"); err != nil {
		t.Fatal(err)
	}
	if err := s.OnMutate(ctx, "b.go"); err != nil {
		t.Fatal(err)
	}

	// External edit to a.go, and b.go removed from disk entirely —
	// both should be caught by the next FullSync.
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a // edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "b.go")); err != nil {
		t.Fatal(err)
	}

	if err := s.FullSync(ctx); err != nil {
		t.Fatal(err)
	}

	paths, err := idx.IndexedPaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "a.go" {
		t.Fatalf("expected only a.go indexed after full sync, got %v", paths)
	}
}

func TestOnDeleteRemovesChunks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx := NewNoopIndex()
	s := NewSyncer(dir, idx)
	ctx := context.Background()
	if err := s.OnMutate(ctx, "a.go"); err != nil {
		t.Fatal(err)
	}
	if err := s.OnDelete(ctx, "a.go"); err != nil {
		t.Fatal(err)
	}
	paths, err := idx.IndexedPaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no indexed paths after delete, got %v", paths)
	}
}
