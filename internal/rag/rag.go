// Package rag implements the reindex/reconciliation contract from
// spec.md §4.5. The embedding/vector-store engine itself is named in
// spec.md §1 as an out-of-scope external collaborator ("specified only
// at its interface") and no such library appears anywhere in the
// example corpus, so Index is a small interface this package drives;
// a no-op stub implementation is provided for when no vector backend
// is configured, matching how the teacher treats its own optional
// sandbox.Manager (present behind an interface, nil-safe when absent).
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
)

// Index is the pluggable embedding/vector-store backend. Implementers
// own chunking and vectorization; this package owns deciding WHEN to
// call them.
type Index interface {
	// Reindex (re)computes and stores chunks for path's current content.
	Reindex(ctx context.Context, path string, content []byte) error
	// Remove deletes all chunks for path.
	Remove(ctx context.Context, path string) error
	// IndexedPaths returns every path with at least one stored chunk.
	IndexedPaths(ctx context.Context) ([]string, error)
}

// Syncer is the contract tools and the checkpoint subsystem drive
// directly: immediate re-index on mutation/deletion, full re-index on
// restore, and a FullSync pass before every user turn.
type Syncer interface {
	OnMutate(ctx context.Context, path string) error
	OnDelete(ctx context.Context, path string) error
	OnRestore(ctx context.Context, paths []string) error
	FullSync(ctx context.Context) error
}

// tracker is the default Syncer: it reads file bytes from projectRoot
// and delegates storage to an Index, keeping a content-hash per
// indexed path so FullSync can detect external edits.
type tracker struct {
	mu          sync.Mutex
	projectRoot string
	index       Index
	hashes      map[string]string // path -> last-seen content hash
}

// NewSyncer builds the default file-backed Syncer over index.
func NewSyncer(projectRoot string, index Index) Syncer {
	return &tracker{projectRoot: projectRoot, index: index, hashes: map[string]string{}}
}

func hashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (t *tracker) readFile(path string) ([]byte, error) {
	return os.ReadFile(joinProjectPath(t.projectRoot, path))
}

func joinProjectPath(root, path string) string {
	if root == "" {
		return path
	}
	return root + string(os.PathSeparator) + path
}

// OnMutate re-indexes path immediately after a tool-driven write.
func (t *tracker) OnMutate(ctx context.Context, path string) error {
	content, err := t.readFile(path)
	if err != nil {
		return fmt.Errorf("rag: read %s for reindex: %w", path, err)
	}
	if err := t.index.Reindex(ctx, path, content); err != nil {
		return fmt.Errorf("rag: reindex %s: %w", path, err)
	}
	t.mu.Lock()
	t.hashes[path] = hashContent(content)
	t.mu.Unlock()
	return nil
}

// OnDelete removes path's chunks after a tool-driven deletion.
func (t *tracker) OnDelete(ctx context.Context, path string) error {
	if err := t.index.Remove(ctx, path); err != nil {
		return fmt.Errorf("rag: remove %s: %w", path, err)
	}
	t.mu.Lock()
	delete(t.hashes, path)
	t.mu.Unlock()
	return nil
}

// OnRestore re-indexes every path a checkpoint restore touched.
func (t *tracker) OnRestore(ctx context.Context, paths []string) error {
	for _, p := range paths {
		_, err := t.readFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				if rerr := t.OnDelete(ctx, p); rerr != nil {
					return rerr
				}
				continue
			}
			return fmt.Errorf("rag: read %s after restore: %w", p, err)
		}
		if err := t.OnMutate(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// FullSync iterates every distinct indexed path, recomputes its file
// hash, re-indexes on mismatch, and removes entries for missing files —
// the pre-turn pass that catches run_command and external edits
// (spec.md §4.5).
func (t *tracker) FullSync(ctx context.Context) error {
	paths, err := t.index.IndexedPaths(ctx)
	if err != nil {
		return fmt.Errorf("rag: list indexed paths: %w", err)
	}
	for _, p := range paths {
		content, err := t.readFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				if rerr := t.OnDelete(ctx, p); rerr != nil {
					return rerr
				}
				continue
			}
			return fmt.Errorf("rag: read %s during full sync: %w", p, err)
		}
		t.mu.Lock()
		prev, known := t.hashes[p]
		t.mu.Unlock()
		if known && prev == hashContent(content) {
			continue
		}
		if err := t.OnMutate(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// NoopIndex is the Index used when no vector-store backend is
// configured: it tracks path membership only, so FullSync still
// runs correctly end to end, but never produces real embeddings.
type NoopIndex struct {
	mu    sync.Mutex
	paths map[string]bool
}

func NewNoopIndex() *NoopIndex { return &NoopIndex{paths: map[string]bool{}} }

func (n *NoopIndex) Reindex(_ context.Context, path string, _ []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths[path] = true
	return nil
}

func (n *NoopIndex) Remove(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.paths, path)
	return nil
}

func (n *NoopIndex) IndexedPaths(_ context.Context) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.paths))
	for p := range n.paths {
		out = append(out, p)
	}
	return out, nil
}
