package chat

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/versioning"
)

// TrackerCache lazily opens and caches one versioning.Tracker per
// dialog (a Tracker owns one dialog's checkpoint repo and must not be
// shared across dialogs — see internal/versioning's package doc).
type TrackerCache struct {
	workdir string
	// stateRoot is ".agentsmithy/dialogs"; each dialog gets
	// <stateRoot>/<dialog_id>/checkpoints (spec.md's persisted-state
	// layout).
	stateRoot string

	mu       sync.Mutex
	trackers map[string]*versioning.Tracker
}

// NewTrackerCache builds a cache rooted at workdir, persisting each
// dialog's checkpoint state under stateRoot/<dialog_id>/checkpoints.
func NewTrackerCache(workdir, stateRoot string) *TrackerCache {
	return &TrackerCache{workdir: workdir, stateRoot: stateRoot, trackers: map[string]*versioning.Tracker{}}
}

// Get returns the Tracker for dialogID, opening it on first use.
func (c *TrackerCache) Get(dialogID string) (*versioning.Tracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.trackers[dialogID]; ok {
		return t, nil
	}
	stateDir := filepath.Join(c.stateRoot, dialogID, "checkpoints")
	t, err := versioning.NewTracker(c.workdir, stateDir)
	if err != nil {
		return nil, fmt.Errorf("open tracker for dialog %s: %w", dialogID, err)
	}
	c.trackers[dialogID] = t
	return t, nil
}
