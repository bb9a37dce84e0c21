// Package versioning implements the per-dialog content-addressed
// checkpoint subsystem (spec.md §4.4): a from-scratch blob/tree/commit
// object store plus session/staging-area bookkeeping. It deliberately
// does not shell out to git or a git library (spec.md §9 design note
// rules that out as an external collaborator) — the shape is grounded
// on the original Python shadow-repo implementation
// (original_source/agentsmithy_server/services/versioning.py) and
// expressed the way the teacher builds its own persistence layers
// (pkg/store/sqlite/sqlite.go's migrate-then-serialize pattern), using
// plain files under the project's .agentsmithy/ state directory instead
// of SQLite since the object model itself is already content-addressed.
package versioning

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/versioning/ignore"
)

// maxDiffableSize is the size above which get_staged_files reports a
// file as too-large rather than computing a diff (spec.md §4.4
// get_staged_files: "base_content | null (null if added/binary/>1MB)").
const maxDiffableSize = 1 << 20

type stagedOp struct {
	Add    string // non-empty: blob hash to force-include
	Remove bool
}

// Tracker is the per-dialog versioning state machine described by
// spec.md §4.4. One Tracker instance owns one dialog's checkpoint repo,
// session list, and staging area; callers are responsible for holding
// one Tracker per dialog and not sharing it across dialogs.
type Tracker struct {
	mu sync.Mutex

	workdir string // project root being snapshotted
	store   *ObjectStore

	sessions   []*domain.Session
	active     *domain.Session
	staging    map[string]stagedOp
	editCaches map[string]map[string][]byte // edit-token -> path -> saved bytes
}

// NewTracker opens (or initializes) the checkpoint repo for a dialog.
// stateDir is the dialog's checkpoint root, e.g.
// ".agentsmithy/dialogs/<id>/checkpoints".
func NewTracker(workdir, stateDir string) (*Tracker, error) {
	t := &Tracker{
		workdir:    workdir,
		store:      NewObjectStore(stateDir),
		staging:    map[string]stagedOp{},
		editCaches: map[string]map[string][]byte{},
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("init checkpoint state dir: %w", err)
	}
	sessions, err := loadSessions(stateDir)
	if err != nil {
		return nil, err
	}
	t.sessions = sessions
	for _, s := range t.sessions {
		if s.Status == domain.SessionActive {
			t.active = s
		}
	}
	if t.active == nil {
		s := &domain.Session{
			SessionName: "session_1",
			RefName:     "session_1",
			Status:      domain.SessionActive,
			CreatedAt:   time.Now().UTC(),
		}
		t.sessions = append(t.sessions, s)
		t.active = s
		if err := saveSessions(stateDir, t.sessions); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// sessionsFile is where session metadata (not itself content-addressed)
// is persisted as a simple list, one session per line, tab-separated.
func sessionsFile(stateDir string) string { return filepath.Join(stateDir, "sessions.tsv") }

func loadSessions(stateDir string) ([]*domain.Session, error) {
	b, err := os.ReadFile(sessionsFile(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	var out []*domain.Session
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			continue
		}
		s := &domain.Session{
			SessionName: fields[0],
			RefName:     fields[1],
			Status:      domain.SessionStatus(fields[2]),
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[3])
		if fields[4] != "" {
			closed, _ := time.Parse(time.RFC3339Nano, fields[4])
			s.ClosedAt = &closed
		}
		s.ApprovedCommit = fields[5]
		if len(fields) > 6 {
			fmt.Sscanf(fields[6], "%d", &s.CheckpointsCount)
		}
		out = append(out, s)
	}
	return out, nil
}

func saveSessions(stateDir string, sessions []*domain.Session) error {
	var b strings.Builder
	for _, s := range sessions {
		closed := ""
		if s.ClosedAt != nil {
			closed = s.ClosedAt.Format(time.RFC3339Nano)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			s.SessionName, s.RefName, s.Status,
			s.CreatedAt.Format(time.RFC3339Nano), closed, s.ApprovedCommit, s.CheckpointsCount)
	}
	p := sessionsFile(stateDir)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return os.Rename(tmp, p)
}

func (t *Tracker) persistSessions() error {
	return saveSessions(t.store.root, t.sessions)
}

// ActiveSession returns a copy of the current active session's metadata.
func (t *Tracker) ActiveSession() domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.active
}

func (t *Tracker) tipHash() (string, error) {
	if h, err := t.store.ReadRef(t.active.RefName); err != nil {
		return "", err
	} else if h != "" {
		return h, nil
	}
	return t.store.ReadRef("main")
}

// walkWorkdir builds a flat map of project-relative path -> content,
// honoring .gitignore plus the hardcoded exclusion list (spec.md §4.4
// "File filtering").
func (t *Tracker) walkWorkdir() (map[string][]byte, error) {
	matcher, err := ignore.Load(t.workdir)
	if err != nil {
		return nil, fmt.Errorf("load ignore rules: %w", err)
	}
	out := map[string][]byte{}
	err = filepath.Walk(t.workdir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort; skip unreadable entries
		}
		if p == t.workdir {
			return nil
		}
		rel, relErr := filepath.Rel(t.workdir, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matcher.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		content, rerr := os.ReadFile(p)
		if rerr != nil {
			return nil
		}
		out[rel] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workdir: %w", err)
	}
	return out, nil
}

// buildTree merges the ignore-filtered workdir scan with the staging
// area (which force-overrides filtering, spec.md §4.4) and writes the
// resulting nested tree objects bottom-up.
func (t *Tracker) buildTree(files map[string][]byte, removed map[string]bool) (string, error) {
	type node struct {
		files map[string]string // name -> blob hash
		dirs  map[string]*node
	}
	newNode := func() *node { return &node{files: map[string]string{}, dirs: map[string]*node{}} }
	root := newNode()

	insert := func(relPath, blobHash string) {
		parts := strings.Split(relPath, "/")
		cur := root
		for _, seg := range parts[:len(parts)-1] {
			next, ok := cur.dirs[seg]
			if !ok {
				next = newNode()
				cur.dirs[seg] = next
			}
			cur = next
		}
		cur.files[parts[len(parts)-1]] = blobHash
	}

	for rel, content := range files {
		if removed[rel] {
			continue
		}
		hash, err := t.store.WriteBlob(content)
		if err != nil {
			return "", err
		}
		insert(rel, hash)
	}

	var writeNode func(n *node) (string, error)
	writeNode = func(n *node) (string, error) {
		var entries []TreeEntry
		for name, hash := range n.files {
			entries = append(entries, TreeEntry{Name: name, Mode: "100644", Hash: hash})
		}
		for name, child := range n.dirs {
			hash, err := writeNode(child)
			if err != nil {
				return "", err
			}
			if hash == "" {
				continue // empty subtree, omit
			}
			entries = append(entries, TreeEntry{Name: name, Mode: "040000", Hash: hash, IsTree: true})
		}
		if len(entries) == 0 {
			return "", nil
		}
		return t.store.WriteTree(entries)
	}
	return writeNode(root)
}

// CreateCheckpoint implements create_checkpoint (spec.md §4.4): walk
// workdir honoring ignores, merge staged adds/removes, compute tree,
// create a commit, advance the session ref, clear staging.
func (t *Tracker) CreateCheckpoint(message string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createCheckpointLocked(message)
}

func (t *Tracker) createCheckpointLocked(message string) (string, error) {
	files, err := t.walkWorkdir()
	if err != nil {
		return "", err
	}
	removed := map[string]bool{}
	for path, op := range t.staging {
		if op.Remove {
			removed[path] = true
			delete(files, path)
			continue
		}
		blob, berr := t.store.ReadBlob(op.Add)
		if berr != nil {
			return "", fmt.Errorf("staged blob missing for %s: %w", path, berr)
		}
		files[path] = blob
	}

	treeHash, err := t.buildTree(files, removed)
	if err != nil {
		return "", err
	}

	parent, err := t.tipHash()
	if err != nil {
		return "", err
	}

	if parent != "" {
		if prevCommit, cerr := t.store.ReadCommit(parent); cerr == nil && prevCommit.TreeHash == treeHash {
			// Idempotent checkpoint (spec.md §8 property 6): nothing
			// changed, no new commit needed.
			t.staging = map[string]stagedOp{}
			return parent, nil
		}
	}

	commit := Commit{TreeHash: treeHash, ParentHash: parent, Message: message, AuthorTime: time.Now().UTC()}
	hash, err := t.store.WriteCommit(commit)
	if err != nil {
		return "", err
	}
	if err := t.store.WriteRef(t.active.RefName, hash); err != nil {
		return "", err
	}
	t.active.CheckpointsCount++
	t.staging = map[string]stagedOp{}
	if err := t.persistSessions(); err != nil {
		return "", err
	}
	return hash, nil
}

// StageFile implements stage_file: force-include path in the next
// checkpoint regardless of ignore rules.
func (t *Tracker) StageFile(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	content, err := os.ReadFile(filepath.Join(t.workdir, path))
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	hash, err := t.store.WriteBlob(content)
	if err != nil {
		return err
	}
	t.staging[filepath.ToSlash(path)] = stagedOp{Add: hash}
	return nil
}

// StageFileDeletion implements stage_file_deletion.
func (t *Tracker) StageFileDeletion(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staging[filepath.ToSlash(path)] = stagedOp{Remove: true}
}

// CheckpointEntry is one item returned by ListCheckpoints.
type CheckpointEntry struct {
	CommitID string
	Message  string
}

// ListCheckpoints implements list_checkpoints: history reachable from
// the current session tip, oldest-first.
func (t *Tracker) ListCheckpoints() ([]CheckpointEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tip, err := t.tipHash()
	if err != nil {
		return nil, err
	}
	var chain []CheckpointEntry
	for tip != "" {
		c, err := t.store.ReadCommit(tip)
		if err != nil {
			return nil, err
		}
		chain = append(chain, CheckpointEntry{CommitID: tip, Message: c.Message})
		tip = c.ParentHash
	}
	// chain was built newest-first by walking parent pointers; reverse it
	// into the oldest-first order list_checkpoints promises.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// RestoreCheckpoint implements restore_checkpoint (spec.md §4.4 steps 1-7).
// changedPaths is returned so the caller can trigger RAG re-indexing;
// newCheckpoint is the commit created to record the restore itself.
func (t *Tracker) RestoreCheckpoint(commitID string) (changedPaths []string, newCheckpoint string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	headHash, err := t.tipHash()
	if err != nil {
		return nil, "", err
	}
	headPaths := map[string]string{}
	if headHash != "" {
		headCommit, cerr := t.store.ReadCommit(headHash)
		if cerr != nil {
			return nil, "", cerr
		}
		if werr := t.store.walkTreePaths(headCommit.TreeHash, "", headPaths); werr != nil {
			return nil, "", werr
		}
	}

	targetCommit, err := t.store.ReadCommit(commitID)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.NotFound, "checkpoint not found", err)
	}
	targetPaths := map[string]string{}
	if err := t.store.walkTreePaths(targetCommit.TreeHash, "", targetPaths); err != nil {
		return nil, "", err
	}

	toDelete := map[string]bool{}
	for p := range headPaths {
		if _, ok := targetPaths[p]; !ok {
			toDelete[p] = true
		}
	}
	for p := range t.staging {
		if _, ok := targetPaths[p]; !ok {
			toDelete[p] = true
		}
	}

	changed := map[string]bool{}
	for p := range toDelete {
		full := filepath.Join(t.workdir, filepath.FromSlash(p))
		if rmErr := os.Remove(full); rmErr != nil && !os.IsNotExist(rmErr) {
			continue // best-effort: skip this path and continue
		}
		changed[p] = true
	}

	for p, hash := range targetPaths {
		content, rerr := t.store.ReadBlob(hash)
		if rerr != nil {
			return nil, "", rerr
		}
		full := filepath.Join(t.workdir, filepath.FromSlash(p))
		if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
			return nil, "", fmt.Errorf("restore mkdir %s: %w", p, mkErr)
		}
		if wErr := os.WriteFile(full, content, 0o644); wErr != nil {
			return nil, "", fmt.Errorf("restore write %s: %w", p, wErr)
		}
		changed[p] = true
	}

	t.staging = map[string]stagedOp{}
	pruneEmptyDirs(t.workdir)

	newCommit, err := t.createCheckpointLocked(fmt.Sprintf("Restored to %s", commitID))
	if err != nil {
		return nil, "", err
	}

	out := make([]string, 0, len(changed))
	for p := range changed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, newCommit, nil
}

// pruneEmptyDirs removes directories left empty by a restore's deletions.
// Best-effort: errors are ignored, matching restore's own best-effort
// deletion semantics.
func pruneEmptyDirs(root string) {
	var dirs []string
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && p != root && !strings.Contains(p, string(filepath.Separator)+".") {
			dirs = append(dirs, p)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(d)
		}
	}
}

// GetStagedFiles implements get_staged_files: the diff between working
// state and the main tip, combining unapproved committed changes, the
// staging area, and a workdir-vs-HEAD scan for command-produced changes.
func (t *Tracker) GetStagedFiles() ([]domain.ChangedFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mainHash, err := t.store.ReadRef("main")
	if err != nil {
		return nil, err
	}
	mainPaths := map[string]string{}
	if mainHash != "" {
		mainCommit, cerr := t.store.ReadCommit(mainHash)
		if cerr != nil {
			return nil, cerr
		}
		if werr := t.store.walkTreePaths(mainCommit.TreeHash, "", mainPaths); werr != nil {
			return nil, werr
		}
	}

	// Start from the session tip: this captures (i) committed-but-
	// unapproved changes since main, including anything force-staged
	// into an earlier checkpoint that the live ignore-filtered workdir
	// scan below would otherwise miss.
	headHash, err := t.tipHash()
	if err != nil {
		return nil, err
	}
	headPaths := map[string]string{}
	if headHash != "" {
		headCommit, cerr := t.store.ReadCommit(headHash)
		if cerr != nil {
			return nil, cerr
		}
		if werr := t.store.walkTreePaths(headCommit.TreeHash, "", headPaths); werr != nil {
			return nil, werr
		}
	}
	current := map[string][]byte{}
	for p, hash := range headPaths {
		content, berr := t.store.ReadBlob(hash)
		if berr != nil {
			return nil, berr
		}
		current[p] = content
	}

	// Overlay (iii) the live, ignore-filtered workdir to catch
	// run_command-driven or external edits/deletions since the last
	// checkpoint. A committed-but-ignored path (e.g. force-staged under
	// node_modules/) is invisible to this scan, so it is only
	// reconciled away when it is NOT ignored and no longer on disk.
	matcher, merr := ignore.Load(t.workdir)
	if merr != nil {
		return nil, fmt.Errorf("load ignore rules: %w", merr)
	}
	workdirFiles, err := t.walkWorkdir()
	if err != nil {
		return nil, err
	}
	for p := range headPaths {
		if matcher.Match(p, false) {
			continue
		}
		if _, stillExists := workdirFiles[p]; !stillExists {
			delete(current, p)
		}
	}
	for p, content := range workdirFiles {
		current[p] = content
	}

	// Overlay (ii) the staging area last: force-adds/removes always win.
	for path, op := range t.staging {
		if op.Remove {
			delete(current, path)
			continue
		}
		blob, berr := t.store.ReadBlob(op.Add)
		if berr != nil {
			return nil, berr
		}
		current[path] = blob
	}

	allPaths := map[string]bool{}
	for p := range mainPaths {
		allPaths[p] = true
	}
	for p := range current {
		allPaths[p] = true
	}

	var out []domain.ChangedFile
	for p := range allPaths {
		oldHash, hadOld := mainPaths[p]
		newContent, hasNew := current[p]
		switch {
		case hadOld && !hasNew:
			oldContent, _ := t.store.ReadBlob(oldHash)
			out = append(out, diffEntry(p, domain.ChangeDeleted, oldContent, nil))
		case !hadOld && hasNew:
			out = append(out, diffEntry(p, domain.ChangeAdded, nil, newContent))
		case hadOld && hasNew:
			if hashBytes("blob", newContent) == oldHash {
				continue // unchanged
			}
			oldContent, _ := t.store.ReadBlob(oldHash)
			out = append(out, diffEntry(p, domain.ChangeModified, oldContent, newContent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0
}

func diffEntry(path string, status domain.ChangedFileStatus, oldContent, newContent []byte) domain.ChangedFile {
	cf := domain.ChangedFile{Path: path, Status: status}
	binary := isBinary(oldContent) || isBinary(newContent)
	tooLarge := len(oldContent) > maxDiffableSize || len(newContent) > maxDiffableSize
	cf.IsBinary = binary
	cf.IsTooLarge = tooLarge
	if binary || tooLarge {
		return cf
	}
	if oldContent != nil {
		s := string(oldContent)
		cf.BaseContent = &s
	}
	diff, add, del := unifiedDiff(path, oldContent, newContent)
	cf.Diff = &diff
	cf.Additions = add
	cf.Deletions = del
	return cf
}

// ApproveAllResult mirrors approve_all's return shape.
type ApproveAllResult struct {
	ApprovedCommit string
	NewSession     string
	CommitsApproved int
}

// ApproveAll implements approve_all: fast-forward the session tip into
// main, mark the session merged, start session_{N+1}.
func (t *Tracker) ApproveAll(message string) (ApproveAllResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.createCheckpointLocked(orDefault(message, "Approve")); err != nil {
		return ApproveAllResult{}, err
	}

	sessionTip, err := t.store.ReadRef(t.active.RefName)
	if err != nil {
		return ApproveAllResult{}, err
	}
	mainTip, err := t.store.ReadRef("main")
	if err != nil {
		return ApproveAllResult{}, err
	}

	count := 0
	for h := sessionTip; h != "" && h != mainTip; {
		count++
		c, cerr := t.store.ReadCommit(h)
		if cerr != nil {
			return ApproveAllResult{}, cerr
		}
		h = c.ParentHash
	}

	if err := t.store.WriteRef("main", sessionTip); err != nil {
		return ApproveAllResult{}, err
	}

	now := time.Now().UTC()
	t.active.Status = domain.SessionMerged
	t.active.ClosedAt = &now
	t.active.ApprovedCommit = sessionTip

	next := &domain.Session{
		SessionName: nextSessionName(t.sessions),
		RefName:     nextSessionName(t.sessions),
		Status:      domain.SessionActive,
		CreatedAt:   now,
	}
	t.sessions = append(t.sessions, next)
	t.active = next
	if err := t.store.WriteRef(next.RefName, sessionTip); err != nil {
		return ApproveAllResult{}, err
	}
	if err := t.persistSessions(); err != nil {
		return ApproveAllResult{}, err
	}

	return ApproveAllResult{ApprovedCommit: sessionTip, NewSession: next.SessionName, CommitsApproved: count}, nil
}

// ResetToApprovedResult mirrors reset_to_approved's return shape.
type ResetToApprovedResult struct {
	ResetTo    string
	NewSession string
}

// ResetToApproved implements reset_to_approved: mark the session
// abandoned, materialize the workdir to main's tip, clear staging,
// start session_{N+1}.
func (t *Tracker) ResetToApproved() (ResetToApprovedResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mainTip, err := t.store.ReadRef("main")
	if err != nil {
		return ResetToApprovedResult{}, err
	}

	targetPaths := map[string]string{}
	if mainTip != "" {
		mainCommit, cerr := t.store.ReadCommit(mainTip)
		if cerr != nil {
			return ResetToApprovedResult{}, cerr
		}
		if werr := t.store.walkTreePaths(mainCommit.TreeHash, "", targetPaths); werr != nil {
			return ResetToApprovedResult{}, werr
		}
	}

	current, err := t.walkWorkdir()
	if err != nil {
		return ResetToApprovedResult{}, err
	}
	for p := range current {
		if _, ok := targetPaths[p]; !ok {
			full := filepath.Join(t.workdir, filepath.FromSlash(p))
			_ = os.Remove(full)
		}
	}
	for p, hash := range targetPaths {
		content, rerr := t.store.ReadBlob(hash)
		if rerr != nil {
			return ResetToApprovedResult{}, rerr
		}
		full := filepath.Join(t.workdir, filepath.FromSlash(p))
		if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
			return ResetToApprovedResult{}, mkErr
		}
		if wErr := os.WriteFile(full, content, 0o644); wErr != nil {
			return ResetToApprovedResult{}, wErr
		}
	}
	pruneEmptyDirs(t.workdir)

	t.staging = map[string]stagedOp{}
	now := time.Now().UTC()
	t.active.Status = domain.SessionAbandoned
	t.active.ClosedAt = &now

	next := &domain.Session{
		SessionName: nextSessionName(t.sessions),
		RefName:     nextSessionName(t.sessions),
		Status:      domain.SessionActive,
		CreatedAt:   now,
	}
	t.sessions = append(t.sessions, next)
	t.active = next
	if err := t.store.WriteRef(next.RefName, mainTip); err != nil {
		return ResetToApprovedResult{}, err
	}
	if err := t.persistSessions(); err != nil {
		return ResetToApprovedResult{}, err
	}

	return ResetToApprovedResult{ResetTo: mainTip, NewSession: next.SessionName}, nil
}

// StartEdit snapshots the current bytes of each path into a transient
// per-edit cache, keyed by a caller-chosen token, so a later AbortEdit
// can restore them. Independent of checkpoints (spec.md §4.4).
func (t *Tracker) StartEdit(token string, paths []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cache := map[string][]byte{}
	for _, p := range paths {
		full := filepath.Join(t.workdir, filepath.FromSlash(p))
		content, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				cache[p] = nil
				continue
			}
			return fmt.Errorf("start_edit snapshot %s: %w", p, err)
		}
		cache[p] = content
	}
	t.editCaches[token] = cache
	return nil
}

// FinalizeEdit discards the edit cache for token without restoring it.
func (t *Tracker) FinalizeEdit(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.editCaches, token)
}

// AbortEdit restores every path captured by StartEdit to its
// pre-edit bytes, then discards the cache.
func (t *Tracker) AbortEdit(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cache, ok := t.editCaches[token]
	if !ok {
		return apperr.New(apperr.NotFound, "no edit cache for token "+token)
	}
	for p, content := range cache {
		full := filepath.Join(t.workdir, filepath.FromSlash(p))
		if content == nil {
			_ = os.Remove(full)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("abort_edit restore %s: %w", p, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return fmt.Errorf("abort_edit restore %s: %w", p, err)
		}
	}
	delete(t.editCaches, token)
	return nil
}

func nextSessionName(sessions []*domain.Session) string {
	max := 0
	for _, s := range sessions {
		var n int
		if _, err := fmt.Sscanf(s.SessionName, "session_%d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("session_%d", max+1)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
