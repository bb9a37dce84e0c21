package versioning

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TreeEntry is one child of a tree object: either a blob (a file) or a
// nested tree (a directory), addressed by content hash.
type TreeEntry struct {
	Name   string `json:"name"`
	Mode   string `json:"mode"` // "100644" file, "040000" dir
	Hash   string `json:"hash"`
	IsTree bool   `json:"is_tree"`
}

// Commit is the metadata object at the tip of a checkpoint.
type Commit struct {
	TreeHash   string    `json:"tree_hash"`
	ParentHash string    `json:"parent_hash,omitempty"`
	Message    string    `json:"message"`
	AuthorTime time.Time `json:"author_time"`
}

// ObjectStore is a content-addressed blob/tree/commit store rooted at a
// directory, following spec.md §4.4's "any content-addressed object
// store with refs" contract. Objects are stored uncompressed as
// objects/<hh>/<rest-of-hash> to keep directory fan-out (spec.md §6
// persisted-state layout), matching git's shape without depending on
// git-the-binary (spec.md §9 design note).
type ObjectStore struct {
	root string // .../checkpoints
}

func NewObjectStore(root string) *ObjectStore {
	return &ObjectStore{root: root}
}

func hashBytes(kind string, content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *ObjectStore) objectPath(hash string) string {
	return filepath.Join(s.root, "objects", hash[:2], hash[2:])
}

func (s *ObjectStore) has(hash string) bool {
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

func (s *ObjectStore) writeRaw(hash string, content []byte) error {
	if s.has(hash) {
		return nil
	}
	p := s.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir object dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("rename object: %w", err)
	}
	return nil
}

func (s *ObjectStore) readRaw(hash string) ([]byte, error) {
	b, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", hash, err)
	}
	return b, nil
}

// WriteBlob stores file content and returns its content hash.
func (s *ObjectStore) WriteBlob(content []byte) (string, error) {
	hash := hashBytes("blob", content)
	if err := s.writeRaw(hash, content); err != nil {
		return "", err
	}
	return hash, nil
}

// ReadBlob retrieves file content by hash.
func (s *ObjectStore) ReadBlob(hash string) ([]byte, error) {
	return s.readRaw(hash)
}

// WriteTree stores a directory listing and returns its content hash.
// Entries are sorted by name so identical directory contents always
// hash to the same tree, which is what makes the "idempotent checkpoint"
// property (spec.md §8 property 6) hold.
func (s *ObjectStore) WriteTree(entries []TreeEntry) (string, error) {
	sorted := append([]TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	b, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("marshal tree: %w", err)
	}
	hash := hashBytes("tree", b)
	if err := s.writeRaw(hash, b); err != nil {
		return "", err
	}
	return hash, nil
}

// ReadTree retrieves a tree's entries by hash.
func (s *ObjectStore) ReadTree(hash string) ([]TreeEntry, error) {
	b, err := s.readRaw(hash)
	if err != nil {
		return nil, err
	}
	var entries []TreeEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal tree %s: %w", hash, err)
	}
	return entries, nil
}

// WriteCommit stores commit metadata and returns its content hash.
func (s *ObjectStore) WriteCommit(c Commit) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal commit: %w", err)
	}
	hash := hashBytes("commit", b)
	if err := s.writeRaw(hash, b); err != nil {
		return "", err
	}
	return hash, nil
}

// ReadCommit retrieves commit metadata by hash.
func (s *ObjectStore) ReadCommit(hash string) (Commit, error) {
	var c Commit
	b, err := s.readRaw(hash)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("unmarshal commit %s: %w", hash, err)
	}
	return c, nil
}

// --- refs ---

func (s *ObjectStore) refPath(name string) string {
	return filepath.Join(s.root, "refs", name)
}

// ReadRef returns the commit hash a ref points to, or "" if it does not
// exist yet.
func (s *ObjectStore) ReadRef(name string) (string, error) {
	b, err := os.ReadFile(s.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read ref %s: %w", name, err)
	}
	return string(bytes.TrimSpace(b)), nil
}

// WriteRef atomically updates a ref to point at commitHash.
func (s *ObjectStore) WriteRef(name, commitHash string) error {
	p := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir refs dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(commitHash+"\n"), 0o644); err != nil {
		return fmt.Errorf("write ref: %w", err)
	}
	return os.Rename(tmp, p)
}

// walkTreePaths returns a flat map of project-relative path -> blob hash
// for every file (recursively) beneath a tree.
func (s *ObjectStore) walkTreePaths(treeHash, prefix string, out map[string]string) error {
	if treeHash == "" {
		return nil
	}
	entries, err := s.ReadTree(treeHash)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := e.Name
		if prefix != "" {
			rel = prefix + "/" + e.Name
		}
		if e.IsTree {
			if err := s.walkTreePaths(e.Hash, rel, out); err != nil {
				return err
			}
			continue
		}
		out[rel] = e.Hash
	}
	return nil
}
