package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// fileDialogIndex implements DialogIndex as a single JSON file
// (dialogs/index.json), read-modify-written whole under a mutex.
// Grounded on the teacher's pkg/store/jsonl.Manager.SetSessionStatus,
// which manages its own index.json the same way — load, mutate the
// in-memory struct, marshal-indent, write back.
type fileDialogIndex struct {
	mu   sync.Mutex
	path string
}

type indexDoc struct {
	CurrentDialogID string          `json:"current_dialog_id"`
	Dialogs         []domain.Dialog `json:"dialogs"`
}

// NewFileDialogIndex opens (creating if absent) the index file at path.
func NewFileDialogIndex(path string) (DialogIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeIndexDoc(path, indexDoc{}); err != nil {
			return nil, err
		}
	}
	return &fileDialogIndex{path: path}, nil
}

func readIndexDoc(path string) (indexDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return indexDoc{}, fmt.Errorf("read dialog index: %w", err)
	}
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return indexDoc{}, fmt.Errorf("parse dialog index: %w", err)
	}
	return doc, nil
}

func writeIndexDoc(path string, doc indexDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dialog index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write dialog index: %w", err)
	}
	return os.Rename(tmp, path)
}

func (f *fileDialogIndex) Create(_ context.Context, d *domain.Dialog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	doc.Dialogs = append(doc.Dialogs, *d)
	if doc.CurrentDialogID == "" {
		doc.CurrentDialogID = d.ID
	}
	return writeIndexDoc(f.path, doc)
}

func (f *fileDialogIndex) Get(_ context.Context, id string) (domain.Dialog, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return domain.Dialog{}, false, err
	}
	for _, d := range doc.Dialogs {
		if d.ID == id {
			return d, true, nil
		}
	}
	return domain.Dialog{}, false, nil
}

func (f *fileDialogIndex) List(_ context.Context) ([]domain.Dialog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return nil, err
	}
	return doc.Dialogs, nil
}

func (f *fileDialogIndex) Update(_ context.Context, d *domain.Dialog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()
	for i := range doc.Dialogs {
		if doc.Dialogs[i].ID == d.ID {
			doc.Dialogs[i] = *d
			return writeIndexDoc(f.path, doc)
		}
	}
	return apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", d.ID))
}

func (f *fileDialogIndex) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return err
	}
	out := make([]domain.Dialog, 0, len(doc.Dialogs))
	found := false
	for _, d := range doc.Dialogs {
		if d.ID == id {
			found = true
			continue
		}
		out = append(out, d)
	}
	if !found {
		return apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", id))
	}
	doc.Dialogs = out
	if doc.CurrentDialogID == id {
		doc.CurrentDialogID = ""
		if len(out) > 0 {
			doc.CurrentDialogID = out[0].ID
		}
	}
	return writeIndexDoc(f.path, doc)
}

func (f *fileDialogIndex) CurrentDialogID(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return "", err
	}
	return doc.CurrentDialogID, nil
}

func (f *fileDialogIndex) SetCurrentDialogID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := readIndexDoc(f.path)
	if err != nil {
		return err
	}
	found := id == ""
	for _, d := range doc.Dialogs {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		return apperr.New(apperr.NotFound, fmt.Sprintf("dialog not found: %s", id))
	}
	doc.CurrentDialogID = id
	return writeIndexDoc(f.path, doc)
}
