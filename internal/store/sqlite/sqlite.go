// Package sqlite implements store.MessageStore, store.ReasoningStore,
// store.ToolResultStore, and store.FileEditStore backed by
// dialogs/messages.sqlite (spec.md's persisted-state layout), grounded
// directly on the teacher's pkg/store/sqlite/sqlite.go: a mutex-free
// *sql.DB wrapped in a small Store struct, an explicit migrate() step
// run once at New, and one method per store-interface operation using
// plain parameterized SQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store"
)

// Store implements store.MessageStore, store.ReasoningStore,
// store.ToolResultStore, and store.FileEditStore over one SQLite file
// plus a sibling tool_results/ directory per dialog for full bodies.
type Store struct {
	db          *sql.DB
	toolResults string // <dialogsDir>/<dialog_id>/tool_results
}

var (
	_ store.MessageStore    = (*Store)(nil)
	_ store.ReasoningStore  = (*Store)(nil)
	_ store.ToolResultStore = (*Store)(nil)
	_ store.FileEditStore   = (*Store)(nil)
)

// New opens (or creates) the SQLite database at dbPath and runs
// migrations. dialogsDir is the parent of <dialog_id>/tool_results/
// per spec.md's persisted-state layout.
func New(dbPath, dialogsDir string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db, toolResults: dialogsDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		dialog_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		checkpoint_id TEXT NOT NULL DEFAULT '',
		session_name TEXT NOT NULL DEFAULT '',
		tool_calls TEXT NOT NULL DEFAULT '[]',
		tool_result TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dialog_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_dialog ON messages(dialog_id, idx);

	CREATE TABLE IF NOT EXISTS reasoning_blocks (
		dialog_id TEXT NOT NULL,
		message_idx INTEGER NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dialog_id, message_idx)
	);

	CREATE TABLE IF NOT EXISTS tool_results (
		dialog_id TEXT NOT NULL,
		tool_call_id TEXT NOT NULL,
		tool_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		summary TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dialog_id, tool_call_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tool_results_dialog ON tool_results(dialog_id, created_at);

	CREATE TABLE IF NOT EXISTS file_edits (
		dialog_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		diff TEXT NOT NULL DEFAULT '',
		checkpoint_id TEXT NOT NULL DEFAULT '',
		message_idx INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_file_edits_dialog ON file_edits(dialog_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- MessageStore ---

func (s *Store) Append(ctx context.Context, msg *domain.Message) error {
	var maxIdx sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(idx) FROM messages WHERE dialog_id=?`, msg.DialogID).Scan(&maxIdx)
	if err != nil {
		return fmt.Errorf("next message idx: %w", err)
	}
	msg.Idx = int(maxIdx.Int64) + 1
	if msg.Created.IsZero() {
		msg.Created = time.Now().UTC()
	}

	toolCallsJSON, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool_calls: %w", err)
	}
	toolResultJSON := ""
	if msg.ToolResult != nil {
		b, err := json.Marshal(msg.ToolResult)
		if err != nil {
			return fmt.Errorf("marshal tool_result: %w", err)
		}
		toolResultJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (dialog_id, idx, type, content, checkpoint_id, session_name, tool_calls, tool_result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.DialogID, msg.Idx, string(msg.Type), msg.Content, msg.CheckpointID, msg.SessionName,
		string(toolCallsJSON), toolResultJSON, msg.Created,
	)
	return err
}

func (s *Store) History(ctx context.Context, dialogID string, limit, before int) (store.HistoryPage, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE dialog_id=?`, dialogID).Scan(&total); err != nil {
		return store.HistoryPage{}, fmt.Errorf("count messages: %w", err)
	}

	upperBound := before
	if upperBound <= 0 {
		upperBound = int(^uint(0) >> 1) // max int: no upper bound
	}

	query := `SELECT idx, type, content, checkpoint_id, session_name, tool_calls, tool_result, created_at
		FROM messages WHERE dialog_id=? AND idx < ? ORDER BY idx DESC`
	args := []any{dialogID, upperBound}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.HistoryPage{}, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var typ, toolCallsJSON, toolResultJSON string
		m.DialogID = dialogID
		if err := rows.Scan(&m.Idx, &typ, &m.Content, &m.CheckpointID, &m.SessionName, &toolCallsJSON, &toolResultJSON, &m.Created); err != nil {
			return store.HistoryPage{}, fmt.Errorf("scan message: %w", err)
		}
		m.Type = domain.Role(typ)
		if err := json.Unmarshal([]byte(toolCallsJSON), &m.ToolCalls); err != nil {
			return store.HistoryPage{}, fmt.Errorf("unmarshal tool_calls: %w", err)
		}
		if toolResultJSON != "" {
			var ref domain.ToolResultRef
			if err := json.Unmarshal([]byte(toolResultJSON), &ref); err != nil {
				return store.HistoryPage{}, fmt.Errorf("unmarshal tool_result: %w", err)
			}
			m.ToolResult = &ref
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return store.HistoryPage{}, err
	}

	// Results came back newest-first (DESC); reverse to oldest-first for
	// the returned page, matching spec.md §6's event-list ordering.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	page := store.HistoryPage{Messages: msgs, TotalEvents: total}
	if len(msgs) > 0 {
		page.FirstIdx = msgs[0].Idx
		page.LastIdx = msgs[len(msgs)-1].Idx
		var olderExists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE dialog_id=? AND idx < ?`, dialogID, page.FirstIdx,
		).Scan(&olderExists); err != nil {
			return store.HistoryPage{}, fmt.Errorf("check older messages: %w", err)
		}
		page.HasMore = olderExists > 0
	}
	return page, nil
}

// --- ReasoningStore ---

func (s *Store) SaveReasoning(ctx context.Context, block *domain.ReasoningBlock, messageIdx int) error {
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reasoning_blocks (dialog_id, message_idx, content, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(dialog_id, message_idx) DO UPDATE SET content=excluded.content`,
		block.DialogID, messageIdx, block.Content, block.CreatedAt,
	)
	return err
}

func (s *Store) GetReasoning(ctx context.Context, dialogID string, messageIdx int) (domain.ReasoningBlock, bool, error) {
	var b domain.ReasoningBlock
	b.DialogID = dialogID
	err := s.db.QueryRowContext(ctx,
		`SELECT content, created_at FROM reasoning_blocks WHERE dialog_id=? AND message_idx=?`,
		dialogID, messageIdx,
	).Scan(&b.Content, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.ReasoningBlock{}, false, nil
	}
	if err != nil {
		return domain.ReasoningBlock{}, false, err
	}
	return b, true, nil
}

// --- ToolResultStore ---
//
// Full bodies are stored as <dialogsDir>/<dialog_id>/tool_results/<id>.json
// + <id>.meta.json, per spec.md's persisted-state layout; only the
// lightweight metadata row lives in SQLite for fast listing.

func (s *Store) dialogToolResultsDir(dialogID string) string {
	return filepath.Join(s.toolResults, dialogID, "tool_results")
}

func (s *Store) SaveToolResult(ctx context.Context, dialogID string, result domain.ToolResult, summary string) error {
	dir := s.dialogToolResultsDir(dialogID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tool_results dir: %w", err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal tool result: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, result.ToolCallID+".json"), body); err != nil {
		return err
	}

	meta := store.ToolResultMeta{
		DialogID:   dialogID,
		ToolCallID: result.ToolCallID,
		ToolName:   result.ToolName,
		Status:     result.Status,
		SizeBytes:  len(body),
		Summary:    summary,
		CreatedAt:  time.Now().UTC(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal tool result metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, result.ToolCallID+".meta.json"), metaJSON); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_results (dialog_id, tool_call_id, tool_name, status, size_bytes, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dialog_id, tool_call_id) DO UPDATE SET
		   tool_name=excluded.tool_name, status=excluded.status, size_bytes=excluded.size_bytes, summary=excluded.summary`,
		meta.DialogID, meta.ToolCallID, meta.ToolName, meta.Status, meta.SizeBytes, meta.Summary, meta.CreatedAt,
	)
	return err
}

func (s *Store) ListToolResults(ctx context.Context, dialogID string) ([]store.ToolResultMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_call_id, tool_name, status, size_bytes, summary, created_at
		 FROM tool_results WHERE dialog_id=? ORDER BY created_at DESC`, dialogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ToolResultMeta
	for rows.Next() {
		m := store.ToolResultMeta{DialogID: dialogID}
		if err := rows.Scan(&m.ToolCallID, &m.ToolName, &m.Status, &m.SizeBytes, &m.Summary, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetToolResult implements store.ToolResultStore.GetToolResult; Lookup
// below adapts it to tools.ToolResultLookup's narrower signature so
// *Store can be handed directly to the tool registry.
func (s *Store) GetToolResult(_ context.Context, dialogID, toolCallID string) (domain.ToolResult, bool, error) {
	path := filepath.Join(s.dialogToolResultsDir(dialogID), toolCallID+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.ToolResult{}, false, nil
	}
	if err != nil {
		return domain.ToolResult{}, false, fmt.Errorf("read tool result %s: %w", toolCallID, err)
	}
	var result domain.ToolResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.ToolResult{}, false, fmt.Errorf("parse tool result %s: %w", toolCallID, err)
	}
	return result, true, nil
}

// Lookup adapts Get to tools.ToolResultLookup's (dialogID, toolCallID)
// parameter order with no context argument.
func (s *Store) Lookup(dialogID, toolCallID string) (domain.ToolResult, bool, error) {
	return s.GetToolResult(context.Background(), dialogID, toolCallID)
}

// --- FileEditStore ---

func (s *Store) Record(ctx context.Context, record *domain.FileEditRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_edits (dialog_id, file_path, diff, checkpoint_id, message_idx, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.DialogID, record.FilePath, record.Diff, record.CheckpointID, record.MessageIdx, record.CreatedAt,
	)
	return err
}

func (s *Store) ListForDialog(ctx context.Context, dialogID string) ([]domain.FileEditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, diff, checkpoint_id, message_idx, created_at
		 FROM file_edits WHERE dialog_id=? ORDER BY created_at ASC`, dialogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FileEditRecord
	for rows.Next() {
		r := domain.FileEditRecord{DialogID: dialogID}
		if err := rows.Scan(&r.FilePath, &r.Diff, &r.CheckpointID, &r.MessageIdx, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
