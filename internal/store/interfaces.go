// Package store defines the persistence interfaces for dialog state:
// the message/reasoning/tool-result/file-edit history backing
// spec.md §6's dialog endpoints. Checkpoint/session state is owned
// separately by internal/versioning (see DESIGN.md's Open Question
// decision on session-metadata persistence); this package never
// duplicates it.
package store

import (
	"context"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// DialogIndex manages dialogs/index.json: the dialog list plus the
// current-dialog pointer (spec.md §6's GET/PATCH /api/dialogs/current).
type DialogIndex interface {
	Create(ctx context.Context, d *domain.Dialog) error
	Get(ctx context.Context, id string) (domain.Dialog, bool, error)
	List(ctx context.Context) ([]domain.Dialog, error)
	Update(ctx context.Context, d *domain.Dialog) error
	Delete(ctx context.Context, id string) error
	CurrentDialogID(ctx context.Context) (string, error)
	SetCurrentDialogID(ctx context.Context, id string) error
}

// HistoryPage is one cursor-paginated slice of a dialog's message
// history, matching spec.md §6's
// {events[], total_events, has_more, first_idx, last_idx}.
type HistoryPage struct {
	Messages     []domain.Message
	TotalEvents  int
	HasMore      bool
	FirstIdx     int
	LastIdx      int
}

// MessageStore is the append-only ordered message log per dialog.
type MessageStore interface {
	// Append assigns the next dense idx for dialogID and persists msg.
	Append(ctx context.Context, msg *domain.Message) error
	// History returns messages with idx < before (or all, if before<=0),
	// newest-bounded, at most limit entries, oldest-first within the page.
	History(ctx context.Context, dialogID string, limit, before int) (HistoryPage, error)
}

// ReasoningStore holds the reasoning trace attached to the assistant
// message immediately following it (lazily loaded, spec.md §3).
type ReasoningStore interface {
	SaveReasoning(ctx context.Context, block *domain.ReasoningBlock, messageIdx int) error
	GetReasoning(ctx context.Context, dialogID string, messageIdx int) (domain.ReasoningBlock, bool, error)
}

// ToolResultMeta is one row of the tool-result metadata table — the
// lazy reference kept in message history plus list/fetch bookkeeping.
type ToolResultMeta struct {
	DialogID   string
	ToolCallID string
	ToolName   string
	Status     string
	SizeBytes  int
	Summary    string
	CreatedAt  time.Time
}

// ToolResultStore persists the full structured tool-result body
// out-of-band (spec.md §4.3 point 4) and the lightweight metadata row
// used for listing and the lazy message-history reference.
type ToolResultStore interface {
	// SaveToolResult writes the full result body plus its metadata row.
	SaveToolResult(ctx context.Context, dialogID string, result domain.ToolResult, summary string) error
	// ListToolResults returns metadata rows for dialogID, newest-first.
	ListToolResults(ctx context.Context, dialogID string) ([]ToolResultMeta, error)
	// GetToolResult returns the full structured result for one call.
	GetToolResult(ctx context.Context, dialogID, toolCallID string) (domain.ToolResult, bool, error)
}

// FileEditStore is the append-only audit trail of file edits, used by
// dialog history reconstruction to attach diffs to their checkpoint.
type FileEditStore interface {
	Record(ctx context.Context, record *domain.FileEditRecord) error
	ListForDialog(ctx context.Context, dialogID string) ([]domain.FileEditRecord, error)
}
