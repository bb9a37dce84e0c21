package domain

import "time"

// Dialog is a persisted conversation within a project.
type Dialog struct {
	ID                string     `json:"id"`
	Title             *string    `json:"title,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ActiveSession     string     `json:"active_session"`
	InitialCheckpoint string     `json:"initial_checkpoint"`
	LastApprovedAt    *time.Time `json:"last_approved_at,omitempty"`

	// Summary is the persisted summarization of every message up to (and
	// including) SummarizedUpToIdx, produced by the agent loop's history
	// summarization pass (spec.md §4.2) and substituted for that prefix
	// on every subsequent turn instead of resummarizing it.
	Summary           string `json:"summary,omitempty"`
	SummarizedUpToIdx int    `json:"summarized_up_to_idx,omitempty"`
}

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResultRef is the lazy pointer to a tool result kept in the message
// stream; the full JSON body lives out-of-band in the tool-result store.
type ToolResultRef struct {
	ToolCallID       string         `json:"tool_call_id"`
	ToolName         string         `json:"tool_name"`
	Status           string         `json:"status"` // "ok" | "tool_error"
	Metadata         ToolResultMeta `json:"metadata"`
	ResultRef        string         `json:"result_ref"`
}

// ToolResultMeta is the inline summary metadata for a tool result.
type ToolResultMeta struct {
	SizeBytes        int    `json:"size_bytes"`
	Summary          string `json:"summary"`
	TruncatedPreview string `json:"truncated_preview,omitempty"`
}

// Message is one entry of a dialog's ordered, append-only history.
//
// Exactly one of the type-specific payload fields is populated, selected
// by Type.
type Message struct {
	DialogID string    `json:"dialog_id"`
	Idx      int       `json:"idx"`
	Type     Role      `json:"type"`
	Content  string    `json:"content"`
	Created  time.Time `json:"created_at"`

	// user
	CheckpointID string `json:"checkpoint_id,omitempty"`
	SessionName  string `json:"session_name,omitempty"`

	// assistant
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// tool
	ToolResult *ToolResultRef `json:"tool_result,omitempty"`
}

// ReasoningBlock is a lazily-loaded reasoning trace attached to the
// assistant message that immediately follows it.
type ReasoningBlock struct {
	DialogID  string    `json:"dialog_id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`
}

// ToolResult is the full structured JSON output of one tool invocation.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Status     string         `json:"status"`
	Body       map[string]any `json:"body"`
	SizeBytes  int            `json:"size_bytes"`
}

// FileEditRecord is an append-only audit-trail entry for one file write.
type FileEditRecord struct {
	DialogID         string    `json:"dialog_id"`
	FilePath         string    `json:"file_path"`
	CompressedDiff   []byte    `json:"-"`
	Diff             string    `json:"diff,omitempty"`
	CheckpointID     string    `json:"checkpoint_id"`
	MessageIdx       int       `json:"message_idx"`
	CreatedAt        time.Time `json:"created_at"`
}

// Checkpoint is a content-addressed commit in a dialog's checkpoint DAG.
type Checkpoint struct {
	CommitID   string    `json:"commit_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	TreeRoot   string    `json:"tree_root"`
	Message    string    `json:"message"`
	AuthorTime time.Time `json:"author_time"`
}

// Session is a per-dialog work bucket accumulating checkpoints until
// approved or reset.
type Session struct {
	SessionName     string         `json:"session_name"`
	RefName         string         `json:"ref_name"`
	Status          SessionStatus  `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	ApprovedCommit  string         `json:"approved_commit,omitempty"`
	CheckpointsCount int           `json:"checkpoints_count"`
}

// ChangedFile describes one path's diff against the main ref, as returned
// by get_staged_files.
type ChangedFile struct {
	Path        string            `json:"path"`
	Status      ChangedFileStatus `json:"status"`
	Additions   int               `json:"additions"`
	Deletions   int               `json:"deletions"`
	Diff        *string           `json:"diff,omitempty"`
	BaseContent *string           `json:"base_content,omitempty"`
	IsBinary    bool              `json:"is_binary"`
	IsTooLarge  bool              `json:"is_too_large"`
}

// ServerStatusDoc is the contents of status.json.
type ServerStatusDoc struct {
	ServerStatus   ServerStatus `json:"server_status"`
	ServerPID      int          `json:"server_pid"`
	Port           int          `json:"port"`
	ServerStarted  *time.Time   `json:"server_started_at,omitempty"`
	ServerUpdated  *time.Time   `json:"server_updated_at,omitempty"`
	ServerError    string       `json:"server_error,omitempty"`
	ScanStatus     ScanStatus   `json:"scan_status,omitempty"`
	ScanProgress   int          `json:"scan_progress,omitempty"`
	ScanStartedAt  *time.Time   `json:"scan_started_at,omitempty"`
	ScanUpdatedAt  *time.Time   `json:"scan_updated_at,omitempty"`
	ScanPID        int          `json:"scan_pid,omitempty"`
	ScanTaskID     string       `json:"scan_task_id,omitempty"`
	ConfigValid    bool         `json:"config_valid"`
	ConfigErrors   []string     `json:"config_errors,omitempty"`
}
