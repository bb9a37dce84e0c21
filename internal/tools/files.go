package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/versioning"
)

// resolvePath joins a project-relative path onto root and rejects any
// path that escapes it, guarding against path-traversal the way the
// original implementation's tool layer does (SPEC_FULL.md supplemented
// feature: tool file-restriction/path-traversal guard).
func resolvePath(root, rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("path escapes project root: %s", rel)
	}
	full := filepath.Join(root, clean)
	if !strings.HasPrefix(full, filepath.Clean(root)+string(os.PathSeparator)) && full != filepath.Clean(root) {
		return "", fmt.Errorf("path escapes project root: %s", rel)
	}
	return full, nil
}

func relPath(root, full string) string {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

// ReadFileTool implements the read_file tool.
type ReadFileTool struct{}

func (ReadFileTool) Name() string   { return "read_file" }
func (ReadFileTool) Mutating() bool { return false }
func (ReadFileTool) Paths(map[string]any) []string { return nil }
type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Project-relative file path"`
}

func (ReadFileTool) Schema() map[string]any { return argsSchema(&readFileArgs{}) }

func (ReadFileTool) Execute(ctx Context, args map[string]any) Result {
	path, errRes := StringArg(args, "path")
	if errRes != nil {
		return *errRes
	}
	full, err := resolvePath(ctx.ProjectRoot, path)
	if err != nil {
		return errorResult(domain.ToolErrValidation, err.Error(), "")
	}
	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(domain.ToolErrNotFound, fmt.Sprintf("file not found: %s", path), "")
		}
		return errorResult(domain.ToolErrPermission, err.Error(), "")
	}
	lines := strings.Count(string(content), "\n") + 1
	return Result{
		Status:  "ok",
		Body:    map[string]any{"path": path, "content": string(content), "lines": lines},
		Summary: fmt.Sprintf("Read file: %s (%d lines)", path, lines),
	}
}

// WriteToFileTool implements write_to_file.
type WriteToFileTool struct{}

func (WriteToFileTool) Name() string   { return "write_to_file" }
func (WriteToFileTool) Mutating() bool { return true }
func (WriteToFileTool) Paths(args map[string]any) []string {
	if p, ok := args["path"].(string); ok {
		return []string{p}
	}
	return nil
}
type writeToFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Project-relative file path"`
	Content string `json:"content" jsonschema:"required,description=Full file contents to write"`
}

func (WriteToFileTool) Schema() map[string]any { return argsSchema(&writeToFileArgs{}) }

func (WriteToFileTool) Execute(ctx Context, args map[string]any) Result {
	path, errRes := StringArg(args, "path")
	if errRes != nil {
		return *errRes
	}
	content, errRes := StringArg(args, "content")
	if errRes != nil {
		return *errRes
	}
	full, err := resolvePath(ctx.ProjectRoot, path)
	if err != nil {
		return errorResult(domain.ToolErrValidation, err.Error(), "")
	}

	token := "write:" + path
	_ = ctx.Versioning.StartEdit(token, []string{path})

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		_ = ctx.Versioning.AbortEdit(token)
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	before, _ := os.ReadFile(full)
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		_ = ctx.Versioning.AbortEdit(token)
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	ctx.Versioning.FinalizeEdit(token)

	if err := ctx.Versioning.StageFile(path); err != nil {
		ctx.Logger.Warn("stage_file after write failed", "path", path, "err", err)
	}
	diff, _, _ := versioning.UnifiedDiff(path, before, []byte(content))
	if ctx.Emit != nil {
		ctx.Emit(events.FileEdit(ctx.DialogID, path, diff, ""))
	}
	if ctx.RAG != nil {
		if err := ctx.RAG.OnMutate(ctx.Context, path); err != nil {
			ctx.Logger.Warn("rag reindex after write failed", "path", path, "err", err)
		}
	}

	return Result{
		Status:  "ok",
		Body:    map[string]any{"path": path, "bytes_written": len(content)},
		Summary: fmt.Sprintf("Wrote file: %s (%d bytes)", path, len(content)),
	}
}

// ReplaceInFileTool implements replace_in_file: an exact-match
// find/replace, the search-and-replace counterpart to write_to_file for
// targeted edits.
type ReplaceInFileTool struct{}

func (ReplaceInFileTool) Name() string   { return "replace_in_file" }
func (ReplaceInFileTool) Mutating() bool { return true }
func (ReplaceInFileTool) Paths(args map[string]any) []string {
	if p, ok := args["path"].(string); ok {
		return []string{p}
	}
	return nil
}
type replaceInFileArgs struct {
	Path       string `json:"path" jsonschema:"required,description=Project-relative file path"`
	OldContent string `json:"old_content" jsonschema:"required,description=Exact text to find"`
	NewContent string `json:"new_content" jsonschema:"required,description=Replacement text"`
}

func (ReplaceInFileTool) Schema() map[string]any { return argsSchema(&replaceInFileArgs{}) }

func (ReplaceInFileTool) Execute(ctx Context, args map[string]any) Result {
	path, errRes := StringArg(args, "path")
	if errRes != nil {
		return *errRes
	}
	oldContent, errRes := StringArg(args, "old_content")
	if errRes != nil {
		return *errRes
	}
	newContent, errRes := StringArg(args, "new_content")
	if errRes != nil {
		return *errRes
	}
	full, err := resolvePath(ctx.ProjectRoot, path)
	if err != nil {
		return errorResult(domain.ToolErrValidation, err.Error(), "")
	}

	token := "replace:" + path
	_ = ctx.Versioning.StartEdit(token, []string{path})

	before, err := os.ReadFile(full)
	if err != nil {
		_ = ctx.Versioning.AbortEdit(token)
		if os.IsNotExist(err) {
			return errorResult(domain.ToolErrNotFound, fmt.Sprintf("file not found: %s", path), "")
		}
		return errorResult(domain.ToolErrPermission, err.Error(), "")
	}
	if !strings.Contains(string(before), oldContent) {
		_ = ctx.Versioning.AbortEdit(token)
		return errorResult(domain.ToolErrValidation, "old_content not found in file", "")
	}
	updated := strings.Replace(string(before), oldContent, newContent, 1)
	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		_ = ctx.Versioning.AbortEdit(token)
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	ctx.Versioning.FinalizeEdit(token)

	if err := ctx.Versioning.StageFile(path); err != nil {
		ctx.Logger.Warn("stage_file after replace failed", "path", path, "err", err)
	}
	diff, _, _ := versioning.UnifiedDiff(path, before, []byte(updated))
	if ctx.Emit != nil {
		ctx.Emit(events.FileEdit(ctx.DialogID, path, diff, ""))
	}
	if ctx.RAG != nil {
		if err := ctx.RAG.OnMutate(ctx.Context, path); err != nil {
			ctx.Logger.Warn("rag reindex after replace failed", "path", path, "err", err)
		}
	}

	return Result{
		Status:  "ok",
		Body:    map[string]any{"path": path},
		Summary: fmt.Sprintf("Replaced content in: %s", path),
	}
}

// DeleteFileTool implements delete_file.
type DeleteFileTool struct{}

func (DeleteFileTool) Name() string   { return "delete_file" }
func (DeleteFileTool) Mutating() bool { return true }
func (DeleteFileTool) Paths(args map[string]any) []string {
	if p, ok := args["path"].(string); ok {
		return []string{p}
	}
	return nil
}
type deleteFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Project-relative file path"`
}

func (DeleteFileTool) Schema() map[string]any { return argsSchema(&deleteFileArgs{}) }

func (DeleteFileTool) Execute(ctx Context, args map[string]any) Result {
	path, errRes := StringArg(args, "path")
	if errRes != nil {
		return *errRes
	}
	full, err := resolvePath(ctx.ProjectRoot, path)
	if err != nil {
		return errorResult(domain.ToolErrValidation, err.Error(), "")
	}

	token := "delete:" + path
	_ = ctx.Versioning.StartEdit(token, []string{path})
	if err := os.Remove(full); err != nil {
		_ = ctx.Versioning.AbortEdit(token)
		if os.IsNotExist(err) {
			return errorResult(domain.ToolErrNotFound, fmt.Sprintf("file not found: %s", path), "")
		}
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	ctx.Versioning.FinalizeEdit(token)

	ctx.Versioning.StageFileDeletion(path)
	if ctx.Emit != nil {
		ctx.Emit(events.FileEdit(ctx.DialogID, path, "", ""))
	}
	if ctx.RAG != nil {
		if err := ctx.RAG.OnDelete(ctx.Context, path); err != nil {
			ctx.Logger.Warn("rag remove after delete failed", "path", path, "err", err)
		}
	}

	return Result{
		Status:  "ok",
		Body:    map[string]any{"path": path},
		Summary: fmt.Sprintf("Deleted file: %s", path),
	}
}

// ListFilesTool implements list_files: a non-recursive-by-default
// directory listing. Ignore rules (.gitignore and the default excludes)
// are not applied.
type ListFilesTool struct{}

func (ListFilesTool) Name() string                          { return "list_files" }
func (ListFilesTool) Mutating() bool                        { return false }
func (ListFilesTool) Paths(map[string]any) []string         { return nil }
type listFilesArgs struct {
	Path      string `json:"path,omitempty" jsonschema:"description=Directory to list, relative to project root"`
	Recursive bool   `json:"recursive,omitempty"`
}

func (ListFilesTool) Schema() map[string]any { return argsSchema(&listFilesArgs{}) }

func (ListFilesTool) Execute(ctx Context, args map[string]any) Result {
	dirArg := OptionalStringArg(args, "path", ".")
	recursive, _ := args["recursive"].(bool)

	full, err := resolvePath(ctx.ProjectRoot, dirArg)
	if err != nil {
		return errorResult(domain.ToolErrValidation, err.Error(), "")
	}
	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		return errorResult(domain.ToolErrNotFound, fmt.Sprintf("directory not found: %s", dirArg), "")
	}

	var entries []string
	if recursive {
		_ = filepath.Walk(full, func(p string, fi os.FileInfo, err error) error {
			if err != nil || p == full {
				return nil
			}
			entries = append(entries, relPath(ctx.ProjectRoot, p))
			return nil
		})
	} else {
		items, err := os.ReadDir(full)
		if err != nil {
			return errorResult(domain.ToolErrPermission, err.Error(), "")
		}
		for _, it := range items {
			entries = append(entries, relPath(ctx.ProjectRoot, filepath.Join(full, it.Name())))
		}
	}
	sort.Strings(entries)

	return Result{
		Status:  "ok",
		Body:    map[string]any{"path": dirArg, "entries": entries},
		Summary: fmt.Sprintf("Listed %d entries under %s", len(entries), dirArg),
	}
}

// SearchFilesTool implements search_files: a plain substring search
// across text files under a directory, returning per-file line matches.
type SearchFilesTool struct{}

func (SearchFilesTool) Name() string                          { return "search_files" }
func (SearchFilesTool) Mutating() bool                        { return false }
func (SearchFilesTool) Paths(map[string]any) []string         { return nil }
type searchFilesArgs struct {
	Query string `json:"query" jsonschema:"required,description=Substring or pattern to search for"`
	Path  string `json:"path,omitempty" jsonschema:"description=Directory to search under, relative to project root"`
}

func (SearchFilesTool) Schema() map[string]any { return argsSchema(&searchFilesArgs{}) }

type fileMatch struct {
	Path  string `json:"path"`
	Lines []int  `json:"lines"`
}

func (SearchFilesTool) Execute(ctx Context, args map[string]any) Result {
	query, errRes := StringArg(args, "query")
	if errRes != nil {
		return *errRes
	}
	dirArg := OptionalStringArg(args, "path", ".")
	full, err := resolvePath(ctx.ProjectRoot, dirArg)
	if err != nil {
		return errorResult(domain.ToolErrValidation, err.Error(), "")
	}

	var matches []fileMatch
	totalMatches := 0
	_ = filepath.Walk(full, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		content, rerr := os.ReadFile(p)
		if rerr != nil || isBinaryContent(content) {
			return nil
		}
		var lines []int
		for i, line := range strings.Split(string(content), "\n") {
			if strings.Contains(line, query) {
				lines = append(lines, i+1)
				totalMatches++
			}
		}
		if len(lines) > 0 {
			matches = append(matches, fileMatch{Path: relPath(ctx.ProjectRoot, p), Lines: lines})
		}
		return nil
	})

	return Result{
		Status:  "ok",
		Body:    map[string]any{"query": query, "matches": matches},
		Summary: fmt.Sprintf("Found %d matches in %d files", totalMatches, len(matches)),
	}
}

func isBinaryContent(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}
