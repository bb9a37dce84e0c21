package tools

import (
	"encoding/json"
	"fmt"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// GetToolResultTool implements get_tool_result: a read-back into an
// earlier call's full structured result, guarded against referencing
// the current turn (spec.md §4.3 special tools).
type GetToolResultTool struct{}

func (GetToolResultTool) Name() string                        { return "get_tool_result" }
func (GetToolResultTool) Mutating() bool                       { return false }
func (GetToolResultTool) Paths(map[string]any) []string        { return nil }
type getToolResultArgs struct {
	ToolCallID string `json:"tool_call_id" jsonschema:"required,description=ID of a prior tool call whose full result should be retrieved"`
}

func (GetToolResultTool) Schema() map[string]any { return argsSchema(&getToolResultArgs{}) }

func (GetToolResultTool) Execute(ctx Context, args map[string]any) Result {
	toolCallID, errRes := StringArg(args, "tool_call_id")
	if errRes != nil {
		return *errRes
	}
	if ctx.CurrentTurnCallIDs[toolCallID] {
		return errorResult(domain.ToolErrValidation, "not for current-turn calls", "")
	}
	if ctx.ToolResults == nil {
		return errorResult(domain.ToolErrNotFound, fmt.Sprintf("no result store configured for %q", toolCallID), "")
	}
	stored, found, err := ctx.ToolResults.Lookup(ctx.DialogID, toolCallID)
	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	if !found {
		return errorResult(domain.ToolErrNotFound, fmt.Sprintf("no stored result for tool_call_id %q", toolCallID), "")
	}

	body, _ := json.Marshal(stored.Body)
	return Result{
		Status: "ok",
		Body: map[string]any{
			"tool_call_id": toolCallID,
			"tool_name":    stored.ToolName,
			"status":       stored.Status,
			"result":       stored.Body,
		},
		Summary: fmt.Sprintf("Retrieved result of %s (%d bytes)", stored.ToolName, len(body)),
	}
}

// GenerateDialogTitleTool implements generate_dialog_title: it defers
// to the chat service's Titler (bound to the title workload),
// keeping the model-calling concern out of the tool layer itself.
type GenerateDialogTitleTool struct{}

func (GenerateDialogTitleTool) Name() string                        { return "generate_dialog_title" }
func (GenerateDialogTitleTool) Mutating() bool                       { return false }
func (GenerateDialogTitleTool) Paths(map[string]any) []string        { return nil }
type generateDialogTitleArgs struct{}

func (GenerateDialogTitleTool) Schema() map[string]any { return argsSchema(&generateDialogTitleArgs{}) }

func (GenerateDialogTitleTool) Execute(ctx Context, _ map[string]any) Result {
	if ctx.Titler == nil {
		return errorResult(domain.ToolErrException, "no titler configured", "")
	}
	title, err := ctx.Titler.GenerateTitle(ctx.Context, ctx.DialogID)
	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	return Result{
		Status:  "ok",
		Body:    map[string]any{"title": title},
		Summary: fmt.Sprintf("Generated dialog title: %s", title),
	}
}
