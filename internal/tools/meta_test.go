package tools

import (
	"context"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

type fakeToolResults struct {
	results map[string]domain.ToolResult
}

func (f *fakeToolResults) Lookup(dialogID, toolCallID string) (domain.ToolResult, bool, error) {
	r, ok := f.results[dialogID+":"+toolCallID]
	return r, ok, nil
}

type fakeTitler struct{ title string }

func (f *fakeTitler) GenerateTitle(_ context.Context, _ string) (string, error) {
	return f.title, nil
}

func TestGetToolResultRefusesCurrentTurn(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.CurrentTurnCallIDs = map[string]bool{"call-1": true}
	ctx.ToolResults = &fakeToolResults{}

	res := GetToolResultTool{}.Execute(ctx, map[string]any{"tool_call_id": "call-1"})
	if res.Status != "tool_error" || res.Error.Code != domain.ToolErrValidation {
		t.Fatalf("expected validation tool_error, got %+v", res)
	}
}

func TestGetToolResultReturnsStored(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.ToolResults = &fakeToolResults{results: map[string]domain.ToolResult{
		"d1:call-2": {ToolCallID: "call-2", ToolName: "read_file", Status: "ok", Body: map[string]any{"content": "hi"}},
	}}

	res := GetToolResultTool{}.Execute(ctx, map[string]any{"tool_call_id": "call-2"})
	if res.Status != "ok" {
		t.Fatalf("expected ok, got %+v", res.Error)
	}
	if res.Body["tool_name"] != "read_file" {
		t.Fatalf("unexpected body: %+v", res.Body)
	}
}

func TestGetToolResultNotFound(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.ToolResults = &fakeToolResults{}
	res := GetToolResultTool{}.Execute(ctx, map[string]any{"tool_call_id": "nope"})
	if res.Status != "tool_error" || res.Error.Code != domain.ToolErrNotFound {
		t.Fatalf("expected not_found tool_error, got %+v", res)
	}
}

func TestGenerateDialogTitle(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.Titler = &fakeTitler{title: "Refactor the parser"}

	res := GenerateDialogTitleTool{}.Execute(ctx, map[string]any{})
	if res.Status != "ok" {
		t.Fatalf("expected ok, got %+v", res.Error)
	}
	if res.Body["title"] != "Refactor the parser" {
		t.Fatalf("unexpected title: %v", res.Body["title"])
	}
}
