// Package tools implements the tool registry and the standard tool set
// from spec.md §4.3: named polymorphic units dispatched by the agent
// loop, each producing a structured result that is summarized into a
// lazy reference for message history and stored in full out-of-band.
//
// The registry/dispatch shape is grounded on the teacher's
// pkg/controller/tools.go (one function per tool, switched on name by
// the caller) generalized into a proper Tool interface + map-based
// Registry so new tools register themselves instead of being wired
// into a single giant switch, matching spec.md's "stable dispatch map"
// wording more directly than the teacher's ad hoc switch does.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/rag"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/versioning"
)

// Context is the per-invocation context handed to a Tool's Execute,
// matching spec.md §4.3's ToolContext{project, dialog_id, versioning,
// rag, cancel_token, emit(event)}.
type Context struct {
	context.Context
	ProjectRoot string
	DialogID    string
	Versioning  *versioning.Tracker
	RAG         rag.Syncer
	Emit        func(events.Event)
	Logger      *slog.Logger

	// ToolResults backs get_tool_result; nil disables that tool (returns
	// a not_found tool_error).
	ToolResults ToolResultLookup
	// CurrentTurnCallIDs holds the tool_call_ids dispatched earlier in
	// this same agent-loop turn, so get_tool_result can refuse them
	// (spec.md §4.3: "must refuse ... calls from the current turn").
	CurrentTurnCallIDs map[string]bool
	// Titler backs generate_dialog_title; nil disables that tool.
	Titler DialogTitler
}

// ToolResultLookup is the minimal read path get_tool_result needs from
// the tool-result store.
type ToolResultLookup interface {
	Lookup(dialogID, toolCallID string) (domain.ToolResult, bool, error)
}

// DialogTitler generates a dialog title from its transcript so far,
// using the title workload (spec.md §4.3).
type DialogTitler interface {
	GenerateTitle(ctx context.Context, dialogID string) (string, error)
}

// Result is the full structured output of one tool invocation, stored
// in the tool-result store; only its Summary/size reach message
// history directly (spec.md §4.3 point 4).
type Result struct {
	Status  string         // "ok" | "tool_error"
	Body    map[string]any // the tool-specific payload on success
	Summary string
	Error   *ToolError
}

// ToolError is the structured error shape spec.md §4.3 requires: it is
// encoded into the result, never raised to the agent loop as a Go error.
type ToolError struct {
	Code      domain.ToolErrorCode
	Message   string
	ErrorType string
}

// Tool is one named, polymorphic capability the agent loop can invoke.
type Tool interface {
	Name() string
	// Schema is a JSON-schema object (as produced by invopop/jsonschema)
	// describing the argument object, used for the provider's
	// function-calling declaration. Dispatch does not validate args
	// against it; each Execute checks its own arguments.
	Schema() map[string]any
	// Mutating reports whether this tool writes to project files and so
	// must serialize against other mutating calls on the same path
	// (spec.md §4.3 point 1).
	Mutating() bool
	// Paths extracts the path(s) a mutating call will touch, from its
	// arguments, for path-lock acquisition. Non-mutating tools may
	// return nil.
	Paths(args map[string]any) []string
	Execute(ctx Context, args map[string]any) Result
}

// Registry is the stable dispatch map from tool name to Tool, plus the
// per-path/per-workdir locking discipline spec.md §4.3 point 1 requires.
type Registry struct {
	mu        sync.Mutex
	tools     map[string]Tool
	pathLocks map[string]*sync.Mutex
	workdirMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}, pathLocks: map[string]*sync.Mutex{}}
}

// NewStandardRegistry builds a Registry with every tool named in
// spec.md §4.3's wire contract registered. renderer may be nil (no
// headless-browser fallback for web_fetch). defaultCommandTimeout
// overrides run_command's built-in default when non-zero
// (config.SandboxConfig.DefaultCommandTimeoutSeconds).
func NewStandardRegistry(renderer JSRenderer, defaultCommandTimeout time.Duration) *Registry {
	r := NewRegistry()
	r.Register(ReadFileTool{})
	r.Register(WriteToFileTool{})
	r.Register(ReplaceInFileTool{})
	r.Register(DeleteFileTool{})
	r.Register(ListFilesTool{})
	r.Register(SearchFilesTool{})
	r.Register(RunCommandTool{DefaultTimeout: defaultCommandTimeout})
	r.Register(NewWebSearchTool())
	r.Register(NewWebFetchTool(renderer))
	r.Register(GetToolResultTool{})
	r.Register(GenerateDialogTitleTool{})
	return r
}

// Register adds a tool, keyed by its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool named name, or (nil, false) if unregistered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the provider-facing function-calling declarations for
// every registered tool, used to bind tools into the LLM request.
func (r *Registry) Specs() []ToolSpecLite {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ToolSpecLite
	for _, t := range r.tools {
		out = append(out, ToolSpecLite{Name: t.Name(), Schema: t.Schema()})
	}
	return out
}

// ToolSpecLite is the minimal shape Specs returns; the llm package
// layers description text on top per provider.
type ToolSpecLite struct {
	Name   string
	Schema map[string]any
}

func (r *Registry) pathLock(path string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.pathLocks[path]
	if !ok {
		m = &sync.Mutex{}
		r.pathLocks[path] = m
	}
	return m
}

// Dispatch executes one tool call against args, acquiring whatever
// path/workdir locks its Mutating/Paths declare call for (spec.md §4.3
// point 1). Unknown tool names and malformed args never panic: they
// produce a tool_error result instead, since tool errors must not reach
// the agent loop as Go errors (spec.md §4.3).
func (r *Registry) Dispatch(ctx Context, call domain.ToolCall) Result {
	t, ok := r.Get(call.Name)
	if !ok {
		return errorResult(domain.ToolErrNotFound, fmt.Sprintf("unknown tool %q", call.Name), "")
	}

	if t.Name() == "run_command" {
		r.workdirMu.Lock()
		defer r.workdirMu.Unlock()
		return safeExecute(t, ctx, call.Args)
	}

	if t.Mutating() {
		paths := append([]string(nil), t.Paths(call.Args)...)
		sort.Strings(paths)
		locks := make([]*sync.Mutex, 0, len(paths))
		for _, p := range paths {
			locks = append(locks, r.pathLock(p))
		}
		for _, l := range locks {
			l.Lock()
		}
		defer func() {
			for _, l := range locks {
				l.Unlock()
			}
		}()
	}

	return safeExecute(t, ctx, call.Args)
}

// safeExecute recovers a panicking tool into a tool_error "exception"
// result rather than letting it crash the agent loop.
func safeExecute(t Tool, ctx Context, args map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(domain.ToolErrException, fmt.Sprintf("tool panicked: %v", r), "panic")
		}
	}()
	return t.Execute(ctx, args)
}

func errorResult(code domain.ToolErrorCode, message, errType string) Result {
	return Result{
		Status: "tool_error",
		Error:  &ToolError{Code: code, Message: message, ErrorType: errType},
	}
}

// StringArg reads a required string argument, returning a validation
// tool_error if missing/wrong-typed.
func StringArg(args map[string]any, key string) (string, *Result) {
	v, ok := args[key]
	if !ok {
		r := errorResult(domain.ToolErrValidation, fmt.Sprintf("missing required argument %q", key), "")
		return "", &r
	}
	s, ok := v.(string)
	if !ok {
		r := errorResult(domain.ToolErrValidation, fmt.Sprintf("argument %q must be a string", key), "")
		return "", &r
	}
	return s, nil
}

// OptionalStringArg reads an optional string argument, returning def
// when absent.
func OptionalStringArg(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// MarshalSummaryPreview truncates body to at most 500 characters on
// whole-line boundaries, per spec.md §4.3 point 4's
// "truncated_preview ≤ 500 chars with whole-line truncation".
func MarshalSummaryPreview(body string) string {
	const limit = 500
	if len(body) <= limit {
		return body
	}
	cut := body[:limit]
	if idx := lastNewline(cut); idx > 0 {
		return cut[:idx]
	}
	return cut
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}

// marshalArgsPreview renders args as compact JSON for debug output. No
// tool in this package calls it.
func marshalArgsPreview(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(b)
}
