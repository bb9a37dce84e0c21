package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// defaultCommandTimeout is used when a run_command call omits
// timeout_seconds (spec.md §4.3: "bounded wall-clock timeout
// (configurable default)").
const defaultCommandTimeout = 60 * time.Second

const maxCommandOutputBytes = 200 * 1024

// CommandRunner executes one shell command and returns its captured
// output. internal/tools/docker.Runner implements this structurally
// (container-isolated execution); the zero value of RunCommandTool
// falls back to a local subprocess via localRunner.
type CommandRunner interface {
	Run(ctx context.Context, workdir, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)
}

// RunCommandTool implements run_command: a bounded-timeout shell
// invocation against the project workdir, grounded on the teacher's
// toolRunIPythonCell but narrowed from its interactive Docker+gRPC
// sandbox (PromptModel/PromptSelf callbacks mid-cell) down to a single
// command/single result round trip, since spec.md's run_command has no
// equivalent callback. Runner nil means "run locally"; set it to an
// internal/tools/docker.Runner to isolate commands in a container
// instead.
// It never calls StageFile — command-caused edits surface through the
// next checkpoint's workdir-vs-HEAD diff, per spec.md §4.3.
type RunCommandTool struct {
	Runner CommandRunner
	// DefaultTimeout overrides defaultCommandTimeout when a call omits
	// timeout_seconds (config.SandboxConfig.DefaultCommandTimeoutSeconds).
	// Zero means "use defaultCommandTimeout".
	DefaultTimeout time.Duration
}

func (RunCommandTool) Name() string                  { return "run_command" }
func (RunCommandTool) Mutating() bool                { return false }
func (RunCommandTool) Paths(map[string]any) []string { return nil }
type runCommandArgs struct {
	Command        string  `json:"command" jsonschema:"required,description=Shell command to run in the project workdir"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" jsonschema:"description=Maximum seconds to allow before the command is killed"`
}

func (RunCommandTool) Schema() map[string]any { return argsSchema(&runCommandArgs{}) }

func (t RunCommandTool) Execute(ctx Context, args map[string]any) Result {
	command, errRes := StringArg(args, "command")
	if errRes != nil {
		return *errRes
	}

	timeout := defaultCommandTimeout
	if t.DefaultTimeout > 0 {
		timeout = t.DefaultTimeout
	}
	if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	runner := t.Runner
	if runner == nil {
		runner = localRunner{}
	}

	stdout, stderr, exitCode, err := runner.Run(ctx.Context, ctx.ProjectRoot, command, timeout)
	if err == context.DeadlineExceeded {
		return errorResult(domain.ToolErrTimeout, fmt.Sprintf("command timed out after %s", timeout), "")
	}
	if err == context.Canceled {
		return errorResult(domain.ToolErrCancelled, "command cancelled", "")
	}
	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}

	out := truncateOutput(stdout)
	errOut := truncateOutput(stderr)
	combined := out
	if errOut != "" {
		combined += "\n" + errOut
	}

	return Result{
		Status: "ok",
		Body: map[string]any{
			"command":   command,
			"exit_code": exitCode,
			"stdout":    out,
			"stderr":    errOut,
		},
		Summary: fmt.Sprintf("Exit %d, %d chars", exitCode, len(combined)),
	}
}

// localRunner is the default CommandRunner: a bounded-timeout "sh -c"
// subprocess against workdir, matching every other_examples/
// run_command-equivalent that has no sandbox of its own.
type localRunner struct{}

func (localRunner) Run(ctx context.Context, workdir, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = workdir
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return "", "", 0, context.DeadlineExceeded
	}
	if runCtx.Err() == context.Canceled {
		return "", "", 0, context.Canceled
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return stdoutBuf.String(), stderrBuf.String(), exitErr.ExitCode(), nil
		}
		return "", "", 0, runErr
	}
	return stdoutBuf.String(), stderrBuf.String(), 0, nil
}

func truncateOutput(s string) string {
	if len(s) <= maxCommandOutputBytes {
		return s
	}
	return s[:maxCommandOutputBytes] + "\n...[truncated]"
}
