package chat

import (
	"fmt"
	"strings"
)

// staticInstructionsTemplate describes the agent's environment and tool
// surface, grounded on the teacher's own staticInstructions constant in
// pkg/controller/controller.go — same three-section shape (environment,
// available tools, guidelines), rewritten for a file-editing coding
// assistant instead of operative's IPython sandbox.
const staticInstructionsTemplate = `You are a coding assistant with direct access to this project's files and a shell.

## Environment

- Operating system: %s
- Shell: %s
- IDE: %s

## Available Tools

- read_file, write_to_file, replace_in_file, delete_file: inspect and edit project files. Every write is checkpointed and can be undone.
- list_files, search_files: explore the project tree and find text across files.
- run_command: run a shell command in the project directory with a bounded timeout.
- web_search, web_fetch: look things up online when local context isn't enough.
- get_tool_result: re-read the full output of an earlier tool call in this dialog (not the current turn's own calls).
- generate_dialog_title: produce a short title for this dialog after the first exchange.

## Guidelines

- Prefer the smallest edit that solves the problem.
- Read a file before editing it unless you already have its current content from this dialog.
- Use run_command for builds, tests, and anything that isn't a file edit.`

// buildInstructions assembles the system prompt: environment
// (OS/shell/IDE) and the caller-supplied formatted code context. The
// persisted dialog summary and the recent message window are not part
// of this text: runTurn sends both as History, the summary as a leading
// user-role message.
func (s *Service) buildInstructions(codeContext string) string {
	osName, shell, ide := s.Env.OS, s.Env.Shell, s.Env.IDE
	if osName == "" {
		osName = "unknown"
	}
	if shell == "" {
		shell = "unknown"
	}
	if ide == "" {
		ide = "none"
	}

	parts := []string{fmt.Sprintf(staticInstructionsTemplate, osName, shell, ide)}
	if codeContext != "" {
		parts = append(parts, "## Code Context\n\n"+codeContext)
	}
	return strings.Join(parts, "\n\n")
}
