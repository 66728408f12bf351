// Package terminal exposes shell execution inside the agent's workspace.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
)

const (
	defaultTimeout = 2 * time.Minute
	maxTimeout     = 10 * time.Minute
	minTimeout     = 5 * time.Second
	defaultLines   = 100
	minLines       = 5
	maxLines       = 500
	maxChars       = 16000
)

// execResult is the JSON shape handed back to the model.
type execResult struct {
	Command         string `json:"command"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	Status          string `json:"status"`
}

// NewExecuteTool creates a tool that runs shell commands in the agent's
// workspace. The workspace is an isolated container, so the command surface
// is deliberately unrestricted.
func NewExecuteTool(executor sandbox.Executor) agent.Tool {
	return agent.Tool{
		Name: "terminal_execute",
		Description: `Run a shell command inside your isolated workspace and return its output.

The workspace persists between commands: files you write, packages you
install, and background state all survive to the next call. Long scans
should raise timeout_seconds accordingly. Output is truncated to keep the
conversation manageable; write large results to files and inspect them in
pieces.`,
		Schema: `{
			"type": "object",
			"properties": {
				"command": {"type":"string","description":"Shell command line, run with /bin/sh -c"},
				"timeout_seconds": {"type":"integer","minimum":5,"maximum":600,"description":"Maximum seconds to allow the command to run (default: 120)"},
				"max_output_lines": {"type":"integer","minimum":5,"maximum":500,"description":"Maximum stdout/stderr lines to return (default: 100)"}
			},
			"required": ["command"]
		}`,
		Run: func(ctx context.Context, args map[string]any, st *agent.State) (agent.Output, error) {
			command, ok := args["command"].(string)
			if !ok || strings.TrimSpace(command) == "" {
				return agent.Output{}, fmt.Errorf("command must be a non-empty string")
			}

			info, ok := st.Sandbox()
			if !ok {
				return agent.Output{}, fmt.Errorf("no workspace provisioned for this agent")
			}

			timeout := parseTimeout(args["timeout_seconds"])
			lines := parseMaxLines(args["max_output_lines"])

			result, err := executor.Exec(ctx, info.WorkspaceID, command, timeout)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return agent.Output{}, err
			}

			stdout, stdoutTruncated := truncate(result.Stdout, lines)
			stderr, stderrTruncated := truncate(result.Stderr, lines)

			out := execResult{
				Command:         command,
				ExitCode:        result.Code,
				Stdout:          stdout,
				Stderr:          stderr,
				StdoutTruncated: stdoutTruncated,
				StderrTruncated: stderrTruncated,
				TimedOut:        result.TimedOut || errors.Is(err, context.DeadlineExceeded),
				Status:          "ok",
			}
			if out.TimedOut || out.ExitCode != 0 {
				out.Status = "failed"
			}

			resultJSON, marshalErr := json.Marshal(out)
			if marshalErr != nil {
				return agent.Output{}, marshalErr
			}
			return agent.Output{Content: string(resultJSON)}, nil
		},
	}
}

func parseTimeout(value any) time.Duration {
	var seconds float64
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	default:
		return defaultTimeout
	}
	if seconds <= 0 {
		return defaultTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout < minTimeout {
		timeout = minTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	return timeout
}

func parseMaxLines(value any) int {
	var lines int
	switch v := value.(type) {
	case float64:
		lines = int(v)
	case int:
		lines = v
	default:
		return defaultLines
	}
	if lines <= 0 {
		return defaultLines
	}
	if lines < minLines {
		lines = minLines
	}
	if lines > maxLines {
		lines = maxLines
	}
	return lines
}

func truncate(output string, maxOutputLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	outputLines := strings.Split(output, "\n")
	if len(outputLines) > maxOutputLines {
		outputLines = outputLines[:maxOutputLines]
		truncated = true
	}
	joined := strings.Join(outputLines, "\n")
	if len(joined) > maxChars {
		joined = joined[:maxChars]
		truncated = true
	}
	return joined, truncated
}
