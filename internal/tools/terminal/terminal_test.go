package terminal

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
)

type fakeExecutor struct {
	lastWorkspace string
	lastCommand   string
	lastTimeout   time.Duration
	result        sandbox.ExecResult
	err           error
}

func (f *fakeExecutor) Exec(ctx context.Context, workspaceID, command string, timeout time.Duration) (sandbox.ExecResult, error) {
	f.lastWorkspace = workspaceID
	f.lastCommand = command
	f.lastTimeout = timeout
	return f.result, f.err
}

func stateWithWorkspace(t *testing.T) *agent.State {
	t.Helper()
	st := agent.NewState("scanner-1", "scanner", 10)
	st.SetSandbox(sandbox.Info{WorkspaceID: "ws-123", AuthToken: st.SandboxToken()})
	return st
}

func TestExecuteRunsCommandInWorkspace(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.ExecResult{Stdout: "total 0\n", Code: 0}}
	tool := NewExecuteTool(exec)
	st := stateWithWorkspace(t)

	out, err := tool.Run(context.Background(), map[string]any{"command": "ls -la /workspace"}, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.lastWorkspace != "ws-123" {
		t.Errorf("workspace = %q, want ws-123", exec.lastWorkspace)
	}
	if exec.lastCommand != "ls -la /workspace" {
		t.Errorf("command = %q", exec.lastCommand)
	}
	if exec.lastTimeout != defaultTimeout {
		t.Errorf("timeout = %v, want default %v", exec.lastTimeout, defaultTimeout)
	}

	var parsed execResult
	if err := json.Unmarshal([]byte(out.Content), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if parsed.Status != "ok" || parsed.Stdout != "total 0\n" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestExecuteWithoutWorkspaceFails(t *testing.T) {
	tool := NewExecuteTool(&fakeExecutor{})
	st := agent.NewState("scanner-1", "scanner", 10)

	if _, err := tool.Run(context.Background(), map[string]any{"command": "id"}, st); err == nil {
		t.Fatal("expected error without a provisioned workspace")
	}
}

func TestExecuteClampsTimeout(t *testing.T) {
	cases := []struct {
		name    string
		seconds any
		want    time.Duration
	}{
		{"default", nil, defaultTimeout},
		{"normal", float64(30), 30 * time.Second},
		{"below minimum", float64(1), minTimeout},
		{"above maximum", float64(3600), maxTimeout},
		{"wrong type", "sixty", defaultTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			tool := NewExecuteTool(exec)
			st := stateWithWorkspace(t)

			args := map[string]any{"command": "true"}
			if tc.seconds != nil {
				args["timeout_seconds"] = tc.seconds
			}
			if _, err := tool.Run(context.Background(), args, st); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if exec.lastTimeout != tc.want {
				t.Errorf("timeout = %v, want %v", exec.lastTimeout, tc.want)
			}
		})
	}
}

func TestExecuteTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("line\n", 1000)
	exec := &fakeExecutor{result: sandbox.ExecResult{Stdout: long}}
	tool := NewExecuteTool(exec)
	st := stateWithWorkspace(t)

	out, err := tool.Run(context.Background(), map[string]any{
		"command":          "cat big.txt",
		"max_output_lines": float64(10),
	}, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var parsed execResult
	if err := json.Unmarshal([]byte(out.Content), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !parsed.StdoutTruncated {
		t.Error("expected stdout to be marked truncated")
	}
	if got := len(strings.Split(parsed.Stdout, "\n")); got > 10 {
		t.Errorf("stdout has %d lines, want at most 10", got)
	}
}

func TestExecuteReportsFailure(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.ExecResult{Stderr: "nmap: command not found", Code: 127}}
	tool := NewExecuteTool(exec)
	st := stateWithWorkspace(t)

	out, err := tool.Run(context.Background(), map[string]any{"command": "nmap -sV target"}, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var parsed execResult
	if err := json.Unmarshal([]byte(out.Content), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if parsed.Status != "failed" || parsed.ExitCode != 127 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestExecuteReportsTimeout(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.ExecResult{TimedOut: true, Code: -1}}
	tool := NewExecuteTool(exec)
	st := stateWithWorkspace(t)

	out, err := tool.Run(context.Background(), map[string]any{"command": "sleep 9999"}, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var parsed execResult
	if err := json.Unmarshal([]byte(out.Content), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !parsed.TimedOut || parsed.Status != "failed" {
		t.Errorf("parsed = %+v", parsed)
	}
}
