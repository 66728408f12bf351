// Package sandbox provisions isolated workspaces for side-effecting agent
// actions. Implementations should provide isolation from the host system so
// that scan commands cannot affect the host.
package sandbox

import (
	"context"
	"os"
	"strings"
	"time"
)

// EnvSandboxMode is the environment toggle set inside a provisioned
// workspace. When the process is itself running in a sandbox, provisioning
// is skipped.
const EnvSandboxMode = "KESTREL_SANDBOX_MODE"

// InSandboxMode reports whether this process already runs inside a sandbox.
func InSandboxMode() bool {
	return strings.EqualFold(os.Getenv(EnvSandboxMode), "true")
}

// Info describes a provisioned workspace. The handle triple
// (WorkspaceID, AuthToken, Info) is stored on the agent state at most once.
type Info struct {
	WorkspaceID string    `json:"workspace_id"`
	AuthToken   string    `json:"auth_token"`
	ContainerID string    `json:"container_id,omitempty"`
	AgentID     string    `json:"agent_id,omitempty"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ExecResult captures output of a command run inside a workspace.
type ExecResult struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Provisioner creates isolated workspaces, one per agent lifetime.
type Provisioner interface {
	// CreateSandbox provisions a workspace for the agent, uploading the
	// given local source directories into it. token may carry a previously
	// issued auth token; an empty token means a fresh one is minted.
	CreateSandbox(ctx context.Context, agentID, token string, sources []string) (Info, error)
}

// Executor runs commands inside a provisioned workspace.
type Executor interface {
	Exec(ctx context.Context, workspaceID string, command string, timeout time.Duration) (ExecResult, error)
}
