package session

import (
	"time"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

// Snapshot captures an agent's resumable execution state: the conversation
// history plus the loop counters. Spawning a new agent from a snapshot
// continues where the captured one left off.
type Snapshot struct {
	AgentID    string         `json:"agent_id"`
	AgentName  string         `json:"agent_name"`
	AgentType  string         `json:"agent_type"`
	Task       string         `json:"task"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	History    []llm.Message  `json:"history"`
	Iteration  int            `json:"iteration"`
	MaxIters   int            `json:"max_iterations"`
	Completed  bool           `json:"completed"`
	StopReason string         `json:"stop_reason,omitempty"`
	Results    map[string]any `json:"results,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

// SnapshotMeta is a lightweight representation for listing.
type SnapshotMeta struct {
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	AgentType string    `json:"agent_type"`
	Task      string    `json:"task"`
	UpdatedAt time.Time `json:"updated_at"`
	Completed bool      `json:"completed"`
}
