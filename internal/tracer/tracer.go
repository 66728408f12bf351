// Package tracer is the telemetry sink for agent runs. Tracers are purely
// observational: they receive lifecycle, status, chat and tool-execution
// notifications and never influence control flow.
package tracer

import (
	"sync"
	"time"
)

// AgentStatus is the status vocabulary reported to the sink.
type AgentStatus string

const (
	StatusRunning   AgentStatus = "running"
	StatusStopped   AgentStatus = "stopped"
	StatusCompleted AgentStatus = "completed"
	StatusError     AgentStatus = "error"
	StatusLLMFailed AgentStatus = "llm_failed"
	StatusFailed    AgentStatus = "failed"
)

// ToolExecution is one recorded tool run.
type ToolExecution struct {
	ID        int64
	AgentID   string
	ToolName  string
	Args      map[string]any
	Status    string // "running", "completed", "failed"
	Result    any
	StartedAt time.Time
	UpdatedAt time.Time
}

// Tracer receives fire-and-forget notifications about an agent's lifetime.
// Implementations must tolerate being called from multiple goroutines.
type Tracer interface {
	// LogAgentCreation records a new agent and its task. parentID is empty
	// for root agents.
	LogAgentCreation(agentID, name, task, parentID string)

	// UpdateAgentStatus records a status transition. message is optional
	// diagnostic text (e.g. the error string for failed transitions).
	UpdateAgentStatus(agentID string, status AgentStatus, message string)

	// LogChatMessage records one conversation turn.
	LogChatMessage(agentID, role, content string)

	// LogToolExecutionStart records the start of a tool run and returns an
	// execution ID for the matching update.
	LogToolExecutionStart(agentID, toolName string, args map[string]any) int64

	// UpdateToolExecution records the outcome of a tool run.
	UpdateToolExecution(executionID int64, status string, result any)
}

// Multi fans notifications out to several tracers. Tool execution IDs are
// issued by Multi itself so updates can be routed back to every child.
type Multi struct {
	tracers []Tracer

	mu     sync.Mutex
	ids    map[int64][]int64 // multi ID -> per-child IDs
	nextID int64
}

// NewMulti creates a fan-out tracer.
func NewMulti(tracers ...Tracer) *Multi {
	return &Multi{tracers: tracers, ids: make(map[int64][]int64), nextID: 1}
}

func (m *Multi) LogAgentCreation(agentID, name, task, parentID string) {
	for _, t := range m.tracers {
		t.LogAgentCreation(agentID, name, task, parentID)
	}
}

func (m *Multi) UpdateAgentStatus(agentID string, status AgentStatus, message string) {
	for _, t := range m.tracers {
		t.UpdateAgentStatus(agentID, status, message)
	}
}

func (m *Multi) LogChatMessage(agentID, role, content string) {
	for _, t := range m.tracers {
		t.LogChatMessage(agentID, role, content)
	}
}

func (m *Multi) LogToolExecutionStart(agentID, toolName string, args map[string]any) int64 {
	childIDs := make([]int64, len(m.tracers))
	for i, t := range m.tracers {
		childIDs[i] = t.LogToolExecutionStart(agentID, toolName, args)
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.ids[id] = childIDs
	m.mu.Unlock()
	return id
}

func (m *Multi) UpdateToolExecution(executionID int64, status string, result any) {
	m.mu.Lock()
	childIDs, ok := m.ids[executionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	for i, t := range m.tracers {
		t.UpdateToolExecution(childIDs[i], status, result)
	}
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) LogAgentCreation(_, _, _, _ string)                        {}
func (Noop) UpdateAgentStatus(_ string, _ AgentStatus, _ string)       {}
func (Noop) LogChatMessage(_, _, _ string)                             {}
func (Noop) LogToolExecutionStart(_, _ string, _ map[string]any) int64 { return 0 }
func (Noop) UpdateToolExecution(_ int64, _ string, _ any)              {}
