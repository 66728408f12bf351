package tracer

import (
	"log"
	"sync/atomic"
)

// LogTracer writes notifications to a standard logger.
type LogTracer struct {
	L      *log.Logger
	nextID int64
}

// NewLogTracer creates a tracer backed by the given logger.
func NewLogTracer(l *log.Logger) *LogTracer {
	if l == nil {
		l = log.Default()
	}
	return &LogTracer{L: l}
}

func (t *LogTracer) LogAgentCreation(agentID, name, task, parentID string) {
	if parentID != "" {
		t.L.Printf("agent created id=%s name=%s parent=%s", agentID, name, parentID)
		return
	}
	t.L.Printf("agent created id=%s name=%s task=%q", agentID, name, preview(task, 120))
}

func (t *LogTracer) UpdateAgentStatus(agentID string, status AgentStatus, message string) {
	if message != "" {
		t.L.Printf("agent %s status=%s: %s", agentID, status, message)
		return
	}
	t.L.Printf("agent %s status=%s", agentID, status)
}

func (t *LogTracer) LogChatMessage(agentID, role, content string) {
	t.L.Printf("chat agent=%s role=%s: %s", agentID, role, preview(content, 160))
}

func (t *LogTracer) LogToolExecutionStart(agentID, toolName string, args map[string]any) int64 {
	id := atomic.AddInt64(&t.nextID, 1)
	t.L.Printf("tool → %s agent=%s args=%v", toolName, agentID, args)
	return id
}

func (t *LogTracer) UpdateToolExecution(executionID int64, status string, result any) {
	t.L.Printf("tool exec=%d status=%s", executionID, status)
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
