// Package agent implements the execution core: the lifecycle state record,
// the control loop that drives model iterations, and the dispatcher that
// executes tool batches as cancellable units.
package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
	"github.com/ChamsBouzaiene/kestrel/internal/session"
)

// Status is the lifecycle status of an agent.
type Status string

const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting_for_input"
	StatusLLMFailed Status = "llm_failed"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Result is the structured outcome of a run: at minimum a "success" bool,
// plus "error" or payload fields.
type Result map[string]any

// defaultWaitTimeout bounds how long a waiting agent sleeps before it resumes
// on its own.
const defaultWaitTimeout = 5 * time.Minute

// State is the mutable lifecycle record of one agent: conversation history,
// iteration counters, status, sandbox handles, and the audit logs. The owning
// controller is the only writer of conversation content; resume, stop and
// completion signals may arrive from other goroutines, so all access goes
// through the mutex.
type State struct {
	mu sync.Mutex

	agentID   string
	agentName string
	agentType string
	task      string

	messages []llm.Message

	iteration          int
	maxIterations      int
	maxIterWarningSent bool

	status        Status
	stopRequested bool
	finalResult   Result

	errors  []string
	actions []llm.ToolInvocation

	sandboxID    string
	sandboxToken string
	sandboxInfo  *sandbox.Info

	waitingSince time.Time
	waitTimeout  time.Duration
}

// NewState creates a fresh state record. The sandbox auth token is minted
// here so provisioning can hand it to the workspace before any handles exist.
func NewState(agentName, agentType string, maxIterations int) *State {
	return &State{
		agentID:       uuid.NewString(),
		agentName:     agentName,
		agentType:     agentType,
		status:        StatusRunning,
		maxIterations: maxIterations,
		sandboxToken:  uuid.NewString(),
		waitTimeout:   defaultWaitTimeout,
	}
}

func (s *State) AgentID() string   { return s.agentID }
func (s *State) AgentName() string { return s.agentName }
func (s *State) AgentType() string { return s.agentType }

// Task returns the operator-supplied objective.
func (s *State) Task() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// SetTask records the objective once; later calls are ignored.
func (s *State) SetTask(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == "" {
		s.task = task
	}
}

// Status returns the current lifecycle status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsWaitingForInput reports whether the agent is paused awaiting input.
func (s *State) IsWaitingForInput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusWaiting
}

// IsLLMFailed reports whether the agent is in the model-failure waiting
// flavor.
func (s *State) IsLLMFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusLLMFailed
}

// RequestStop signals the loop to stop at its next priority check.
func (s *State) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
}

// ShouldStop reports whether a stopping condition has been reached and not
// yet converted into a waiting state.
func (s *State) ShouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested || s.status == StatusCompleted || s.status == StatusErrored
}

// HasWaitingTimeout reports whether the waiting deadline has elapsed.
func (s *State) HasWaitingTimeout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waitingSince.IsZero() {
		return false
	}
	return time.Since(s.waitingSince) >= s.waitTimeout
}

// SetWaitTimeout overrides the waiting deadline duration.
func (s *State) SetWaitTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitTimeout = d
}

// IncrementIteration advances the iteration counter. There is no upper
// clamp; the budget is advisory.
func (s *State) IncrementIteration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
}

// Iteration returns the current iteration count.
func (s *State) Iteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iteration
}

// MaxIterations returns the advisory budget.
func (s *State) MaxIterations() int { return s.maxIterations }

// approachingWindow is how many remaining iterations count as "close to the
// limit" for the one-shot urgency warning.
const approachingWindow = 10

// IsApproachingMaxIterations reports whether the remaining budget has fallen
// under the near-limit window.
func (s *State) IsApproachingMaxIterations() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxIterations-s.iteration <= approachingWindow
}

// MarkMaxIterationsWarningSent flips the one-shot warning flag. It returns
// false if the warning was already sent.
func (s *State) MarkMaxIterationsWarningSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxIterWarningSent {
		return false
	}
	s.maxIterWarningSent = true
	return true
}

// AddMessage appends one conversation turn.
func (s *State) AddMessage(role llm.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, llm.Message{Role: role, Content: content})
}

// AddAssistantMessage appends an assistant turn together with its tool
// invocations. The invocations must be stored on the turn itself: the
// provider adapters only forward a tool-result message when the preceding
// assistant turn carries the matching invocation.
func (s *State) AddAssistantMessage(content string, invs []llm.ToolInvocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, llm.Message{
		Role:            llm.RoleAssistant,
		Content:         content,
		ToolInvocations: invs,
	})
}

// AddError appends a failure description to the diagnostic log. Errors are
// never replayed into the model.
func (s *State) AddError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, text)
}

// AddAction records an issued tool invocation before dispatch, so the audit
// trail survives regardless of the dispatch outcome.
func (s *State) AddAction(inv llm.ToolInvocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, inv)
}

// Errors returns a copy of the error log.
func (s *State) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errors))
	copy(out, s.errors)
	return out
}

// Actions returns a copy of the action log.
func (s *State) Actions() []llm.ToolInvocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.ToolInvocation, len(s.actions))
	copy(out, s.actions)
	return out
}

// EnterWaiting pauses the agent. The stop flag is consumed here: entering
// the waiting state is the conversion of a stop condition.
func (s *State) EnterWaiting(llmFailed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if llmFailed {
		s.status = StatusLLMFailed
	} else {
		s.status = StatusWaiting
	}
	s.stopRequested = false
	s.waitingSince = time.Now()
}

// ResumeFromWaiting returns a waiting agent to the running state.
func (s *State) ResumeFromWaiting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.waitingSince = time.Time{}
}

// SetCompleted records the final result and marks the agent completed.
// First write wins; a later call never overwrites an existing result.
func (s *State) SetCompleted(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalResult == nil {
		s.finalResult = result
	}
	s.status = StatusCompleted
}

// FinalResult returns the recorded outcome, or nil if none was set.
func (s *State) FinalResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalResult
}

// History returns a stable snapshot of the conversation.
func (s *State) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ReplaceHistory installs a dispatch batch's extended history wholesale.
// This is the single non-append mutation of the conversation.
func (s *State) ReplaceHistory(messages []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
}

// SandboxToken returns the pre-minted workspace auth token.
func (s *State) SandboxToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sandboxToken
}

// SetSandbox stores the workspace handles. All three are set together and a
// pre-existing handle is never overwritten.
func (s *State) SetSandbox(info sandbox.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sandboxID != "" {
		return
	}
	s.sandboxID = info.WorkspaceID
	s.sandboxToken = info.AuthToken
	s.sandboxInfo = &info
}

// Sandbox returns the workspace handle, if provisioned.
func (s *State) Sandbox() (sandbox.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sandboxInfo == nil {
		return sandbox.Info{}, false
	}
	return *s.sandboxInfo, true
}

// Snapshot serializes the resumable parts of the state.
func (s *State) Snapshot() *session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]llm.Message, len(s.messages))
	copy(history, s.messages)

	return &session.Snapshot{
		AgentID:   s.agentID,
		AgentName: s.agentName,
		AgentType: s.agentType,
		Task:      s.task,
		History:   history,
		Iteration: s.iteration,
		MaxIters:  s.maxIterations,
		Completed: s.status == StatusCompleted,
		Results:   s.finalResult,
	}
}

// RestoreState rebuilds a state record from a snapshot. The restored agent
// resumes with the captured history and counters; a new sandbox is
// provisioned on the next bootstrap since workspace handles do not survive.
func RestoreState(snap *session.Snapshot) *State {
	st := NewState(snap.AgentName, snap.AgentType, snap.MaxIters)
	st.agentID = snap.AgentID
	st.task = snap.Task
	st.messages = make([]llm.Message, len(snap.History))
	copy(st.messages, snap.History)
	st.iteration = snap.Iteration
	if snap.Completed {
		st.status = StatusCompleted
		st.finalResult = Result(snap.Results)
	}
	return st
}
