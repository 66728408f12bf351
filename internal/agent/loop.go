package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/tracer"
)

// waitPollInterval is the quantum a waiting agent sleeps between checks for
// a resume signal or an elapsed deadline.
const waitPollInterval = 500 * time.Millisecond

// criticalWarningMargin is the remaining-iteration count at which the
// unconditional critical warning fires.
const criticalWarningMargin = 3

const emptyResponseNudge = "You MUST NOT respond with empty messages. " +
	"If you currently have nothing to do or say, use an appropriate tool instead:\n" +
	"- Use the finish tool if your task is complete"

// waitReason selects the notification emitted when entering a waiting state.
type waitReason int

const (
	waitPaused waitReason = iota
	waitTaskCompleted
	waitErrorOccurred
	waitCancelled
)

// Run executes the control loop for the given task. In non-interactive mode
// it returns a definitive result on any terminal condition. In interactive
// mode it keeps looping through waiting states and returns only when the
// caller forces a stop (via the state record or context cancellation).
func (a *Agent) Run(ctx context.Context, task string) (Result, error) {
	if err := a.initialize(ctx, task); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if a.state.IsWaitingForInput() {
			a.waitForInput(ctx)
			continue
		}

		if a.state.ShouldStop() {
			if a.nonInteractive {
				result := a.state.FinalResult()
				if result == nil {
					result = Result{}
				}
				return result, nil
			}
			a.enterWaiting(waitPaused)
			continue
		}

		if a.state.IsLLMFailed() {
			a.waitForInput(ctx)
			continue
		}

		a.state.IncrementIteration()
		a.injectBudgetWarnings()

		finish, err := a.processIteration(ctx)

		switch {
		case err == nil && finish:
			if a.nonInteractive {
				result := a.state.FinalResult()
				if result == nil {
					result = Result{}
				}
				return result, nil
			}
			a.enterWaiting(waitTaskCompleted)

		case err == nil:
			// Idle conversational turn; next pass.

		case errors.Is(err, context.Canceled):
			if a.nonInteractive {
				return nil, err
			}
			a.enterWaiting(waitCancelled)

		case isBackendFailure(err):
			if result, done := a.handleBackendFailure(err); done {
				return result, nil
			}

		default:
			if recovered := a.handleIterationError(err); !recovered {
				if a.nonInteractive {
					a.state.SetCompleted(Result{"success": false, "error": err.Error()})
					a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusFailed, "")
					return nil, err
				}
				a.enterWaiting(waitErrorOccurred)
			}
		}
	}
}

// injectBudgetWarnings appends the advisory iteration-budget messages: a
// one-shot urgency warning inside the near-limit window, and an
// unconditional critical warning when exactly criticalWarningMargin
// iterations remain.
func (a *Agent) injectBudgetWarnings() {
	iteration := a.state.Iteration()
	maxIterations := a.state.MaxIterations()

	if a.state.IsApproachingMaxIterations() && a.state.MarkMaxIterationsWarningSent() {
		remaining := maxIterations - iteration
		a.state.AddMessage(llm.RoleUser, fmt.Sprintf(
			"URGENT: You are approaching the maximum iteration limit. "+
				"Current: %d/%d (%d iterations remaining). "+
				"Please prioritize completing your required task(s) and calling "+
				"the finish tool as soon as possible.",
			iteration, maxIterations, remaining))
	}

	if iteration == maxIterations-criticalWarningMargin {
		a.state.AddMessage(llm.RoleUser,
			"CRITICAL: You have only 3 iterations left! "+
				"Your next message MUST be the tool call to finish. "+
				"No other actions should be taken except finishing your work "+
				"immediately.")
	}
}

// processIteration performs one model call and, when the response carries
// tool invocations, one dispatch round. It reports whether a finish was
// requested.
func (a *Agent) processIteration(ctx context.Context) (bool, error) {
	response, err := a.llm.Generate(ctx, a.state.History())
	if err != nil {
		return false, err
	}

	// A turn carrying tool invocations is a real turn even when the text is
	// blank; backends routinely emit tool calls with no prose.
	if strings.TrimSpace(response.Content) == "" && len(response.ToolInvocations) == 0 {
		a.state.AddMessage(llm.RoleUser, emptyResponseNudge)
		return false, nil
	}

	a.state.AddAssistantMessage(response.Content, response.ToolInvocations)
	a.tracer.LogChatMessage(a.state.AgentID(), string(llm.RoleAssistant), response.Content)

	if len(response.ToolInvocations) > 0 {
		return a.executeActions(ctx, response.ToolInvocations)
	}
	return false, nil
}

// executeActions dispatches one tool batch as the single cancellable unit of
// work. On success the extended history replaces the stored conversation
// wholesale; on cancellation nothing is committed and exactly one error is
// recorded.
func (a *Agent) executeActions(ctx context.Context, batch []llm.ToolInvocation) (bool, error) {
	for _, inv := range batch {
		a.state.AddAction(inv)
	}

	history := a.state.History()

	dispatchCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelDispatch = cancel
	a.mu.Unlock()

	newHistory, outcome, err := a.dispatcher.Process(dispatchCtx, batch, history, a.state)

	a.mu.Lock()
	a.cancelDispatch = nil
	a.mu.Unlock()
	cancel()

	if outcome == OutcomeCancelled {
		a.state.AddError("Tool execution cancelled by user")
		return false, context.Canceled
	}
	if err != nil {
		return false, err
	}

	a.state.ReplaceHistory(newHistory)

	if outcome == OutcomeFinish {
		a.state.SetCompleted(Result{"success": true})
		a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusCompleted, "")
		return true, nil
	}
	return false, nil
}

// isBackendFailure reports whether err is the distinguished model-backend
// failure class.
func isBackendFailure(err error) bool {
	var reqErr *llm.RequestError
	return errors.As(err, &reqErr)
}

// handleBackendFailure records a model-backend failure. In non-interactive
// mode it returns (result, true) and the run ends; in interactive mode it
// parks the agent in the model-failure waiting flavor and returns
// (nil, false).
func (a *Agent) handleBackendFailure(err error) (Result, bool) {
	var reqErr *llm.RequestError
	errors.As(err, &reqErr)

	msg := reqErr.Message
	a.state.AddError(msg)

	if a.nonInteractive {
		a.state.SetCompleted(Result{"success": false, "error": msg})
		a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusFailed, msg)
		a.forwardFailureDetails(msg, reqErr.Details)
		return Result{"success": false, "error": msg}, true
	}

	a.state.EnterWaiting(true)
	a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusLLMFailed, msg)
	a.forwardFailureDetails(msg, reqErr.Details)
	return nil, false
}

// forwardFailureDetails pushes structured backend-failure diagnostics to the
// telemetry sink as a synthetic tool-execution record.
func (a *Agent) forwardFailureDetails(msg string, details map[string]any) {
	if details == nil {
		return
	}
	execID := a.tracer.LogToolExecutionStart(a.state.AgentID(), "llm_error_details",
		map[string]any{"error": msg, "details": details})
	a.tracer.UpdateToolExecution(execID, "failed", details)
}

// handleIterationError records a recoverable iteration failure and asks the
// recovery hook whether the loop may continue. The default is to continue.
func (a *Agent) handleIterationError(err error) bool {
	msg := fmt.Sprintf("Error in iteration %d: %v", a.state.Iteration(), err)
	log.Printf("agent %s: %s", a.state.AgentName(), msg)
	a.state.AddError(msg)
	a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusError, "")

	if a.onIterError != nil {
		return a.onIterError(err)
	}
	return true
}

// waitForInput runs one pass of the wait/resume protocol: resume with a
// timeout notice once the deadline elapses, otherwise sleep one polling
// quantum.
func (a *Agent) waitForInput(ctx context.Context) {
	if a.state.HasWaitingTimeout() {
		a.state.ResumeFromWaiting()
		a.state.AddMessage(llm.RoleAssistant, "Waiting timeout reached. Resuming execution.")
		a.tracer.UpdateAgentStatus(a.state.AgentID(), tracer.StatusRunning, "")
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(waitPollInterval):
	}
}

// enterWaiting pauses the agent and emits the reason-specific status and
// conversational notification.
func (a *Agent) enterWaiting(reason waitReason) {
	a.state.EnterWaiting(false)

	var status tracer.AgentStatus
	var message string
	switch reason {
	case waitTaskCompleted:
		status = tracer.StatusCompleted
		message = "Task completed. I'm now waiting for follow-up instructions or new tasks."
	case waitErrorOccurred:
		status = tracer.StatusError
		message = "An error occurred. I'm now waiting for new instructions."
	case waitCancelled:
		status = tracer.StatusStopped
		message = "Execution was cancelled. I'm now waiting for new instructions."
	default:
		status = tracer.StatusStopped
		message = "Execution paused. I'm now waiting for new instructions or any updates."
	}

	a.tracer.UpdateAgentStatus(a.state.AgentID(), status, "")
	a.state.AddMessage(llm.RoleAssistant, message)
}
