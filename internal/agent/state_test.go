package agent

import (
	"testing"
	"time"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
)

func TestIterationMonotonicAcrossWaitResume(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)

	for i := 1; i <= 5; i++ {
		st.IncrementIteration()
		if got := st.Iteration(); got != i {
			t.Fatalf("Iteration = %d, want %d", got, i)
		}
	}

	st.EnterWaiting(false)
	st.ResumeFromWaiting()
	if got := st.Iteration(); got != 5 {
		t.Errorf("Iteration after wait/resume = %d, want 5", got)
	}
}

func TestMaxIterationsWarningIsOneShot(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)

	if !st.MarkMaxIterationsWarningSent() {
		t.Error("first mark should succeed")
	}
	if st.MarkMaxIterationsWarningSent() {
		t.Error("second mark should report already sent")
	}
}

func TestIsApproachingMaxIterations(t *testing.T) {
	st := NewState("scanner-1", "scanner", 20)

	if st.IsApproachingMaxIterations() {
		t.Error("fresh state with 20 remaining should not be approaching")
	}
	for i := 0; i < 10; i++ {
		st.IncrementIteration()
	}
	if !st.IsApproachingMaxIterations() {
		t.Error("10 remaining should be approaching")
	}
}

func TestShouldStopAndWaitingConversion(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)

	if st.ShouldStop() {
		t.Error("fresh state should not stop")
	}

	st.RequestStop()
	if !st.ShouldStop() {
		t.Error("stop request should be visible")
	}

	// Entering the waiting state consumes the stop condition.
	st.EnterWaiting(false)
	if st.ShouldStop() {
		t.Error("stop flag should be cleared by the waiting transition")
	}
	if !st.IsWaitingForInput() {
		t.Error("state should be waiting")
	}

	st.ResumeFromWaiting()
	if st.Status() != StatusRunning {
		t.Errorf("Status = %q after resume", st.Status())
	}
}

func TestLLMFailedFlavor(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)

	st.EnterWaiting(true)
	if st.IsWaitingForInput() {
		t.Error("llm-failed flavor should not report plain waiting")
	}
	if !st.IsLLMFailed() {
		t.Error("expected llm-failed status")
	}

	st.ResumeFromWaiting()
	if st.IsLLMFailed() {
		t.Error("resume should clear llm-failed")
	}
}

func TestWaitingTimeout(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)
	st.SetWaitTimeout(10 * time.Millisecond)

	if st.HasWaitingTimeout() {
		t.Error("no deadline before entering waiting")
	}

	st.EnterWaiting(false)
	if st.HasWaitingTimeout() {
		t.Error("deadline should not have elapsed immediately")
	}
	time.Sleep(20 * time.Millisecond)
	if !st.HasWaitingTimeout() {
		t.Error("deadline should have elapsed")
	}

	st.ResumeFromWaiting()
	if st.HasWaitingTimeout() {
		t.Error("resume should clear the deadline")
	}
}

func TestSetCompletedFirstWriteWins(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)

	st.SetCompleted(Result{"success": true})
	st.SetCompleted(Result{"success": false, "error": "late"})

	result := st.FinalResult()
	if result == nil {
		t.Fatal("final result not set")
	}
	if result["success"] != true {
		t.Errorf("final result = %v, want the first write", result)
	}
	if st.Status() != StatusCompleted {
		t.Errorf("Status = %q, want completed", st.Status())
	}
}

func TestSandboxHandlesSetOnceIdempotently(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)
	token := st.SandboxToken()
	if token == "" {
		t.Fatal("expected a pre-minted sandbox token")
	}

	st.SetSandbox(sandbox.Info{WorkspaceID: "ws-1", AuthToken: token, AgentID: st.AgentID()})
	st.SetSandbox(sandbox.Info{WorkspaceID: "ws-2", AuthToken: "other"})

	info, ok := st.Sandbox()
	if !ok {
		t.Fatal("sandbox handle missing")
	}
	if info.WorkspaceID != "ws-1" {
		t.Errorf("WorkspaceID = %q, first provisioning should win", info.WorkspaceID)
	}
	if st.SandboxToken() != token {
		t.Errorf("token changed on second set")
	}
}

func TestSetTaskIsImmutable(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)
	st.SetTask("first")
	st.SetTask("second")
	if got := st.Task(); got != "first" {
		t.Errorf("Task = %q, want first", got)
	}
}

func TestReplaceHistory(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)
	st.AddMessage(llm.RoleUser, "scan the host")
	st.AddMessage(llm.RoleAssistant, "running nmap")

	extended := st.History()
	extended = append(extended, llm.Message{Role: llm.RoleTool, Name: "1", Content: "port 22 open"})
	st.ReplaceHistory(extended)

	history := st.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[2].Role != llm.RoleTool {
		t.Errorf("last message role = %q", history[2].Role)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	st := NewState("scanner-1", "scanner", 50)
	st.SetTask("scan staging")
	st.AddMessage(llm.RoleUser, "scan staging")
	st.AddMessage(llm.RoleAssistant, "on it")
	st.IncrementIteration()
	st.IncrementIteration()

	snap := st.Snapshot()
	restored := RestoreState(snap)

	if restored.AgentID() != st.AgentID() {
		t.Errorf("AgentID = %q, want %q", restored.AgentID(), st.AgentID())
	}
	if restored.Iteration() != 2 {
		t.Errorf("Iteration = %d, want 2", restored.Iteration())
	}
	if restored.Task() != "scan staging" {
		t.Errorf("Task = %q", restored.Task())
	}
	if len(restored.History()) != 2 {
		t.Errorf("history length = %d, want 2", len(restored.History()))
	}
	if restored.Status() != StatusRunning {
		t.Errorf("Status = %q, want running", restored.Status())
	}
}
