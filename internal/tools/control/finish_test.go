package control

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
)

func TestFinishRecordsResultAndSignalsFinish(t *testing.T) {
	st := agent.NewState("scanner-1", "scanner", 10)
	tool := NewFinishTool()

	out, err := tool.Run(context.Background(), map[string]any{
		"content": "No exploitable issues found in the target scope.",
	}, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Finish {
		t.Error("expected Finish to be set")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(out.Content), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if parsed["scan_completed"] != true {
		t.Errorf("scan_completed = %v, want true", parsed["scan_completed"])
	}

	result := st.FinalResult()
	if result == nil {
		t.Fatal("expected final result to be recorded")
	}
	if result["success"] != true {
		t.Errorf("result success = %v, want true", result["success"])
	}
	if result["content"] != "No exploitable issues found in the target scope." {
		t.Errorf("result content = %v", result["content"])
	}
}

func TestFinishWithFailureFlag(t *testing.T) {
	st := agent.NewState("scanner-1", "scanner", 10)
	tool := NewFinishTool()

	out, err := tool.Run(context.Background(), map[string]any{
		"content": "Target unreachable, scan aborted.",
		"success": false,
	}, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(out.Content), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if parsed["message"] != "Scan completed with errors" {
		t.Errorf("message = %v", parsed["message"])
	}
	if st.FinalResult()["success"] != false {
		t.Error("result should record success=false")
	}
}

func TestFinishRejectsEmptyContent(t *testing.T) {
	st := agent.NewState("scanner-1", "scanner", 10)
	tool := NewFinishTool()

	for _, content := range []string{"", "   \n\t"} {
		if _, err := tool.Run(context.Background(), map[string]any{"content": content}, st); err == nil {
			t.Errorf("content %q: expected error", content)
		}
	}
	if st.FinalResult() != nil {
		t.Error("rejected finish should not record a result")
	}
}

func TestFinishArgsSchema(t *testing.T) {
	tool := NewFinishTool()
	if err := tool.ValidateArgs(map[string]any{"content": "done"}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
	if err := tool.ValidateArgs(map[string]any{}); err == nil {
		t.Error("missing content should fail validation")
	}
}
