package reasoning

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
)

func TestThinkRecordsReasoning(t *testing.T) {
	tool := NewThinkTool()
	st := agent.NewState("scanner-1", "scanner", 10)

	out, err := tool.Run(context.Background(), map[string]any{
		"reasoning": "port 8080 serves an admin panel, enumerating endpoints next",
	}, st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Finish {
		t.Error("think must not signal finish")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out.Content), &result); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if result["status"] != "noted" {
		t.Errorf("status = %v, want noted", result["status"])
	}
}

func TestThinkRejectsEmptyReasoning(t *testing.T) {
	tool := NewThinkTool()
	st := agent.NewState("scanner-1", "scanner", 10)

	for _, reasoning := range []string{"", "   "} {
		_, err := tool.Run(context.Background(), map[string]any{"reasoning": reasoning}, st)
		if err == nil || !strings.Contains(err.Error(), "empty") {
			t.Errorf("reasoning %q: error = %v, want empty-reasoning error", reasoning, err)
		}
	}
}

func TestThinkSchemaRequiresReasoning(t *testing.T) {
	tool := NewThinkTool()
	if err := tool.ValidateArgs(map[string]any{}); err == nil {
		t.Error("ValidateArgs accepted missing reasoning")
	}
	if err := tool.ValidateArgs(map[string]any{"reasoning": "plan"}); err != nil {
		t.Errorf("ValidateArgs rejected valid args: %v", err)
	}
}
