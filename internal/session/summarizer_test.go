package session

import (
	"context"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

// mockClient returns a canned response for the Client interface.
type mockClient struct {
	response string
	seen     []llm.Message
}

func (m *mockClient) Chat(ctx context.Context, model string, messages []llm.Message, toolSchemas []llm.ToolSchema, opts llm.Options) (llm.Response, error) {
	m.seen = messages
	return llm.Response{Content: m.response}, nil
}

func TestSummarizer_GenerateSummary(t *testing.T) {
	mock := &mockClient{response: "Found an exposed admin panel on port 8080; credentials not yet tested."}
	summarizer := NewSummarizer(mock, "test-model")

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: "you are a scanner"},
		{Role: llm.RoleUser, Content: "scan the staging host"},
		{Role: llm.RoleAssistant, Content: "starting with a port scan", ToolInvocations: []llm.ToolInvocation{{ID: "1", Name: "terminal_execute"}}},
		{Role: llm.RoleTool, Name: "terminal_execute", Content: "8080/tcp open http-proxy"},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), history)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if summary != "Found an exposed admin panel on port 8080; credentials not yet tested." {
		t.Errorf("summary = %q", summary)
	}

	// The prompt should carry the flattened history but not the system prompt.
	prompt := m2content(mock.seen)
	if strings.Contains(prompt, "you are a scanner") {
		t.Error("system message leaked into summary prompt")
	}
	if !strings.Contains(prompt, "[calls terminal_execute]") {
		t.Errorf("tool call marker missing from prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "8080/tcp open") {
		t.Errorf("tool output missing from prompt:\n%s", prompt)
	}
}

func TestSummarizer_EmptyHistory(t *testing.T) {
	summarizer := NewSummarizer(&mockClient{response: "unused"}, "test-model")
	summary, err := summarizer.GenerateSummary(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if summary != "" {
		t.Errorf("summary = %q, want empty", summary)
	}
}

func TestRenderForSummaryTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", 5000)
	out := RenderForSummary([]llm.Message{
		{Role: llm.RoleTool, Name: "terminal_execute", Content: long},
	})
	if len(out) > 400 {
		t.Errorf("rendered length = %d, want truncated", len(out))
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "...") {
		t.Errorf("expected ellipsis, got %q", out)
	}
}

func m2content(msgs []llm.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
