package prompts

import (
	"strings"
	"testing"
)

func TestDefaultRegistryHasBuiltinProfiles(t *testing.T) {
	registry := DefaultRegistry()

	for _, agentType := range []string{"scanner", "triage"} {
		p, err := registry.Get(agentType)
		if err != nil {
			t.Fatalf("Get(%s): %v", agentType, err)
		}
		if p.DefaultMaxIterations <= 0 {
			t.Errorf("%s: DefaultMaxIterations = %d", agentType, p.DefaultMaxIterations)
		}
		if len(p.Toolset) == 0 {
			t.Errorf("%s: empty toolset", agentType)
		}
		found := false
		for _, tool := range p.Toolset {
			if tool == "finish_scan" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: toolset has no finish tool", agentType)
		}
	}

	if _, err := registry.Get("nonexistent"); err == nil {
		t.Error("expected error for unknown agent type")
	}
}

func TestRegisterReplacesProfile(t *testing.T) {
	registry := NewProfileRegistry()
	registry.Register(&Profile{Type: "custom", DefaultMaxIterations: 10})
	registry.Register(&Profile{Type: "custom", DefaultMaxIterations: 20})

	p, err := registry.Get("custom")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.DefaultMaxIterations != 20 {
		t.Errorf("DefaultMaxIterations = %d, want 20", p.DefaultMaxIterations)
	}
	if got := registry.List(); len(got) != 1 {
		t.Errorf("List = %v, want one entry", got)
	}
}

func TestRenderSystemPrompt(t *testing.T) {
	p, err := DefaultRegistry().Get("scanner")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	out, err := RenderSystemPrompt(p, Context{
		AgentName:    "scanner-1",
		AgentID:      "abc123",
		Task:         "Assess the staging web server",
		Instructions: "No denial of service testing.",
		WorkspaceID:  "ws-1",
		Scope:        []string{"10.0.0.5", "staging.example.com"},
	})
	if err != nil {
		t.Fatalf("RenderSystemPrompt: %v", err)
	}

	for _, want := range []string{
		"scanner-1",
		"Assess the staging web server",
		"No denial of service testing.",
		"10.0.0.5",
		"staging.example.com",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
}

func TestRenderSystemPromptOmitsEmptySections(t *testing.T) {
	p := &Profile{
		Type:           "minimal",
		SystemTemplate: "Task: {{.Task}}{{if .Instructions}}\nExtra: {{.Instructions}}{{end}}",
	}

	out, err := RenderSystemPrompt(p, Context{Task: "recon"})
	if err != nil {
		t.Fatalf("RenderSystemPrompt: %v", err)
	}
	if out != "Task: recon" {
		t.Errorf("rendered = %q", out)
	}
}
