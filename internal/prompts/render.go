package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// Context carries the values a system prompt template can reference.
type Context struct {
	AgentName    string
	AgentID      string
	Task         string
	Instructions string
	WorkspaceID  string
	SandboxToken string
	Scope        []string
	Extra        map[string]string
}

// RenderSystemPrompt executes the profile's system template against ctx.
func RenderSystemPrompt(p *Profile, ctx Context) (string, error) {
	tmpl, err := template.New(p.Type).Option("missingkey=zero").Parse(p.SystemTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse system template for %s: %w", p.Type, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("failed to render system prompt for %s: %w", p.Type, err)
	}
	return sb.String(), nil
}
