package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

// Summarizer produces snapshot summaries so a resumed agent can be briefed
// without replaying the whole history.
type Summarizer struct {
	client llm.Client
	model  string
}

// NewSummarizer creates a new snapshot summarizer.
func NewSummarizer(client llm.Client, model string) *Summarizer {
	return &Summarizer{
		client: client,
		model:  model,
	}
}

// GenerateSummary condenses an agent's history into a handoff brief.
func (s *Summarizer) GenerateSummary(ctx context.Context, history []llm.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}

	systemPrompt := "You represent the memory of an autonomous security agent. Summarize the following run history to preserve context for a resumed run. Focus on: targets examined, findings with their evidence, dead ends, and next steps. Be concise."

	userPrompt := fmt.Sprintf("Summarize this run:\n\n%s", RenderForSummary(history))

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}

	resp, err := s.client.Chat(ctx, s.model, msgs, nil, llm.Options{
		MaxOutputTokens: 500,
		Temperature:     0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// RenderForSummary flattens a history into plain text for summarization
// prompts. Tool calls are rendered as one-line markers so the summarizer
// sees what happened without the full payloads.
func RenderForSummary(history []llm.Message) string {
	var sb strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleTool:
			fmt.Fprintf(&sb, "[tool %s] %s\n", msg.Name, truncate(msg.Content, 300))
		default:
			fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, truncate(msg.Content, 1000))
			for _, inv := range msg.ToolInvocations {
				fmt.Fprintf(&sb, "[calls %s]\n", inv.Name)
			}
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
