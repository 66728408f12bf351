// Package reasoning provides the think tool, which lets an agent record its
// plan and decision making as visible, auditable turns.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
)

// NewThinkTool creates a tool for logging the agent's reasoning. The
// reasoning is recorded in the run log and the conversation, nothing else.
func NewThinkTool() agent.Tool {
	return agent.Tool{
		Name: "think",
		Description: `Record your reasoning and thought process. Use this to make your thinking transparent.

When to use:
- After understanding the task, explain your high-level approach
- Before a risky or expensive step, explain what you are about to do and why
- When you discover something important, note what it changes about your plan
- When choosing between options, explain your decision

Your reasoning is logged and visible to the operator.`,
		Schema: `{
			"type": "object",
			"properties": {
				"reasoning": {"type":"string","description":"Your reasoning, plan, or decision. Be specific about what you know and what you will do next."}
			},
			"required": ["reasoning"]
		}`,
		Run: func(ctx context.Context, args map[string]any, st *agent.State) (agent.Output, error) {
			reasoning, _ := args["reasoning"].(string)
			if strings.TrimSpace(reasoning) == "" {
				return agent.Output{}, fmt.Errorf("reasoning cannot be empty")
			}

			log.Printf("[%s] reasoning: %s", st.AgentID(), reasoning)

			out, err := json.Marshal(map[string]any{"status": "noted"})
			if err != nil {
				return agent.Output{}, err
			}
			return agent.Output{Content: string(out)}, nil
		},
	}
}
