// Package control provides the tools that steer the run itself rather than
// act on a target.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
)

// NewFinishTool creates the tool an agent calls to conclude its scan. The
// report content becomes the final result and the loop stops dispatching
// after this tool returns.
func NewFinishTool() agent.Tool {
	return agent.Tool{
		Name: "finish_scan",
		Description: `Conclude the current scan and deliver the final report.

Call this exactly once, when the task is complete or cannot proceed further.
The content should be a full report of what was assessed, what was found,
and any recommended followups. Set success to false if the task could not
be completed.`,
		Schema: `{
			"type": "object",
			"properties": {
				"content": {"type":"string","description":"Final report: scope covered, findings, and recommendations"},
				"success": {"type":"boolean","description":"Whether the task completed successfully (default: true)"}
			},
			"required": ["content"]
		}`,
		Run: func(ctx context.Context, args map[string]any, st *agent.State) (agent.Output, error) {
			content, _ := args["content"].(string)
			if strings.TrimSpace(content) == "" {
				return agent.Output{}, fmt.Errorf("content cannot be empty")
			}

			success := true
			if v, ok := args["success"].(bool); ok {
				success = v
			}

			st.SetCompleted(agent.Result{
				"success": success,
				"content": strings.TrimSpace(content),
			})

			message := "Scan completed successfully"
			if !success {
				message = "Scan completed with errors"
			}
			resultJSON, err := json.Marshal(map[string]any{
				"success":        true,
				"scan_completed": true,
				"message":        message,
			})
			if err != nil {
				return agent.Output{}, err
			}
			return agent.Output{Content: string(resultJSON), Finish: true}, nil
		},
	}
}
