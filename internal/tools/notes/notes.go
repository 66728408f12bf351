// Package notes lets agents record and recall findings during a run. Notes
// live in the shared knowledge index, so sibling agents see each other's
// observations.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/knowledge"
)

const noteSource = "notes"

// NewCreateNoteTool creates the tool that saves a note to the run's
// knowledge index.
func NewCreateNoteTool(index *knowledge.Index) agent.Tool {
	return agent.Tool{
		Name: "create_note",
		Description: `Save a note for later. Use this to record findings, credentials
discovered during testing, interesting endpoints, and hypotheses you want to
revisit. Notes persist for the whole run and are visible to other agents.`,
		Schema: `{
			"type": "object",
			"properties": {
				"title": {"type":"string","description":"Short label for the note"},
				"content": {"type":"string","description":"The note body"}
			},
			"required": ["title", "content"]
		}`,
		Run: func(ctx context.Context, args map[string]any, st *agent.State) (agent.Output, error) {
			title, _ := args["title"].(string)
			content, _ := args["content"].(string)
			if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
				return agent.Output{}, fmt.Errorf("title and content must be non-empty")
			}

			artifact, err := index.Add(knowledge.Artifact{
				AgentID: st.AgentID(),
				Source:  noteSource,
				Title:   strings.TrimSpace(title),
				Content: content,
			})
			if err != nil {
				return agent.Output{}, fmt.Errorf("failed to save note: %w", err)
			}

			resultJSON, err := json.Marshal(map[string]any{
				"success": true,
				"note_id": artifact.ID,
				"message": "Note saved",
			})
			if err != nil {
				return agent.Output{}, err
			}
			return agent.Output{Content: string(resultJSON)}, nil
		},
	}
}

// NewListNotesTool creates the tool that retrieves saved notes. An optional
// query narrows the result by full-text match; without one, all notes for
// the run are returned.
func NewListNotesTool(index *knowledge.Index) agent.Tool {
	return agent.Tool{
		Name: "list_notes",
		Description: `List saved notes. Pass a query to search note titles and bodies,
or omit it to list every note recorded this run.`,
		Schema: `{
			"type": "object",
			"properties": {
				"query": {"type":"string","description":"Optional full-text search over notes"},
				"limit": {"type":"integer","minimum":1,"maximum":100,"description":"Maximum notes to return (default: 20)"}
			}
		}`,
		Run: func(ctx context.Context, args map[string]any, st *agent.State) (agent.Output, error) {
			limit := 20
			switch v := args["limit"].(type) {
			case float64:
				limit = int(v)
			case int:
				limit = v
			}
			if limit <= 0 {
				limit = 20
			}

			var hits []knowledge.SearchHit
			var err error
			if query, _ := args["query"].(string); strings.TrimSpace(query) != "" {
				hits, err = index.Search(query, "", limit)
			} else {
				hits, err = index.List("", noteSource, limit)
			}
			if err != nil {
				return agent.Output{}, fmt.Errorf("failed to list notes: %w", err)
			}

			type note struct {
				ID      string `json:"id"`
				AgentID string `json:"agent_id"`
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			out := make([]note, 0, len(hits))
			for _, h := range hits {
				if h.Source != noteSource {
					continue
				}
				out = append(out, note{ID: h.ID, AgentID: h.AgentID, Title: h.Title, Content: h.Content})
			}

			resultJSON, err := json.Marshal(map[string]any{
				"success": true,
				"count":   len(out),
				"notes":   out,
			})
			if err != nil {
				return agent.Output{}, err
			}
			return agent.Output{Content: string(resultJSON)}, nil
		},
	}
}
