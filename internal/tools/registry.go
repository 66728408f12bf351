// Package tools assembles the tool registry agents draw from. Profiles
// select a subset of these by name.
package tools

import (
	"net/http"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/knowledge"
	"github.com/ChamsBouzaiene/kestrel/internal/llm"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
	"github.com/ChamsBouzaiene/kestrel/internal/tools/control"
	"github.com/ChamsBouzaiene/kestrel/internal/tools/notes"
	"github.com/ChamsBouzaiene/kestrel/internal/tools/reasoning"
	"github.com/ChamsBouzaiene/kestrel/internal/tools/terminal"
	"github.com/ChamsBouzaiene/kestrel/internal/tools/websearch"
)

// Deps carries the shared infrastructure tools are built on. Optional
// fields gate their tools: no Executor means no terminal, no Knowledge
// means no notes, no FirecrawlKey means no web search.
type Deps struct {
	Executor     sandbox.Executor
	Knowledge    *knowledge.Index
	FirecrawlKey string
	Synthesizer  llm.Client
	Model        string
	HTTPClient   *http.Client
}

// BuildRegistry constructs the full tool registry for a run.
func BuildRegistry(deps Deps) *agent.Registry {
	reg := agent.NewRegistry()

	reg.Register(control.NewFinishTool())
	reg.Register(reasoning.NewThinkTool())

	if deps.Executor != nil {
		reg.Register(terminal.NewExecuteTool(deps.Executor))
	}

	if deps.Knowledge != nil {
		reg.Register(notes.NewCreateNoteTool(deps.Knowledge))
		reg.Register(notes.NewListNotesTool(deps.Knowledge))
	}

	reg.Register(websearch.NewWebSearchTool(websearch.Options{
		APIKey:      deps.FirecrawlKey,
		HTTPClient:  deps.HTTPClient,
		Synthesizer: deps.Synthesizer,
		Model:       deps.Model,
		Knowledge:   deps.Knowledge,
	}))

	return reg
}
