package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

// Output is what a tool hands back to the loop: content folded into the
// conversation, plus an optional finish signal that ends the run.
type Output struct {
	Content string
	Finish  bool
}

// Func executes one tool invocation. Tools may read and mutate the state
// record to log their own side effects. The context is cancelled when the
// operator aborts the in-flight batch.
type Func func(ctx context.Context, args map[string]any, st *State) (Output, error)

// Tool is a named action the model can invoke.
type Tool struct {
	Name        string
	Description string
	// Schema is the JSON Schema for the arguments object.
	Schema string
	Run    Func
}

// ValidateArgs checks the invocation arguments against the tool's schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.Schema == "" {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(t.Schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation error for %s: %w", t.Name, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid arguments for %s: %s", t.Name, strings.Join(msgs, "; "))
}

// Registry holds the tools available to an agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("unknown tool: %s", name)
	}
	return t, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns a registry restricted to the named tools. Unknown names are
// skipped so a profile can list tools that a given deployment lacks.
func (r *Registry) Subset(names []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := NewRegistry()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			sub.tools[t.Name] = t
		}
	}
	return sub
}

// Schemas renders the registry as backend tool schemas, sorted by name.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schema := t.Schema
		if schema == "" {
			schema = `{"type":"object","properties":{}}`
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  schema,
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}
