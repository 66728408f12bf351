// Package prompts defines agent-type profiles: the system prompt template,
// iteration budget, model configuration name, and toolset for each kind of
// agent the runtime can launch.
package prompts

import (
	"fmt"
	"sync"
)

// Profile describes how to bootstrap one agent type.
type Profile struct {
	// Type is the unique agent-type name (e.g. "scanner", "root").
	Type string
	// SystemTemplate is a text/template body for the system prompt.
	SystemTemplate string
	// DefaultMaxIterations is the advisory iteration budget for this type.
	DefaultMaxIterations int
	// LLMConfigName selects a named model configuration; empty means the
	// process default.
	LLMConfigName string
	// Toolset lists the tool names this agent type may call.
	Toolset []string
	// Description is a human-readable summary.
	Description string
}

// ProfileRegistry maps agent-type names to profiles.
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

var defaultRegistry *ProfileRegistry
var defaultRegistryOnce sync.Once

// DefaultRegistry returns the process-wide profile registry. Profiles defined
// in this package register themselves into it at init time.
func DefaultRegistry() *ProfileRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewProfileRegistry()
	})
	return defaultRegistry
}

// NewProfileRegistry creates an empty registry.
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{
		profiles: make(map[string]*Profile),
	}
}

// Register adds a profile, replacing any previous profile of the same type.
func (r *ProfileRegistry) Register(p *Profile) {
	if p == nil || p.Type == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Type] = p
}

// Get retrieves the profile for an agent type.
func (r *ProfileRegistry) Get(agentType string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[agentType]
	if !ok {
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}
	return p, nil
}

// List returns the registered agent-type names.
func (r *ProfileRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.profiles))
	for t := range r.profiles {
		types = append(types, t)
	}
	return types
}
