package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// LLM binds a provider client to a configuration and a fixed tool schema set.
// It owns retry and converts terminal backend failures into *RequestError.
type LLM struct {
	client    Client
	config    Config
	schemas   []ToolSchema
	agentName string
	agentID   string
}

// New creates an LLM wrapper for one agent.
func New(client Client, config Config, schemas []ToolSchema) *LLM {
	return &LLM{client: client, config: config, schemas: schemas}
}

// SetAgentIdentity tags subsequent log lines with the owning agent.
func (l *LLM) SetAgentIdentity(name, id string) {
	l.agentName = name
	l.agentID = id
}

// Config returns the active backend configuration.
func (l *LLM) Config() Config { return l.config }

// Generate turns the conversation history into a structured response.
// On failure it returns a *RequestError carrying the message and structured
// details; the caller never sees raw provider errors.
func (l *LLM) Generate(ctx context.Context, history []Message) (Response, error) {
	policy := DefaultRetryPolicy()
	if l.config.Retry != nil {
		policy = *l.config.Retry
	}

	opts := Options{
		Temperature:     l.config.Temperature,
		MaxOutputTokens: l.config.MaxOutputTokens,
	}

	resp, attempts, err := RetryWithPolicy(ctx, policy,
		func(ctx context.Context) (Response, error) {
			return l.client.Chat(ctx, l.config.Model, history, l.schemas, opts)
		},
		func(attempt int, delay time.Duration, err error) {
			log.Printf("llm retry agent=%s attempt=%d/%d delay=%v error=%v",
				l.agentName, attempt, policy.MaxRetries, delay, err)
		},
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Response{}, err
		}
		return Response{}, NewRequestError(err, attempts+1)
	}

	if resp.ToolInvocations == nil {
		resp.ToolInvocations = []ToolInvocation{}
	}
	return resp, nil
}

// Named configuration registry. Configs are registered once at bootstrap and
// resolved by name at agent construction (the llm_config_name option).
var (
	configsMu sync.RWMutex
	configs   = make(map[string]Config)
)

// RegisterConfig stores a named backend configuration.
func RegisterConfig(name string, cfg Config) {
	configsMu.Lock()
	defer configsMu.Unlock()
	configs[name] = cfg
}

// LookupConfig resolves a named backend configuration.
func LookupConfig(name string) (Config, error) {
	configsMu.RLock()
	defer configsMu.RUnlock()
	cfg, ok := configs[name]
	if !ok {
		return Config{}, fmt.Errorf("llm config not found: %s", name)
	}
	return cfg, nil
}
