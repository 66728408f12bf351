// Package llm provides the provider-agnostic model-backend layer:
// message/response types, retry with error classification, and the LLM
// wrapper agents talk to.
package llm

import "context"

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the provider-agnostic conversation turn we pass around.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Name carries the tool invocation ID for RoleTool messages (providers
	// use it to match tool results to tool calls).
	Name string `json:"name,omitempty"`
	// ToolInvocations stores the invocations made by an assistant message,
	// needed when converting back to provider format.
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// ToolInvocation is a structured request from the model to run a named tool.
type ToolInvocation struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// Response is the normalized result of one completion call. ToolInvocations
// is empty, never absent, when the model requested no tools.
type Response struct {
	Content         string
	ToolInvocations []ToolInvocation
	Usage           Usage
	FinishReason    string // "stop" | "length" | "tool_calls" | "content_filter"
}

// Options holds the knobs forwarded to the provider SDK.
type Options struct {
	Temperature     float32
	MaxOutputTokens int
}

// Client abstracts a provider SDK (OpenAI, Anthropic, ...).
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, toolSchemas []ToolSchema, opts Options) (Response, error)
}

// Config selects and parameterizes a model backend.
type Config struct {
	Provider        string  `json:"provider"` // openai, anthropic, kimi
	Model           string  `json:"model"`
	APIKey          string  `json:"api_key,omitempty"`
	BaseURL         string  `json:"base_url,omitempty"`
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	// Retry is optional; zero value means DefaultRetryPolicy.
	Retry *RetryPolicy `json:"-"`
}
