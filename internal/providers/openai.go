// Package providers adapts vendor SDKs to the llm.Client interface.
// OpenAI-compatible endpoints (Kimi, Gemini, DeepSeek, local servers)
// all go through the OpenAI client with a custom base URL.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements llm.Client against the OpenAI chat completions
// API, or any endpoint that speaks the same protocol.
type OpenAIClient struct {
	client  *openai.Client
	baseURL string
}

// NewOpenAIClient creates a client for the OpenAI API. A non-empty baseURL
// redirects requests to an OpenAI-compatible endpoint.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		baseURL: baseURL,
	}, nil
}

// Chat implements llm.Client.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []llm.Message, toolSchemas []llm.ToolSchema, opts llm.Options) (llm.Response, error) {
	openaiMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	var systemMsg string

	// Tool result messages must follow an assistant message that carried
	// tool calls, or the API rejects the request.
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemMsg = msg.Content
			prevAssistantHadToolCalls = false
		case llm.RoleUser:
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
			prevAssistantHadToolCalls = false
		case llm.RoleAssistant:
			// Empty assistant content serializes as null and some endpoints
			// reject it; a single space is accepted and equivalent.
			content := msg.Content
			if content == "" {
				content = " "
			}

			var toolCalls []openai.ToolCall
			if len(msg.ToolInvocations) > 0 {
				toolCalls = make([]openai.ToolCall, 0, len(msg.ToolInvocations))
				for _, inv := range msg.ToolInvocations {
					argsJSON, _ := json.Marshal(inv.Args)
					toolCalls = append(toolCalls, openai.ToolCall{
						ID:   inv.ID,
						Type: "function",
						Function: openai.FunctionCall{
							Name:      inv.Name,
							Arguments: string(argsJSON),
						},
					})
				}
			}

			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevAssistantHadToolCalls = len(msg.ToolInvocations) > 0
		case llm.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			// msg.Name carries the tool call ID the result answers.
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.Name,
				Content:    content,
			})
			if i+1 < len(messages) && messages[i+1].Role == llm.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}

	var tools []openai.Tool
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return llm.Response{}, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}

		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: openaiMsgs,
	}

	if systemMsg != "" {
		req.Messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemMsg,
		}}, req.Messages...)
	}

	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return llm.Response{}, llm.WrapBackendError(err, httpStatus, retryAfter)
	}

	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("empty response from provider")
	}

	choice := resp.Choices[0]

	invocations := make([]llm.ToolInvocation, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = make(map[string]any)
			}
		}
		invocations = append(invocations, llm.ToolInvocation{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	finishReason := "stop"
	if len(invocations) > 0 {
		finishReason = "tool_calls"
	} else if choice.FinishReason == openai.FinishReasonLength {
		finishReason = "length"
	} else if choice.FinishReason == openai.FinishReasonContentFilter {
		finishReason = "content_filter"
	}

	return llm.Response{
		Content:         choice.Message.Content,
		ToolInvocations: invocations,
		Usage: llm.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}

// extractErrorMetadata pulls the HTTP status and Retry-After hint out of an
// SDK error. SDKs flatten these into the error string, so we pattern-match.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	var retryAfter string

	if strings.Contains(errStr, "429") {
		httpStatus = http.StatusTooManyRequests
	} else if strings.Contains(errStr, "500") {
		httpStatus = http.StatusInternalServerError
	} else if strings.Contains(errStr, "502") {
		httpStatus = http.StatusBadGateway
	} else if strings.Contains(errStr, "503") {
		httpStatus = http.StatusServiceUnavailable
	} else if strings.Contains(errStr, "504") {
		httpStatus = http.StatusGatewayTimeout
	} else if strings.Contains(errStr, "401") {
		httpStatus = http.StatusUnauthorized
	} else if strings.Contains(errStr, "403") {
		httpStatus = http.StatusForbidden
	} else if strings.Contains(errStr, "400") {
		httpStatus = http.StatusBadRequest
	} else if strings.Contains(errStr, "402") {
		httpStatus = http.StatusPaymentRequired
	}

	for _, marker := range []string{"retry-after", "retry after"} {
		idx := strings.Index(strings.ToLower(errStr), marker)
		if idx == -1 {
			continue
		}
		remaining := strings.TrimLeft(errStr[idx+len(marker):], ": ")
		if parts := strings.Fields(remaining); len(parts) > 0 {
			retryAfter = parts[0]
		}
		break
	}

	return httpStatus, retryAfter
}
