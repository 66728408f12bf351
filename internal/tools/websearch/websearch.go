// Package websearch gives agents access to the web. Queries go through the
// Firecrawl search API, which returns scraped page content, and the raw
// pages are distilled into one answer by a model call.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/kestrel/internal/agent"
	"github.com/ChamsBouzaiene/kestrel/internal/knowledge"
	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

const (
	defaultEndpoint = "https://api.firecrawl.dev/v1/search"
	resultLimit     = 5
	// Per-page cap on scraped markdown fed to the synthesis model.
	pageSnippetChars = 15000
	requestTimeout   = 60 * time.Second
)

const synthesisPrompt = `You are assisting a security agent specialized in vulnerability
scanning and assessment running on Kali Linux.

You are given web search results in Markdown. Synthesize them into a single
answer to the user's query:

1. Prioritize security-relevant information: vulnerability details (CVEs,
   CVSS scores, impact), tools and techniques, exploit details and
   proof-of-concepts, mitigations.
2. Write for a security professional and include concrete commands or code
   where applicable.
3. If the results do not answer the query, say so and suggest what to search
   next.

Be comprehensive but concise, leading with the most critical implications.`

// Options configures the web_search tool. Synthesizer and Knowledge are
// optional; without a synthesizer the raw page snippets are returned, and
// without a knowledge index scraped pages are not persisted.
type Options struct {
	APIKey      string
	Endpoint    string // defaults to the Firecrawl search API
	HTTPClient  *http.Client
	Synthesizer llm.Client
	Model       string
	Knowledge   *knowledge.Index
}

type searchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

type searchResponse struct {
	Success bool           `json:"success"`
	Data    []searchResult `json:"data"`
}

// NewWebSearchTool creates the web_search tool.
func NewWebSearchTool(opts Options) agent.Tool {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return agent.Tool{
		Name: "web_search",
		Description: `Search the web and get a synthesized answer. Use this to research
vulnerabilities, CVEs, exploitation techniques, and tool usage. The top
results are scraped in full and distilled into one response.`,
		Schema: `{
			"type": "object",
			"properties": {
				"query": {"type":"string","description":"What to search for"}
			},
			"required": ["query"]
		}`,
		Run: func(ctx context.Context, args map[string]any, st *agent.State) (agent.Output, error) {
			query, ok := args["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return agent.Output{}, fmt.Errorf("query must be a non-empty string")
			}

			if opts.APIKey == "" {
				return jsonOutput(map[string]any{
					"success": false,
					"message": "FIRECRAWL_API_KEY not configured; web search is unavailable",
				})
			}

			results, err := runSearch(ctx, httpClient, endpoint, opts.APIKey, query)
			if err != nil {
				return jsonOutput(map[string]any{
					"success": false,
					"message": fmt.Sprintf("Search failed: %v", err),
				})
			}
			if len(results) == 0 {
				return jsonOutput(map[string]any{
					"success": false,
					"message": "No results found.",
				})
			}

			if opts.Knowledge != nil {
				saveResults(st.AgentID(), query, results, opts.Knowledge)
			}

			content, err := synthesize(ctx, opts, query, results)
			if err != nil {
				return jsonOutput(map[string]any{
					"success": false,
					"message": fmt.Sprintf("Web search failed: %v", err),
				})
			}

			return jsonOutput(map[string]any{
				"success": true,
				"query":   query,
				"content": content,
				"message": "Web search completed successfully",
			})
		},
	}
}

// runSearch calls the Firecrawl search API, retrying transient failures.
func runSearch(ctx context.Context, client *http.Client, endpoint, apiKey, query string) ([]searchResult, error) {
	policy := llm.RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	results, _, err := llm.RetryWithPolicy(ctx, policy, func(ctx context.Context) ([]searchResult, error) {
		return searchOnce(ctx, client, endpoint, apiKey, query)
	}, nil)
	return results, err
}

func searchOnce(ctx context.Context, client *http.Client, endpoint, apiKey, query string) ([]searchResult, error) {
	payload, err := json.Marshal(map[string]any{
		"query": query,
		"limit": resultLimit,
		"scrapeOptions": map[string]any{
			"formats": []string{"markdown"},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := fmt.Errorf("search API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, llm.WrapBackendError(apiErr, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed search response: %w", err)
	}
	if !parsed.Success {
		return nil, nil
	}
	return parsed.Data, nil
}

// saveResults records scraped pages in the knowledge index. Persistence is
// best effort; a failed write never fails the search.
func saveResults(agentID, query string, results []searchResult, index *knowledge.Index) {
	for _, r := range results {
		if r.Markdown == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = query
		}
		_, _ = index.Add(knowledge.Artifact{
			AgentID: agentID,
			Source:  "web_search",
			Title:   title,
			URL:     r.URL,
			Content: r.Markdown,
		})
	}
}

// synthesize distills the scraped pages into one answer. Without a
// synthesis model the snippets are returned as-is.
func synthesize(ctx context.Context, opts Options, query string, results []searchResult) (string, error) {
	var contextParts []string
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		snippet := r.Markdown
		if len(snippet) > pageSnippetChars {
			snippet = snippet[:pageSnippetChars]
		}
		contextParts = append(contextParts, fmt.Sprintf("Source: %s (%s)\n\nContent:\n%s\n---", title, r.URL, snippet))
	}
	fullContext := strings.Join(contextParts, "\n")

	if opts.Synthesizer == nil {
		return fullContext, nil
	}

	resp, err := opts.Synthesizer.Chat(ctx, opts.Model, []llm.Message{
		{Role: llm.RoleSystem, Content: synthesisPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("User Query: %s\n\nSearch Results:\n%s", query, fullContext)},
	}, nil, llm.Options{})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func jsonOutput(v map[string]any) (agent.Output, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{Content: string(data)}, nil
}
