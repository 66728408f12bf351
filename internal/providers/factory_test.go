package providers

import (
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

func TestNewClientDefaultsProviderToOpenAI(t *testing.T) {
	client, resolved, err := NewClient(llm.Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*OpenAIClient); !ok {
		t.Fatalf("expected *OpenAIClient, got %T", client)
	}
	if resolved.Provider != "openai" {
		t.Errorf("resolved provider = %q, want openai", resolved.Provider)
	}
	if resolved.Model != "gpt-4o-mini" {
		t.Errorf("resolved model = %q, want gpt-4o-mini", resolved.Model)
	}
}

func TestNewClientAnthropicRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, _, err := NewClient(llm.Config{Provider: "anthropic"})
	if err == nil {
		t.Fatal("expected error for missing ANTHROPIC_API_KEY")
	}
	if !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("error %q does not name the missing env var", err)
	}
}

func TestNewClientAnthropicFromEnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	client, resolved, err := NewClient(llm.Config{Provider: "anthropic"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Fatalf("expected *AnthropicClient, got %T", client)
	}
	if resolved.APIKey != "sk-ant-test" {
		t.Errorf("resolved key = %q, want env value", resolved.APIKey)
	}
	if resolved.Model != "claude-3-sonnet-20240229" {
		t.Errorf("resolved model = %q", resolved.Model)
	}
}

func TestNewClientOpenAICompatEndpoints(t *testing.T) {
	cases := []struct {
		provider string
		baseURL  string
	}{
		{"kimi", "https://ark.ap-southeast.bytepluses.com/api/v3"},
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai"},
		{"deepseek", "https://api.deepseek.com/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
	}
	for _, tc := range cases {
		client, resolved, err := NewClient(llm.Config{Provider: tc.provider, APIKey: "test-key"})
		if err != nil {
			t.Fatalf("%s: NewClient: %v", tc.provider, err)
		}
		if _, ok := client.(*OpenAIClient); !ok {
			t.Fatalf("%s: expected *OpenAIClient, got %T", tc.provider, client)
		}
		if resolved.BaseURL != tc.baseURL {
			t.Errorf("%s: base URL = %q, want %q", tc.provider, resolved.BaseURL, tc.baseURL)
		}
	}
}

func TestNewClientLocalServersNeedNoKey(t *testing.T) {
	t.Setenv("LMSTUDIO_API_KEY", "")
	t.Setenv("OLLAMA_API_KEY", "")
	for _, provider := range []string{"lmstudio", "ollama"} {
		if _, _, err := NewClient(llm.Config{Provider: provider}); err != nil {
			t.Errorf("%s: expected default key to apply, got %v", provider, err)
		}
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, _, err := NewClient(llm.Config{Provider: "mistral9000"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewClientConfigOverridesDefaults(t *testing.T) {
	_, resolved, err := NewClient(llm.Config{
		Provider: "kimi",
		APIKey:   "k",
		Model:    "kimi-k2-custom",
		BaseURL:  "https://example.test/v1",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if resolved.Model != "kimi-k2-custom" {
		t.Errorf("model = %q, want override preserved", resolved.Model)
	}
	if resolved.BaseURL != "https://example.test/v1" {
		t.Errorf("base URL = %q, want override preserved", resolved.BaseURL)
	}
}

func TestSupported(t *testing.T) {
	if !Supported("openai") || !Supported("anthropic") {
		t.Error("core providers should be supported")
	}
	if Supported("") || Supported("bard") {
		t.Error("unknown providers should not be supported")
	}
}
