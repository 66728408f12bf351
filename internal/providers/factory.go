package providers

import (
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/kestrel/internal/llm"
)

// backendDefaults describes one supported provider: where its API key comes
// from when the config leaves it blank, and the model and endpoint to use
// when none is specified. Providers with an openAICompat base URL speak the
// OpenAI protocol and share OpenAIClient.
type backendDefaults struct {
	keyEnv       string
	defaultKey   string // local servers accept any key
	model        string
	baseURL      string
	baseURLEnv   string
	openAICompat bool
}

var backends = map[string]backendDefaults{
	"openai": {
		keyEnv:       "OPENAI_API_KEY",
		model:        "gpt-4o-mini",
		baseURLEnv:   "OPENAI_BASE_URL",
		openAICompat: true,
	},
	"anthropic": {
		keyEnv: "ANTHROPIC_API_KEY",
		model:  "claude-3-sonnet-20240229",
	},
	"kimi": {
		keyEnv:       "KIMI_API_KEY",
		model:        "kimi-k2-250711",
		baseURL:      "https://ark.ap-southeast.bytepluses.com/api/v3",
		baseURLEnv:   "KIMI_BASE_URL",
		openAICompat: true,
	},
	"gemini": {
		keyEnv:       "GEMINI_API_KEY",
		model:        "gemini-1.5-flash",
		baseURL:      "https://generativelanguage.googleapis.com/v1beta/openai",
		openAICompat: true,
	},
	"lmstudio": {
		keyEnv:       "LMSTUDIO_API_KEY",
		defaultKey:   "lm-studio",
		model:        "local-model",
		baseURL:      "http://localhost:1234/v1",
		baseURLEnv:   "LMSTUDIO_BASE_URL",
		openAICompat: true,
	},
	"ollama": {
		keyEnv:       "OLLAMA_API_KEY",
		defaultKey:   "ollama",
		model:        "llama3.1",
		baseURL:      "http://localhost:11434/v1",
		baseURLEnv:   "OLLAMA_BASE_URL",
		openAICompat: true,
	},
	"deepseek": {
		keyEnv:       "DEEPSEEK_API_KEY",
		model:        "deepseek-chat",
		baseURL:      "https://api.deepseek.com/v1",
		openAICompat: true,
	},
	"groq": {
		keyEnv:       "GROQ_API_KEY",
		model:        "llama-3.1-70b-versatile",
		baseURL:      "https://api.groq.com/openai/v1",
		openAICompat: true,
	},
}

// NewClient builds an llm.Client for the configured provider. It fills in
// the resolved model and base URL on the returned config so callers see the
// effective settings. API keys fall back to the provider's environment
// variable when the config leaves them blank.
func NewClient(cfg llm.Config) (llm.Client, llm.Config, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	def, ok := backends[provider]
	if !ok {
		return nil, cfg, fmt.Errorf("unknown provider: %s (supported: openai, anthropic, kimi, gemini, lmstudio, ollama, deepseek, groq)", provider)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(def.keyEnv)
	}
	if apiKey == "" {
		apiKey = def.defaultKey
	}
	if apiKey == "" {
		return nil, cfg, fmt.Errorf("%s not set", def.keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = def.model
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && def.baseURLEnv != "" {
		baseURL = os.Getenv(def.baseURLEnv)
	}
	if baseURL == "" {
		baseURL = def.baseURL
	}

	resolved := cfg
	resolved.Provider = provider
	resolved.APIKey = apiKey
	resolved.Model = model
	resolved.BaseURL = baseURL

	if def.openAICompat {
		client, err := NewOpenAIClient(apiKey, baseURL)
		if err != nil {
			return nil, resolved, fmt.Errorf("failed to create %s client: %w", provider, err)
		}
		return client, resolved, nil
	}

	client, err := NewAnthropicClient(apiKey)
	if err != nil {
		return nil, resolved, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, resolved, nil
}

// Supported reports whether the named provider is known to the factory.
func Supported(provider string) bool {
	_, ok := backends[provider]
	return ok
}
