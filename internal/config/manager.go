package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	LLMProvider  string `json:"llm_provider,omitempty"`  // openai, anthropic
	APIKey       string `json:"api_key,omitempty"`       // The API key for the selected provider
	Model        string `json:"model,omitempty"`         // Default model name
	BaseURL      string `json:"base_url,omitempty"`      // Optional override for API base URL
	FirecrawlKey string `json:"firecrawl_key,omitempty"` // Key for the web search scraper
	SandboxImage string `json:"sandbox_image,omitempty"` // Override for the workspace container image
	RunDir       string `json:"run_dir,omitempty"`       // Where run databases and indexes live
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	return &Manager{
		configDir: filepath.Join(configDir, "kestrel"),
	}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk, then applies environment variable
// overrides. A missing file yields an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config json: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KESTREL_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("KESTREL_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("KESTREL_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("KESTREL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FIRECRAWL_API_KEY"); v != "" {
		cfg.FirecrawlKey = v
	}
	if v := os.Getenv("KESTREL_SANDBOX_IMAGE"); v != "" {
		cfg.SandboxImage = v
	}
	if v := os.Getenv("KESTREL_RUN_DIR"); v != "" {
		cfg.RunDir = v
	}
}

// ResolveRunDir returns the configured run directory, defaulting to
// ~/.kestrel/runs, and creates it if needed.
func (m *Manager) ResolveRunDir(cfg *Config) (string, error) {
	dir := cfg.RunDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home dir: %w", err)
		}
		dir = filepath.Join(home, ".kestrel", "runs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run dir: %w", err)
	}
	return dir, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.GetConfigPath()
	// Keys live in this file, keep it owner-only.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
