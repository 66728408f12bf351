package sandbox

import (
	"log"
	"os"
	"time"
)

// DefaultImage is the workspace image used when none is configured.
const DefaultImage = "kalilinux/kali-rolling"

// defaultExecTimeout bounds a single command inside the workspace.
const defaultExecTimeout = 2 * time.Minute

// Config holds configuration for workspace provisioning.
type Config struct {
	Image       string        // Workspace image override
	CPU         string        // CPU limit (e.g., "2")
	Memory      string        // Memory limit (e.g., "1g")
	ExecTimeout time.Duration // Default command timeout (0 = use default)
}

// DefaultConfig returns the default configuration based on environment variables.
func DefaultConfig() Config {
	execTimeout := defaultExecTimeout
	if timeoutStr := os.Getenv("KESTREL_EXEC_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			execTimeout = d
		} else {
			log.Printf("WARNING: Invalid KESTREL_EXEC_TIMEOUT value '%s', using default %v", timeoutStr, defaultExecTimeout)
		}
	}

	return Config{
		Image:       getEnvOrDefault("KESTREL_SANDBOX_IMAGE", DefaultImage),
		CPU:         getEnvOrDefault("KESTREL_SANDBOX_CPU", "2"),
		Memory:      getEnvOrDefault("KESTREL_SANDBOX_MEMORY", "1g"),
		ExecTimeout: execTimeout,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
