package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port int
	Env  string

	// Database (sessions and selection runs)
	DatabaseURL string

	// NATS (selection job queue)
	NATSURL string

	// LLM
	LLM LLMConfig

	// Selection
	Selection SelectionConfig

	// Directory for extracted JSON, reports and chain outputs
	OutputDir string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	// Ollama settings
	OllamaURL         string
	OllamaFallbackURL string
	OllamaTier1       string
	OllamaTier2       string

	// Model that writes the final evaluation of a prompt chain
	FinalModel string

	// Request timeout for a single completion
	Timeout time.Duration

	// Response cache: "memory" or "none"
	Cache    string
	CacheTTL time.Duration
}

// SelectionConfig holds smart selection settings
type SelectionConfig struct {
	// Model asked whether two test cases are the same
	Model string

	// Oracle used when no LLM is reachable: "title" or "" (fail)
	OfflineOracle string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),
		OutputDir:   getEnv("STLC_OUTPUT_DIR", "."),

		LLM: LLMConfig{
			OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
			OllamaFallbackURL: getEnv("OLLAMA_FALLBACK_URL", ""),
			OllamaTier1:       getEnv("OLLAMA_TIER1_MODEL", "llama3.2"),
			OllamaTier2:       getEnv("OLLAMA_TIER2_MODEL", "llama3.1"),
			FinalModel:        getEnv("STLC_FINAL_MODEL", "llama3.1"),
			Timeout:           getEnvDuration("STLC_LLM_TIMEOUT", 5*time.Minute),
			Cache:             getEnv("STLC_CACHE", "memory"),
			CacheTTL:          getEnvDuration("STLC_CACHE_TTL", 24*time.Hour),
		},

		Selection: SelectionConfig{
			Model:         getEnv("STLC_SIMILARITY_MODEL", "llama3.2"),
			OfflineOracle: getEnv("STLC_OFFLINE_ORACLE", ""),
		},
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.LLM.OllamaURL == "" {
		return fmt.Errorf("OLLAMA_URL is required")
	}
	if c.Selection.Model == "" {
		return fmt.Errorf("STLC_SIMILARITY_MODEL must not be empty")
	}
	switch c.LLM.Cache {
	case "memory", "none", "":
	default:
		return fmt.Errorf("STLC_CACHE must be memory or none, got %q", c.LLM.Cache)
	}
	switch c.Selection.OfflineOracle {
	case "title", "":
	default:
		return fmt.Errorf("STLC_OFFLINE_ORACLE must be title or empty, got %q", c.Selection.OfflineOracle)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
