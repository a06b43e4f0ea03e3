package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"PORT", "ENV", "DATABASE_URL", "NATS_URL", "OLLAMA_URL", "OLLAMA_FALLBACK_URL",
		"OLLAMA_TIER1_MODEL", "OLLAMA_TIER2_MODEL", "STLC_FINAL_MODEL", "STLC_LLM_TIMEOUT",
		"STLC_CACHE", "STLC_CACHE_TTL", "STLC_SIMILARITY_MODEL", "STLC_OFFLINE_ORACLE",
		"STLC_OUTPUT_DIR",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %s, want development", cfg.Env)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %s, want empty", cfg.DatabaseURL)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATSURL = %s, want empty", cfg.NATSURL)
	}
	if cfg.OutputDir != "." {
		t.Errorf("OutputDir = %s, want .", cfg.OutputDir)
	}
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("LLM.OllamaURL = %s, want http://localhost:11434", cfg.LLM.OllamaURL)
	}
	if cfg.LLM.Timeout != 5*time.Minute {
		t.Errorf("LLM.Timeout = %v, want 5m", cfg.LLM.Timeout)
	}
	if cfg.Selection.Model != "llama3.2" {
		t.Errorf("Selection.Model = %s, want llama3.2", cfg.Selection.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/stlc")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("OLLAMA_URL", "http://ollama:11434")
	t.Setenv("STLC_SIMILARITY_MODEL", "qwen2.5:7b")
	t.Setenv("STLC_LLM_TIMEOUT", "30s")
	t.Setenv("STLC_CACHE", "none")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() should be true")
	}
	if cfg.DatabaseURL != "postgres://user:pass@db:5432/stlc" {
		t.Errorf("DatabaseURL = %s", cfg.DatabaseURL)
	}
	if cfg.NATSURL != "nats://nats:4222" {
		t.Errorf("NATSURL = %s", cfg.NATSURL)
	}
	if cfg.LLM.OllamaURL != "http://ollama:11434" {
		t.Errorf("OllamaURL = %s", cfg.LLM.OllamaURL)
	}
	if cfg.Selection.Model != "qwen2.5:7b" {
		t.Errorf("Selection.Model = %s", cfg.Selection.Model)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("LLM.Timeout = %v, want 30s", cfg.LLM.Timeout)
	}
	if cfg.LLM.Cache != "none" {
		t.Errorf("LLM.Cache = %s, want none", cfg.LLM.Cache)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("STLC_CACHE_TTL", "forever")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
	if cfg.LLM.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want 24h", cfg.LLM.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:      8080,
			LLM:       LLMConfig{OllamaURL: "http://localhost:11434", Cache: "memory"},
			Selection: SelectionConfig{Model: "llama3.2"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing ollama url", func(c *Config) { c.LLM.OllamaURL = "" }, true},
		{"missing similarity model", func(c *Config) { c.Selection.Model = "" }, true},
		{"unknown cache", func(c *Config) { c.LLM.Cache = "redis" }, true},
		{"unknown offline oracle", func(c *Config) { c.Selection.OfflineOracle = "random" }, true},
		{"title offline oracle", func(c *Config) { c.Selection.OfflineOracle = "title" }, false},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
