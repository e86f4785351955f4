package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/store"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Loop.MaxIterations != 3 || cfg.Loop.MinIterations != 2 || cfg.Loop.CoverageThreshold != 95 {
		t.Errorf("unexpected loop defaults: %+v", cfg.Loop)
	}
	if cfg.Merge.DedupThreshold != 0.85 || cfg.Chunk.MaxTokens != 400 {
		t.Errorf("unexpected merge/chunk defaults")
	}
}

func TestParse_Overlay(t *testing.T) {
	cfg := Default()
	data := []byte(`
loop:
  max_iterations: 5
merge:
  known_contexts: [revenue, "net income"]
llm:
  active_provider: deepseek
  agents:
    verifier:
      provider: gemini
      temperature: 0
  providers:
    deepseek:
      model: deepseek-chat
`)
	if err := Parse(data, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Loop.MaxIterations != 5 {
		t.Errorf("max_iterations = %d", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.MinIterations != 2 {
		t.Errorf("absent keys should keep defaults, min_iterations = %d", cfg.Loop.MinIterations)
	}
	if len(cfg.Merge.KnownContexts) != 2 {
		t.Errorf("known_contexts = %v", cfg.Merge.KnownContexts)
	}
	if cfg.LLM.ActiveProvider != "deepseek" {
		t.Errorf("active_provider = %q", cfg.LLM.ActiveProvider)
	}
	v, ok := cfg.LLM.Agents["verifier"]
	if !ok || v.Provider != "gemini" || v.Temperature == nil || *v.Temperature != 0 {
		t.Errorf("verifier agent = %+v", v)
	}
	if cfg.ProviderSettings()["deepseek"].Model != "deepseek-chat" {
		t.Errorf("provider settings = %+v", cfg.ProviderSettings())
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.LLM.Providers["deepseek"] = ProviderConfig{APIKey: "from-yaml"}
	err := cfg.ApplyEnv(envMap(map[string]string{
		"EXTRACTOR_MAX_ITERATIONS":     "4",
		"EXTRACTOR_COVERAGE_THRESHOLD": "90.5",
		"EXTRACTOR_PROVIDER":           "deepseek",
		"EXTRACTOR_JSON_LOGS":          "true",
		"GEMINI_API_KEY":               "g-key",
		"DEEPSEEK_API_KEY":             "d-key",
		"REDIS_URL":                    "redis://localhost:6379/0",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Loop.MaxIterations != 4 || cfg.Loop.CoverageThreshold != 90.5 {
		t.Errorf("loop = %+v", cfg.Loop)
	}
	if cfg.LLM.ActiveProvider != "deepseek" || !cfg.Log.JSON {
		t.Errorf("provider/log not overridden")
	}
	if cfg.LLM.Providers["gemini"].APIKey != "g-key" || cfg.LLM.Providers["gemini-legacy"].APIKey != "g-key" {
		t.Errorf("gemini keys = %+v", cfg.LLM.Providers)
	}
	if cfg.LLM.Providers["deepseek"].APIKey != "from-yaml" {
		t.Errorf("explicit api_key should win over the environment")
	}
	if cfg.Audit.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.Audit.RedisURL)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"EXTRACTOR_MAX_ITERATIONS": "three"}))
	if err == nil || !strings.Contains(err.Error(), "EXTRACTOR_MAX_ITERATIONS") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"min above max", func(c *Config) { c.Loop.MinIterations = 4 }, "min_iterations"},
		{"zero coverage", func(c *Config) { c.Loop.CoverageThreshold = 0 }, "coverage_threshold"},
		{"coverage above 100", func(c *Config) { c.Loop.CoverageThreshold = 101 }, "coverage_threshold"},
		{"dedup above 1", func(c *Config) { c.Merge.DedupThreshold = 1.5 }, "dedup_threshold"},
		{"zero dedup", func(c *Config) { c.Merge.DedupThreshold = 0 }, "dedup_threshold"},
		{"bad counter", func(c *Config) { c.Chunk.TokenCounter = "bytes" }, "token_counter"},
		{"postgres without url", func(c *Config) { c.Audit.Backend = store.BackendPostgres }, "database_url"},
		{"unknown backend", func(c *Config) { c.Audit.Backend = "s3" }, "unknown audit backend"},
		{"bad retry delay", func(c *Config) { c.Loop.RetryDelay = "soon" }, "retry_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extractor.yaml")
	if err := os.WriteFile(path, []byte("audit:\n  backend: redis\n  redis_url: redis://cache:6379\n  redis_ttl: 2h\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := cfg.AuditOptions()
	if opts.Backend != store.BackendRedis || opts.RedisTTL != 2*time.Hour {
		t.Errorf("audit options = %+v", opts)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("an explicit missing path should fail")
	}
}

func TestExampleConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", DefaultPath))
	if err != nil {
		t.Fatalf("read example config: %v", err)
	}
	cfg := Default()
	if err := Parse(data, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config should validate: %v", err)
	}
	if cfg.LLM.Agents["unit_classifier"].Provider != "deepseek" {
		t.Errorf("agents = %+v", cfg.LLM.Agents)
	}
}
