// Package config loads extractor settings. Sources are applied in order:
// built-in defaults, a .env file, the YAML config file, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/agent"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/llm"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/store"
)

// DefaultPath is read when no config file is given. It may be absent.
const DefaultPath = "config/extractor.yaml"

type Config struct {
	Log        LogConfig     `yaml:"log"`
	Loop       LoopConfig    `yaml:"loop"`
	Chunk      ChunkConfig   `yaml:"chunk"`
	Merge      MergeConfig   `yaml:"merge"`
	Extract    ExtractConfig `yaml:"extract"`
	Audit      AuditConfig   `yaml:"audit"`
	PromptsDir string        `yaml:"prompts_dir"`
	LLM        LLMConfig     `yaml:"llm"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type LoopConfig struct {
	MaxIterations     int     `yaml:"max_iterations"`
	MinIterations     int     `yaml:"min_iterations"`
	CoverageThreshold float64 `yaml:"coverage_threshold"`
	EventBuffer       int     `yaml:"event_buffer"`
	BatchConcurrency  int     `yaml:"batch_concurrency"`
	RetryDelay        string  `yaml:"retry_delay"`
}

type ChunkConfig struct {
	MaxTokens     int     `yaml:"max_tokens"`
	TokensPerWord float64 `yaml:"tokens_per_word"`
	TokenCounter  string  `yaml:"token_counter"` // words | tiktoken
	Encoding      string  `yaml:"encoding"`
}

type MergeConfig struct {
	DedupThreshold      float64  `yaml:"dedup_threshold"`
	FallbackConcurrency int      `yaml:"fallback_concurrency"`
	KnownContexts       []string `yaml:"known_contexts"`
}

type ExtractConfig struct {
	PageConcurrency int `yaml:"page_concurrency"`
}

type AuditConfig struct {
	Backend     string `yaml:"backend"` // file | postgres | redis | none
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
	RedisTTL    string `yaml:"redis_ttl"`
}

// LLMConfig keeps the role routing block next to per-provider settings.
type LLMConfig struct {
	agent.Config `yaml:",inline"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: string(logger.InfoLevel)},
		Loop: LoopConfig{
			MaxIterations:     3,
			MinIterations:     2,
			CoverageThreshold: 95,
			EventBuffer:       64,
			BatchConcurrency:  3,
			RetryDelay:        "500ms",
		},
		Chunk: ChunkConfig{
			MaxTokens:     400,
			TokensPerWord: 1.33,
			TokenCounter:  "words",
			Encoding:      "cl100k_base",
		},
		Merge: MergeConfig{
			DedupThreshold:      0.85,
			FallbackConcurrency: 4,
		},
		Extract: ExtractConfig{PageConcurrency: 4},
		Audit: AuditConfig{
			Backend:     store.BackendFile,
			Dir:         ".audit",
			RedisPrefix: "extractor:audit",
			RedisTTL:    "168h",
		},
		LLM: LLMConfig{
			Config: agent.Config{
				ActiveProvider: "gemini",
				Agents:         map[string]agent.AgentConfig{},
			},
			Providers: map[string]ProviderConfig{},
		},
	}
}

// Load reads .env (if present), the YAML file at path, then the environment.
// An empty path reads DefaultPath and tolerates its absence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	optional := path == ""
	if optional {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays YAML onto cfg; keys absent from data keep their value.
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnv overrides fields from EXTRACTOR_* variables and the vendor
// credentials (GEMINI_API_KEY, DEEPSEEK_API_KEY, DATABASE_URL, REDIS_URL).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("EXTRACTOR_LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("EXTRACTOR_JSON_LOGS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("EXTRACTOR_JSON_LOGS: %w", err))
		} else {
			c.Log.JSON = b
		}
	}
	integer("EXTRACTOR_MAX_ITERATIONS", &c.Loop.MaxIterations)
	integer("EXTRACTOR_MIN_ITERATIONS", &c.Loop.MinIterations)
	num("EXTRACTOR_COVERAGE_THRESHOLD", &c.Loop.CoverageThreshold)
	num("EXTRACTOR_DEDUP_THRESHOLD", &c.Merge.DedupThreshold)
	integer("EXTRACTOR_CHUNK_MAX_TOKENS", &c.Chunk.MaxTokens)
	str("EXTRACTOR_TOKEN_COUNTER", &c.Chunk.TokenCounter)
	integer("EXTRACTOR_PAGE_CONCURRENCY", &c.Extract.PageConcurrency)
	str("EXTRACTOR_PROMPTS_DIR", &c.PromptsDir)
	str("EXTRACTOR_PROVIDER", &c.LLM.ActiveProvider)
	str("EXTRACTOR_AUDIT_BACKEND", &c.Audit.Backend)
	str("EXTRACTOR_AUDIT_DIR", &c.Audit.Dir)
	str("DATABASE_URL", &c.Audit.DatabaseURL)
	str("REDIS_URL", &c.Audit.RedisURL)

	if c.LLM.Providers == nil {
		c.LLM.Providers = map[string]ProviderConfig{}
	}
	setKey := func(env string, providers ...string) {
		v, ok := lookup(env)
		if !ok || v == "" {
			return
		}
		for _, name := range providers {
			p := c.LLM.Providers[name]
			if p.APIKey == "" {
				p.APIKey = v
			}
			c.LLM.Providers[name] = p
		}
	}
	setKey("GEMINI_API_KEY", "gemini", "gemini-legacy")
	setKey("DEEPSEEK_API_KEY", "deepseek")

	return errors.Join(errs...)
}

// Validate rejects settings no run could satisfy.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Loop.MaxIterations < 1 {
		bad("loop.max_iterations must be >= 1, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.MinIterations < 1 || c.Loop.MinIterations > c.Loop.MaxIterations {
		bad("loop.min_iterations must be in [1, max_iterations], got %d", c.Loop.MinIterations)
	}
	if c.Loop.CoverageThreshold <= 0 || c.Loop.CoverageThreshold > 100 {
		bad("loop.coverage_threshold must be in (0, 100], got %g", c.Loop.CoverageThreshold)
	}
	if c.Loop.EventBuffer < 1 {
		bad("loop.event_buffer must be >= 1, got %d", c.Loop.EventBuffer)
	}
	if _, err := c.RetryDelay(); err != nil {
		bad("loop.retry_delay: %v", err)
	}
	if c.Merge.DedupThreshold <= 0 || c.Merge.DedupThreshold > 1 {
		bad("merge.dedup_threshold must be in (0, 1], got %g", c.Merge.DedupThreshold)
	}
	if c.Chunk.MaxTokens < 1 {
		bad("chunk.max_tokens must be >= 1, got %d", c.Chunk.MaxTokens)
	}
	if c.Chunk.TokensPerWord <= 0 {
		bad("chunk.tokens_per_word must be > 0, got %g", c.Chunk.TokensPerWord)
	}
	switch strings.ToLower(c.Chunk.TokenCounter) {
	case "", "words", "word", "tiktoken":
	default:
		bad("chunk.token_counter must be words or tiktoken, got %q", c.Chunk.TokenCounter)
	}
	if c.Extract.PageConcurrency < 1 || c.Merge.FallbackConcurrency < 1 || c.Loop.BatchConcurrency < 1 {
		bad("concurrency limits must be >= 1")
	}
	switch c.Audit.Backend {
	case store.BackendFile, store.BackendNone:
	case store.BackendPostgres:
		if c.Audit.DatabaseURL == "" {
			bad("audit.database_url (or DATABASE_URL) is required for the postgres backend")
		}
	case store.BackendRedis:
		if c.Audit.RedisURL == "" {
			bad("audit.redis_url (or REDIS_URL) is required for the redis backend")
		}
	default:
		bad("unknown audit backend %q", c.Audit.Backend)
	}
	if _, err := c.redisTTL(); err != nil {
		bad("audit.redis_ttl: %v", err)
	}
	return errors.Join(errs...)
}

func (c *Config) RetryDelay() (time.Duration, error) {
	if c.Loop.RetryDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Loop.RetryDelay)
}

func (c *Config) redisTTL() (time.Duration, error) {
	if c.Audit.RedisTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Audit.RedisTTL)
}

// AuditOptions converts the audit block for store.Open.
func (c *Config) AuditOptions() store.Options {
	ttl, _ := c.redisTTL()
	return store.Options{
		Backend:     c.Audit.Backend,
		Dir:         c.Audit.Dir,
		DatabaseURL: c.Audit.DatabaseURL,
		RedisURL:    c.Audit.RedisURL,
		RedisPrefix: c.Audit.RedisPrefix,
		RedisTTL:    ttl,
	}
}

// ProviderSettings converts the providers block for agent.NewManagerFromSettings.
func (c *Config) ProviderSettings() map[string]llm.Settings {
	out := make(map[string]llm.Settings, len(c.LLM.Providers))
	for name, p := range c.LLM.Providers {
		out[name] = llm.Settings{Model: p.Model, APIKey: p.APIKey, BaseURL: p.BaseURL}
	}
	return out
}

func (c *Config) Logger() logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.LogLevel(c.Log.Level)
	cfg.JSON = c.Log.JSON
	return logger.NewLogger(cfg)
}
