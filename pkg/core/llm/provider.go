package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingAPIKey is returned when a provider is invoked without credentials.
var ErrMissingAPIKey = errors.New("llm: api key not configured")

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
	// AdaptInstructions transforms raw instructions into model-specific formats
	AdaptInstructions(rawInstructions string) string
}

// Settings carries provider construction parameters resolved from config.
type Settings struct {
	Model   string
	APIKey  string
	BaseURL string
}

// NewProvider builds a provider by name: "gemini", "gemini-legacy" or "deepseek".
func NewProvider(name string, s Settings) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "":
		return &GeminiProvider{Model: s.Model, APIKey: s.APIKey}, nil
	case "gemini-legacy", "gemini_legacy":
		return &GeminiLegacyProvider{Model: s.Model, APIKey: s.APIKey}, nil
	case "deepseek":
		return NewDeepSeekProvider(s), nil
	default:
		return nil, fmt.Errorf("UNKNOWN_PROVIDER: %s", name)
	}
}

func optString(options map[string]interface{}, key string) string {
	if v, ok := options[key].(string); ok {
		return v
	}
	return ""
}

// wantsJSON reports whether the caller asked for a JSON response, either
// explicitly through options or implicitly through the prompt text.
func wantsJSON(prompt, systemPrompt string, options map[string]interface{}) bool {
	if v, ok := options["response_format"].(map[string]interface{}); ok {
		return v["type"] == "json_object"
	}
	if v, ok := options["json"].(bool); ok {
		return v
	}
	return strings.Contains(strings.ToLower(systemPrompt), "json") || strings.Contains(strings.ToLower(prompt), "json")
}
