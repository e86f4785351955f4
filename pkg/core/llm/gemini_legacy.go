package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	legacy "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLegacyProvider talks to Gemini through the older generative-ai-go
// SDK. Kept for deployments pinned to that client.
type GeminiLegacyProvider struct {
	Model  string
	APIKey string

	once   sync.Once
	client *legacy.Client
	err    error
}

var _ Provider = (*GeminiLegacyProvider)(nil)

func (p *GeminiLegacyProvider) getClient(ctx context.Context) (*legacy.Client, error) {
	p.once.Do(func() {
		apiKey := p.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			p.err = fmt.Errorf("GEMINI_API_KEY_MISSING: %w", ErrMissingAPIKey)
			return
		}
		p.client, p.err = legacy.NewClient(ctx, option.WithAPIKey(apiKey))
	})
	return p.client, p.err
}

func (p *GeminiLegacyProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	name := p.Model
	if name == "" {
		name = defaultGeminiModel
	}
	if val := optString(options, "model"); val != "" {
		name = val
	}

	model := client.GenerativeModel(name)
	model.SetTemperature(0.1)
	if wantsJSON(prompt, systemPrompt, options) {
		model.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		model.SystemInstruction = &legacy.Content{Parts: []legacy.Part{legacy.Text(systemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, legacy.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("GEMINI_GENERATION_FAILED: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("GEMINI_EMPTY_RESPONSE: model=%s", name)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(legacy.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

func (p *GeminiLegacyProvider) AdaptInstructions(raw string) string {
	return raw
}

// Close releases the underlying client if one was created.
func (p *GeminiLegacyProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
