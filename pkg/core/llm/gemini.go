package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements the Provider interface for Google's Gemini models
// through the GenAI SDK. The client is created on first use and reused.
type GeminiProvider struct {
	Model  string
	APIKey string // falls back to GEMINI_API_KEY

	once   sync.Once
	client *genai.Client
	err    error
}

var _ Provider = (*GeminiProvider)(nil)

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		apiKey := p.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			p.err = fmt.Errorf("GEMINI_API_KEY_MISSING: %w", ErrMissingAPIKey)
			return
		}
		p.client, p.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return p.client, p.err
}

// GenerateResponse sends a generateContent request. Options: "model",
// "temperature" (float64), "response_format" / "json".
func (p *GeminiProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	model := p.Model
	if model == "" {
		model = defaultGeminiModel
	}
	if val := optString(options, "model"); val != "" {
		model = val
	}

	temperature := float32(0.1)
	if val, ok := options["temperature"].(float64); ok {
		temperature = float32(val)
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if wantsJSON(prompt, systemPrompt, options) {
		config.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("GEMINI_GENERATION_FAILED: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("GEMINI_EMPTY_RESPONSE: model=%s", model)
	}
	return text, nil
}

func (p *GeminiProvider) AdaptInstructions(raw string) string {
	return raw
}
