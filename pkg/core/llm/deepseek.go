package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDeepSeekURL = "https://api.deepseek.com"

// DeepSeekProvider calls the OpenAI-compatible chat completions endpoint.
// The HTTP client is built on first use and shared by concurrent calls.
type DeepSeekProvider struct {
	Model   string
	APIKey  string
	BaseURL string // defaults to the public API

	once   sync.Once
	client *resty.Client
}

var _ Provider = (*DeepSeekProvider)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Stream         bool           `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewDeepSeekProvider(s Settings) *DeepSeekProvider {
	return &DeepSeekProvider{Model: s.Model, APIKey: s.APIKey, BaseURL: s.BaseURL}
}

func (p *DeepSeekProvider) getClient() *resty.Client {
	p.once.Do(func() {
		base := p.BaseURL
		if base == "" {
			base = defaultDeepSeekURL
		}
		p.client = resty.New().
			SetBaseURL(base).
			SetTimeout(120*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	})
	return p.client
}

func (p *DeepSeekProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if val := optString(options, "api_key"); val != "" {
		apiKey = val
	}
	if apiKey == "" {
		return "", fmt.Errorf("DEEPSEEK_API_KEY_MISSING: %w", ErrMissingAPIKey)
	}

	model := p.Model
	if model == "" {
		model = "deepseek-chat"
	}
	if val := optString(options, "model"); val != "" {
		model = val
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      4096,
		Temperature:    0.1,
		ResponseFormat: responseFormat{Type: "text"},
	}
	if wantsJSON(prompt, systemPrompt, options) {
		req.ResponseFormat.Type = "json_object"
	}

	var out chatResponse
	resp, err := p.getClient().R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("DEEPSEEK_API_CALL_ERROR: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("DEEPSEEK_API_ERROR: status=%d found=%s", resp.StatusCode(), resp.String())
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("DEEPSEEK_NO_CHOICES: %s", resp.String())
	}
	return out.Choices[0].Message.Content, nil
}

func (p *DeepSeekProvider) AdaptInstructions(raw string) string {
	return raw
}
