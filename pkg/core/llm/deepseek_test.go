package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDeepSeekProvider_GenerateResponse(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[{\"column\":\"Revenue\"}]"}}]}`))
	}))
	defer srv.Close()

	p := NewDeepSeekProvider(Settings{APIKey: "test-key", BaseURL: srv.URL})
	out, err := p.GenerateResponse(context.Background(), "extract rows", "Return JSON only.", nil)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if out != `[{"column":"Revenue"}]` {
		t.Errorf("unexpected content %q", out)
	}
	if got.Model != "deepseek-chat" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %q", got.ResponseFormat.Type)
	}
}

func TestDeepSeekProvider_ConcurrentFirstUse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	p := &DeepSeekProvider{APIKey: "k", BaseURL: srv.URL}
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.GenerateResponse(context.Background(), "x", "Return JSON.", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("GenerateResponse: %v", err)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("configured base URL received %d calls, want 3", hits.Load())
	}
}

func TestDeepSeekProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewDeepSeekProvider(Settings{APIKey: "k", BaseURL: srv.URL})
	_, err := p.GenerateResponse(context.Background(), "x", "", nil)
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("expected status=429 error, got %v", err)
	}
}

func TestDeepSeekProvider_MissingKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	p := NewDeepSeekProvider(Settings{BaseURL: "http://127.0.0.1:0"})
	_, err := p.GenerateResponse(context.Background(), "x", "", nil)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"gemini", "gemini-legacy", "deepseek"} {
		if _, err := NewProvider(name, Settings{}); err != nil {
			t.Errorf("NewProvider(%q): %v", name, err)
		}
	}
	if _, err := NewProvider("openai", Settings{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestGeminiProvider_MissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	p := &GeminiProvider{}
	_, err := p.GenerateResponse(context.Background(), "x", "", nil)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
