package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/types"
)

func newOpenAITestAdapter(t *testing.T, typ, baseURL string) ProviderAdapter {
	t.Helper()
	a, err := NewOpenAIAdapter(config.ProviderConfig{ID: "p1", Type: typ, BaseURL: baseURL}, "sk-test", http.DefaultClient)
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}
	return a
}

func TestOpenAIAdapter_Chat(t *testing.T) {
	var got openAIRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  hello there \n"}}]}`))
	}))
	defer srv.Close()

	a := newOpenAITestAdapter(t, "openai", srv.URL)
	text, err := a.Chat(context.Background(), ChatRequest{
		Model:       "gpt-4o-mini",
		Messages:    []types.Message{{Role: "user", Content: "hi"}},
		MaxTokens:   50,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected trimmed text, got %q", text)
	}
	if got.Model != "gpt-4o-mini" || got.MaxTokens == nil || *got.MaxTokens != 50 {
		t.Errorf("unexpected request body %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format in json mode")
	}
}

func TestOpenAIAdapter_EmptyChoicesIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	text, err := newOpenAITestAdapter(t, "groq", srv.URL).Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil || text != "" {
		t.Errorf("expected empty soft result, got %q, %v", text, err)
	}
}

func TestOpenAIAdapter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := newOpenAITestAdapter(t, "groq", srv.URL).Chat(context.Background(), ChatRequest{Model: "m"})
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Provider != "p1" || pe.Status != 429 {
		t.Errorf("unexpected error %#v", err)
	}
	if !strings.Contains(err.Error(), "p1") || !strings.Contains(err.Error(), "429") {
		t.Errorf("error should name provider and status: %v", err)
	}
}

func TestOpenAIAdapter_OpenRouterAuthHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"no auth"}`))
	}))
	defer srv.Close()

	_, err := newOpenAITestAdapter(t, "openrouter", srv.URL).Chat(context.Background(), ChatRequest{Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "openrouter.ai/keys") {
		t.Fatalf("expected remediation hint, got %v", err)
	}
	if IsRateLimit(err) {
		t.Error("401 must not be classified as rate limit")
	}
}

func TestOpenAIAdapter_PlainAuthFailureHasNoHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newOpenAITestAdapter(t, "openai", srv.URL).Chat(context.Background(), ChatRequest{Model: "m"})
	if err == nil || strings.Contains(err.Error(), "openrouter.ai/keys") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOpenAIAdapter_OllamaSendsNoAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("ollama should not send an Authorization header")
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	a, err := NewOpenAIAdapter(config.ProviderConfig{ID: "local", Type: "ollama", BaseURL: srv.URL}, "", http.DefaultClient)
	if err != nil {
		t.Fatal(err)
	}
	if text, err := a.Chat(context.Background(), ChatRequest{Model: "llama3"}); err != nil || text != "ok" {
		t.Errorf("got %q, %v", text, err)
	}
}

func TestOpenAIAdapter_DefaultBaseURL(t *testing.T) {
	a, err := NewOpenAIAdapter(config.ProviderConfig{ID: "g", Type: "groq"}, "k", http.DefaultClient)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.(*OpenAIAdapter).baseURL; got != defaultBaseURLs["groq"] {
		t.Errorf("expected groq default base url, got %s", got)
	}

	if _, err := NewOpenAIAdapter(config.ProviderConfig{ID: "x", Type: "custom"}, "k", http.DefaultClient); err == nil {
		t.Error("expected error for unknown type without base_url")
	}
}

func TestOpenAIAdapter_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newOpenAITestAdapter(t, "openai", srv.URL).Chat(ctx, ChatRequest{Model: "m"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
