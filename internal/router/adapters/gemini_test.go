package adapters

import (
	"testing"

	"google.golang.org/genai"

	"github.com/af-corp/concierge/internal/types"
)

func TestGeminiRequest(t *testing.T) {
	contents, cfg := geminiRequest(ChatRequest{
		Messages: []types.Message{
			{Role: "system", Content: "you are a hostel assistant"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "wifi?"},
		},
		MaxTokens:   200,
		Temperature: 0.3,
		JSONMode:    true,
	})

	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	wantRoles := []string{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("content %d role = %s, want %s", i, c.Role, wantRoles[i])
		}
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "you are a hostel assistant" {
		t.Error("expected system instruction")
	}
	if cfg.MaxOutputTokens != 200 {
		t.Errorf("MaxOutputTokens = %d", cfg.MaxOutputTokens)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.3) {
		t.Errorf("unexpected temperature %v", cfg.Temperature)
	}
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q", cfg.ResponseMIMEType)
	}
}

func TestGeminiAdapter_WrapError(t *testing.T) {
	a := &GeminiAdapter{}
	a.cfg.ID = "gem"
	err := a.wrapError(genai.APIError{Code: 429, Message: "Resource has been exhausted"})
	if !IsRateLimit(err) {
		t.Errorf("expected rate limit, got %v", err)
	}
	if StatusOf(err) != 429 {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
}
