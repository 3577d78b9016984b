package adapters

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
)

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &ProviderError{Provider: "a", Status: 429}, true},
		{"wrapped 429", fmt.Errorf("call: %w", &ProviderError{Status: 429}), true},
		{"500", &ProviderError{Provider: "a", Status: 500, Excerpt: "boom"}, false},
		{"textual", errors.New("Rate limit reached for requests"), true},
		{"textual snake", errors.New(`{"type":"rate_limit_error"}`), true},
		{"too many", errors.New("Too Many Requests"), true},
		{"timeout", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimit(tt.err); got != tt.want {
				t.Errorf("IsRateLimit(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExcerpt_Truncates(t *testing.T) {
	long := strings.Repeat("é", 400)
	got := excerpt([]byte(long))
	if len(got) > maxExcerptBytes+3 {
		t.Errorf("excerpt too long: %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis")
	}
	if short := excerpt([]byte("  short  ")); short != "short" {
		t.Errorf("excerpt(short) = %q", short)
	}
}

func TestLookup(t *testing.T) {
	v, ok := Lookup("")
	if !ok || v.Factory == nil || !v.NeedsCredential {
		t.Error("an empty type should mean the openai-compatible variant")
	}
	if _, ok := Lookup("antropic"); ok {
		t.Error("a misspelled type must not resolve to any variant")
	}
	ollama, ok := Lookup("ollama")
	if !ok || ollama.NeedsCredential {
		t.Error("ollama must not need a credential")
	}
	for _, tag := range []string{"anthropic", "gemini", "openrouter", "groq"} {
		if _, ok := variants[tag]; !ok {
			t.Errorf("variant %s not registered", tag)
		}
	}
	tags := Tags()
	if !sort.StringsAreSorted(tags) || len(tags) != len(variants) {
		t.Errorf("Tags() = %v", tags)
	}
}
