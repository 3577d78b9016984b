package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/types"
)

// Base URLs for the OpenAI-compatible variants when base_url is not set.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"together":   "https://api.together.xyz/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

func init() {
	for _, tag := range []string{"openai", "groq", "deepseek", "together", "openrouter"} {
		Register(tag, Variant{Factory: NewOpenAIAdapter, NeedsCredential: true})
	}
	Register("ollama", Variant{Factory: NewOpenAIAdapter, NeedsCredential: false})
}

// OpenAIAdapter talks to any OpenAI-compatible chat completions endpoint.
type OpenAIAdapter struct {
	cfg        config.ProviderConfig
	credential string
	baseURL    string
	client     *http.Client
}

func NewOpenAIAdapter(cfg config.ProviderConfig, credential string, client *http.Client) (ProviderAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Type]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("provider %s: base_url is required for type %q", cfg.ID, cfg.Type)
	}
	return &OpenAIAdapter{
		cfg:        cfg,
		credential: credential,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
	}, nil
}

func (a *OpenAIAdapter) Name() string { return a.cfg.ID }

func (a *OpenAIAdapter) Chat(ctx context.Context, req ChatRequest) (string, error) {
	body := openAIRequestBody{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: &req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	if req.JSONMode {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	headers := map[string]string{}
	if a.credential != "" {
		headers["Authorization"] = "Bearer " + a.credential
	}
	if a.cfg.Type == "openrouter" {
		headers["X-Title"] = "concierge"
	}

	var resp openAIResponseBody
	err := postJSON(ctx, a.client, a.cfg.ID, a.baseURL+"/chat/completions", mergeHeaders(headers, a.cfg.Headers), body, &resp)
	if err != nil {
		return "", a.annotate(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// annotate adds a remediation hint to OpenRouter auth failures.
func (a *OpenAIAdapter) annotate(err error) error {
	var pe *ProviderError
	if a.cfg.Type == "openrouter" && errors.As(err, &pe) && pe.Status == http.StatusUnauthorized {
		pe.Hint = fmt.Sprintf("get a key at https://openrouter.ai/keys and set api_key or api_key_env for provider %s", a.cfg.ID)
	}
	return err
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequestBody struct {
	Model          string                `json:"model"`
	Messages       []types.Message       `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      types.Message `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
