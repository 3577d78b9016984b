package adapters

import (
	"context"
	"net/http"
	"strings"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/types"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	// Anthropic requires max_tokens on every request.
	anthropicDefaultMaxTokens = 1024
)

func init() {
	Register("anthropic", Variant{Factory: NewAnthropicAdapter, NeedsCredential: true})
}

// AnthropicAdapter handles communication with the Anthropic Messages API.
type AnthropicAdapter struct {
	cfg        config.ProviderConfig
	credential string
	baseURL    string
	client     *http.Client
}

func NewAnthropicAdapter(cfg config.ProviderConfig, credential string, client *http.Client) (ProviderAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicAdapter{
		cfg:        cfg,
		credential: credential,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return a.cfg.ID }

func (a *AnthropicAdapter) Chat(ctx context.Context, req ChatRequest) (string, error) {
	system, messages := anthropicMessages(req.Messages)
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	body := anthropicRequestBody{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: &req.Temperature,
	}

	headers := map[string]string{
		"x-api-key":         a.credential,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponseBody
	if err := postJSON(ctx, a.client, a.cfg.ID, a.baseURL+"/messages", mergeHeaders(headers, a.cfg.Headers), body, &resp); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// anthropicMessages lifts system turns into the top-level system prompt and
// merges consecutive turns with the same role, which the API rejects.
func anthropicMessages(in []types.Message) (string, []anthropicMessage) {
	var system []string
	var out []anthropicMessage
	for _, m := range in {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := types.RoleUser
		if m.Role == types.RoleAssistant {
			role = types.RoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Content})
	}
	return strings.Join(system, "\n\n"), out
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
