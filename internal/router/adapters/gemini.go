package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/types"
)

func init() {
	Register("gemini", Variant{Factory: NewGeminiAdapter, NeedsCredential: true})
}

// GeminiAdapter implements ProviderAdapter for Gemini models through the
// genai SDK. Gemini calls the assistant role "model" and takes generation
// parameters in a separate config object.
type GeminiAdapter struct {
	cfg    config.ProviderConfig
	client *genai.Client
}

func NewGeminiAdapter(cfg config.ProviderConfig, credential string, httpClient *http.Client) (ProviderAdapter, error) {
	cc := &genai.ClientConfig{
		APIKey:     credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client for %s: %w", cfg.ID, err)
	}
	return &GeminiAdapter{cfg: cfg, client: client}, nil
}

func (a *GeminiAdapter) Name() string { return a.cfg.ID }

func (a *GeminiAdapter) Chat(ctx context.Context, req ChatRequest) (string, error) {
	contents, gcfg := geminiRequest(req)

	resp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, gcfg)
	if err != nil {
		return "", a.wrapError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Text()), nil
}

// wrapError turns SDK API errors into *ProviderError so status-based
// classification works the same as for the HTTP variants.
func (a *GeminiAdapter) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: a.cfg.ID,
			Status:   apiErr.Code,
			Excerpt:  excerpt([]byte(apiErr.Message)),
		}
	}
	return fmt.Errorf("gemini provider %s: %w", a.cfg.ID, err)
}

// geminiRequest converts the normalized request into Gemini contents and
// generation config.
func geminiRequest(req ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Content)
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	temperature := float32(req.Temperature)
	gcfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		gcfg.ResponseMIMEType = "application/json"
	}
	if len(system) > 0 {
		gcfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, gcfg
}
