package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/redact"
	"github.com/af-corp/concierge/internal/types"
)

// ErrNoForwardTarget is returned by Forward when no outbound URL is set.
var ErrNoForwardTarget = errors.New("no outbound url configured")

// Client posts escalations, admin notices and forwarded messages to
// webhooks as JSON.
type Client struct {
	staffURL    string
	adminURL    string
	outboundURL string
	client      *http.Client
	redactor    *redact.Redactor
	now         func() time.Time
}

func New(cfg config.NotifyConfig, r *redact.Redactor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		staffURL:    cfg.StaffWebhookURL,
		adminURL:    cfg.AdminWebhookURL,
		outboundURL: cfg.OutboundURL,
		client:      &http.Client{Timeout: timeout},
		redactor:    r,
		now:         time.Now,
	}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Escalate sends a staff escalation. Excerpts and text are redacted.
func (c *Client) Escalate(ctx context.Context, e types.Escalation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = c.now().UTC()
	}
	e.Text = c.redactor.String(e.Text)
	e.Excerpts = c.redactor.Messages(e.Excerpts)

	if c.staffURL == "" {
		slog.Warn("staff webhook not configured, escalation logged only",
			"escalation_id", e.ID, "sender", e.Sender, "reason", e.Reason)
		return nil
	}
	if err := c.post(ctx, c.staffURL, envelope{Type: "escalation", Data: e}); err != nil {
		return fmt.Errorf("escalate %s: %w", e.ID, err)
	}
	slog.Info("escalation sent", "escalation_id", e.ID, "sender", e.Sender, "reason", e.Reason)
	return nil
}

// NotifyAdmin sends an operational notice to the admin webhook.
func (c *Client) NotifyAdmin(ctx context.Context, n types.AdminNotice) error {
	if n.At.IsZero() {
		n.At = c.now().UTC()
	}
	if c.adminURL == "" {
		slog.Warn("admin webhook not configured", "kind", n.Kind, "detail", n.Detail)
		return nil
	}
	return c.post(ctx, c.adminURL, envelope{Type: "admin_notice", Data: n})
}

// NotifyRateLimit tells the admin a provider is being throttled.
func (c *Client) NotifyRateLimit(ctx context.Context, n types.RateLimitNotice) error {
	if c.adminURL == "" {
		slog.Warn("admin webhook not configured, rate limit notice dropped", "provider", n.Provider)
		return nil
	}
	return c.post(ctx, c.adminURL, envelope{Type: "rate_limit", Data: n})
}

// Forward relays text to another WhatsApp number through the transport's
// outbound endpoint.
func (c *Client) Forward(ctx context.Context, to, text string) error {
	if c.outboundURL == "" {
		return ErrNoForwardTarget
	}
	if to == "" {
		return fmt.Errorf("forward: empty recipient")
	}
	return c.post(ctx, c.outboundURL, map[string]string{"to": to, "text": text})
}

// Ack clears the transport's typing indicator by POSTing to url.
func (c *Client) Ack(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return c.post(ctx, url, map[string]string{"status": "classified"})
}

func (c *Client) post(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
