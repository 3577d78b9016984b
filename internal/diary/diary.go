package diary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/concierge/internal/redact"
)

const writeTimeout = 2 * time.Second

// Entry is one handled guest turn.
type Entry struct {
	RequestID       string
	Sender          string
	InstanceID      string
	Text            string
	Reply           string
	Intent          string
	Confidence      float64
	Source          string
	Action          string
	Language        string
	Provider        string
	Escalated       bool
	WorkflowStarted bool
	ConfigError     string
	Latency         time.Duration
}

// Store persists diary entries.
type Store interface {
	Write(ctx context.Context, e Entry) error
}

// NopStore drops every entry.
type NopStore struct{}

func (NopStore) Write(context.Context, Entry) error { return nil }

// PostgresStore writes entries to the message_diary table.
type PostgresStore struct {
	db       *pgxpool.Pool
	redactor *redact.Redactor
}

func NewPostgresStore(db *pgxpool.Pool, r *redact.Redactor) *PostgresStore {
	return &PostgresStore{db: db, redactor: r}
}

func (s *PostgresStore) Write(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO message_diary (
			request_id, sender, instance_id, text, reply, intent, confidence,
			source, action, language, provider, escalated, workflow_started,
			config_error, latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		e.RequestID, e.Sender, e.InstanceID,
		s.redactor.String(e.Text), s.redactor.String(e.Reply),
		e.Intent, e.Confidence, e.Source, e.Action, e.Language, e.Provider,
		e.Escalated, e.WorkflowStarted, e.ConfigError, e.Latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert message_diary: %w", err)
	}
	return nil
}

// WriteAsync writes e in the background. Failures are logged.
func WriteAsync(s Store, e Entry) {
	if s == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.Write(ctx, e); err != nil {
			slog.Warn("failed to write diary entry", "request_id", e.RequestID, "sender", e.Sender, "error", err)
		}
	}()
}
