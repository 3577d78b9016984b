package assistant

import (
	"context"
	"time"

	"github.com/af-corp/concierge/internal/classify"
	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/guard"
	"github.com/af-corp/concierge/internal/policy"
	"github.com/af-corp/concierge/internal/types"
)

// Escalator hands a conversation to staff. Callers wait for it.
type Escalator interface {
	Escalate(ctx context.Context, e types.Escalation) error
}

// AdminNotifier reports configuration problems. Callers do not wait.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, n types.AdminNotice) error
}

// Forwarder relays a message to another number.
type Forwarder interface {
	Forward(ctx context.Context, to, text string) error
}

// Acker clears the transport's typing indicator.
type Acker interface {
	Ack(ctx context.Context, url string) error
}

// Classifier resolves a guest message to an intent.
type Classifier interface {
	Classify(ctx context.Context, req classify.Request) types.ClassificationResult
}

// Screener checks a guest message for prompt-injection attempts.
// *guard.Scanner implements it.
type Screener interface {
	Check(text string) guard.Verdict
}

// EscalationPolicy decides whether an unknown streak goes to a human.
type EscalationPolicy interface {
	ShouldEscalate(ctx context.Context, in policy.Input) policy.Decision
}

// IntentCatalog is the read-only intent configuration the router needs.
// *classify.Catalog implements it.
type IntentCatalog interface {
	Action(intent string) types.Action
	Route(intent string) (config.IntentRoute, bool)
	StaticReply(intent, lang string) string
	Workflow(id string) (config.WorkflowDefinition, bool)
	Template(name, lang string) string
}

// DialogKind tells the dialog engine which flow to run.
type DialogKind string

const (
	DialogBooking  DialogKind = "booking"
	DialogWorkflow DialogKind = "workflow"
)

// DialogState is the persisted position of a sender inside a multi-step
// flow.
type DialogState struct {
	Kind       DialogKind        `json:"kind"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Step       int               `json:"step"`
	Data       map[string]string `json:"data,omitempty"`
}

type DialogInput struct {
	Kind       DialogKind
	WorkflowID string
	Definition *config.WorkflowDefinition
	// State is nil when the flow is starting.
	State    *DialogState
	Text     string
	Language string
	History  []types.Message
	Entities map[string]string
}

type DialogOutput struct {
	Reply string
	// State is nil when the flow has finished.
	State *DialogState
	// Summary is forwarded to staff when a finished flow asks for it.
	Summary string
}

// DialogEngine runs booking and workflow conversations.
type DialogEngine interface {
	Step(ctx context.Context, in DialogInput) (DialogOutput, error)
}

// Settings are the thresholds and targets the router reads per message.
type Settings struct {
	LowConfidence    float64
	UnknownThreshold int
	ExcerptMessages  int
	PaymentForwardTo string
	Location         *time.Location
}

// SettingsFrom extracts router settings from the gateway config.
func SettingsFrom(cfg *config.Config) Settings {
	s := Settings{
		LowConfidence:    cfg.Classification.LowConfidence,
		UnknownThreshold: cfg.Escalation.UnknownThreshold,
		ExcerptMessages:  cfg.Escalation.ExcerptMessages,
		PaymentForwardTo: cfg.Notify.PaymentForwardTo,
		Location:         time.UTC,
	}
	if cfg.Classification.TimeZone != "" {
		if loc, err := time.LoadLocation(cfg.Classification.TimeZone); err == nil {
			s.Location = loc
		}
	}
	return s
}
