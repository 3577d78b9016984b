package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
)

const escalationQuery = "[data.concierge.escalation.escalate, data.concierge.escalation.reason]"

// Escalation reasons produced by the built-in threshold rule.
const (
	ReasonUnknownRepeated   = "unknown_repeated"
	ReasonNegativeSentiment = "negative_sentiment"
)

// Input is the data sent to OPA for an unknown or low-confidence turn.
type Input struct {
	Sender       string  `json:"sender"`
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	UnknownCount int     `json:"unknown_count"`
	Threshold    int     `json:"threshold"`
	Sentiment    string  `json:"sentiment"`
	MessageType  string  `json:"message_type"`
	Language     string  `json:"language"`
	Hour         int     `json:"hour"`
}

type Decision struct {
	Escalate bool
	Reason   string
}

// Evaluator decides whether a run of unclassified messages should go to a
// human. Without a loaded policy, or when evaluation fails, it applies the
// threshold rule.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	timeout  time.Duration
}

func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Evaluator{timeout: timeout}
}

// Load compiles Rego modules from dir. An empty dir path is not an error.
func (e *Evaluator) Load(dir string) error {
	if dir == "" {
		return nil
	}
	modules, err := LoadRegoFiles(dir)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found, using threshold escalation", "path", dir)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("escalation policy loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from provided module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(escalationQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Loaded reports whether a Rego policy is active.
func (e *Evaluator) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prepared != nil
}

// Evaluate runs the Rego policy. It errors when no policy is loaded.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()
	if prepared == nil {
		return Decision{}, fmt.Errorf("no escalation policy loaded")
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(in))
	if err != nil {
		return Decision{}, fmt.Errorf("policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("no policy result")
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{}, fmt.Errorf("unexpected policy result format")
	}
	escalate, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Escalate: escalate, Reason: reason}, nil
}

// ShouldEscalate never fails. Policy errors are logged and the threshold
// rule decides instead.
func (e *Evaluator) ShouldEscalate(ctx context.Context, in Input) Decision {
	if e != nil && e.Loaded() {
		d, err := e.Evaluate(ctx, in)
		if err == nil {
			return d
		}
		slog.Error("escalation policy failed, using threshold rule", "sender", in.Sender, "error", err)
	}
	return Threshold(in)
}

// Threshold escalates once the unknown streak reaches in.Threshold, or one
// turn earlier when the guest sounds unhappy.
func Threshold(in Input) Decision {
	limit := in.Threshold
	if limit <= 0 {
		limit = 3
	}
	if in.UnknownCount >= limit {
		return Decision{Escalate: true, Reason: ReasonUnknownRepeated}
	}
	if in.Sentiment == "negative" && limit > 1 && in.UnknownCount >= limit-1 {
		return Decision{Escalate: true, Reason: ReasonNegativeSentiment}
	}
	return Decision{}
}
