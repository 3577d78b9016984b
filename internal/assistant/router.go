package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/policy"
	"github.com/af-corp/concierge/internal/telemetry"
	"github.com/af-corp/concierge/internal/types"
)

var (
	ErrWorkflowUnset    = errors.New("intent has no workflow id")
	ErrWorkflowNotFound = errors.New("workflow definition not found")
)

// Escalation reasons.
const (
	ReasonComplaint        = "complaint"
	ReasonUnknownRepeated  = "unknown_repeated"
	ReasonConfigError      = "config_error"
	ReasonRequested        = "requested"
	ReasonDialogError      = "dialog_error"
	ReasonWorkflowComplete = "workflow_complete"
	ReasonPromptInjection  = "prompt_injection"
)

const adminNotifyTimeout = 10 * time.Second

// Turn is a classified guest message.
type Turn struct {
	Message types.InboundMessage
	Result  types.ClassificationResult
}

// Outcome is what the router decided for a turn.
type Outcome struct {
	Text            string
	Decision        types.RoutingDecision
	Escalated       bool
	Reasons         []string
	WorkflowStarted bool
	ConfigError     string
}

type RouterDeps struct {
	Catalog   func() IntentCatalog
	Settings  func() Settings
	Escalator Escalator
	Admin     AdminNotifier
	Forwarder Forwarder
	Dialog    DialogEngine
	Policy    EscalationPolicy
	Metrics   *telemetry.Metrics
	Now       func() time.Time
}

// Router maps a classified intent to a reply and its side effects.
type Router struct {
	catalog   func() IntentCatalog
	settings  func() Settings
	escalator Escalator
	admin     AdminNotifier
	forwarder Forwarder
	dialog    DialogEngine
	policy    EscalationPolicy
	metrics   *telemetry.Metrics
	now       func() time.Time

	unknown *Counters
	repeats *RepeatTracker
	dialogs *DialogStates
}

func NewRouter(d RouterDeps) *Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Settings == nil {
		def := SettingsFrom(config.DefaultConfig())
		d.Settings = func() Settings { return def }
	}
	if d.Catalog == nil {
		d.Catalog = func() IntentCatalog { return nil }
	}
	return &Router{
		catalog:   d.Catalog,
		settings:  d.Settings,
		escalator: d.Escalator,
		admin:     d.Admin,
		forwarder: d.Forwarder,
		dialog:    d.Dialog,
		policy:    d.Policy,
		metrics:   d.Metrics,
		now:       d.Now,
		unknown:   NewCounters(d.Now),
		repeats:   NewRepeatTracker(d.Now),
		dialogs:   NewDialogStates(d.Now),
	}
}

// Counters exposes the unknown-intent streaks.
func (r *Router) Counters() *Counters { return r.unknown }

// Dialogs exposes the per-sender dialog states.
func (r *Router) Dialogs() *DialogStates { return r.dialogs }

// Sweep forgets senders idle for longer than ttl.
func (r *Router) Sweep(ttl time.Duration) int {
	return r.unknown.Sweep(ttl) + r.repeats.Sweep(ttl) + r.dialogs.Sweep(ttl)
}

// Route never fails: configuration and collaborator errors degrade to a
// template reply and a staff escalation.
func (r *Router) Route(ctx context.Context, turn Turn) Outcome {
	res := turn.Result
	cat := r.catalog()
	set := r.settings()
	sender := turn.Message.Sender

	lang := res.Language
	if lang == "" {
		lang = "en"
	}
	mt := res.MessageType
	if mt == "" {
		mt = types.MessageInfo
	}
	action := types.ActionLLMReply
	if cat != nil {
		action = cat.Action(res.Intent)
	}

	out := Outcome{Decision: types.RoutingDecision{
		Action:      action,
		Language:    lang,
		MessageType: mt,
		Repeat:      r.repeats.Observe(sender, res.Intent),
	}}

	switch action {
	case types.ActionStaticReply:
		r.settle(sender, res, set)
		r.staticReply(ctx, turn, cat, set, &out)
	case types.ActionEscalate:
		r.settle(sender, res, set)
		out.Text = res.Reply
		if out.Text == "" {
			out.Text = Template(cat, TemplateEscalated, lang)
		}
		r.escalate(ctx, turn, set, &out, ReasonRequested, map[string]string{"intent": res.Intent})
	case types.ActionForwardPayment:
		r.settle(sender, res, set)
		r.forwardPayment(ctx, turn, cat, set, &out)
	case types.ActionStartBooking:
		r.unknown.Reset(sender)
		r.startDialog(ctx, turn, cat, set, &out, DialogBooking, "", nil)
	case types.ActionWorkflow:
		r.unknown.Reset(sender)
		r.startWorkflow(ctx, turn, cat, set, &out)
	default:
		r.llmReply(ctx, turn, cat, set, &out)
	}

	if out.Text == "" {
		out.Text = Template(cat, TemplateFallback, lang)
	}
	r.metrics.RecordMessage(string(action))
	return out
}

// Quarantine answers a message the guard blocked. No provider sees the text;
// staff get an escalation naming the rules that fired.
func (r *Router) Quarantine(ctx context.Context, msg types.InboundMessage, lang string, rules []string) Outcome {
	cat := r.catalog()
	if lang == "" {
		lang = "en"
	}
	out := Outcome{Decision: types.RoutingDecision{
		Action:      types.ActionEscalate,
		Language:    lang,
		MessageType: types.MessageInfo,
	}}
	out.Text = Template(cat, TemplateEscalated, lang)
	turn := Turn{Message: msg, Result: types.ClassificationResult{
		Intent:   types.IntentUnknown,
		Source:   types.SourceGuard,
		Language: lang,
	}}
	r.escalate(ctx, turn, r.settings(), &out, ReasonPromptInjection, map[string]string{"rules": strings.Join(rules, ",")})
	r.metrics.RecordMessage(string(types.ActionEscalate))
	return out
}

// settle resets the unknown streak after a confidently classified turn.
func (r *Router) settle(sender string, res types.ClassificationResult, set Settings) {
	if !res.IsUnknown(set.LowConfidence) {
		r.unknown.Reset(sender)
	}
}

func (r *Router) staticReply(ctx context.Context, turn Turn, cat IntentCatalog, set Settings, out *Outcome) {
	res := turn.Result
	lang := out.Decision.Language
	static := ""
	if cat != nil {
		static = cat.StaticReply(res.Intent, lang)
	}
	generated := res.Reply
	repeat := out.Decision.Repeat

	switch {
	case out.Decision.MessageType == types.MessageComplaint:
		out.Text = firstNonEmpty(generated, static)
		r.escalate(ctx, turn, set, out, ReasonComplaint, map[string]string{"intent": res.Intent})
	case out.Decision.MessageType == types.MessageProblem:
		out.Text = firstNonEmpty(generated, static)
	case repeat.Count >= 2:
		out.Text = firstNonEmpty(generated, static)
		r.escalate(ctx, turn, set, out, ReasonUnknownRepeated, map[string]string{
			"intent":  res.Intent,
			"repeats": fmt.Sprint(repeat.Count + 1),
		})
	case repeat.Count == 1:
		out.Text = firstNonEmpty(generated, static)
	case res.IsMultiIntent():
		var parts []string
		if cat != nil {
			for _, intent := range res.Intents {
				if s := cat.StaticReply(intent, lang); s != "" && !contains(parts, s) {
					parts = append(parts, s)
				}
			}
		}
		if len(parts) >= 2 {
			out.Text = strings.Join(parts, "\n\n")
		} else {
			out.Text = firstNonEmpty(static, generated)
		}
	default:
		out.Text = static
		if out.Text == "" {
			slog.Warn("static_reply intent has no static text, using generated reply",
				"intent", res.Intent, "language", lang, "sender", turn.Message.Sender)
			out.Text = generated
		}
	}
}

func (r *Router) llmReply(ctx context.Context, turn Turn, cat IntentCatalog, set Settings, out *Outcome) {
	res := turn.Result
	sender := turn.Message.Sender
	lang := out.Decision.Language

	if !res.IsUnknown(set.LowConfidence) {
		r.unknown.Reset(sender)
		out.Text = res.Reply
		return
	}

	n := r.unknown.Increment(sender)
	in := policy.Input{
		Sender:       sender,
		Intent:       res.Intent,
		Confidence:   res.Confidence,
		UnknownCount: n,
		Threshold:    set.UnknownThreshold,
		Sentiment:    res.Sentiment,
		MessageType:  string(out.Decision.MessageType),
		Language:     lang,
		Hour:         r.now().In(location(set)).Hour(),
	}
	var d policy.Decision
	if r.policy != nil {
		d = r.policy.ShouldEscalate(ctx, in)
	} else {
		d = policy.Threshold(in)
	}

	if !d.Escalate {
		out.Text = res.Reply
		return
	}
	reason := d.Reason
	if reason == "" {
		reason = ReasonUnknownRepeated
	}
	out.Text = Template(cat, TemplateHandoff, lang)
	r.escalate(ctx, turn, set, out, reason, map[string]string{"unknown_count": fmt.Sprint(n)})
	r.unknown.Reset(sender)
}

func (r *Router) forwardPayment(ctx context.Context, turn Turn, cat IntentCatalog, set Settings, out *Outcome) {
	msg := turn.Message
	out.Text = Template(cat, TemplatePaymentAck, out.Decision.Language)

	switch {
	case set.PaymentForwardTo == "":
		slog.Warn("payment message not forwarded, no forwarding number configured", "sender", msg.Sender)
	case r.forwarder == nil:
		slog.Warn("payment message not forwarded, no forwarder", "sender", msg.Sender)
	default:
		from := msg.Sender
		if msg.DisplayName != "" {
			from = msg.DisplayName + " (" + msg.Sender + ")"
		}
		text := fmt.Sprintf("Payment message from %s:\n%s", from, msg.Text)
		if err := r.forwarder.Forward(ctx, set.PaymentForwardTo, text); err != nil {
			slog.Error("payment forward failed", "sender", msg.Sender, "to", set.PaymentForwardTo, "error", err)
		}
	}
}

func (r *Router) startWorkflow(ctx context.Context, turn Turn, cat IntentCatalog, set Settings, out *Outcome) {
	var route config.IntentRoute
	if cat != nil {
		route, _ = cat.Route(turn.Result.Intent)
	}
	id := strings.TrimSpace(route.Workflow)
	if id == "" {
		r.configError(ctx, turn, cat, set, out, ErrWorkflowUnset, id)
		return
	}
	def, ok := cat.Workflow(id)
	if !ok {
		r.configError(ctx, turn, cat, set, out, ErrWorkflowNotFound, id)
		return
	}
	r.startDialog(ctx, turn, cat, set, out, DialogWorkflow, id, &def)
}

func (r *Router) startDialog(ctx context.Context, turn Turn, cat IntentCatalog, set Settings, out *Outcome, kind DialogKind, id string, def *config.WorkflowDefinition) {
	if r.dialog == nil {
		slog.Error("no dialog engine configured", "kind", kind, "sender", turn.Message.Sender)
		out.Text = Template(cat, TemplateEscalated, out.Decision.Language)
		r.escalate(ctx, turn, set, out, ReasonDialogError, map[string]string{"kind": string(kind)})
		return
	}
	o, err := r.dialog.Step(ctx, DialogInput{
		Kind:       kind,
		WorkflowID: id,
		Definition: def,
		Text:       turn.Message.Text,
		Language:   out.Decision.Language,
		History:    turn.Message.History,
		Entities:   turn.Result.Entities,
	})
	if err != nil {
		slog.Error("dialog start failed", "kind", kind, "workflow", id, "sender", turn.Message.Sender, "error", err)
		out.Text = Template(cat, TemplateEscalated, out.Decision.Language)
		r.escalate(ctx, turn, set, out, ReasonDialogError, map[string]string{"kind": string(kind), "workflow": id})
		return
	}
	out.WorkflowStarted = true
	r.applyDialog(ctx, turn, set, out, def, o)
}

// ContinueDialog feeds a message to the sender's active dialog. ok is false
// when the sender has none.
func (r *Router) ContinueDialog(ctx context.Context, msg types.InboundMessage, lang string) (Outcome, bool) {
	st, ok := r.dialogs.Get(msg.Sender)
	if !ok || r.dialog == nil {
		return Outcome{}, false
	}
	cat := r.catalog()
	set := r.settings()
	if lang == "" {
		lang = "en"
	}

	action := types.ActionStartBooking
	if st.Kind == DialogWorkflow {
		action = types.ActionWorkflow
	}
	out := Outcome{Decision: types.RoutingDecision{Action: action, Language: lang, MessageType: types.MessageInfo}}
	turn := Turn{Message: msg, Result: types.ClassificationResult{Source: types.SourceDialog, Language: lang}}
	defer r.metrics.RecordMessage(string(action))

	if isCancel(msg.Text) {
		r.dialogs.Set(msg.Sender, nil)
		out.Text = Template(cat, TemplateDialogCancelled, lang)
		return out, true
	}

	var def *config.WorkflowDefinition
	if st.Kind == DialogWorkflow {
		var d config.WorkflowDefinition
		found := false
		if cat != nil {
			d, found = cat.Workflow(st.WorkflowID)
		}
		if !found {
			r.dialogs.Set(msg.Sender, nil)
			r.configError(ctx, turn, cat, set, &out, ErrWorkflowNotFound, st.WorkflowID)
			return out, true
		}
		def = &d
	}

	o, err := r.dialog.Step(ctx, DialogInput{
		Kind:       st.Kind,
		WorkflowID: st.WorkflowID,
		Definition: def,
		State:      st,
		Text:       msg.Text,
		Language:   lang,
		History:    msg.History,
	})
	if err != nil {
		slog.Error("dialog step failed", "kind", st.Kind, "workflow", st.WorkflowID, "sender", msg.Sender, "error", err)
		r.dialogs.Set(msg.Sender, nil)
		out.Text = Template(cat, TemplateEscalated, lang)
		r.escalate(ctx, turn, set, &out, ReasonDialogError, map[string]string{"kind": string(st.Kind), "workflow": st.WorkflowID})
		return out, true
	}
	r.applyDialog(ctx, turn, set, &out, def, o)
	return out, true
}

// applyDialog persists the returned state and forwards the summary of a
// finished flow to staff when the definition asks for it.
func (r *Router) applyDialog(ctx context.Context, turn Turn, set Settings, out *Outcome, def *config.WorkflowDefinition, o DialogOutput) {
	r.dialogs.Set(turn.Message.Sender, o.State)
	out.Text = o.Reply
	if o.State != nil || o.Summary == "" {
		return
	}
	if def != nil && !def.ForwardOnComplete {
		return
	}
	r.escalate(ctx, turn, set, out, ReasonWorkflowComplete, map[string]string{"summary": o.Summary})
}

// configError handles a broken intent configuration: structured log,
// fire-and-forget admin notice, staff escalation and a generic reply.
func (r *Router) configError(ctx context.Context, turn Turn, cat IntentCatalog, set Settings, out *Outcome, err error, workflowID string) {
	tag := "workflow_unset"
	if errors.Is(err, ErrWorkflowNotFound) {
		tag = "workflow_not_found"
	}
	msg := turn.Message
	intent := turn.Result.Intent

	slog.Error("config_error",
		"tag", tag,
		"intent", intent,
		"workflow", workflowID,
		"sender", msg.Sender,
		"instance_id", msg.InstanceID,
		"error", err,
	)

	if r.admin != nil {
		notice := types.AdminNotice{
			Kind:     ReasonConfigError,
			Sender:   msg.Sender,
			Intent:   intent,
			Detail:   fmt.Sprintf("intent %q: %v (workflow %q)", intent, err, workflowID),
			Metadata: map[string]string{"tag": tag, "workflow": workflowID},
			At:       r.now(),
		}
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), adminNotifyTimeout)
			defer cancel()
			if err := r.admin.NotifyAdmin(nctx, notice); err != nil {
				slog.Warn("admin config error notice failed", "tag", tag, "error", err)
			}
		}()
	}

	out.ConfigError = tag
	out.Text = Template(cat, TemplateEscalated, out.Decision.Language)
	r.escalate(ctx, turn, set, out, ReasonConfigError, map[string]string{"tag": tag, "workflow": workflowID})
}

// escalate waits for the staff escalation. Failures are logged and leave
// out.Escalated unset.
func (r *Router) escalate(ctx context.Context, turn Turn, set Settings, out *Outcome, reason string, meta map[string]string) {
	msg := turn.Message
	r.metrics.RecordEscalation(reason)
	if r.escalator == nil {
		slog.Warn("no escalator configured, escalation dropped", "sender", msg.Sender, "reason", reason)
		return
	}

	excerpts := append([]types.Message(nil), types.LastN(msg.History, set.ExcerptMessages)...)
	excerpts = append(excerpts, types.Message{Role: types.RoleUser, Content: msg.Text})

	err := r.escalator.Escalate(ctx, types.Escalation{
		Sender:      msg.Sender,
		DisplayName: msg.DisplayName,
		Reason:      reason,
		Excerpts:    excerpts,
		Text:        msg.Text,
		InstanceID:  msg.InstanceID,
		Metadata:    meta,
		At:          r.now(),
	})
	if err != nil {
		slog.Error("staff escalation failed", "sender", msg.Sender, "reason", reason, "error", err)
		return
	}
	out.Escalated = true
	out.Reasons = append(out.Reasons, reason)
}

var cancelWords = map[string]bool{
	"cancel": true, "stop": true, "batal": true, "berhenti": true, "取消": true,
}

func isCancel(text string) bool {
	return cancelWords[strings.ToLower(strings.TrimSpace(text))]
}

func location(set Settings) *time.Location {
	if set.Location == nil {
		return time.UTC
	}
	return set.Location
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
