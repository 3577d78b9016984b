package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/concierge/internal/classify"
	"github.com/af-corp/concierge/internal/diary"
	"github.com/af-corp/concierge/internal/guard"
	"github.com/af-corp/concierge/internal/types"
)

const ackTimeout = 5 * time.Second

type ServiceDeps struct {
	Classifier Classifier
	Router     *Router
	Acker      Acker
	Screener   Screener
	Diary      diary.Store
	Now        func() time.Time
}

// Service handles one inbound guest message end to end: active dialog or
// classification, routing, diary.
type Service struct {
	classifier Classifier
	router     *Router
	acker      Acker
	screener   Screener
	diary      diary.Store
	now        func() time.Time
}

func NewService(d ServiceDeps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Diary == nil {
		d.Diary = diary.NopStore{}
	}
	return &Service{
		classifier: d.Classifier,
		router:     d.Router,
		acker:      d.Acker,
		screener:   d.Screener,
		diary:      d.Diary,
		now:        d.Now,
	}
}

func (s *Service) Handle(ctx context.Context, msg types.InboundMessage) types.Reply {
	start := s.now()
	ack := s.ackFunc(msg)

	var (
		res types.ClassificationResult
		out Outcome
	)
	lang := classify.DetectLanguage(msg.Text)
	if o, ok := s.router.ContinueDialog(ctx, msg, lang); ok {
		ack()
		out = o
		res = types.ClassificationResult{Source: types.SourceDialog, Language: o.Decision.Language, Confidence: 1}
	} else if v := s.screen(msg); v.Action == guard.ActionBlock {
		ack()
		out = s.router.Quarantine(ctx, msg, lang, v.Rules())
		res = types.ClassificationResult{Intent: types.IntentUnknown, Source: types.SourceGuard, Language: lang}
	} else {
		res = s.classifier.Classify(ctx, classify.Request{Text: msg.Text, History: msg.History, Ack: ack})
		out = s.router.Route(ctx, Turn{Message: msg, Result: res})
	}
	ack()

	reply := types.Reply{
		Text:            out.Text,
		Escalated:       out.Escalated,
		WorkflowStarted: out.WorkflowStarted,
		ConfigError:     out.ConfigError,
		Intent:          res.Intent,
		Confidence:      res.Confidence,
		Source:          res.Source,
		Action:          out.Decision.Action,
		Language:        out.Decision.Language,
		Provider:        res.Provider,
	}
	latency := s.now().Sub(start)

	diary.WriteAsync(s.diary, diary.Entry{
		RequestID:       msg.RequestID,
		Sender:          msg.Sender,
		InstanceID:      msg.InstanceID,
		Text:            msg.Text,
		Reply:           reply.Text,
		Intent:          reply.Intent,
		Confidence:      reply.Confidence,
		Source:          string(reply.Source),
		Action:          string(reply.Action),
		Language:        reply.Language,
		Provider:        reply.Provider,
		Escalated:       reply.Escalated,
		WorkflowStarted: reply.WorkflowStarted,
		ConfigError:     reply.ConfigError,
		Latency:         latency,
	})

	slog.Info("message handled",
		"request_id", msg.RequestID,
		"sender", msg.Sender,
		"intent", reply.Intent,
		"confidence", reply.Confidence,
		"source", reply.Source,
		"fast_tier", reply.Source.IsFastTier(),
		"action", reply.Action,
		"provider", reply.Provider,
		"escalated", reply.Escalated,
		"latency_ms", latency.Milliseconds(),
	)
	return reply
}

func (s *Service) screen(msg types.InboundMessage) guard.Verdict {
	if s.screener == nil {
		return guard.Verdict{Action: guard.ActionPass}
	}
	v := s.screener.Check(msg.Text)
	if v.Action != guard.ActionPass {
		slog.Warn("prompt injection suspected",
			"request_id", msg.RequestID,
			"sender", msg.Sender,
			"action", v.Action,
			"score", v.Score,
			"rules", v.Rules(),
		)
	}
	return v
}

// ackFunc returns a function that clears the typing indicator at most once,
// in the background.
func (s *Service) ackFunc(msg types.InboundMessage) func() {
	return sync.OnceFunc(func() {
		if msg.AckURL == "" || s.acker == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
			defer cancel()
			if err := s.acker.Ack(ctx, msg.AckURL); err != nil {
				slog.Warn("failed to clear typing indicator", "request_id", msg.RequestID, "sender", msg.Sender, "error", err)
			}
		}()
	})
}
