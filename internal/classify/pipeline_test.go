package classify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/router"
	"github.com/af-corp/concierge/internal/router/adapters"
	"github.com/af-corp/concierge/internal/types"
)

type chatCall struct {
	req   adapters.ChatRequest
	order []string
}

// fakeChatter answers calls from a script, in order. Calls past the end of
// the script get a zero Result.
type fakeChatter struct {
	mu     sync.Mutex
	script []router.Result
	calls  []chatCall
}

func (f *fakeChatter) ChatWithFallback(_ context.Context, req adapters.ChatRequest, order []string) router.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, chatCall{req: req, order: order})
	if i < len(f.script) {
		return f.script[i]
	}
	return router.Result{}
}

type staticLister []config.ProviderConfig

func (s staticLister) ListEnabled() []config.ProviderConfig { return s }

func testIntents() *config.IntentsConfig {
	return &config.IntentsConfig{
		Intents: map[string]config.IntentRoute{
			"wifi": {
				Action:      "static_reply",
				StaticReply: map[string]string{"en": "The wifi password is rainbow123"},
				Patterns:    []string{`(?i)\bwi-?fi\b`},
				Keywords:    []string{"internet password"},
			},
			"checkin_time": {
				Action:        "llm_reply",
				TimeSensitive: true,
				Patterns:      []string{`(?i)check[- ]?in time`},
			},
			"complaint": {
				Action:   "escalate",
				Keywords: []string{"speak to manager"},
			},
			"faq_empty": {
				Action:   "static_reply",
				Patterns: []string{`(?i)laundry`},
			},
		},
	}
}

func newTestPipeline(chat Chatter, mutate func(*config.ClassificationConfig)) *Pipeline {
	cfg := config.DefaultConfig().Classification
	cfg.BusinessName = "Rainbow Hostel"
	if mutate != nil {
		mutate(&cfg)
	}
	intents := testIntents()
	return NewPipeline(chat, Options{
		Settings:  func() config.ClassificationConfig { return cfg },
		Intents:   func() *config.IntentsConfig { return intents },
		Providers: staticLister{{ID: "big", Enabled: true}, {ID: "small", Enabled: true}, {ID: "mid", Enabled: true}},
		Now:       func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) },
	})
}

func TestPipeline_TieredRegexNonReplyActionMakesNoCalls(t *testing.T) {
	chat := &fakeChatter{}
	p := newTestPipeline(chat, nil)

	acks := 0
	res := p.Classify(context.Background(), Request{Text: "what's the wifi password?", Ack: func() { acks++ }})

	if len(chat.calls) != 0 {
		t.Fatalf("expected zero LLM calls, got %d", len(chat.calls))
	}
	if res.Intent != "wifi" || res.Source != types.SourceRegex || res.Confidence != 1.0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Reply != "" {
		t.Errorf("fast path must not produce a reply, got %q", res.Reply)
	}
	if acks != 1 {
		t.Errorf("ack called %d times, want 1", acks)
	}
}

func TestPipeline_TieredFuzzyMatch(t *testing.T) {
	chat := &fakeChatter{}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) { c.RegexEnabled = false })

	res := p.Classify(context.Background(), Request{Text: "can i speak to manger"})
	if res.Intent != "complaint" || res.Source != types.SourceFuzzy {
		t.Fatalf("expected fuzzy complaint, got %+v", res)
	}
	if res.Confidence < 0.8 || res.Confidence >= 1 {
		t.Errorf("confidence %.2f out of expected range", res.Confidence)
	}
	if len(chat.calls) != 0 {
		t.Errorf("expected no LLM calls, got %d", len(chat.calls))
	}
}

func TestPipeline_TieredMatchNeedingReplyCallsOnce(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{Content: "Check-in is from 2pm.", Provider: "groq", Model: "llama"}}}
	p := newTestPipeline(chat, nil)

	acked := false
	res := p.Classify(context.Background(), Request{
		Text: "what is the check-in time?",
		Ack: func() {
			if len(chat.calls) != 0 {
				t.Error("ack must run before the reply call")
			}
			acked = true
		},
	})

	if !acked {
		t.Fatal("ack not called")
	}
	if len(chat.calls) != 1 {
		t.Fatalf("expected exactly one reply call, got %d", len(chat.calls))
	}
	call := chat.calls[0]
	if call.req.JSONMode {
		t.Error("reply-only call must not ask for JSON classification")
	}
	system := call.req.Messages[0].Content
	if !strings.Contains(system, `"checkin_time"`) || !strings.Contains(system, "Do not reclassify") {
		t.Errorf("reply prompt should carry the decided intent: %q", system)
	}
	if !strings.Contains(system, "2026-03-14") {
		t.Errorf("time-sensitive intent should get the current date: %q", system)
	}
	if res.Source != types.SourceTieredLLMReply || res.Reply != "Check-in is from 2pm." || res.Provider != "groq" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Intent != "checkin_time" || res.Confidence != 1.0 {
		t.Errorf("classification must come from the regex tier, got %+v", res)
	}
}

func TestPipeline_StaticReplyWithoutTextNeedsReply(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{Content: "Laundry is RM5 per load.", Provider: "groq"}}}
	p := newTestPipeline(chat, nil)

	res := p.Classify(context.Background(), Request{Text: "laundry?"})
	if len(chat.calls) != 1 || res.Reply == "" {
		t.Fatalf("static_reply without text should generate one reply, calls=%d res=%+v", len(chat.calls), res)
	}
	if system := chat.calls[0].req.Messages[0].Content; strings.Contains(system, "Current local time") {
		t.Error("non time-sensitive intent should not get the clock block")
	}
}

func TestPipeline_TieredNoMatchFallsThroughToCombinedCall(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{
		Content:  "```json\n{\"intent\":\"breakfast\",\"confidence\":0.9,\"language\":\"en\",\"message_type\":\"info\",\"reply\":\"Breakfast is 7-10am.\",\"entities\":{\"guests\":2}}\n```",
		Provider: "gemini",
	}}}
	p := newTestPipeline(chat, nil)

	res := p.Classify(context.Background(), Request{Text: "is breakfast included for 2 of us?"})
	if len(chat.calls) != 1 || !chat.calls[0].req.JSONMode {
		t.Fatalf("expected one JSON call, got %+v", chat.calls)
	}
	if res.Source != types.SourceLLM || res.Intent != "breakfast" || res.Confidence != 0.9 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Reply != "Breakfast is 7-10am." || res.Entities["guests"] != "2" {
		t.Errorf("unexpected reply/entities %+v", res)
	}
}

func TestPipeline_SplitModelClassifyOnly(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{Content: `{"intent":"wifi","confidence":0.95,"language":"en"}`, Provider: "small"}}}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) {
		c.Tiered = false
		c.SplitModel = true
		c.ClassificationProvider = "small"
		c.ReplyProvider = "big"
	})

	acks := 0
	res := p.Classify(context.Background(), Request{Text: "wifi pls", Ack: func() { acks++ }})

	if len(chat.calls) != 1 {
		t.Fatalf("static intent should need one classification call, got %d", len(chat.calls))
	}
	if got := strings.Join(chat.calls[0].order, ","); got != "small,big,mid" {
		t.Errorf("classification order = %s, want small pinned first", got)
	}
	if chat.calls[0].req.MaxTokens != 200 {
		t.Errorf("classification call should use classify_max_tokens, got %d", chat.calls[0].req.MaxTokens)
	}
	if res.Source != types.SourceSplitClassify || res.Reply != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if acks != 1 {
		t.Errorf("ack called %d times", acks)
	}
}

func TestPipeline_SplitModelSecondCallForReply(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{
		{Content: `{"intent":"checkin_time","confidence":0.8,"language":"ms","reply":"ignored"}`, Provider: "small"},
		{Content: "Daftar masuk bermula jam 2 petang.", Provider: "big", Model: "gpt-4o"},
	}}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) {
		c.Tiered = false
		c.SplitModel = true
		c.ClassificationProvider = "small"
		c.ReplyProvider = "big"
	})

	ackCalls := 0
	res := p.Classify(context.Background(), Request{
		Text: "bila boleh daftar masuk?",
		Ack: func() {
			ackCalls++
			if len(chat.calls) != 1 {
				t.Errorf("ack must fire after classification, before the reply call (calls=%d)", len(chat.calls))
			}
		},
	})

	if len(chat.calls) != 2 {
		t.Fatalf("expected two calls, got %d", len(chat.calls))
	}
	if got := strings.Join(chat.calls[1].order, ","); got != "big,small,mid" {
		t.Errorf("reply order = %s, want big pinned first", got)
	}
	if !strings.Contains(chat.calls[1].req.Messages[0].Content, "Malay") {
		t.Error("reply prompt should ask for the detected language")
	}
	if res.Source != types.SourceSplitReply || res.Provider != "big" || res.Model != "gpt-4o" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Reply != "Daftar masuk bermula jam 2 petang." {
		t.Errorf("reply = %q", res.Reply)
	}
	if ackCalls != 1 {
		t.Errorf("ack called %d times", ackCalls)
	}
}

func TestPipeline_DefaultStrategySingleCall(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{Content: `{"intent":"wifi","confidence":0.7,"reply":"rainbow123"}`, Provider: "p"}}}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) {
		c.Tiered = false
		c.SplitModel = false
	})

	res := p.Classify(context.Background(), Request{Text: "wifi?"})
	if len(chat.calls) != 1 || chat.calls[0].order != nil {
		t.Fatalf("expected one unpinned call, got %+v", chat.calls)
	}
	if res.Source != types.SourceLLM || res.Reply != "rainbow123" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestPipeline_AllProvidersDown(t *testing.T) {
	chat := &fakeChatter{}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) { c.Tiered = false })

	acks := 0
	res := p.Classify(context.Background(), Request{Text: "hello", Ack: func() { acks++ }})
	if res.Source != types.SourceFallback || res.Intent != types.IntentUnknown || res.Confidence != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if acks != 1 {
		t.Errorf("ack called %d times", acks)
	}
}

func TestPipeline_MalformedOutputIsUnknown(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{Content: "Sure! Our rooms start at RM80.", Provider: "p"}}}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) { c.Tiered = false })

	res := p.Classify(context.Background(), Request{Text: "price?"})
	if res.Intent != types.IntentUnknown || res.Confidence != 0 {
		t.Errorf("expected unknown, got %+v", res)
	}
	if res.Reply != "Sure! Our rooms start at RM80." {
		t.Errorf("plain text output should be kept as the reply, got %q", res.Reply)
	}
}

func TestPipeline_HandleReload(t *testing.T) {
	intents := testIntents()
	p := NewPipeline(&fakeChatter{}, Options{Intents: func() *config.IntentsConfig { return intents }})

	intents = &config.IntentsConfig{Intents: map[string]config.IntentRoute{
		"parking": {Action: "static_reply", Patterns: []string{"(?i)parking"}},
	}}

	p.HandleReload(config.ReloadEvent{Domain: config.DomainSettings})
	if _, ok := p.Catalog().Route("parking"); ok {
		t.Error("settings reload must not touch the catalog")
	}

	p.HandleReload(config.ReloadEvent{Domain: config.DomainIntents})
	if _, ok := p.Catalog().Route("parking"); !ok {
		t.Error("intents reload should rebuild the catalog")
	}
	if _, ok := p.Catalog().Route("wifi"); ok {
		t.Error("old intents should be gone after reload")
	}
}

func TestPipeline_NegativeHistoryTurns(t *testing.T) {
	chat := &fakeChatter{script: []router.Result{{Content: "Laundry is RM5 per load.", Provider: "groq"}}}
	p := newTestPipeline(chat, func(c *config.ClassificationConfig) { c.HistoryTurns = -5 })

	res := p.Classify(context.Background(), Request{
		Text:    "laundry?",
		History: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if len(chat.calls) == 0 {
		t.Fatal("expected the message to reach a provider")
	}
	if n := len(chat.calls[0].req.Messages); n != 2 {
		t.Errorf("messages = %d, want system prompt and text only", n)
	}
	if res.Intent == "" {
		t.Errorf("unexpected result %+v", res)
	}
}
