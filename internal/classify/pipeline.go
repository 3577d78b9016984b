package classify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/router"
	"github.com/af-corp/concierge/internal/router/adapters"
	"github.com/af-corp/concierge/internal/telemetry"
	"github.com/af-corp/concierge/internal/types"
)

// Chatter is the fallback orchestrator as seen by the pipeline.
type Chatter interface {
	ChatWithFallback(ctx context.Context, req adapters.ChatRequest, order []string) router.Result
}

type Options struct {
	Settings func() config.ClassificationConfig
	Intents  func() *config.IntentsConfig
	// Providers is used to pin a preferred provider ahead of the others.
	Providers router.ProviderLister
	Embedder  Embedder
	Metrics   *telemetry.Metrics
	Now       func() time.Time
}

// Request is one guest turn to classify.
type Request struct {
	Text    string
	History []types.Message
	// Ack clears the transport's typing indicator. It runs once, as soon as
	// the intent is known.
	Ack func()
}

// Pipeline resolves a guest message to an intent using the tiered,
// split-model or default strategy.
type Pipeline struct {
	chat      Chatter
	settings  func() config.ClassificationConfig
	intents   func() *config.IntentsConfig
	providers router.ProviderLister
	embedder  Embedder
	vectors   *VectorCache
	metrics   *telemetry.Metrics
	now       func() time.Time

	catalog atomic.Pointer[Catalog]

	locMu sync.Mutex
	locs  map[string]*time.Location
}

func NewPipeline(chat Chatter, opts Options) *Pipeline {
	if opts.Settings == nil {
		def := config.DefaultConfig().Classification
		opts.Settings = func() config.ClassificationConfig { return def }
	}
	if opts.Intents == nil {
		opts.Intents = func() *config.IntentsConfig { return nil }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pipeline{
		chat:      chat,
		settings:  opts.Settings,
		intents:   opts.Intents,
		providers: opts.Providers,
		embedder:  opts.Embedder,
		vectors:   NewVectorCache(),
		metrics:   opts.Metrics,
		now:       opts.Now,
		locs:      make(map[string]*time.Location),
	}
	p.Reload()
	return p
}

// Catalog returns the current compiled intent catalog.
func (p *Pipeline) Catalog() *Catalog {
	return p.catalog.Load()
}

// Reload recompiles the intent catalog from the current configuration.
func (p *Pipeline) Reload() {
	c := NewCatalog(p.intents())
	p.catalog.Store(c)
	slog.Info("intent catalog loaded", "intents", len(c.Names()), "rules", len(c.Rules()))
}

// HandleReload rebuilds the catalog for intents and all reloads.
func (p *Pipeline) HandleReload(ev config.ReloadEvent) {
	if ev.Affects(config.DomainIntents) {
		p.Reload()
	}
}

// Classify never fails: when every provider is unavailable the result has
// the unknown intent and the fallback source.
func (p *Pipeline) Classify(ctx context.Context, req Request) types.ClassificationResult {
	start := p.now()
	ackFn := req.Ack
	if ackFn == nil {
		ackFn = func() {}
	}
	ack := sync.OnceFunc(ackFn)
	defer ack()

	cfg := p.settings()
	cat := p.Catalog()

	var res types.ClassificationResult
	switch {
	case cfg.Tiered:
		res = p.tiered(ctx, cfg, cat, req, ack)
	case cfg.SplitModel:
		res = p.split(ctx, cfg, cat, req, ack)
	default:
		res = p.combined(ctx, cfg, cat, req, ack)
	}

	res.Timing.Total = p.now().Sub(start)
	res.Latency = res.Timing.Total
	p.metrics.RecordClassification(string(res.Source), res.Intent, res.Latency)
	return res
}

// FastMatch runs the enabled fast tiers in order: regex, fuzzy, semantic.
func (p *Pipeline) FastMatch(ctx context.Context, text string) (Match, bool) {
	return p.fastMatch(ctx, p.settings(), p.Catalog(), text)
}

func (p *Pipeline) fastMatch(ctx context.Context, cfg config.ClassificationConfig, cat *Catalog, text string) (Match, bool) {
	var tiers []Tier
	if cfg.RegexEnabled {
		tiers = append(tiers, RegexTier{})
	}
	if cfg.FuzzyEnabled {
		tiers = append(tiers, FuzzyTier{Threshold: cfg.FuzzyThreshold})
	}
	if cfg.SemanticEnabled && p.embedder != nil {
		tiers = append(tiers, SemanticTier{Embedder: p.embedder, Threshold: cfg.SemanticThreshold, Cache: p.vectors})
	}
	for _, t := range tiers {
		if m, ok := t.Match(ctx, cat, text); ok {
			return m, true
		}
	}
	return Match{}, false
}

func (p *Pipeline) tiered(ctx context.Context, cfg config.ClassificationConfig, cat *Catalog, req Request, ack func()) types.ClassificationResult {
	t0 := p.now()
	m, ok := p.fastMatch(ctx, cfg, cat, req.Text)
	if !ok {
		return p.combined(ctx, cfg, cat, req, ack)
	}

	res := types.ClassificationResult{
		Intent:      m.Intent,
		Confidence:  m.Confidence,
		Source:      m.Source,
		Language:    DetectLanguage(req.Text),
		MessageType: DetectMessageType(req.Text),
	}
	res.Timing.Classify = p.now().Sub(t0)
	ack()

	if cat.NeedsReply(res.Intent, res.Language) {
		p.reply(ctx, cfg, cat, req, &res, types.SourceTieredLLMReply, "")
	}
	return res
}

func (p *Pipeline) split(ctx context.Context, cfg config.ClassificationConfig, cat *Catalog, req Request, ack func()) types.ClassificationResult {
	t0 := p.now()
	out := p.chat.ChatWithFallback(ctx, adapters.ChatRequest{
		Messages:  conversation(classifyPrompt(cat, cfg.BusinessName, false), req.History, req.Text, cfg.HistoryTurns),
		MaxTokens: cfg.ClassifyMaxTokens,
		JSONMode:  true,
	}, p.pinned(cfg.ClassificationProvider))
	classifyTime := p.now().Sub(t0)
	ack()

	if !out.OK() {
		res := fallbackResult(req.Text)
		res.Timing.Classify = classifyTime
		return res
	}
	res := fromLLM(out, req.Text, types.SourceSplitClassify)
	// The classification model is not asked for a reply.
	res.Reply = ""
	res.Timing.Classify = classifyTime

	if cat.NeedsReply(res.Intent, res.Language) {
		p.reply(ctx, cfg, cat, req, &res, types.SourceSplitReply, cfg.ReplyProvider)
	}
	return res
}

func (p *Pipeline) combined(ctx context.Context, cfg config.ClassificationConfig, cat *Catalog, req Request, ack func()) types.ClassificationResult {
	t0 := p.now()
	out := p.chat.ChatWithFallback(ctx, adapters.ChatRequest{
		Messages:    conversation(classifyPrompt(cat, cfg.BusinessName, true), req.History, req.Text, cfg.HistoryTurns),
		MaxTokens:   cfg.ReplyMaxTokens,
		Temperature: cfg.ReplyTemperature,
		JSONMode:    true,
	}, nil)
	classifyTime := p.now().Sub(t0)
	ack()

	var res types.ClassificationResult
	if out.OK() {
		res = fromLLM(out, req.Text, types.SourceLLM)
	} else {
		res = fallbackResult(req.Text)
	}
	res.Timing.Classify = classifyTime
	return res
}

// reply generates text for an intent that is already decided.
func (p *Pipeline) reply(ctx context.Context, cfg config.ClassificationConfig, cat *Catalog, req Request, res *types.ClassificationResult, source types.Source, pin string) {
	t0 := p.now()
	clock := ""
	if cat.IsTimeSensitive(res.Intent) {
		clock = clockBlock(p.now(), p.location(cfg.TimeZone))
	}
	out := p.chat.ChatWithFallback(ctx, adapters.ChatRequest{
		Messages:    conversation(replyPrompt(cat, cfg.BusinessName, res.Intent, res.Language, clock), req.History, req.Text, cfg.HistoryTurns),
		MaxTokens:   cfg.ReplyMaxTokens,
		Temperature: cfg.ReplyTemperature,
	}, p.pinned(pin))
	res.Timing.Reply = p.now().Sub(t0)

	if !out.OK() {
		slog.Warn("reply generation failed, no provider answered", "intent", res.Intent, "source", res.Source)
		return
	}
	res.Reply = out.Content
	res.Provider = out.Provider
	res.Model = out.Model
	res.Source = source
}

// pinned puts id ahead of the other enabled providers. An empty id keeps
// the default priority order.
func (p *Pipeline) pinned(id string) []string {
	id = strings.TrimSpace(id)
	if id == "" || p.providers == nil {
		return nil
	}
	order := []string{id}
	for _, prov := range p.providers.ListEnabled() {
		if prov.ID != id {
			order = append(order, prov.ID)
		}
	}
	return order
}

func (p *Pipeline) location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	p.locMu.Lock()
	defer p.locMu.Unlock()
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("unknown time zone, using UTC", "time_zone", name, "error", err)
		loc = time.UTC
	}
	p.locs[name] = loc
	return loc
}

func fromLLM(out router.Result, text string, source types.Source) types.ClassificationResult {
	res := types.ClassificationResult{
		Source:   source,
		Provider: out.Provider,
		Model:    out.Model,
	}
	parsed, ok := parseLLMOutput(out.Content)
	if !ok {
		slog.Warn("model output was not a classification, treating as unknown", "provider", out.Provider)
		res.Intent = types.IntentUnknown
		res.Language = DetectLanguage(text)
		res.MessageType = DetectMessageType(text)
		if !strings.Contains(out.Content, "{") {
			res.Reply = strings.TrimSpace(out.Content)
		}
		return res
	}

	res.Intent = parsed.Intent
	res.Confidence = parsed.Confidence
	res.Entities = parsed.entities()
	res.Reply = parsed.Reply
	res.Sentiment = strings.ToLower(strings.TrimSpace(parsed.Sentiment))
	res.Intents = parsed.Intents

	res.Language = NormalizeLanguage(parsed.Language)
	if res.Language == "" {
		res.Language = DetectLanguage(text)
	}
	if mt, ok := types.ParseMessageType(parsed.MessageType); ok {
		res.MessageType = mt
	} else {
		res.MessageType = DetectMessageType(text)
	}
	return res
}

func fallbackResult(text string) types.ClassificationResult {
	return types.ClassificationResult{
		Intent:      types.IntentUnknown,
		Source:      types.SourceFallback,
		Language:    DetectLanguage(text),
		MessageType: DetectMessageType(text),
	}
}
