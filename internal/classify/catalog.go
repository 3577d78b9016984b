package classify

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/types"
)

// Rule is a compiled regex tier pattern.
type Rule struct {
	Intent     string
	Regex      *regexp.Regexp
	Confidence float64
}

type phrase struct {
	intent string
	text   string
}

// Catalog is the compiled, read-only view of intents.yaml for one
// configuration generation.
type Catalog struct {
	cfg      *config.IntentsConfig
	names    []string
	rules    []Rule
	keywords []phrase
	examples []phrase
}

// NewCatalog compiles the regex patterns and normalises keyword phrases.
// Invalid patterns are logged and skipped so a typo does not take every
// other intent down with it.
func NewCatalog(cfg *config.IntentsConfig) *Catalog {
	if cfg == nil {
		cfg = &config.IntentsConfig{}
	}
	c := &Catalog{cfg: cfg}
	for name := range cfg.Intents {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)

	for _, name := range c.names {
		route := cfg.Intents[name]
		conf := route.Confidence
		if conf <= 0 || conf > 1 {
			conf = 1.0
		}
		for _, pat := range route.Patterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				slog.Warn("invalid intent pattern skipped", "intent", name, "pattern", pat, "error", err)
				continue
			}
			c.rules = append(c.rules, Rule{Intent: name, Regex: re, Confidence: conf})
		}
		for _, kw := range route.Keywords {
			if n := normalize(kw); n != "" {
				c.keywords = append(c.keywords, phrase{intent: name, text: n})
			}
		}
		for _, ex := range route.Examples {
			if ex = strings.TrimSpace(ex); ex != "" {
				c.examples = append(c.examples, phrase{intent: name, text: ex})
			}
		}
	}
	return c
}

// Names returns the configured intent names, sorted.
func (c *Catalog) Names() []string { return c.names }

// Rules returns the compiled regex rules in evaluation order.
func (c *Catalog) Rules() []Rule { return c.rules }

// Route returns the configured route for intent.
func (c *Catalog) Route(intent string) (config.IntentRoute, bool) {
	return c.cfg.Route(intent)
}

// Action returns the configured action for intent. Unconfigured intents
// get a generated reply.
func (c *Catalog) Action(intent string) types.Action {
	route, ok := c.cfg.Route(intent)
	if !ok {
		return types.ActionLLMReply
	}
	return types.ParseAction(route.Action)
}

// StaticReply returns the static text for intent in lang, falling back to
// English and then to any configured language.
func (c *Catalog) StaticReply(intent, lang string) string {
	route, ok := c.cfg.Route(intent)
	if !ok || len(route.StaticReply) == 0 {
		return ""
	}
	if s := strings.TrimSpace(route.StaticReply[lang]); s != "" {
		return s
	}
	if s := strings.TrimSpace(route.StaticReply["en"]); s != "" {
		return s
	}
	langs := make([]string, 0, len(route.StaticReply))
	for l := range route.StaticReply {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		if s := strings.TrimSpace(route.StaticReply[l]); s != "" {
			return s
		}
	}
	return ""
}

// NeedsReply reports whether serving intent requires generated text: an
// llm_reply action, or a static_reply action with no static text.
func (c *Catalog) NeedsReply(intent, lang string) bool {
	switch c.Action(intent) {
	case types.ActionLLMReply:
		return true
	case types.ActionStaticReply:
		return c.StaticReply(intent, lang) == ""
	default:
		return false
	}
}

func (c *Catalog) IsTimeSensitive(intent string) bool {
	return c.cfg.IsTimeSensitive(intent)
}

func (c *Catalog) Workflow(id string) (config.WorkflowDefinition, bool) {
	return c.cfg.Workflow(id)
}

// Template returns a configured override for a canned message, or "".
func (c *Catalog) Template(name, lang string) string {
	byLang, ok := c.cfg.Templates[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(byLang[lang])
}
