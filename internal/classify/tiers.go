package classify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/af-corp/concierge/internal/types"
)

// Match is a fast tier hit.
type Match struct {
	Intent     string
	Confidence float64
	Source     types.Source
}

// Tier is a non-generative classification technique.
type Tier interface {
	Name() types.Source
	Match(ctx context.Context, c *Catalog, text string) (Match, bool)
}

// RegexTier returns the highest-confidence rule hit. Ties go to the earlier
// rule in catalog order.
type RegexTier struct{}

func (RegexTier) Name() types.Source { return types.SourceRegex }

func (RegexTier) Match(_ context.Context, c *Catalog, text string) (Match, bool) {
	best := Match{}
	for _, r := range c.Rules() {
		if r.Confidence > best.Confidence && r.Regex.MatchString(text) {
			best = Match{Intent: r.Intent, Confidence: r.Confidence, Source: types.SourceRegex}
		}
	}
	return best, best.Intent != ""
}

// FuzzyTier compares keyword phrases against same-length word windows of
// the message using normalised Levenshtein similarity.
type FuzzyTier struct {
	Threshold float64
}

func (FuzzyTier) Name() types.Source { return types.SourceFuzzy }

func (t FuzzyTier) Match(_ context.Context, c *Catalog, text string) (Match, bool) {
	words := strings.Fields(normalize(text))
	if len(words) == 0 {
		return Match{}, false
	}
	best := Match{}
	for _, kw := range c.keywords {
		score := bestWindowSimilarity(words, kw.text)
		if score >= t.Threshold && score > best.Confidence {
			best = Match{Intent: kw.intent, Confidence: score, Source: types.SourceFuzzy}
		}
	}
	return best, best.Intent != ""
}

func bestWindowSimilarity(words []string, kw string) float64 {
	n := len(strings.Fields(kw))
	if n == 0 {
		return 0
	}
	if n > len(words) {
		return similarity(strings.Join(words, " "), kw)
	}
	best := 0.0
	for i := 0; i+n <= len(words); i++ {
		if s := similarity(strings.Join(words[i:i+n], " "), kw); s > best {
			best = s
		}
	}
	return best
}

// similarity is 1 - distance/longest, in runes.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// normalize lowercases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// VectorCache keeps example phrase embeddings across catalog generations.
type VectorCache struct {
	mu   sync.Mutex
	vecs map[string][]float32
}

func NewVectorCache() *VectorCache {
	return &VectorCache{vecs: make(map[string][]float32)}
}

func (c *VectorCache) get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vecs[text]
	return v, ok
}

func (c *VectorCache) put(text string, v []float32) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.vecs[text] = v
	c.mu.Unlock()
}

// SemanticTier scores the message against embedded example phrases by
// cosine similarity. A nil Cache embeds examples on every call.
type SemanticTier struct {
	Embedder  Embedder
	Threshold float64
	Cache     *VectorCache
}

func (SemanticTier) Name() types.Source { return types.SourceSemantic }

func (t SemanticTier) Match(ctx context.Context, c *Catalog, text string) (Match, bool) {
	if t.Embedder == nil || len(c.examples) == 0 {
		return Match{}, false
	}
	vec, err := t.Embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("semantic tier: embed message failed", "error", err)
		return Match{}, false
	}
	if len(vec) == 0 {
		return Match{}, false
	}

	best := Match{}
	for _, ex := range c.examples {
		exVec, err := t.example(ctx, ex.text)
		if err != nil {
			slog.Warn("semantic tier: embed example failed", "intent", ex.intent, "error", err)
			return Match{}, false
		}
		score := cosineSimilarity(vec, exVec)
		if score >= t.Threshold && score > best.Confidence {
			best = Match{Intent: ex.intent, Confidence: score, Source: types.SourceSemantic}
		}
	}
	return best, best.Intent != ""
}

func (t SemanticTier) example(ctx context.Context, text string) ([]float32, error) {
	if v, ok := t.Cache.get(text); ok {
		return v, nil
	}
	v, err := t.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	t.Cache.put(text, v)
	return v, nil
}
