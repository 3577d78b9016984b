package adapters

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/types"
)

// ChatRequest is the normalized request every vendor variant accepts.
type ChatRequest struct {
	Model       string
	Messages    []types.Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// ProviderAdapter sends a ChatRequest to one configured provider and returns
// the trimmed generated text. An empty string with a nil error means the
// vendor answered without text.
type ProviderAdapter interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Factory builds an adapter for a provider with an already resolved credential.
type Factory func(cfg config.ProviderConfig, credential string, client *http.Client) (ProviderAdapter, error)

// Variant describes a vendor family selected by the provider's type tag.
type Variant struct {
	Factory         Factory
	NeedsCredential bool
}

// DefaultVariant is used for unknown type tags.
const DefaultVariant = "openai"

var (
	variantsMu sync.RWMutex
	variants   = make(map[string]Variant)
)

// Register makes a variant available under tag. Registering a tag twice
// replaces the earlier variant.
func Register(tag string, v Variant) {
	variantsMu.Lock()
	defer variantsMu.Unlock()
	variants[tag] = v
}

// Lookup returns the variant for tag. An empty tag means DefaultVariant;
// unknown tags are not found.
func Lookup(tag string) (Variant, bool) {
	if tag == "" {
		tag = DefaultVariant
	}
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	v, ok := variants[tag]
	return v, ok
}

// Tags lists registered variant tags in sorted order.
func Tags() []string {
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	tags := make([]string, 0, len(variants))
	for t := range variants {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
