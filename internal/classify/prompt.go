package classify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/af-corp/concierge/internal/types"
)

// llmOutput is the JSON object the classification prompts ask for.
type llmOutput struct {
	Intent      string         `json:"intent"`
	Confidence  float64        `json:"confidence"`
	Language    string         `json:"language"`
	MessageType string         `json:"message_type"`
	Sentiment   string         `json:"sentiment"`
	Intents     []string       `json:"intents"`
	Entities    map[string]any `json:"entities"`
	Reply       string         `json:"reply"`
}

// cleanJSON strips code fences and any prose around the first JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// parseLLMOutput decodes a model answer. ok is false when no usable object
// with an intent could be found.
func parseLLMOutput(raw string) (llmOutput, bool) {
	var out llmOutput
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		return llmOutput{}, false
	}
	out.Intent = strings.TrimSpace(out.Intent)
	if out.Intent == "" {
		return llmOutput{}, false
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	out.Reply = strings.TrimSpace(out.Reply)
	return out, true
}

func (o llmOutput) entities() map[string]string {
	if len(o.Entities) == 0 {
		return nil
	}
	m := make(map[string]string, len(o.Entities))
	for k, v := range o.Entities {
		if v == nil {
			continue
		}
		m[k] = fmt.Sprint(v)
	}
	return m
}

func languageName(code string) string {
	switch code {
	case LangMalay:
		return "Malay"
	case LangChinese:
		return "Simplified Chinese"
	default:
		return "English"
	}
}

func intentList(c *Catalog) string {
	names := append([]string(nil), c.Names()...)
	if !contains(names, types.IntentUnknown) {
		names = append(names, types.IntentUnknown)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// classifyPrompt asks for a JSON classification. withReply adds the reply
// field so one call serves both purposes.
func classifyPrompt(c *Catalog, business string, withReply bool) string {
	var b strings.Builder
	if business == "" {
		business = "the property"
	}
	fmt.Fprintf(&b, "You are the WhatsApp assistant of %s. Classify the guest's latest message.\n", business)
	fmt.Fprintf(&b, "Known intents: %s.\n", intentList(c))
	b.WriteString("Use \"unknown\" when none fits. If the message asks several things, list every intent in \"intents\" with the main one first.\n")
	b.WriteString("language is one of en, ms, zh. message_type is one of info, complaint, problem. sentiment is one of positive, neutral, negative.\n")
	b.WriteString("Put extracted details such as dates, guest counts or room types in \"entities\".\n")
	if withReply {
		b.WriteString("Also write a short, friendly reply to the guest in their language in \"reply\".\n")
		b.WriteString(`Answer with JSON only: {"intent":"","confidence":0.0,"intents":[],"language":"","message_type":"","sentiment":"","entities":{},"reply":""}`)
	} else {
		b.WriteString(`Answer with JSON only: {"intent":"","confidence":0.0,"intents":[],"language":"","message_type":"","sentiment":"","entities":{}}`)
	}
	return b.String()
}

// replyPrompt asks for a plain text reply for an intent that is already
// decided. The model must not classify again.
func replyPrompt(c *Catalog, business, intent, lang, clock string) string {
	var b strings.Builder
	if business == "" {
		business = "the property"
	}
	fmt.Fprintf(&b, "You are the WhatsApp assistant of %s.\n", business)
	fmt.Fprintf(&b, "The guest's request has been identified as %q. Do not reclassify it; just answer it.\n", intent)
	if facts := c.StaticReply(intent, lang); facts != "" {
		fmt.Fprintf(&b, "Facts you can rely on: %s\n", facts)
	}
	if clock != "" {
		b.WriteString(clock)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Reply in %s, briefly and politely, as plain text without markdown.", languageName(lang))
	return b.String()
}

// clockBlock gives time-sensitive intents the local date and time.
func clockBlock(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return fmt.Sprintf("Current local time: %s (%s, %s). Use it for anything about today, tonight, check-in or check-out times.",
		local.Format("2006-01-02 15:04"), local.Weekday(), loc.String())
}

// conversation builds the message list: system prompt, trimmed history and
// the guest's latest text.
func conversation(system string, history []types.Message, text string, turns int) []types.Message {
	turns = max(turns, 0)
	msgs := make([]types.Message, 0, turns+2)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: system})
	for _, m := range types.LastN(history, turns) {
		if m.Role == types.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, types.Message{Role: types.RoleUser, Content: text})
}
