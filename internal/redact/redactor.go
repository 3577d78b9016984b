package redact

import (
	"github.com/af-corp/concierge/internal/types"
)

// Detection is a matched span of sensitive data.
type Detection struct {
	PatternName string
	Start       int
	End         int
}

// Redactor masks card numbers, bank accounts, keys and tokens before text
// leaves the process in escalations or the diary.
type Redactor struct {
	patterns []Pattern
}

func New() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// Scan returns every detection in text.
func (r *Redactor) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range r.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{PatternName: p.Name, Start: loc[0], End: loc[1]})
		}
	}
	return detections
}

// String replaces every match with [NAME]. Patterns are applied in order,
// so a span masked by one pattern is not matched again by a later one.
func (r *Redactor) String(text string) string {
	if r == nil {
		return text
	}
	for _, p := range r.patterns {
		text = p.Regex.ReplaceAllString(text, "["+p.Name+"]")
	}
	return text
}

// Messages returns a redacted copy of msgs.
func (r *Redactor) Messages(msgs []types.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		m.Content = r.String(m.Content)
		out[i] = m
	}
	return out
}
