// Package guard screens guest messages for prompt-injection attempts before
// they reach an LLM.
package guard

import (
	"sort"

	"github.com/af-corp/concierge/internal/config"
)

type Action string

const (
	ActionPass  Action = "pass"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// Detection records a matched rule.
type Detection struct {
	RuleName string
	Severity float64
	Category string
	Start    int
	End      int
}

// Verdict is the outcome of checking one message.
type Verdict struct {
	Action     Action
	Score      float64
	Detections []Detection
}

// Rules returns the distinct rule names that fired, sorted.
func (v Verdict) Rules() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range v.Detections {
		if !seen[d.RuleName] {
			seen[d.RuleName] = true
			out = append(out, d.RuleName)
		}
	}
	sort.Strings(out)
	return out
}

// Scanner applies the rules with thresholds read per call, so reloaded
// settings take effect immediately.
type Scanner struct {
	rules []Rule
	cfg   func() config.GuardConfig
}

func NewScanner(cfg func() config.GuardConfig) *Scanner {
	return &Scanner{rules: DefaultRules(), cfg: cfg}
}

// Scan returns every rule match in text.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, r := range s.rules {
		for _, loc := range r.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				RuleName: r.Name,
				Severity: r.Severity,
				Category: r.Category,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	return detections
}

// Check scores text by its most severe detection. A nil scanner or a
// disabled guard passes everything.
func (s *Scanner) Check(text string) Verdict {
	if s == nil {
		return Verdict{Action: ActionPass}
	}
	cfg := s.cfg()
	if !cfg.Enabled {
		return Verdict{Action: ActionPass}
	}

	detections := s.Scan(text)
	score := 0.0
	for _, d := range detections {
		if d.Severity > score {
			score = d.Severity
		}
	}

	v := Verdict{Action: ActionPass, Score: score, Detections: detections}
	switch {
	case score >= cfg.BlockThreshold:
		v.Action = ActionBlock
	case score >= cfg.FlagThreshold:
		v.Action = ActionFlag
	}
	return v
}
