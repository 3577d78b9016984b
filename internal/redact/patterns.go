package redact

import "regexp"

// Pattern defines a sensitive-data pattern and its replacement label.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns returns the built-in patterns. Order matters: longer,
// more specific patterns run first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "PRIVATE_KEY",
			Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`),
		},
		{
			Name:  "JWT",
			Regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`),
		},
		{
			Name:  "API_KEY",
			Regex: regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_\-]{20,}|sk_live_[A-Za-z0-9]{24,}|gh[pousr]_[A-Za-z0-9_]{36,}|AKIA[0-9A-Z]{16})\b`),
		},
		{
			Name:  "CONNECTION_STRING",
			Regex: regexp.MustCompile(`(?:postgres|mysql|mongodb|redis)://[^\s]+`),
		},
		{
			Name:  "CARD",
			Regex: regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		},
		{
			Name:  "EMAIL",
			Regex: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		},
		{
			Name:  "ACCOUNT",
			Regex: regexp.MustCompile(`\b\d{10,16}\b`),
		},
	}
}
