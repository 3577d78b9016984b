package types

import "time"

// RateLimitNotice tells an administrator that a provider is being throttled.
type RateLimitNotice struct {
	Provider    string        `json:"provider"`
	ErrorCount  int           `json:"error_count"`
	TotalErrors int           `json:"total_errors"`
	Cooldown    time.Duration `json:"cooldown"`
	Error       string        `json:"error"`
}

// Escalation hands a conversation to staff.
type Escalation struct {
	ID          string            `json:"id"`
	Sender      string            `json:"sender"`
	DisplayName string            `json:"display_name,omitempty"`
	Reason      string            `json:"reason"`
	Excerpts    []Message         `json:"excerpts,omitempty"`
	Text        string            `json:"text"`
	InstanceID  string            `json:"instance_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	At          time.Time         `json:"at"`
}

// AdminNotice reports an operational problem such as a broken intent
// configuration.
type AdminNotice struct {
	Kind     string            `json:"kind"`
	Sender   string            `json:"sender,omitempty"`
	Intent   string            `json:"intent,omitempty"`
	Detail   string            `json:"detail"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}
