package types

// InboundMessage is what the transport hands the assistant for one turn.
type InboundMessage struct {
	Sender      string    `json:"sender"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	History     []Message `json:"history,omitempty"`
	InstanceID  string    `json:"instance_id,omitempty"`
	AckURL      string    `json:"ack_url,omitempty"`
	RequestID   string    `json:"-"`
}

// Reply is the assistant's answer plus the fields the transport records in
// its diary.
type Reply struct {
	Text            string  `json:"reply"`
	Image           string  `json:"image,omitempty"`
	Escalated       bool    `json:"escalated"`
	WorkflowStarted bool    `json:"workflow_started"`
	ConfigError     string  `json:"config_error,omitempty"`
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	Source          Source  `json:"source"`
	Action          Action  `json:"action"`
	Language        string  `json:"language"`
	Provider        string  `json:"provider,omitempty"`
}
