package types

import (
	"strings"
	"time"
)

// Source identifies which classification tier or strategy served a message.
type Source string

const (
	SourceRegex          Source = "regex"
	SourceFuzzy          Source = "fuzzy"
	SourceSemantic       Source = "semantic"
	SourceLLM            Source = "llm"
	SourceTieredLLMReply Source = "tiered_llm_reply"
	SourceSplitClassify  Source = "split_classify"
	SourceSplitReply     Source = "split_reply"
	SourceFallback       Source = "fallback"
	// SourceDialog marks a turn answered by an active booking or workflow
	// without classification.
	SourceDialog Source = "dialog"
	// SourceGuard marks a message blocked before classification.
	SourceGuard Source = "guard"
)

// IsFastTier reports whether the source is a non-generative tier.
func (s Source) IsFastTier() bool {
	switch s {
	case SourceRegex, SourceFuzzy, SourceSemantic:
		return true
	default:
		return false
	}
}

type MessageType string

const (
	MessageInfo      MessageType = "info"
	MessageComplaint MessageType = "complaint"
	MessageProblem   MessageType = "problem"
)

// ParseMessageType reads a message type from model output. ok is false for
// anything that is not a known type.
func ParseMessageType(s string) (MessageType, bool) {
	switch mt := MessageType(strings.ToLower(strings.TrimSpace(s))); mt {
	case MessageInfo, MessageComplaint, MessageProblem:
		return mt, true
	default:
		return MessageInfo, false
	}
}

// IntentUnknown is the sentinel intent for messages nothing could classify.
const IntentUnknown = "unknown"

type Timing struct {
	Classify time.Duration `json:"classify"`
	Reply    time.Duration `json:"reply"`
	Total    time.Duration `json:"total"`
}

// ClassificationResult is the uniform output of every classification strategy.
type ClassificationResult struct {
	Intent      string            `json:"intent"`
	Confidence  float64           `json:"confidence"`
	Source      Source            `json:"source"`
	Language    string            `json:"language"`
	Entities    map[string]string `json:"entities,omitempty"`
	Model       string            `json:"model,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Latency     time.Duration     `json:"latency"`
	Reply       string            `json:"reply,omitempty"`
	MessageType MessageType       `json:"message_type"`
	// Intents lists every intent detected when a message asks several things.
	Intents   []string `json:"intents,omitempty"`
	Sentiment string   `json:"sentiment,omitempty"`
	Timing    Timing   `json:"timing"`
}

// IsUnknown reports whether the result should count towards the unknown
// streak: the sentinel intent or confidence below threshold.
func (r ClassificationResult) IsUnknown(threshold float64) bool {
	return r.Intent == "" || r.Intent == IntentUnknown || r.Confidence < threshold
}

// IsMultiIntent reports whether more than one intent was detected.
func (r ClassificationResult) IsMultiIntent() bool {
	return len(r.Intents) >= 2
}
