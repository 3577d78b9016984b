package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func loadShippedPolicy(t *testing.T) *Evaluator {
	t.Helper()
	e := NewEvaluator(time.Second)
	if err := e.Load(filepath.Join("..", "..", "policies")); err != nil {
		t.Fatalf("failed to load shipped policy: %v", err)
	}
	if !e.Loaded() {
		t.Fatal("expected policy to be loaded")
	}
	return e
}

func TestEvaluator_ShippedPolicy(t *testing.T) {
	e := loadShippedPolicy(t)

	tests := []struct {
		name     string
		in       Input
		escalate bool
		reason   string
	}{
		{"first unknown", Input{UnknownCount: 1, Threshold: 3, Hour: 12}, false, ""},
		{"threshold reached", Input{UnknownCount: 3, Threshold: 3, Hour: 12}, true, "unknown_repeated"},
		{"negative one early", Input{UnknownCount: 2, Threshold: 3, Sentiment: "negative", Hour: 12}, true, "negative_sentiment"},
		{"neutral one early", Input{UnknownCount: 2, Threshold: 3, Sentiment: "neutral", Hour: 12}, false, ""},
		{"problem at night", Input{UnknownCount: 2, Threshold: 5, MessageType: "problem", Hour: 23}, true, "after_hours_issue"},
		{"problem by day", Input{UnknownCount: 2, Threshold: 5, MessageType: "problem", Hour: 15}, false, ""},
		{"early morning info", Input{UnknownCount: 2, Threshold: 5, MessageType: "info", Hour: 5}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Evaluate(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Escalate != tt.escalate || d.Reason != tt.reason {
				t.Errorf("got %+v, want escalate=%v reason=%q", d, tt.escalate, tt.reason)
			}
		})
	}
}

func TestEvaluator_NoPolicyErrors(t *testing.T) {
	e := NewEvaluator(0)
	if _, err := e.Evaluate(context.Background(), Input{}); err == nil {
		t.Error("expected error without a loaded policy")
	}
	if err := e.Load(""); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
	if e.Loaded() {
		t.Error("nothing should be loaded")
	}
}

func TestEvaluator_InvalidModule(t *testing.T) {
	e := NewEvaluator(0)
	if err := e.LoadFromModules(map[string]string{"bad.rego": "package x\nthis is not rego"}); err == nil {
		t.Error("expected compile error")
	}
}

func TestEvaluator_CustomPolicy(t *testing.T) {
	e := NewEvaluator(0)
	err := e.LoadFromModules(map[string]string{"vip.rego": `
package concierge.escalation

import rego.v1

default escalate := false
default reason := ""

escalate if startswith(input.sender, "vip-")
reason := "vip" if escalate
`})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := e.ShouldEscalate(context.Background(), Input{Sender: "vip-60123", UnknownCount: 1, Threshold: 3})
	if !d.Escalate || d.Reason != "vip" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestShouldEscalate_FallsBackToThreshold(t *testing.T) {
	var nilEval *Evaluator
	d := nilEval.ShouldEscalate(context.Background(), Input{UnknownCount: 3, Threshold: 3})
	if !d.Escalate || d.Reason != ReasonUnknownRepeated {
		t.Errorf("unexpected decision %+v", d)
	}

	e := NewEvaluator(0)
	if d := e.ShouldEscalate(context.Background(), Input{UnknownCount: 1, Threshold: 3}); d.Escalate {
		t.Errorf("should not escalate, got %+v", d)
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		in     Input
		want   bool
		reason string
	}{
		{Input{UnknownCount: 2, Threshold: 3}, false, ""},
		{Input{UnknownCount: 3, Threshold: 3}, true, ReasonUnknownRepeated},
		{Input{UnknownCount: 3}, true, ReasonUnknownRepeated},
		{Input{UnknownCount: 2, Threshold: 3, Sentiment: "negative"}, true, ReasonNegativeSentiment},
		{Input{UnknownCount: 1, Threshold: 1}, true, ReasonUnknownRepeated},
		{Input{UnknownCount: 0, Threshold: 1, Sentiment: "negative"}, false, ""},
	}
	for _, tt := range tests {
		d := Threshold(tt.in)
		if d.Escalate != tt.want || d.Reason != tt.reason {
			t.Errorf("Threshold(%+v) = %+v", tt.in, d)
		}
	}
}
