package types

import "testing"

func TestClassificationResult_IsUnknown(t *testing.T) {
	tests := []struct {
		name string
		r    ClassificationResult
		want bool
	}{
		{"sentinel", ClassificationResult{Intent: IntentUnknown, Confidence: 0.9}, true},
		{"empty intent", ClassificationResult{Confidence: 0.9}, true},
		{"low confidence", ClassificationResult{Intent: "wifi", Confidence: 0.39}, true},
		{"at threshold", ClassificationResult{Intent: "wifi", Confidence: 0.4}, false},
		{"confident", ClassificationResult{Intent: "wifi", Confidence: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.IsUnknown(0.4); got != tt.want {
				t.Errorf("IsUnknown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSource_IsFastTier(t *testing.T) {
	tests := []struct {
		s    Source
		want bool
	}{
		{SourceRegex, true},
		{SourceFuzzy, true},
		{SourceSemantic, true},
		{SourceLLM, false},
		{SourceSplitClassify, false},
		{SourceFallback, false},
	}

	for _, tt := range tests {
		if got := tt.s.IsFastTier(); got != tt.want {
			t.Errorf("%s.IsFastTier() = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		input string
		want  Action
	}{
		{"static_reply", ActionStaticReply},
		{"escalate", ActionEscalate},
		{"workflow", ActionWorkflow},
		{"forward_payment", ActionForwardPayment},
		{"", ActionLLMReply},
		{"dance", ActionLLMReply},
	}

	for _, tt := range tests {
		if got := ParseAction(tt.input); got != tt.want {
			t.Errorf("ParseAction(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestAction_RequiresReply(t *testing.T) {
	for _, a := range []Action{ActionStaticReply, ActionEscalate, ActionForwardPayment, ActionStartBooking, ActionWorkflow} {
		if a.RequiresReply() {
			t.Errorf("%s should not require a generated reply", a)
		}
	}
	if !ActionLLMReply.RequiresReply() {
		t.Error("llm_reply should require a generated reply")
	}
}

func TestParseMessageType(t *testing.T) {
	tests := []struct {
		in   string
		want MessageType
		ok   bool
	}{
		{"complaint", MessageComplaint, true},
		{" Problem ", MessageProblem, true},
		{"info", MessageInfo, true},
		{"", MessageInfo, false},
		{"rant", MessageInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseMessageType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMessageType(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLastN(t *testing.T) {
	h := []Message{{Content: "a"}, {Content: "b"}, {Content: "c"}}
	if got := LastN(h, 2); len(got) != 2 || got[0].Content != "b" {
		t.Errorf("LastN(2) = %+v", got)
	}
	if got := LastN(h, 10); len(got) != 3 {
		t.Errorf("LastN(10) = %+v", got)
	}
	if got := LastN(h, 0); got != nil {
		t.Errorf("LastN(0) = %+v, want nil", got)
	}
}
