package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/af-corp/concierge/internal/config"
)

func TestStepEngine_BuiltinBooking(t *testing.T) {
	e := &StepEngine{}
	ctx := context.Background()

	out, err := e.Step(ctx, DialogInput{Kind: DialogBooking, Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	answers := []string{"12 March", "2", "3", "Lim"}
	for _, a := range answers {
		if out.State == nil {
			t.Fatalf("dialog finished early at %q", a)
		}
		out, err = e.Step(ctx, DialogInput{Kind: DialogBooking, State: out.State, Text: "  " + a + " ", Language: "en"})
		if err != nil {
			t.Fatal(err)
		}
	}
	if out.State != nil {
		t.Fatalf("dialog should be finished, state %+v", out.State)
	}
	for _, want := range []string{"Booking completed", "check-in date: 12 March", "number of guests: 3", "name: Lim"} {
		if !strings.Contains(out.Summary, want) {
			t.Errorf("summary %q missing %q", out.Summary, want)
		}
	}
}

func TestStepEngine_DoesNotMutateInputState(t *testing.T) {
	e := &StepEngine{}
	def := &config.WorkflowDefinition{Name: "x", Steps: []string{"a", "b"}}
	in := &DialogState{Kind: DialogWorkflow, Data: map[string]string{}}

	if _, err := e.Step(context.Background(), DialogInput{Kind: DialogWorkflow, Definition: def, State: in, Text: "1"}); err != nil {
		t.Fatal(err)
	}
	if in.Step != 0 || len(in.Data) != 0 {
		t.Errorf("input state mutated: %+v", in)
	}
}

func TestStepEngine_WorkflowWithoutDefinition(t *testing.T) {
	e := &StepEngine{}
	if _, err := e.Step(context.Background(), DialogInput{Kind: DialogWorkflow, WorkflowID: "gone"}); err == nil {
		t.Error("expected error for workflow without definition")
	}
}
