package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/af-corp/concierge/internal/config"
)

var bookingDefinition = config.WorkflowDefinition{
	Name:              "Booking",
	Steps:             []string{"check-in date", "number of nights", "number of guests", "name"},
	ForwardOnComplete: true,
}

// StepEngine asks a definition's steps in order and collects one answer per
// step. Bookings use a built-in definition unless a "booking" workflow is
// configured.
type StepEngine struct {
	Catalog func() IntentCatalog
}

func (e *StepEngine) catalog() IntentCatalog {
	if e.Catalog == nil {
		return nil
	}
	return e.Catalog()
}

func (e *StepEngine) Step(_ context.Context, in DialogInput) (DialogOutput, error) {
	def := in.Definition
	if def == nil {
		if in.Kind != DialogBooking {
			return DialogOutput{}, fmt.Errorf("workflow %q has no definition", in.WorkflowID)
		}
		d := bookingDefinition
		if cat := e.catalog(); cat != nil {
			if custom, ok := cat.Workflow(string(DialogBooking)); ok {
				d = custom
			}
		}
		def = &d
	}

	st := &DialogState{Kind: in.Kind, WorkflowID: in.WorkflowID, Data: map[string]string{}}
	if in.State != nil {
		st.Step = in.State.Step
		for k, v := range in.State.Data {
			st.Data[k] = v
		}
		if st.Step < len(def.Steps) {
			st.Data[def.Steps[st.Step]] = strings.TrimSpace(in.Text)
			st.Step++
		}
	}

	if st.Step >= len(def.Steps) {
		return DialogOutput{
			Reply:   Template(e.catalog(), TemplateDialogDone, in.Language),
			Summary: summarize(def, st),
		}, nil
	}
	return DialogOutput{
		Reply: Templatef(e.catalog(), TemplateStepPrompt, in.Language, def.Steps[st.Step]),
		State: st,
	}, nil
}

func summarize(def *config.WorkflowDefinition, st *DialogState) string {
	var b strings.Builder
	name := def.Name
	if name == "" {
		name = st.WorkflowID
	}
	fmt.Fprintf(&b, "%s completed", name)
	for _, step := range def.Steps {
		fmt.Fprintf(&b, "\n%s: %s", step, st.Data[step])
	}
	return b.String()
}
