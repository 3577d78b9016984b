package types

// Action is the configured response strategy for an intent.
type Action string

const (
	ActionStaticReply    Action = "static_reply"
	ActionLLMReply       Action = "llm_reply"
	ActionEscalate       Action = "escalate"
	ActionForwardPayment Action = "forward_payment"
	ActionStartBooking   Action = "start_booking"
	ActionWorkflow       Action = "workflow"
)

// ParseAction maps a configured action name to an Action. Unknown or empty
// names resolve to llm_reply.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionStaticReply, ActionLLMReply, ActionEscalate,
		ActionForwardPayment, ActionStartBooking, ActionWorkflow:
		return Action(s)
	default:
		return ActionLLMReply
	}
}

// RequiresReply reports whether the action needs generated text.
func (a Action) RequiresReply() bool {
	return a == ActionLLMReply
}

// Repeat describes how often the sender asked for the same intent in a row.
// Count is 0 on the first occurrence, 1 on the second and so on.
type Repeat struct {
	IsRepeat bool `json:"is_repeat"`
	Count    int  `json:"count"`
}

type RoutingDecision struct {
	Action      Action      `json:"action"`
	Language    string      `json:"language"`
	MessageType MessageType `json:"message_type"`
	Repeat      Repeat      `json:"repeat"`
}
