package config

// IntentsConfig maps intents to routing actions and holds the data the fast
// classification tiers match against.
type IntentsConfig struct {
	Intents   map[string]IntentRoute        `yaml:"intents"`
	Workflows map[string]WorkflowDefinition `yaml:"workflows"`
	Templates map[string]map[string]string  `yaml:"templates"`
}

type IntentRoute struct {
	Action        string            `yaml:"action"`
	StaticReply   map[string]string `yaml:"static_reply,omitempty"` // language -> text
	Workflow      string            `yaml:"workflow,omitempty"`
	TimeSensitive bool              `yaml:"time_sensitive,omitempty"`
	Patterns      []string          `yaml:"patterns,omitempty"`
	Keywords      []string          `yaml:"keywords,omitempty"`
	Examples      []string          `yaml:"examples,omitempty"`
	Confidence    float64           `yaml:"confidence,omitempty"`
}

type WorkflowDefinition struct {
	Name              string   `yaml:"name"`
	Steps             []string `yaml:"steps"`
	ForwardOnComplete bool     `yaml:"forward_on_complete"`
}

// Route returns the route for an intent. ok is false for unconfigured intents.
func (c *IntentsConfig) Route(intent string) (IntentRoute, bool) {
	if c == nil || c.Intents == nil {
		return IntentRoute{}, false
	}
	r, ok := c.Intents[intent]
	return r, ok
}

// IsTimeSensitive reports whether replies for intent need the current date
// and time in their prompt.
func (c *IntentsConfig) IsTimeSensitive(intent string) bool {
	r, ok := c.Route(intent)
	return ok && r.TimeSensitive
}

// Workflow looks up a workflow definition by id.
func (c *IntentsConfig) Workflow(id string) (WorkflowDefinition, bool) {
	if c == nil || c.Workflows == nil {
		return WorkflowDefinition{}, false
	}
	w, ok := c.Workflows[id]
	return w, ok
}
