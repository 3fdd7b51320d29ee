package chat

// Event is one streamed unit delivered to the client while a reply is
// being generated. Type selects which payload field is set.
type Event struct {
	Type string       `json:"type"` // "text" or "tool"
	Text string       `json:"text,omitempty"`
	Tool *ToolOutcome `json:"tool,omitempty"`
}

// ToolOutcome reports the result of executing one model-requested tool
// call. A failed tool never aborts the surrounding stream; the outcome
// is surfaced and generation continues.
type ToolOutcome struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// textEvent wraps a prose fragment for streaming.
func textEvent(text string) Event {
	return Event{Type: "text", Text: text}
}

// toolEvent wraps a tool outcome for streaming.
func toolEvent(outcome ToolOutcome) Event {
	return Event{Type: "tool", Tool: &outcome}
}
