package types

// StreamEvent is the interface for all run stream event types.
//
// Events are produced by a model provider adapter in arrival order and are
// consumed exactly once by the run coordinator. Deltas for a given tool-call
// index are never reordered relative to each other.
type StreamEvent interface {
	EventType() string
}

// TextDeltaEvent carries an incremental fragment of assistant text.
type TextDeltaEvent struct {
	Text string `json:"text"`
}

func (e TextDeltaEvent) EventType() string { return "text_delta" }

// ToolCallDeltaEvent carries an incremental fragment of a tool invocation.
// ID and Name are only populated on the first delta for an index; every
// delta may carry a fragment of the argument JSON.
type ToolCallDeltaEvent struct {
	Index            int    `json:"index"`
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ArgumentFragment string `json:"argument_fragment,omitempty"`
}

func (e ToolCallDeltaEvent) EventType() string { return "tool_call_delta" }

// RunRequiresActionEvent signals that the provider paused the run and is
// waiting for tool outputs before it can resume.
type RunRequiresActionEvent struct {
	RunID string `json:"run_id"`
	// PendingCallIDs lists the tool-call ids the provider expects outputs
	// for. The coordinator cross-checks these against its accumulated calls.
	PendingCallIDs []string `json:"pending_call_ids,omitempty"`
}

func (e RunRequiresActionEvent) EventType() string { return "run_requires_action" }

// RunCompletedEvent is the terminal success event.
type RunCompletedEvent struct {
	RunID string `json:"run_id"`
}

func (e RunCompletedEvent) EventType() string { return "run_completed" }

// RunCancelledEvent signals that the provider observed a cancellation.
type RunCancelledEvent struct {
	RunID string `json:"run_id"`
}

func (e RunCancelledEvent) EventType() string { return "run_cancelled" }

// RunIncompleteEvent signals that the run ended without producing a complete
// response (for example a token-limit stop).
type RunIncompleteEvent struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason,omitempty"`
}

func (e RunIncompleteEvent) EventType() string { return "run_incomplete" }

// ErrorDetail describes a provider-side run failure.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// RunFailedEvent is the terminal failure event.
type RunFailedEvent struct {
	RunID  string      `json:"run_id"`
	Detail ErrorDetail `json:"detail"`
}

func (e RunFailedEvent) EventType() string { return "run_failed" }

// IsTerminal reports whether ev ends the run stream.
func IsTerminal(ev StreamEvent) bool {
	switch ev.(type) {
	case RunCompletedEvent, RunCancelledEvent, RunIncompleteEvent, RunFailedEvent:
		return true
	}
	return false
}
