package types

// RunParams describes one generation run to start against the provider.
type RunParams struct {
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id"`
	// Instructions are appended to the assistant's own instructions for
	// this run only.
	Instructions string `json:"instructions,omitempty"`
	// Tools is the full set offered to the model for this turn, across all
	// tool provider kinds.
	Tools []ToolDef `json:"tools,omitempty"`
}

// RunStatus is the terminal state of a run as seen by the coordinator.
type RunStatus string

const (
	RunStatusCompleted  RunStatus = "completed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusIncomplete RunStatus = "incomplete"
	RunStatusFailed     RunStatus = "failed"
)

// RunOutcome is the terminal result of driving one run to completion,
// possibly across several tool-call rounds.
type RunOutcome struct {
	Status RunStatus `json:"status"`
	RunID  string    `json:"run_id,omitempty"`
	// Reason carries provider detail for incomplete runs.
	Reason string `json:"reason,omitempty"`
}
