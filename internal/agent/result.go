package agent

import (
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/action"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/snapshot"
)

// ConversationStep is one completed decide-execute-observe cycle. Once
// appended to a run's history it is never revised: the history is an
// append-only audit trail of everything actually executed.
type ConversationStep struct {
	StepNumber    int              `json:"step_number"`
	ActionDecided action.Request   `json:"action_decided"`
	ActionResult  action.Response  `json:"action_result"`
	ContextAfter  snapshot.Context `json:"context_after"`
	// RawDecision keeps the oracle's verbatim reply for debugging.
	RawDecision string `json:"llm_response"`
}

// MultiStepExecutionResult is the terminal report of a run. It is built once
// at the single exit point and owned by the caller thereafter.
//
// Invariants: StepsTaken <= MaxSteps, len(Steps) == StepsTaken, and
// RetriesCount is the sum of per-step retries across the whole run.
type MultiStepExecutionResult struct {
	TaskCompleted bool               `json:"task_completed"`
	StepsTaken    int                `json:"steps_taken"`
	MaxSteps      int                `json:"max_steps"`
	Steps         []ConversationStep `json:"steps"`
	FinalContext  *snapshot.Context  `json:"final_context,omitempty"`
	Error         string             `json:"error,omitempty"`
	RetriesCount  int                `json:"retries_count"`
}

// SingleStepResult reports one autonomous decide-execute cycle without the
// feedback loop. Every failure path fills Error instead of raising.
type SingleStepResult struct {
	Success        bool              `json:"success"`
	ActionDecided  *action.Request   `json:"action_decided,omitempty"`
	ActionResult   *action.Response  `json:"action_result,omitempty"`
	CurrentContext *snapshot.Context `json:"current_context,omitempty"`
	Error          string            `json:"error,omitempty"`
	RawDecision    string            `json:"llm_response,omitempty"`
}
