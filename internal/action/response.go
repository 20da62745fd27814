package action

import (
	"encoding/json"
	"fmt"
)

// Error kinds the executor classifies failures into. The retry engine keys
// its re-prompting behavior off this contract, so values are stable.
const (
	ErrKindNotFound   = "element_not_found"
	ErrKindNotVisible = "element_not_visible"
	ErrKindNotEnabled = "element_not_enabled"
	ErrKindTimeout    = "timeout"
	ErrKindExecution  = "execution_error"
)

// Response is the structured outcome of one executed action. Suggestion is
// free text meant to be fed back into the next oracle prompt; it is the only
// channel through which the page can "talk back" to the oracle.
type Response struct {
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func Success() Response {
	return Response{Success: true}
}

func ErrorWithSuggestion(errKind, reason, suggestion string) Response {
	return Response{
		Success:    false,
		Error:      errKind,
		Reason:     reason,
		Suggestion: suggestion,
	}
}

func ElementNotFound(sel Selector) Response {
	name := sel.Name
	if name == "" {
		name = "unknown"
	}
	return ErrorWithSuggestion(
		ErrKindNotFound,
		fmt.Sprintf("Could not find %s with name '%s'", sel.Role, name),
		"try get_context() to see available elements",
	)
}

func ElementNotVisible(name, role string) Response {
	return ErrorWithSuggestion(
		ErrKindNotVisible,
		fmt.Sprintf("Element '%s' (%s) was found but is below viewport.", name, role),
		"call scroll_down() or wait_for_element()",
	)
}

func ElementNotEnabled(name string) Response {
	return ErrorWithSuggestion(
		ErrKindNotEnabled,
		fmt.Sprintf("Element '%s' is disabled", name),
		"wait for element to become enabled or check if preconditions are met",
	)
}

// Message resolves the user-facing failure text with fixed precedence:
// error kind, then reason, then a generic fallback.
func (r Response) Message() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Reason != "" {
		return r.Reason
	}
	return "Action failed"
}

// SuggestionOrDefault returns the executor's recovery hint, or the generic
// one when the executor had nothing to offer.
func (r Response) SuggestionOrDefault() string {
	if r.Suggestion != "" {
		return r.Suggestion
	}
	return "Try a different approach"
}
