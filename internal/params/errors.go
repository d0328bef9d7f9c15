package params

import (
	"fmt"
	"strings"
)

// UnknownParameterError is returned when a caller supplies a name the task's
// parameter file does not declare.
type UnknownParameterError struct {
	Task       string `json:"task"`
	Name       string `json:"name"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error returns the error message for the UnknownParameterError
func (e *UnknownParameterError) Error() string {
	msg := fmt.Sprintf("task %s has no parameter %s", e.Task, e.Name)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", e.Suggestion)
	}
	return msg
}

// NewUnknownParameterError creates a new UnknownParameterError
func NewUnknownParameterError(task, name, suggestion string) *UnknownParameterError {
	return &UnknownParameterError{Task: task, Name: name, Suggestion: suggestion}
}

// Interface guard for UnknownParameterError
var _ error = &UnknownParameterError{}

// MissingParameterError is returned when required parameters are still unresolved
// and prompting is not possible. It always names every missing parameter.
type MissingParameterError struct {
	Task  string   `json:"task"`
	Names []string `json:"names"`
}

// Error returns the error message for the MissingParameterError
func (e *MissingParameterError) Error() string {
	noun := "parameter"
	if len(e.Names) > 1 {
		noun = "parameters"
	}
	return fmt.Sprintf("task %s: missing required %s: %s", e.Task, noun, strings.Join(e.Names, ", "))
}

// NewMissingParameterError creates a new MissingParameterError
func NewMissingParameterError(task string, names []string) *MissingParameterError {
	return &MissingParameterError{Task: task, Names: names}
}

// Interface guard for MissingParameterError
var _ error = &MissingParameterError{}
