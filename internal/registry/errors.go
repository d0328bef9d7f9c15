package registry

import "fmt"

// UnknownTaskError is returned when a task name is not in the registry.
type UnknownTaskError struct {
	Name       string `json:"name"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error returns the error message for the UnknownTaskError
func (e *UnknownTaskError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown task %s (did you mean %s?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown task %s", e.Name)
}

// NewUnknownTaskError creates a new UnknownTaskError
func NewUnknownTaskError(name, suggestion string) *UnknownTaskError {
	return &UnknownTaskError{Name: name, Suggestion: suggestion}
}

// Interface guard for UnknownTaskError
var _ error = &UnknownTaskError{}

// DuplicateTaskError is returned when two entries normalize to the same name.
type DuplicateTaskError struct {
	Name string `json:"name"`
}

// Error returns the error message for the DuplicateTaskError
func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task with name %s already exists", e.Name)
}

// NewDuplicateTaskError creates a new DuplicateTaskError
func NewDuplicateTaskError(name string) *DuplicateTaskError {
	return &DuplicateTaskError{Name: name}
}

// Interface guard for DuplicateTaskError
var _ error = &DuplicateTaskError{}
