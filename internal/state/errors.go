package state

import (
	"fmt"
	"strings"
)

// ConfigurationError is returned when the toolkit environment cannot be used,
// for example when HEADAS is not set.
type ConfigurationError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Error returns the error message for the ConfigurationError
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("toolkit configuration error: %s: %s", e.Key, e.Reason)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(key, reason string) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: reason}
}

// Interface guard for ConfigurationError
var _ error = &ConfigurationError{}

// ParFileNotFoundError is returned when no directory in PFILES holds a task's
// parameter file.
type ParFileNotFoundError struct {
	Task string   `json:"task"`
	Dirs []string `json:"dirs"`
}

// Error returns the error message for the ParFileNotFoundError
func (e *ParFileNotFoundError) Error() string {
	return fmt.Sprintf("parameter file %s.par not found in %s", e.Task, strings.Join(e.Dirs, ", "))
}

// NewParFileNotFoundError creates a new ParFileNotFoundError
func NewParFileNotFoundError(task string, dirs []string) *ParFileNotFoundError {
	return &ParFileNotFoundError{Task: task, Dirs: dirs}
}

// Interface guard for ParFileNotFoundError
var _ error = &ParFileNotFoundError{}
