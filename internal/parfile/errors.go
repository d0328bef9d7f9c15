package parfile

import (
	"fmt"
	"strings"
)

// SchemaError is returned when a parameter file is unreadable or malformed.
type SchemaError struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Error returns the error message for the SchemaError
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("invalid parameter file")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	b.WriteString(": " + e.Reason)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(path string, line int, reason string, err error) *SchemaError {
	return &SchemaError{Path: path, Line: line, Reason: reason, Err: err}
}

// Interface guard for SchemaError
var _ error = &SchemaError{}

// TypeMismatchError is returned when a value cannot be coerced to the declared
// type of a parameter.
type TypeMismatchError struct {
	Param    string `json:"param"`
	Expected Type   `json:"expected"`
	Value    any    `json:"value"`
}

// Error returns the error message for the TypeMismatchError
func (e *TypeMismatchError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("cannot use %#v as %s", e.Value, e.Expected)
	}
	return fmt.Sprintf("parameter %s expects %s, got %#v", e.Param, e.Expected, e.Value)
}

// NewTypeMismatchError creates a new TypeMismatchError
func NewTypeMismatchError(param string, expected Type, value any) *TypeMismatchError {
	return &TypeMismatchError{Param: param, Expected: expected, Value: value}
}

// Interface guard for TypeMismatchError
var _ error = &TypeMismatchError{}

// OutOfRangeError is returned when a value falls outside the bounds declared for
// its parameter, or is not one of the enumerated choices of a string parameter.
type OutOfRangeError struct {
	Param string `json:"param"`
	Value Value  `json:"value"`
	Min   string `json:"min"`
	Max   string `json:"max"`
}

// Error returns the error message for the OutOfRangeError
func (e *OutOfRangeError) Error() string {
	if e.Max == "" && strings.Contains(e.Min, "|") {
		return fmt.Sprintf("parameter %s: %q is not one of %s", e.Param, e.Value.String(), e.Min)
	}
	return fmt.Sprintf("parameter %s: %s is outside [%s, %s]", e.Param, e.Value.String(), boundText(e.Min), boundText(e.Max))
}

// NewOutOfRangeError creates a new OutOfRangeError
func NewOutOfRangeError(param string, value Value, min, max string) *OutOfRangeError {
	return &OutOfRangeError{Param: param, Value: value, Min: min, Max: max}
}

// Interface guard for OutOfRangeError
var _ error = &OutOfRangeError{}

func boundText(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
