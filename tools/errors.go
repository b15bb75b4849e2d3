package tools

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateName is returned when a tool name is already registered.
	ErrDuplicateName = errors.New("duplicate tool name")
	// ErrUnknownTool is returned when no tool is registered under the name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrValidation is returned when arguments do not match the parameters.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidDescriptor is returned when a descriptor is malformed.
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("registry is frozen")
	// ErrSamplingUnavailable is returned by Channel.Sample when no model
	// is attached to the dispatcher.
	ErrSamplingUnavailable = errors.New("sampling is not available")
)

// DuplicateNameError is returned by Register for a name already in use.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// UnknownToolError is returned by Lookup for an unregistered name.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("tool `%s` not found", e.Name)
	}
	return fmt.Sprintf("tool `%s` not found. Available tools: %s", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }

// InvalidDescriptorError is returned by Register for a malformed descriptor.
type InvalidDescriptorError struct {
	Name   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid tool %q: %s", e.Name, e.Reason)
}

func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

// ViolationKind classifies an argument violation.
type ViolationKind string

const (
	ViolationMissing ViolationKind = "missing"
	ViolationType    ViolationKind = "type"
	ViolationEnum    ViolationKind = "enum"
	ViolationUnknown ViolationKind = "unknown"
	ViolationInvalid ViolationKind = "invalid"
)

// Violation is one problem found in the arguments.
type Violation struct {
	Param   string        `json:"param"`
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
	// Allowed is set for enum violations.
	Allowed []any `json:"allowed,omitempty"`
}

// ValidationError lists every violation found in the arguments.
type ValidationError struct {
	Tool       string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Params returns the names of the offending parameters, in report order.
func (e *ValidationError) Params() []string {
	names := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		names = append(names, v.Param)
	}
	return names
}

// Violation returns the first violation for the parameter.
func (e *ValidationError) Violation(param string) (Violation, bool) {
	for _, v := range e.Violations {
		if v.Param == param {
			return v, true
		}
	}
	return Violation{}, false
}
