package tools

import (
	"context"
	"time"

	"github.com/effective-security/toolflow/resources"
)

// ParamType is the semantic type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Valid returns true for the known parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// ParamSpec declares one parameter of a tool.
type ParamSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	// Enum lists the allowed values, if any.
	Enum []any `json:"enum,omitempty" yaml:"enum,omitempty"`
	// Default is applied when an optional parameter is absent.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
	// Items is the element type of an array parameter.
	Items ParamType `json:"items,omitempty" yaml:"items,omitempty"`
}

// Level is the severity of a Channel event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Channel is the per-invocation side channel of a handler.
// Emitted events never become part of the tool result, and a dropped event
// never fails the invocation.
type Channel interface {
	// Emit records a progress or log event.
	Emit(level Level, msg string)
	// Read resolves a resource while the handler runs.
	Read(ctx context.Context, uri string) (*resources.Content, error)
	// Sample asks the attached model to complete the prompt and returns
	// its text. It fails with ErrSamplingUnavailable when no model is set.
	Sample(ctx context.Context, prompt string) (string, error)
}

// Handler executes a tool with validated arguments.
// A returned error becomes a failure outcome fed back to the model.
type Handler func(ctx context.Context, args Args, ch Channel) (any, error)

// Descriptor is a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Params      []ParamSpec
	// Strict closes the parameter set: unknown arguments are rejected.
	Strict bool
	// Timeout overrides the dispatcher timeout when non-zero.
	Timeout time.Duration
	Handler Handler

	// compiled is set by Registry.Register.
	compiled *compiledSchema
}

// Param returns the parameter spec by name.
func (d *Descriptor) Param(name string) (*ParamSpec, bool) {
	for i := range d.Params {
		if d.Params[i].Name == name {
			return &d.Params[i], true
		}
	}
	return nil, false
}

// CallRequest is a tool invocation requested by the model.
type CallRequest struct {
	// ID correlates the request with its result in history.
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
