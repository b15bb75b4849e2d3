package tools

import (
	"github.com/effective-security/toolflow/encoding"
)

// FailureKind classifies a failed outcome.
type FailureKind string

const (
	FailureUnknownTool FailureKind = "unknown_tool"
	FailureValidation  FailureKind = "validation"
	FailureHandler     FailureKind = "handler"
	FailureTimeout     FailureKind = "timeout"
	FailureCanceled    FailureKind = "canceled"
)

// Failure describes why an invocation failed.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	// Err is the underlying error, for errors.Is and errors.As.
	Err error `json:"-"`
}

// Outcome is the result of a tool invocation. Exactly one of Value or
// Failure is meaningful: Failure is nil on success.
type Outcome struct {
	CallID  string   `json:"call_id"`
	Name    string   `json:"name"`
	Value   any      `json:"value,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Success returns a success outcome for the request.
func Success(req *CallRequest, value any) *Outcome {
	return &Outcome{
		CallID: req.ID,
		Name:   req.Name,
		Value:  value,
	}
}

// Fail returns a failure outcome for the request. The message is the
// error's message, unchanged.
func Fail(req *CallRequest, kind FailureKind, err error) *Outcome {
	return &Outcome{
		CallID: req.ID,
		Name:   req.Name,
		Failure: &Failure{
			Kind:    kind,
			Message: err.Error(),
			Err:     err,
		},
	}
}

// Succeeded returns true for a success outcome.
func (o *Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Err returns the failure error, or nil.
func (o *Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure.Err
}

// Content returns the text placed in the tool-result message, with the
// value encoded as JSON.
func (o *Outcome) Content() string {
	return o.ContentAs(encoding.ModeDefault)
}

// ContentAs returns the text placed in the tool-result message.
// A failure yields its message verbatim; strings are returned as is.
func (o *Outcome) ContentAs(mode encoding.Mode) string {
	if o.Failure != nil {
		return o.Failure.Message
	}
	switch v := o.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	s, err := encoding.Marshal(mode, o.Value)
	if err != nil {
		s, _ = encoding.Marshal(encoding.ModePlainText, o.Value)
	}
	return s
}
