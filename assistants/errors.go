package assistants

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRoundLimitExceeded is returned when the model keeps requesting tools.
	ErrRoundLimitExceeded = errors.New("round limit exceeded")
	// ErrTransport matches failures of the completion service.
	ErrTransport = errors.New("completion service failure")
	// ErrEmptyResponse is the cause of a TransportError for a reply without choices.
	ErrEmptyResponse = errors.New("model returned no choices")
	// ErrFunctionCallingNotSupported is returned when tools are registered
	// but the model cannot call them.
	ErrFunctionCallingNotSupported = errors.New("model does not support function calling")
)

// RoundLimitExceededError is returned when the model requests a tool after
// the configured number of tool rounds.
type RoundLimitExceededError struct {
	// State is the last state before FAILED.
	State State
	// Round is the 1-based number of the model call that was refused.
	Round int
	// MaxRounds is the configured limit.
	MaxRounds int
	// History is the number of messages in the history.
	History int
	Cause   error
}

func (e *RoundLimitExceededError) Error() string {
	return fmt.Sprintf("round limit of %d exceeded: state=%s round=%d history=%d: %s",
		e.MaxRounds, e.State, e.Round, e.History, e.Cause)
}

func (e *RoundLimitExceededError) Unwrap() error { return e.Cause }

// Is reports ErrRoundLimitExceeded.
func (e *RoundLimitExceededError) Is(target error) bool {
	return target == ErrRoundLimitExceeded
}

// TransportError wraps a failure of the completion service.
type TransportError struct {
	// State is the last state before FAILED.
	State State
	// Round is the 1-based number of the failed model call.
	Round int
	// History is the number of messages in the history.
	History int
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: state=%s round=%d history=%d: %s",
		e.State, e.Round, e.History, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Is reports ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
