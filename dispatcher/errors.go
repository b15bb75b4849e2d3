package dispatcher

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrHandlerExecution matches errors returned or raised by a handler.
	ErrHandlerExecution = errors.New("handler execution failed")
	// ErrTimeout matches invocations that exceeded their deadline.
	ErrTimeout = errors.New("tool execution timeout")
	// ErrCanceled matches invocations canceled by the caller.
	ErrCanceled = errors.New("tool execution canceled")
)

// HandlerExecutionError wraps an error returned by a handler, or a
// recovered panic. Its message is the handler error's message.
type HandlerExecutionError struct {
	Tool string
	Err  error
}

func (e *HandlerExecutionError) Error() string {
	return e.Err.Error()
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

// Is reports ErrHandlerExecution.
func (e *HandlerExecutionError) Is(target error) bool {
	return target == ErrHandlerExecution
}

// TimeoutError is returned when a handler does not complete in time.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("tool %s timed out after %s", e.Tool, e.Timeout)
	}
	return fmt.Sprintf("tool %s timed out", e.Tool)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
