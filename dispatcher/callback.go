package dispatcher

import (
	"context"
	"time"

	"github.com/effective-security/toolflow/tools"
)

// Event is an emission of a handler on its Channel.
type Event struct {
	CallID string
	Tool   string
	// Seq is 1-based and increases per invocation.
	Seq     int
	Level   tools.Level
	Message string
	Time    time.Time
}

// Callback observes tool invocations.
type Callback interface {
	OnToolStart(ctx context.Context, req *tools.CallRequest)
	OnToolEvent(ctx context.Context, ev *Event)
	OnToolEnd(ctx context.Context, req *tools.CallRequest, outcome *tools.Outcome, elapsed time.Duration)
}
