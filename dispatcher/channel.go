package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/metricskey"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/xlog"
)

// channel is the tools.Channel bound to one invocation.
// Events are delivered in Seq order; after close they are dropped.
// Callbacks run without the lock held, so they may emit on the same channel.
type channel struct {
	ctx       context.Context
	req       *tools.CallRequest
	resolver  *resources.Resolver
	sampler   llms.Model
	callbacks []Callback

	lock       sync.Mutex
	seq        int
	closed     bool
	pending    []*Event
	delivering bool
}

var _ tools.Channel = (*channel)(nil)

func newChannel(ctx context.Context, req *tools.CallRequest, resolver *resources.Resolver, sampler llms.Model, callbacks []Callback) *channel {
	return &channel{
		ctx:       ctx,
		req:       req,
		resolver:  resolver,
		sampler:   sampler,
		callbacks: callbacks,
	}
}

func (c *channel) Emit(level tools.Level, msg string) {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.seq++
	c.pending = append(c.pending, &Event{
		CallID:  c.req.ID,
		Tool:    c.req.Name,
		Seq:     c.seq,
		Level:   level,
		Message: msg,
		Time:    time.Now(),
	})
	// the goroutine already delivering drains the queue
	if c.delivering {
		c.lock.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.lock.Unlock()

		for _, ev := range batch {
			c.publish(ev)
		}

		c.lock.Lock()
	}
	c.delivering = false
	c.lock.Unlock()
}

func (c *channel) publish(ev *Event) {
	metricskey.StatsToolEventsEmitted.IncrCounter(1, ev.Tool, string(ev.Level))
	logger.ContextKV(c.ctx, logLevel(ev.Level),
		"tool", ev.Tool,
		"call_id", ev.CallID,
		"seq", ev.Seq,
		"message", ev.Message,
	)
	for _, cb := range c.callbacks {
		deliver(c.ctx, cb, ev)
	}
}

// deliver isolates the invocation from a failing observer.
func deliver(ctx context.Context, cb Callback, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "event_dropped",
				"tool", ev.Tool,
				"seq", ev.Seq,
				"reason", fmt.Sprintf("%v", r),
			)
		}
	}()
	cb.OnToolEvent(ctx, ev)
}

func (c *channel) Read(ctx context.Context, uri string) (*resources.Content, error) {
	if c.resolver == nil {
		return nil, &resources.ResourceNotFoundError{URI: uri}
	}
	return c.resolver.Resolve(ctx, uri, nil)
}

func (c *channel) Sample(ctx context.Context, prompt string) (string, error) {
	if c.sampler == nil {
		return "", errors.WithStack(tools.ErrSamplingUnavailable)
	}
	resp, err := c.sampler.GenerateContent(ctx, []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, prompt),
	})
	if err != nil {
		return "", errors.WithMessage(err, "sampling failed")
	}
	metricskey.StatsToolSamples.IncrCounter(1, c.req.Name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "sampled",
		"tool", c.req.Name,
		"call_id", c.req.ID,
	)
	return resp.Text(), nil
}

func (c *channel) close() {
	c.lock.Lock()
	c.closed = true
	c.lock.Unlock()
}

func logLevel(l tools.Level) xlog.LogLevel {
	switch l {
	case tools.LevelError:
		return xlog.ERROR
	case tools.LevelWarning:
		return xlog.WARNING
	case tools.LevelInfo:
		return xlog.INFO
	default:
		return xlog.DEBUG
	}
}
