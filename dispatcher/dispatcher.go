// Package dispatcher executes validated tool calls against a frozen registry.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/metricskey"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "dispatcher")

// DefaultTimeout is applied when neither the descriptor nor the options set one.
// Zero leaves calls bounded only by the caller's context.
const DefaultTimeout time.Duration = 0

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	timeout   time.Duration
	strict    bool
	callbacks []Callback
	sampler   llms.Model
}

// WithTimeout sets the default per-call timeout.
// A zero value disables the default timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithStrictParameters rejects undeclared arguments for every tool.
func WithStrictParameters(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithCallback adds an observer for every invocation.
func WithCallback(cb Callback) Option {
	return func(o *options) {
		if cb != nil {
			o.callbacks = append(o.callbacks, cb)
		}
	}
}

// WithSampler sets the model that answers Channel.Sample.
// Without it Sample fails with tools.ErrSamplingUnavailable.
func WithSampler(model llms.Model) Option {
	return func(o *options) {
		o.sampler = model
	}
}

// Dispatcher resolves, validates and executes tool calls.
// It is safe for concurrent use.
type Dispatcher struct {
	registry  *tools.Registry
	resolver  *resources.Resolver
	validator *tools.Validator
	opts      options
}

// New returns a Dispatcher. The registry and resolver are frozen,
// further registrations fail. The resolver may be nil.
func New(registry *tools.Registry, resolver *resources.Resolver, opts ...Option) *Dispatcher {
	o := options{
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	registry.Freeze()
	if resolver != nil {
		resolver.Freeze()
	}

	return &Dispatcher{
		registry:  registry,
		resolver:  resolver,
		validator: tools.NewValidator(tools.WithStrictParameters(o.strict)),
		opts:      o,
	}
}

// Registry returns the tool registry.
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// Resolver returns the resource resolver, may be nil.
func (d *Dispatcher) Resolver() *resources.Resolver {
	return d.resolver
}

// Invoke executes the call and always returns an Outcome.
// Additional callbacks observe this invocation only.
func (d *Dispatcher) Invoke(ctx context.Context, req *tools.CallRequest, callbacks ...Callback) *tools.Outcome {
	started := time.Now()
	cbs := d.opts.callbacks
	if len(callbacks) > 0 {
		cbs = append(append([]Callback{}, cbs...), callbacks...)
	}

	for _, cb := range cbs {
		cb.OnToolStart(ctx, req)
	}

	outcome := d.invoke(ctx, req, cbs)
	elapsed := time.Since(started)

	metricskey.PerfToolCall.MeasureSince(started, req.Name)
	if outcome.Succeeded() {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, req.Name)
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_succeeded",
			"tool", req.Name,
			"call_id", req.ID,
			"elapsed", elapsed.String(),
		)
	} else {
		metricskey.StatsToolCallsFailed.IncrCounter(1, req.Name, string(outcome.Failure.Kind))
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_failed",
			"tool", req.Name,
			"call_id", req.ID,
			"kind", outcome.Failure.Kind,
			"err", slices.StringUpto(outcome.Failure.Message, 256),
			"elapsed", elapsed.String(),
		)
	}

	for _, cb := range cbs {
		cb.OnToolEnd(ctx, req, outcome, elapsed)
	}
	return outcome
}

type result struct {
	value any
	err   error
}

func (d *Dispatcher) invoke(ctx context.Context, req *tools.CallRequest, cbs []Callback) *tools.Outcome {
	desc, err := d.registry.Lookup(req.Name)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, req.Name)
		return tools.Fail(req, tools.FailureUnknownTool, err)
	}

	args, err := d.validator.Validate(desc, req.Arguments)
	if err != nil {
		return tools.Fail(req, tools.FailureValidation, err)
	}

	timeout := desc.Timeout
	if timeout == 0 {
		timeout = d.opts.timeout
	}

	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ch := newChannel(callCtx, req, d.resolver, d.opts.sampler, cbs)
	defer ch.close()

	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: &HandlerExecutionError{
					Tool: desc.Name,
					Err:  errors.Newf("panic: %v", r),
				}}
				logger.ContextKV(ctx, xlog.ERROR,
					"status", "tool_panic",
					"tool", desc.Name,
					"reason", fmt.Sprintf("%v", r),
				)
			}
			done <- res
		}()
		res.value, res.err = desc.Handler(callCtx, args, ch)
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return d.failure(callCtx, req, desc, timeout, res.err)
		}
		return tools.Success(req, res.value)
	case <-callCtx.Done():
		return d.interrupted(callCtx, req, desc, timeout)
	}
}

func (d *Dispatcher) failure(callCtx context.Context, req *tools.CallRequest, desc *tools.Descriptor, timeout time.Duration, err error) *tools.Outcome {
	if cerr := callCtx.Err(); cerr != nil && errors.Is(err, cerr) {
		return d.interrupted(callCtx, req, desc, timeout)
	}
	if errors.Is(err, tools.ErrValidation) {
		return tools.Fail(req, tools.FailureValidation, err)
	}
	var herr *HandlerExecutionError
	if !errors.As(err, &herr) {
		err = &HandlerExecutionError{Tool: desc.Name, Err: err}
	}
	return tools.Fail(req, tools.FailureHandler, err)
}

func (d *Dispatcher) interrupted(callCtx context.Context, req *tools.CallRequest, desc *tools.Descriptor, timeout time.Duration) *tools.Outcome {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return tools.Fail(req, tools.FailureTimeout, &TimeoutError{Tool: desc.Name, Timeout: timeout})
	}
	return tools.Fail(req, tools.FailureCanceled, errors.Wrapf(ErrCanceled, "tool %s", desc.Name))
}
