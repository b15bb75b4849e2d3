package dispatcher_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/mocks/mockllms"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	lock    sync.Mutex
	started []string
	events  []*dispatcher.Event
	ended   []*tools.Outcome
}

func (r *recorder) OnToolStart(_ context.Context, req *tools.CallRequest) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.started = append(r.started, req.Name)
}

func (r *recorder) OnToolEvent(_ context.Context, ev *dispatcher.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnToolEnd(_ context.Context, _ *tools.CallRequest, o *tools.Outcome, _ time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.ended = append(r.ended, o)
}

type panicky struct {
	recorder
}

func (p *panicky) OnToolEvent(context.Context, *dispatcher.Event) {
	panic("sink failed")
}

func calculate(calls *atomic.Int32) tools.Descriptor {
	return tools.Descriptor{
		Name:        "calculate",
		Description: "Perform basic arithmetic operations",
		Params: []tools.ParamSpec{
			{Name: "operation", Type: tools.TypeString, Required: true, Enum: []any{"add", "subtract", "multiply", "divide"}},
			{Name: "a", Type: tools.TypeNumber, Required: true},
			{Name: "b", Type: tools.TypeNumber, Required: true},
		},
		Handler: func(_ context.Context, args tools.Args, ch tools.Channel) (any, error) {
			calls.Add(1)
			a, b := args.Float("a"), args.Float("b")
			ch.Emit(tools.LevelDebug, "calculating")
			switch args.String("operation") {
			case "add":
				return a + b, nil
			case "subtract":
				return a - b, nil
			case "multiply":
				return a * b, nil
			default:
				if b == 0 {
					return nil, errors.New("Cannot divide by zero")
				}
				return a / b, nil
			}
		},
	}
}

func newDispatcher(t *testing.T, list []tools.Descriptor, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(list...))
	res := resources.NewResolver()
	require.NoError(t, res.Register(resources.Descriptor{
		URI:  "config://app",
		Name: "app_config",
		Read: resources.Text(func(context.Context, resources.Bindings) (string, error) {
			return "debug=true", nil
		}),
	}))
	return dispatcher.New(r, res, opts...)
}

func TestNew_Freezes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	d := newDispatcher(t, []tools.Descriptor{calculate(&calls)})
	assert.True(t, d.Registry().Frozen())

	err := d.Registry().Register(tools.Descriptor{Name: "late", Handler: calculate(&calls).Handler})
	assert.ErrorIs(t, err, tools.ErrRegistryFrozen)

	err = d.Resolver().Register(resources.Descriptor{URI: "late://x", Read: resources.Text(nil)})
	assert.ErrorIs(t, err, resources.ErrResolverFrozen)
}

func TestInvoke(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	rec := &recorder{}
	d := newDispatcher(t, []tools.Descriptor{calculate(&calls)}, dispatcher.WithCallback(rec))
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		o := d.Invoke(ctx, &tools.CallRequest{
			ID:        "call_1",
			Name:      "calculate",
			Arguments: map[string]any{"operation": "multiply", "a": 6, "b": 7},
		})
		require.True(t, o.Succeeded())
		assert.Equal(t, "call_1", o.CallID)
		assert.Equal(t, 42.0, o.Value)
		assert.Equal(t, "42", o.Content())
	})

	t.Run("handler error", func(t *testing.T) {
		o := d.Invoke(ctx, &tools.CallRequest{
			ID:        "call_2",
			Name:      "calculate",
			Arguments: map[string]any{"operation": "divide", "a": 1, "b": 0},
		})
		require.False(t, o.Succeeded())
		assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
		assert.Equal(t, "Cannot divide by zero", o.Failure.Message)
		assert.Equal(t, "Cannot divide by zero", o.Content())
		assert.ErrorIs(t, o.Err(), dispatcher.ErrHandlerExecution)

		var herr *dispatcher.HandlerExecutionError
		require.True(t, errors.As(o.Err(), &herr))
		assert.Equal(t, "calculate", herr.Tool)
	})

	t.Run("unknown tool", func(t *testing.T) {
		before := calls.Load()
		o := d.Invoke(ctx, &tools.CallRequest{ID: "call_3", Name: "weather"})
		require.False(t, o.Succeeded())
		assert.Equal(t, tools.FailureUnknownTool, o.Failure.Kind)
		assert.Equal(t, "tool `weather` not found. Available tools: calculate", o.Failure.Message)
		assert.ErrorIs(t, o.Err(), tools.ErrUnknownTool)
		assert.Equal(t, before, calls.Load())
	})

	t.Run("validation", func(t *testing.T) {
		before := calls.Load()
		o := d.Invoke(ctx, &tools.CallRequest{
			ID:        "call_4",
			Name:      "calculate",
			Arguments: map[string]any{"operation": "modulo", "a": "one"},
		})
		require.False(t, o.Succeeded())
		assert.Equal(t, tools.FailureValidation, o.Failure.Kind)
		assert.Equal(t, before, calls.Load())

		var verr *tools.ValidationError
		require.True(t, errors.As(o.Err(), &verr))
		assert.Equal(t, []string{"operation", "a", "b"}, verr.Params())
	})

	rec.lock.Lock()
	defer rec.lock.Unlock()
	assert.Len(t, rec.started, 4)
	require.Len(t, rec.ended, 4)
	assert.True(t, rec.ended[0].Succeeded())
	assert.Equal(t, tools.FailureValidation, rec.ended[3].Failure.Kind)
}

func TestInvoke_HandlerValidation(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, []tools.Descriptor{{
		Name: "lookup",
		Handler: func(context.Context, tools.Args, tools.Channel) (any, error) {
			return nil, &tools.ValidationError{
				Tool: "lookup",
				Violations: []tools.Violation{
					{Param: "id", Kind: tools.ViolationInvalid, Message: `parameter "id" is malformed`},
				},
			}
		},
	}})

	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "1", Name: "lookup"})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureValidation, o.Failure.Kind)
	assert.Equal(t, `invalid arguments for lookup: parameter "id" is malformed`, o.Failure.Message)
}

func TestInvoke_Panic(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, []tools.Descriptor{{
		Name: "explode",
		Handler: func(context.Context, tools.Args, tools.Channel) (any, error) {
			panic("boom")
		},
	}})

	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "1", Name: "explode"})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
	assert.Equal(t, "panic: boom", o.Failure.Message)
	assert.ErrorIs(t, o.Err(), dispatcher.ErrHandlerExecution)
}

func TestInvoke_Timeout(t *testing.T) {
	t.Parallel()

	slow := func(context.Context, tools.Args, tools.Channel) (any, error) {
		time.Sleep(2 * time.Second)
		return "late", nil
	}
	d := newDispatcher(t, []tools.Descriptor{
		{Name: "slow", Handler: slow, Timeout: 20 * time.Millisecond},
		{Name: "slow_default", Handler: slow},
	}, dispatcher.WithTimeout(30*time.Millisecond))

	started := time.Now()
	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "1", Name: "slow"})
	assert.Less(t, time.Since(started), time.Second)
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureTimeout, o.Failure.Kind)
	assert.Equal(t, "tool slow timed out after 20ms", o.Failure.Message)
	assert.ErrorIs(t, o.Err(), dispatcher.ErrTimeout)

	o = d.Invoke(context.Background(), &tools.CallRequest{ID: "2", Name: "slow_default"})
	require.False(t, o.Succeeded())
	assert.Equal(t, "tool slow_default timed out after 30ms", o.Failure.Message)
}

func TestInvoke_HandlerObservesDeadline(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, []tools.Descriptor{{
		Name: "wait",
		Handler: func(ctx context.Context, _ tools.Args, _ tools.Channel) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Timeout: 10 * time.Millisecond,
	}})

	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "1", Name: "wait"})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureTimeout, o.Failure.Kind)
}

func TestInvoke_Canceled(t *testing.T) {
	t.Parallel()

	running := make(chan struct{})
	d := newDispatcher(t, []tools.Descriptor{{
		Name: "block",
		Handler: func(context.Context, tools.Args, tools.Channel) (any, error) {
			close(running)
			time.Sleep(2 * time.Second)
			return nil, nil
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-running
		cancel()
	}()

	o := d.Invoke(ctx, &tools.CallRequest{ID: "1", Name: "block"})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureCanceled, o.Failure.Kind)
	assert.ErrorIs(t, o.Err(), dispatcher.ErrCanceled)
}

func TestChannel(t *testing.T) {
	t.Parallel()

	var leaked tools.Channel
	d := newDispatcher(t, []tools.Descriptor{
		{
			Name: "progress",
			Handler: func(ctx context.Context, _ tools.Args, ch tools.Channel) (any, error) {
				ch.Emit(tools.LevelInfo, "step 1")
				ch.Emit(tools.LevelWarning, "step 2")
				ch.Emit(tools.LevelError, "step 3")
				leaked = ch
				return "done", nil
			},
		},
		{
			Name: "read_config",
			Handler: func(ctx context.Context, _ tools.Args, ch tools.Channel) (any, error) {
				c, err := ch.Read(ctx, "config://app")
				if err != nil {
					return nil, err
				}
				return c.Text(), nil
			},
		},
		{
			Name: "read_missing",
			Handler: func(ctx context.Context, _ tools.Args, ch tools.Channel) (any, error) {
				_, err := ch.Read(ctx, "config://missing")
				return nil, err
			},
		},
	})
	ctx := context.Background()

	t.Run("emit order", func(t *testing.T) {
		rec := &recorder{}
		o := d.Invoke(ctx, &tools.CallRequest{ID: "c1", Name: "progress"}, rec)
		require.True(t, o.Succeeded())

		leaked.Emit(tools.LevelInfo, "after completion")

		rec.lock.Lock()
		defer rec.lock.Unlock()
		require.Len(t, rec.events, 3)
		for i, ev := range rec.events {
			assert.Equal(t, i+1, ev.Seq)
			assert.Equal(t, "c1", ev.CallID)
			assert.Equal(t, "progress", ev.Tool)
		}
		assert.Equal(t, "step 1", rec.events[0].Message)
		assert.Equal(t, tools.LevelWarning, rec.events[1].Level)
		assert.Equal(t, "step 3", rec.events[2].Message)
	})

	t.Run("failing sink", func(t *testing.T) {
		p := &panicky{}
		o := d.Invoke(ctx, &tools.CallRequest{ID: "c2", Name: "progress"}, p)
		require.True(t, o.Succeeded())
		assert.Equal(t, "done", o.Value)
		assert.Len(t, p.ended, 1)
	})

	t.Run("read", func(t *testing.T) {
		o := d.Invoke(ctx, &tools.CallRequest{ID: "c3", Name: "read_config"})
		require.True(t, o.Succeeded())
		assert.Equal(t, "debug=true", o.Value)
	})

	t.Run("read missing", func(t *testing.T) {
		o := d.Invoke(ctx, &tools.CallRequest{ID: "c4", Name: "read_missing"})
		require.False(t, o.Succeeded())
		assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
		assert.Equal(t, "resource not found: config://missing", o.Failure.Message)
		assert.ErrorIs(t, o.Err(), resources.ErrResourceNotFound)
	})
}

// echo answers every "ping" event by emitting "pong" on the same channel.
type echo struct {
	recorder
	ch tools.Channel
}

func (e *echo) OnToolEvent(ctx context.Context, ev *dispatcher.Event) {
	e.recorder.OnToolEvent(ctx, ev)
	if ev.Message == "ping" {
		e.ch.Emit(tools.LevelInfo, "pong")
	}
}

func TestChannel_EmitFromCallback(t *testing.T) {
	t.Parallel()

	e := &echo{}
	d := newDispatcher(t, []tools.Descriptor{{
		Name: "ping",
		Handler: func(_ context.Context, _ tools.Args, ch tools.Channel) (any, error) {
			e.ch = ch
			ch.Emit(tools.LevelInfo, "ping")
			ch.Emit(tools.LevelInfo, "after")
			return "done", nil
		},
		Timeout: time.Second,
	}})

	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "c1", Name: "ping"}, e)
	require.True(t, o.Succeeded(), o.Content())

	e.lock.Lock()
	defer e.lock.Unlock()
	var got []string
	for i, ev := range e.events {
		assert.Equal(t, i+1, ev.Seq)
		got = append(got, ev.Message)
	}
	assert.Equal(t, []string{"ping", "pong", "after"}, got)
}

func TestChannel_ConcurrentEmit(t *testing.T) {
	t.Parallel()

	const workers, each = 8, 25
	d := newDispatcher(t, []tools.Descriptor{{
		Name: "fanout",
		Handler: func(_ context.Context, _ tools.Args, ch tools.Channel) (any, error) {
			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range each {
						ch.Emit(tools.LevelDebug, "tick")
					}
				}()
			}
			wg.Wait()
			return nil, nil
		},
	}})

	rec := &recorder{}
	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "c1", Name: "fanout"}, rec)
	require.True(t, o.Succeeded())

	rec.lock.Lock()
	defer rec.lock.Unlock()
	require.Len(t, rec.events, workers*each)
	for i, ev := range rec.events {
		assert.Equal(t, i+1, ev.Seq)
	}
}

func TestChannel_Sample(t *testing.T) {
	t.Parallel()

	summarize := tools.Descriptor{
		Name: "summarize",
		Handler: func(ctx context.Context, _ tools.Args, ch tools.Channel) (any, error) {
			c, err := ch.Read(ctx, "config://app")
			if err != nil {
				return nil, err
			}
			return ch.Sample(ctx, "Summarize: "+c.Text())
		},
	}

	t.Run("model", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		model := mockllms.NewMockModel(ctrl)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 1)
				assert.Equal(t, llms.RoleHuman, msgs[0].Role)
				assert.Equal(t, "Summarize: debug=true", msgs[0].GetContent())
				return &llms.ContentResponse{
					Choices: []*llms.ContentChoice{{Content: "debug is on", StopReason: "stop"}},
				}, nil
			}).Times(1)

		d := newDispatcher(t, []tools.Descriptor{summarize}, dispatcher.WithSampler(model))
		o := d.Invoke(context.Background(), &tools.CallRequest{ID: "c1", Name: "summarize"})
		require.True(t, o.Succeeded(), o.Content())
		assert.Equal(t, "debug is on", o.Value)
	})

	t.Run("model error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		model := mockllms.NewMockModel(ctrl)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("rate limited")).Times(1)

		d := newDispatcher(t, []tools.Descriptor{summarize}, dispatcher.WithSampler(model))
		o := d.Invoke(context.Background(), &tools.CallRequest{ID: "c2", Name: "summarize"})
		require.False(t, o.Succeeded())
		assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
		assert.Equal(t, "sampling failed: rate limited", o.Failure.Message)
	})

	t.Run("no model", func(t *testing.T) {
		d := newDispatcher(t, []tools.Descriptor{summarize})
		o := d.Invoke(context.Background(), &tools.CallRequest{ID: "c3", Name: "summarize"})
		require.False(t, o.Succeeded())
		assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
		assert.ErrorIs(t, o.Err(), tools.ErrSamplingUnavailable)
	})
}

func TestInvoke_DefaultIsCopied(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, []tools.Descriptor{{
		Name: "configure",
		Params: []tools.ParamSpec{
			{Name: "opts", Type: tools.TypeObject, Default: map[string]any{"mode": "safe"}},
		},
		Handler: func(_ context.Context, args tools.Args, _ tools.Channel) (any, error) {
			opts, _ := args.Get("opts")
			m := opts.(map[string]any)
			mode := m["mode"]
			m["mode"] = "mutated"
			return mode, nil
		},
	}})

	for _, id := range []string{"c1", "c2"} {
		o := d.Invoke(context.Background(), &tools.CallRequest{ID: id, Name: "configure"})
		require.True(t, o.Succeeded())
		assert.Equal(t, "safe", o.Value)
	}

	desc, err := d.Registry().Lookup("configure")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"mode": "safe"}, desc.Params[0].Default)
}

func TestInvoke_NoDefaultTimeout(t *testing.T) {
	t.Parallel()

	assert.Zero(t, dispatcher.DefaultTimeout)

	d := newDispatcher(t, []tools.Descriptor{{
		Name: "deadline",
		Handler: func(ctx context.Context, _ tools.Args, _ tools.Channel) (any, error) {
			_, ok := ctx.Deadline()
			return ok, nil
		},
	}})

	o := d.Invoke(context.Background(), &tools.CallRequest{ID: "c1", Name: "deadline"})
	require.True(t, o.Succeeded())
	assert.Equal(t, false, o.Value)
}
