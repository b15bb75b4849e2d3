package builtin_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/mocks/mockllms"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/prompts"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/toolflow/tools/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type events struct {
	lock sync.Mutex
	list []string
}

func (e *events) OnToolStart(context.Context, *tools.CallRequest) {}
func (e *events) OnToolEnd(context.Context, *tools.CallRequest, *tools.Outcome, time.Duration) {
}

func (e *events) OnToolEvent(_ context.Context, ev *dispatcher.Event) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.list = append(e.list, string(ev.Level)+": "+ev.Message)
}

func newDispatcher(t *testing.T, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	reg := tools.NewRegistry()
	res := resources.NewResolver()
	require.NoError(t, builtin.Register(reg, res, nil))
	return dispatcher.New(reg, res, opts...)
}

func invoke(d *dispatcher.Dispatcher, name string, args map[string]any, cbs ...dispatcher.Callback) *tools.Outcome {
	return d.Invoke(context.Background(), &tools.CallRequest{ID: "call_" + name, Name: name, Arguments: args}, cbs...)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	res := resources.NewResolver()
	catalog := prompts.NewCatalog()
	require.NoError(t, builtin.Register(reg, res, catalog))

	assert.Equal(t, []string{
		"calculate",
		"convert_units",
		"get_weather",
		"get_weather_report",
		"analyze_sentiment",
		"calculate_sum",
		"calculate_difference",
		"calculate_product",
		"calculate_quotient",
		"process_data",
	}, reg.Names())
	assert.Len(t, res.List(), 1)
	assert.Len(t, res.Templates(), 1)
	assert.Len(t, catalog.List(), 2)

	err := builtin.Register(reg, nil, nil)
	assert.ErrorIs(t, err, tools.ErrDuplicateName)

	calc, err := reg.Lookup("calculate")
	require.NoError(t, err)
	assert.True(t, calc.Strict)
	require.Len(t, calc.Params, 3)
	assert.Equal(t, []any{"add", "subtract", "multiply", "divide"}, calc.Params[0].Enum)

	_, msgs, err := catalog.Get("greet_user", map[string]string{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome to the toolflow server, Alice!", msgs[0].GetContent())
}

func TestCalculate(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t)

	a := float64(gofakeit.IntRange(1, 1000))
	b := float64(gofakeit.IntRange(1, 1000))

	o := invoke(d, "calculate", map[string]any{"operation": "add", "a": a, "b": b})
	require.True(t, o.Succeeded())
	assert.Equal(t, a+b, o.Value)

	o = invoke(d, "calculate", map[string]any{"operation": "multiply", "a": 6, "b": 7})
	require.True(t, o.Succeeded())
	assert.Equal(t, "42", o.Content())

	o = invoke(d, "calculate", map[string]any{"operation": "divide", "a": 1, "b": 0})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
	assert.Equal(t, "Division by zero is not allowed", o.Failure.Message)

	o = invoke(d, "calculate", map[string]any{"operation": "modulo", "a": 1, "b": 2})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureValidation, o.Failure.Kind)

	// strict parameters
	o = invoke(d, "calculate", map[string]any{"operation": "add", "a": 1, "b": 2, "c": 3})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureValidation, o.Failure.Kind)
}

func TestIntegerMath(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t)
	ev := &events{}

	o := invoke(d, "calculate_sum", map[string]any{"a": 2, "b": 3}, ev)
	require.True(t, o.Succeeded())
	assert.Equal(t, int64(5), o.Value)

	o = invoke(d, "calculate_sum", map[string]any{"a": -2, "b": 3}, ev)
	require.True(t, o.Succeeded())
	assert.Equal(t, int64(1), o.Value)

	o = invoke(d, "calculate_product", map[string]any{"a": 4, "b": 5}, ev)
	require.True(t, o.Succeeded())
	assert.Equal(t, int64(20), o.Value)

	o = invoke(d, "calculate_difference", map[string]any{"a": 4, "b": 5}, ev)
	require.True(t, o.Succeeded())
	assert.Equal(t, int64(-1), o.Value)

	o = invoke(d, "calculate_quotient", map[string]any{"a": 7, "b": 2}, ev)
	require.True(t, o.Succeeded())
	assert.Equal(t, 3.5, o.Value)

	o = invoke(d, "calculate_quotient", map[string]any{"a": 7, "b": 0}, ev)
	require.False(t, o.Succeeded())
	assert.Equal(t, "Division by zero is not allowed", o.Failure.Message)

	o = invoke(d, "calculate_sum", map[string]any{"a": 1.5, "b": 3}, ev)
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureValidation, o.Failure.Kind)

	assert.Equal(t, []string{
		"warning: Adding 2 and 3",
		"warning: Adding -2 and 3",
		"info: Multiplying 4 and 5",
	}, ev.list)
}

func TestConvertUnits(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t)

	o := invoke(d, "convert_units", map[string]any{"value": 1, "from_unit": "kilometers", "to_unit": "meters"})
	require.True(t, o.Succeeded())
	out := o.Value.(*builtin.ConvertUnitsOutput)
	assert.Equal(t, 1000.0, out.ConvertedValue)
	assert.Equal(t, "meters", out.ConvertedUnit)

	o = invoke(d, "convert_units", map[string]any{"value": 1, "from_unit": "miles", "to_unit": "feet"})
	require.True(t, o.Succeeded())
	assert.InDelta(t, 5280.0, o.Value.(*builtin.ConvertUnitsOutput).ConvertedValue, 0.1)

	o = invoke(d, "convert_units", map[string]any{"value": 1, "from_unit": "parsecs", "to_unit": "feet"})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureValidation, o.Failure.Kind)

	_, err := builtin.ConvertUnits(context.Background(), &builtin.ConvertUnitsInput{Value: 1, FromUnit: "meters", ToUnit: "yards"}, nil)
	assert.EqualError(t, err, "Unsupported unit: yards")
}

func TestWeather(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t)

	o := invoke(d, "get_weather", map[string]any{"location": "Tokyo"})
	require.True(t, o.Succeeded())
	assert.Equal(t, &builtin.Weather{Location: "Tokyo", Temperature: 25, Unit: "celsius", Condition: "Partly cloudy"}, o.Value)

	o = invoke(d, "get_weather", map[string]any{"location": "London", "unit": "fahrenheit"})
	require.True(t, o.Succeeded())
	w := o.Value.(*builtin.Weather)
	assert.InDelta(t, 64.4, w.Temperature, 0.001)
	assert.Equal(t, "fahrenheit", w.Unit)

	o = invoke(d, "get_weather", map[string]any{"location": "Atlantis"})
	require.True(t, o.Succeeded())
	assert.Equal(t, "Unknown", o.Value.(*builtin.Weather).Condition)

	o = invoke(d, "get_weather", map[string]any{"location": "Tokyo", "unit": "kelvin"})
	assert.Equal(t, tools.FailureValidation, o.Failure.Kind)

	o = invoke(d, "get_weather_report", map[string]any{"city": " Paris "})
	require.True(t, o.Succeeded())
	assert.JSONEq(t, `{"status":"success","report":"Sunny, 25C, UV Index High"}`, o.Content())

	o = invoke(d, "get_weather_report", map[string]any{"city": "Atlantis"})
	require.True(t, o.Succeeded())
	assert.JSONEq(t, `{"status":"error","error_message":"Weather data not available for 'Atlantis'. Try a major capital."}`, o.Content())
}

func TestAnalyzeSentiment(t *testing.T) {
	t.Parallel()

	tcases := map[string]string{
		"What a great sunny day": "positive",
		"Too much rain today":    "negative",
		"It is Tuesday":          "neutral",
	}
	for text, exp := range tcases {
		s, err := builtin.AnalyzeSentiment(context.Background(), &builtin.SentimentInput{Text: text}, nil)
		require.NoError(t, err)
		assert.Equal(t, exp, s.Sentiment, text)
	}
}

func TestResourcesAndProcessData(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t)
	ctx := context.Background()

	c, err := d.Resolver().Resolve(ctx, "config://version", nil)
	require.NoError(t, err)
	assert.Equal(t, builtin.Version, c.Text())
	assert.Equal(t, "text/plain", c.MIMEType)

	c, err = d.Resolver().Resolve(ctx, "users://42/profile", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"User 42","status":"active"}`, c.Text())

	ev := &events{}
	o := invoke(d, "process_data", map[string]any{"uri": "users://42/profile"}, ev)
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
	assert.ErrorIs(t, o.Err(), tools.ErrSamplingUnavailable)
	assert.Equal(t, "unable to summarize users://42/profile: sampling is not available", o.Failure.Message)
	assert.Equal(t, []string{"info: Processing users://42/profile..."}, ev.list)

	o = invoke(d, "process_data", map[string]any{"uri": "users://42/settings"})
	require.False(t, o.Succeeded())
	assert.Equal(t, tools.FailureHandler, o.Failure.Kind)
	assert.ErrorIs(t, o.Err(), resources.ErrResourceNotFound)
}

func TestProcessData_Sample(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 1)
			assert.Equal(t, `Summarize: {"name":"User 7","status":"active"}`, msgs[0].GetContent())
			return &llms.ContentResponse{
				Choices: []*llms.ContentChoice{{Content: "User 7 is active.", StopReason: "stop"}},
			}, nil
		}).Times(1)

	d := newDispatcher(t, dispatcher.WithSampler(model))
	o := invoke(d, "process_data", map[string]any{"uri": "users://7/profile"})
	require.True(t, o.Succeeded(), o.Content())
	assert.Equal(t, "User 7 is active.", o.Content())
}

func TestProcessData_Truncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 800)
	reg := tools.NewRegistry()
	res := resources.NewResolver()
	require.NoError(t, builtin.Register(reg, res, nil))
	require.NoError(t, res.Register(resources.Descriptor{
		URI:  "data://long",
		Name: "long",
		Read: resources.Text(func(context.Context, resources.Bindings) (string, error) {
			return long, nil
		}),
	}))

	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			assert.Equal(t, "Summarize: "+long[:500], msgs[0].GetContent())
			return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "x"}}}, nil
		}).Times(1)

	d := dispatcher.New(reg, res, dispatcher.WithSampler(model))
	o := invoke(d, "process_data", map[string]any{"uri": "data://long"})
	require.True(t, o.Succeeded(), o.Content())
}
