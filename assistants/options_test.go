package assistants

import (
	"testing"

	"github.com/effective-security/toolflow/encoding"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	assert.Equal(t, DefaultMaxRounds, cfg.GetMaxRounds())
	assert.Equal(t, encoding.ModeJSON, cfg.ResultFormat)
	assert.Empty(t, cfg.GetCallOptions())

	cfg = NewConfig(WithMaxRounds(-1))
	assert.Equal(t, DefaultMaxRounds, cfg.GetMaxRounds())

	base := NewConfig(WithMaxRounds(3), WithTemperature(0.2))
	call := base.Apply(WithMaxRounds(5), WithResume(true))
	assert.Equal(t, 3, base.GetMaxRounds())
	assert.False(t, base.Resume)
	assert.Equal(t, 5, call.GetMaxRounds())
	assert.True(t, call.Resume)

	opts := NewConfig(
		WithModel("gpt-4o"),
		WithMaxTokens(512),
		WithTemperature(0.3),
		WithStopWords([]string{"STOP"}),
		WithTopK(5),
		WithTopP(0.9),
		WithSeed(42),
		WithToolChoice("auto"),
		WithMetadata(map[string]any{"user": "u1"}),
	).GetCallOptions(llms.WithTools([]llms.Tool{{Type: "function"}}))

	co := llms.NewCallOptions(llms.CallOptions{}, opts...)
	assert.Equal(t, "gpt-4o", co.Model)
	assert.Equal(t, 512, co.MaxTokens)
	assert.Equal(t, 0.3, co.Temperature)
	assert.Equal(t, []string{"STOP"}, co.StopWords)
	assert.Equal(t, 5, co.TopK)
	assert.Equal(t, 0.9, co.TopP)
	assert.Equal(t, 42, co.Seed)
	assert.Equal(t, "auto", co.ToolChoice)
	assert.Equal(t, "u1", co.Metadata["user"])
	assert.Len(t, co.Tools, 1)
}
