package llmfactory_test

import (
	"context"
	"testing"

	"github.com/effective-security/toolflow/pkg/llmfactory"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(f.provider)
}

func (f *fakeLLM) GetName() string {
	return f.model
}

func (f *fakeLLM) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func setEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("AZURE_OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")
}

func Test_Factory(t *testing.T) {
	setEnv(t)

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, "fakekey", cfg.Providers[0].Token)

	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		return &fakeLLM{provider: cfg.APIType, model: cfg.FindModel(preferredModels...)}, nil
	}
	defer func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	}()

	check := func(model llms.Model, err error, expModel, expProvider string) {
		t.Helper()
		require.NoError(t, err)
		require.NotNil(t, model)
		assert.Equal(t, expModel, model.GetName())
		assert.Equal(t, llms.ProviderType(expProvider), model.GetProviderType())
	}

	f := llmfactory.New(cfg)
	model, err := f.DefaultModel()
	check(model, err, "gpt-4o", "OPENAI")

	model, err = f.ModelByName("gpt-4o-mini")
	check(model, err, "gpt-4o-mini", "OPENAI")

	model, err = f.ModelByName("unknown", "gpt-4.1-mini")
	check(model, err, "gpt-4.1-mini", "AZURE")

	// falls back to the default
	model, err = f.ModelByName("non-existent-model")
	check(model, err, "gpt-4o", "OPENAI")

	model, err = f.ModelByType("ANTHROPIC")
	check(model, err, "claude-sonnet-4-20250514", "ANTHROPIC")

	model, err = f.ModelByType("BEDROCK")
	check(model, err, "anthropic.claude-3-5-sonnet-20240620-v1:0", "BEDROCK")

	model2, err := f.ModelByType("BEDROCK")
	require.NoError(t, err)
	assert.Same(t, model, model2)

	model, err = f.AssistantModel("weather")
	check(model, err, "claude-3-5-haiku-latest", "ANTHROPIC")

	model, err = f.AssistantModel("calculator")
	check(model, err, "gpt-4o-mini", "OPENAI")

	_, err = f.ModelByType("UNSUPPORTED")
	assert.EqualError(t, err, "provider not found for type: UNSUPPORTED")

	_, err = llmfactory.New(&llmfactory.Config{}).DefaultModel()
	assert.EqualError(t, err, "no providers configured")

	// unknown default provider falls back to the first one
	model, err = llmfactory.New(&llmfactory.Config{
		DefaultProvider: "non-existent",
		Providers:       cfg.Providers,
	}).DefaultModel()
	check(model, err, "gpt-4o", "OPENAI")
}

func Test_Load(t *testing.T) {
	setEnv(t)

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)

	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)
}

func Test_CreateLLM(t *testing.T) {
	tcases := []struct {
		cfg      *llmfactory.ProviderConfig
		provider llms.ProviderType
		model    string
	}{
		{
			cfg:      &llmfactory.ProviderConfig{APIType: "OPENAI", Token: "key", DefaultModel: "gpt-4o"},
			provider: llms.ProviderOpenAI,
			model:    "gpt-4o",
		},
		{
			cfg:      &llmfactory.ProviderConfig{APIType: "open_ai", Token: "key", DefaultModel: "gpt-4o"},
			provider: llms.ProviderOpenAI,
			model:    "gpt-4o",
		},
		{
			cfg: &llmfactory.ProviderConfig{
				APIType:      "AZURE",
				Token:        "key",
				BaseURL:      "https://toolflow.openai.azure.com",
				APIVersion:   "2024-10-21",
				DefaultModel: "gpt-4.1-mini",
			},
			provider: llms.ProviderAzure,
			model:    "gpt-4.1-mini",
		},
		{
			cfg:      &llmfactory.ProviderConfig{APIType: "ANTHROPIC", Token: "key", DefaultModel: "claude-3-5-haiku-latest"},
			provider: llms.ProviderAnthropic,
			model:    "claude-3-5-haiku-latest",
		},
		{
			cfg: &llmfactory.ProviderConfig{
				APIType:      "BEDROCK",
				Region:       "us-west-2",
				AccessKey:    "AKIDEXAMPLE",
				SecretKey:    "secret",
				DefaultModel: "anthropic.claude-3-5-sonnet-20240620-v1:0",
			},
			provider: llms.ProviderBedrock,
			model:    "anthropic.claude-3-5-sonnet-20240620-v1:0",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.cfg.APIType, func(t *testing.T) {
			model, err := llmfactory.CreateLLM(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.provider, model.GetProviderType())
			assert.Equal(t, tc.model, model.GetName())
		})
	}

	_, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{APIType: "PERPLEXITY"})
	assert.EqualError(t, err, "unsupported provider type: PERPLEXITY")
}
