package assistants

import (
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/encoding"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/store"
)

// DefaultMaxRounds is the tool round limit when none is configured.
const DefaultMaxRounds = 10

// Option is a function that can be used to modify the behavior of the Assistant Config.
type Option func(*Config)

// Config of the loop and of the model calls it makes.
type Config struct {
	// MaxRounds is the maximum number of tool rounds, <= 0 means DefaultMaxRounds.
	MaxRounds int

	// SystemPrompt is a template rendered by Call with PromptInput.
	SystemPrompt string
	PromptInput  map[string]any
	Examples     chatmodel.FewShotExamples

	// Store checkpoints the history after every round.
	Store store.MessageStore
	// Resume prepends the stored history of the chat.
	Resume             bool
	SkipMessageHistory bool

	// ResultFormat encodes success values of tools.
	ResultFormat encoding.Mode

	// CallbackHandler is the callback handler for the loop and its tool calls.
	CallbackHandler Callback

	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// StopWords is a list of words to stop on to use in an LLM call.
	StopWords    []string
	stopWordsSet bool

	// TopK is the number of tokens to consider for top-k sampling in an LLM call.
	TopK    int
	topkSet bool

	// TopP is the cumulative probability for top-p sampling in an LLM call.
	TopP    float64
	toppSet bool

	// Seed is a seed for deterministic sampling in an LLM call.
	Seed    int
	seedSet bool

	// ToolChoice is the choice of tool to use, it can either be "none", "auto" (the default behavior),
	// or a specific tool as described in the ToolChoice type.
	ToolChoice    any
	toolChoiceSet bool

	Metadata map[string]any
}

// NewConfig returns the config with options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxRounds:    DefaultMaxRounds,
		ResultFormat: encoding.ModeDefault,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// GetMaxRounds returns the effective round limit.
func (c *Config) GetMaxRounds() int {
	if c.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return c.MaxRounds
}

// WithMaxRounds sets the maximum number of tool rounds.
func WithMaxRounds(n int) Option {
	return func(o *Config) {
		o.MaxRounds = n
	}
}

// WithSystemPrompt sets the system prompt template used by Call.
func WithSystemPrompt(prompt string) Option {
	return func(o *Config) {
		o.SystemPrompt = prompt
	}
}

// WithPromptInput is an option that allows the user to specify the system prompt input.
func WithPromptInput(input map[string]any) Option {
	return func(o *Config) {
		o.PromptInput = input
	}
}

// WithExamples is an option that allows to specify the few-shot examples for the system prompt.
func WithExamples(examples chatmodel.FewShotExamples) Option {
	return func(o *Config) {
		o.Examples = examples
	}
}

// WithStore sets the checkpoint store.
func WithStore(s store.MessageStore) Option {
	return func(o *Config) {
		o.Store = s
	}
}

// WithResume continues the stored conversation of the chat.
func WithResume(resume bool) Option {
	return func(o *Config) {
		o.Resume = resume
	}
}

// WithSkipMessageHistory is an option that allows to skip adding messages to the Store.
func WithSkipMessageHistory(skip bool) Option {
	return func(o *Config) {
		o.SkipMessageHistory = skip
	}
}

// WithResultFormat sets the encoding of tool success values.
func WithResultFormat(mode encoding.Mode) Option {
	return func(o *Config) {
		o.ResultFormat = mode
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = true
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithTopK will add an option to use top-k sampling for LLM.Call.
func WithTopK(topK int) Option {
	return func(o *Config) {
		o.TopK = topK
		o.topkSet = true
	}
}

// WithTopP	will add an option to use top-p sampling for LLM.Call.
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = topP
		o.toppSet = true
	}
}

// WithSeed will add an option to use deterministic sampling for LLM.Call.
func WithSeed(seed int) Option {
	return func(o *Config) {
		o.Seed = seed
		o.seedSet = true
	}
}

// WithStopWords is an option for setting the stop words for LLM.Call.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
		o.stopWordsSet = true
	}
}

// WithToolChoice is an option for LLM.Call.
func WithToolChoice(choice any) Option {
	return func(o *Config) {
		o.ToolChoice = choice
		o.toolChoiceSet = true
	}
}

// WithMetadata is an option for LLM.Call.
func WithMetadata(metadata map[string]any) Option {
	return func(o *Config) {
		o.Metadata = metadata
	}
}

// GetCallOptions returns the model call options.
func (c *Config) GetCallOptions(extra ...llms.CallOption) []llms.CallOption {
	var opts []llms.CallOption
	if c.modelSet {
		opts = append(opts, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	if c.stopWordsSet {
		opts = append(opts, llms.WithStopWords(c.StopWords))
	}
	if c.topkSet {
		opts = append(opts, llms.WithTopK(c.TopK))
	}
	if c.toppSet {
		opts = append(opts, llms.WithTopP(c.TopP))
	}
	if c.seedSet {
		opts = append(opts, llms.WithSeed(c.Seed))
	}
	if c.toolChoiceSet {
		opts = append(opts, llms.WithToolChoice(c.ToolChoice))
	}
	if len(c.Metadata) > 0 {
		opts = append(opts, llms.WithMetadata(c.Metadata))
	}
	return append(opts, extra...)
}
