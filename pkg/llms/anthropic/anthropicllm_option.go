// Package anthropic implements llms.Model over the Anthropic Messages API.
package anthropic

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
)

const (
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

	DefaultMaxRetries     = 2
	DefaultRequestTimeout = 5 * time.Minute
)

// Options configures the Anthropic client.
type Options struct {
	Token   string
	Model   string
	BaseURL string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient option.HTTPClient
	// Betas are sent in the anthropic-beta header.
	Betas []string
	// MaxTokens is the output limit when a call does not set one.
	MaxTokens      int
	MaxRetries     int
	RequestTimeout time.Duration
}

// Option configures Options.
type Option func(*Options)

// WithToken sets the API key, ANTHROPIC_API_KEY is used otherwise.
func WithToken(token string) Option {
	return func(o *Options) {
		o.Token = token
	}
}

// WithModel sets the model, it is required.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		o.BaseURL = baseURL
	}
}

// WithHTTPClient sets the transport of the client.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithBetas enables beta features of the Messages API.
func WithBetas(betas ...string) Option {
	return func(o *Options) {
		o.Betas = append(o.Betas, betas...)
	}
}

// WithMaxTokens sets the output limit used when a call sets none.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Options) {
		o.MaxTokens = maxTokens
	}
}

// WithRetry sets the retry count and the timeout of each request.
func WithRetry(maxRetries int, timeout time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RequestTimeout = timeout
	}
}

func newOptions(opts ...Option) (*Options, error) {
	o := &Options{
		Token:          os.Getenv(TokenEnvVarName),
		BaseURL:        DefaultBaseURL,
		HTTPClient:     http.DefaultClient,
		MaxRetries:     DefaultMaxRetries,
		RequestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.Token == "" {
		return nil, ErrMissingToken
	}
	if o.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if o.MaxTokens < 0 || o.MaxRetries < 0 {
		return nil, errors.New("anthropic: max tokens and retries must not be negative")
	}
	return o, nil
}

// requestOptions translates the options for the SDK client.
func (o *Options) requestOptions() []option.RequestOption {
	list := []option.RequestOption{
		option.WithAPIKey(o.Token),
		option.WithMaxRetries(o.MaxRetries),
		option.WithBaseURL(values.StringsCoalesce(o.BaseURL, DefaultBaseURL)),
	}
	if o.RequestTimeout > 0 {
		list = append(list, option.WithRequestTimeout(o.RequestTimeout))
	}
	if o.HTTPClient != nil {
		list = append(list, option.WithHTTPClient(o.HTTPClient))
	}
	if len(o.Betas) > 0 {
		list = append(list, option.WithHeader("anthropic-beta", strings.Join(o.Betas, ",")))
	}
	return list
}
