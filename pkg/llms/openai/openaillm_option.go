package openai

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
)

// Environment variables read by New.
const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	baseAPIBaseEnvVarName  = "OPENAI_API_BASE"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

// Doer performs a HTTP request.
type Doer = openaiclient.Doer

type options struct {
	provider     llms.ProviderType
	token        string
	model        string
	baseURL      string
	organization string
	// apiVersion is required by Azure deployments.
	apiVersion string
	httpClient Doer
	// maxTokens applies to calls that set no limit.
	maxTokens int
}

// Option configures the OpenAI client.
type Option func(*options)

// WithToken sets the API key, OPENAI_API_KEY is used otherwise.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithModel sets the model, OPENAI_MODEL is used otherwise.
// For Azure it is the deployment name.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithBaseURL overrides OPENAI_BASE_URL and OPENAI_API_BASE.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithOrganization overrides OPENAI_ORGANIZATION.
func WithOrganization(organization string) Option {
	return func(o *options) {
		o.organization = organization
	}
}

// WithProvider selects OpenAI, Azure or AzureAD.
func WithProvider(provider llms.ProviderType) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithAPIVersion sets the api-version query of Azure requests.
func WithAPIVersion(apiVersion string) Option {
	return func(o *options) {
		o.apiVersion = apiVersion
	}
}

// WithHTTPClient sets the transport, http.DefaultClient is used otherwise.
func WithHTTPClient(client Doer) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithMaxTokens sets the completion limit used when a call sets none.
func WithMaxTokens(maxTokens int) Option {
	return func(o *options) {
		o.maxTokens = maxTokens
	}
}

func newOptions(opts ...Option) (*options, error) {
	o := &options{
		provider:     llms.ProviderOpenAI,
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      values.StringsCoalesce(os.Getenv(baseURLEnvVarName), os.Getenv(baseAPIBaseEnvVarName)),
		organization: os.Getenv(organizationEnvVarName),
	}
	for _, opt := range opts {
		opt(o)
	}

	switch o.provider {
	case llms.ProviderOpenAI, llms.ProviderAzure, llms.ProviderAzureAD:
	default:
		return nil, errors.Errorf("openai: unsupported provider: %s", o.provider)
	}
	if o.token == "" {
		return nil, ErrMissingToken
	}
	if o.provider != llms.ProviderOpenAI && o.model == "" {
		return nil, errors.New("openai: model is required for Azure deployments")
	}
	if o.maxTokens < 0 {
		return nil, errors.New("openai: max tokens must not be negative")
	}
	return o, nil
}

func (o *options) client() *openaiclient.Client {
	return openaiclient.New(openaiclient.ProviderType(o.provider), o.model, o.token, o.baseURL, o.organization, o.apiVersion, o.httpClient)
}
