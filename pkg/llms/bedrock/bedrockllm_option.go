// Package bedrock implements llms.Model for Anthropic models served by AWS Bedrock.
package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/effective-security/toolflow/pkg/llms/bedrock/internal/bedrockclient"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// Option is an option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID      string
	region       string
	accessKey    string
	secretKey    string
	sessionToken string
	client       bedrockclient.InvokeModelAPI
}

// WithModel sets the model id or inference profile to use.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region, otherwise the default chain is used.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithCredentials sets static AWS credentials.
func WithCredentials(accessKey, secretKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
		o.sessionToken = sessionToken
	}
}

// WithClient sets the Bedrock runtime client.
func WithClient(client *bedrockruntime.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

func withInvoker(client bedrockclient.InvokeModelAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
