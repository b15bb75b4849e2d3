// Package llmfactory creates completion-service models from configuration
// and selects them by provider type, model name or assistant.
package llmfactory
