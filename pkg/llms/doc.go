// Package llms defines the completion service boundary used by the orchestration loop.
//
// A conversation is an ordered list of Message values. A model reply is a
// ContentResponse whose choice either carries final text or one or more
// ToolCall requests. Subpackages adapt vendor APIs to the Model interface,
// so the loop only depends on this contract.
package llms
