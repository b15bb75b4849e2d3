// Package assistants drives a conversation between a model and the tool dispatcher.
//
// An Assistant sends the history to the model, executes the tool calls of the
// reply through the dispatcher, appends the outcomes as tool results, and
// repeats until the model answers with text or the round limit is reached.
package assistants
