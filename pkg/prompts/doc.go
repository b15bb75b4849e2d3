// Package prompts renders message templates into the seed history of a conversation.
// Templates use text/template syntax with the sprig function library.
package prompts
