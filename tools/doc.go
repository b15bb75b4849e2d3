// Package tools holds the tool registry and the argument validator.
//
// A Descriptor names a tool, declares its parameters and binds a Handler.
// Descriptors are registered at startup into a Registry, which becomes
// read-only once frozen. The Validator turns raw model-supplied arguments
// into typed Args, reporting every violation at once so the model can fix
// its request in a single round.
package tools
