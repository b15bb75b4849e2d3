package chatmodel

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidChatContext is returned when the context has no ChatContext.
	ErrInvalidChatContext = errors.New("invalid chat context")
)

// FewShotExample is a human/assistant exchange seeded into history.
type FewShotExample struct {
	Prompt     string `json:"prompt" yaml:"prompt"`
	Completion string `json:"completion" yaml:"completion"`
}

type FewShotExamples []FewShotExample
