package prompts

import (
	"strings"

	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llmutils"
)

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the ChatMessage slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// ChatTemplate is an ordered list of message templates.
type ChatTemplate []*MessageTemplate

// NewChatTemplate returns the list of templates.
func NewChatTemplate(list ...*MessageTemplate) ChatTemplate {
	return list
}

// FormatMessages renders every template in order.
func (c ChatTemplate) FormatMessages(values map[string]any) (ChatPromptValue, error) {
	msgs := make(ChatPromptValue, 0, len(c))
	for _, t := range c {
		m, err := t.Format(values)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// GetInputVariables returns the names referenced by any template.
func (c ChatTemplate) GetInputVariables() []string {
	seen := map[string]struct{}{}
	var list []string
	for _, t := range c {
		for _, n := range t.GetInputVariables() {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				list = append(list, n)
			}
		}
	}
	return list
}
