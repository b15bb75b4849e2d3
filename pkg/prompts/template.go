package prompts

import (
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
)

// MessageTemplate renders one message of the given role.
type MessageTemplate struct {
	Role llms.Role
	Text string

	tmpl *template.Template
}

// NewMessageTemplate parses text. A reference to a value that is not
// provided fails at Format time.
func NewMessageTemplate(role llms.Role, text string) (*MessageTemplate, error) {
	tmpl, err := template.New(string(role)).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s template", role)
	}
	return &MessageTemplate{
		Role: role,
		Text: text,
		tmpl: tmpl,
	}, nil
}

// MustMessageTemplate is like NewMessageTemplate but panics on error.
func MustMessageTemplate(role llms.Role, text string) *MessageTemplate {
	t, err := NewMessageTemplate(role, text)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatString renders the template text.
func (t *MessageTemplate) FormatString(values map[string]any) (string, error) {
	if values == nil {
		values = map[string]any{}
	}
	var buf strings.Builder
	if err := t.tmpl.Execute(&buf, values); err != nil {
		return "", errors.Wrapf(err, "failed to render %s template", t.Role)
	}
	return buf.String(), nil
}

// Format renders the template into a message.
func (t *MessageTemplate) Format(values map[string]any) (llms.Message, error) {
	text, err := t.FormatString(values)
	if err != nil {
		return llms.Message{}, err
	}
	return llms.MessageFromTextParts(t.Role, text), nil
}

// GetInputVariables returns the top level names the template references.
func (t *MessageTemplate) GetInputVariables() []string {
	names := map[string]struct{}{}
	for _, tt := range t.tmpl.Templates() {
		if tt.Tree != nil {
			collectFields(tt.Tree.Root, names)
		}
	}
	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	sort.Strings(list)
	return list
}

func collectFields(node parse.Node, names map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			collectFields(c, names)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, names)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			collectFields(c, names)
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			collectFields(a, names)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			names[n.Ident[0]] = struct{}{}
		}
	case *parse.IfNode:
		collectBranch(&n.BranchNode, names)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, names)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, names)
	}
}

func collectBranch(b *parse.BranchNode, names map[string]struct{}) {
	collectFields(b.Pipe, names)
	collectFields(b.List, names)
	if b.ElseList != nil {
		collectFields(b.ElseList, names)
	}
}
