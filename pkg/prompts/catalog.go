package prompts

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrPromptNotFound is returned for an unregistered prompt name.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrMissingArgument is returned when a required prompt argument is absent.
	ErrMissingArgument = errors.New("missing prompt argument")
)

// Argument is a named input of a prompt.
type Argument struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Prompt is a named, parameterized message template.
type Prompt struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []Argument `json:"arguments,omitempty" yaml:"arguments,omitempty"`

	Template ChatTemplate `json:"-" yaml:"-"`
}

// Catalog holds prompts by name.
type Catalog struct {
	lock    sync.RWMutex
	prompts map[string]*Prompt
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		prompts: make(map[string]*Prompt),
	}
}

// Register adds prompts. A name may be registered only once.
func (c *Catalog) Register(list ...Prompt) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := range list {
		p := list[i]
		if p.Name == "" {
			return errors.New("prompt name is required")
		}
		if _, ok := c.prompts[p.Name]; ok {
			return errors.Errorf("prompt %q is already registered", p.Name)
		}
		if len(p.Template) == 0 {
			return errors.Errorf("prompt %q has no template", p.Name)
		}
		c.prompts[p.Name] = &p
	}
	return nil
}

// List returns the prompts sorted by name.
func (c *Catalog) List() []*Prompt {
	c.lock.RLock()
	defer c.lock.RUnlock()

	list := make([]*Prompt, 0, len(c.prompts))
	for _, p := range c.prompts {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Get renders the prompt with args.
func (c *Catalog) Get(name string, args map[string]string) (*Prompt, ChatPromptValue, error) {
	c.lock.RLock()
	p, ok := c.prompts[name]
	c.lock.RUnlock()
	if !ok {
		return nil, nil, errors.WithMessagef(ErrPromptNotFound, "%q", name)
	}

	values := make(map[string]any, len(p.Arguments))
	for _, a := range p.Arguments {
		v, ok := args[a.Name]
		if !ok {
			if a.Required {
				return nil, nil, errors.WithMessagef(ErrMissingArgument, "%s: %q", name, a.Name)
			}
			values[a.Name] = nil
			continue
		}
		values[a.Name] = v
	}

	msgs, err := p.Template.FormatMessages(values)
	if err != nil {
		return nil, nil, err
	}
	return p, msgs, nil
}
