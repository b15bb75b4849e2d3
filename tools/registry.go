package tools

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "tools")

var toolNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry maps tool names to descriptors. It is populated at startup and
// read-only after Freeze, so it can be shared by concurrent conversations.
type Registry struct {
	lock   sync.RWMutex
	frozen bool
	byName map[string]*Descriptor
	order  []*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
	}
}

// Register adds descriptors. Names are matched case-insensitively.
// Registration is atomic: on error the registry is unchanged.
func (r *Registry) Register(list ...Descriptor) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.frozen {
		return errors.WithStack(ErrRegistryFrozen)
	}

	added := make(map[string]*Descriptor, len(list))
	for i := range list {
		d := list[i]
		if err := checkDescriptor(&d); err != nil {
			return err
		}
		key := strings.ToLower(d.Name)
		if r.byName[key] != nil || added[key] != nil {
			return &DuplicateNameError{Name: d.Name}
		}
		d.Params = append([]ParamSpec(nil), d.Params...)
		added[key] = &d
	}

	for i := range list {
		d := added[strings.ToLower(list[i].Name)]
		r.byName[strings.ToLower(d.Name)] = d
		r.order = append(r.order, d)
		logger.KV(xlog.DEBUG, "status", "registered", "tool", d.Name, "params", len(d.Params))
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(list ...Descriptor) {
	if err := r.Register(list...); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor by name, or UnknownToolError.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.lock.RLock()
	d := r.byName[strings.ToLower(name)]
	r.lock.RUnlock()
	if d == nil {
		return nil, &UnknownToolError{Name: name, Available: r.Names()}
	}
	return d, nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.lock.Lock()
	r.frozen = true
	r.lock.Unlock()
}

// Frozen returns true after Freeze.
func (r *Registry) Frozen() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.frozen
}

// List returns descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]*Descriptor(nil), r.order...)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, d := range r.order {
		names = append(names, d.Name)
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.order)
}

func checkDescriptor(d *Descriptor) error {
	invalid := func(format string, args ...any) error {
		return &InvalidDescriptorError{Name: d.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if !toolNameRe.MatchString(d.Name) {
		return invalid("name must match %s", toolNameRe.String())
	}
	if d.Handler == nil {
		return invalid("handler is required")
	}
	if d.Timeout < 0 {
		return invalid("timeout must not be negative")
	}

	seen := map[string]bool{}
	for i := range d.Params {
		p := &d.Params[i]
		if p.Name == "" {
			return invalid("parameter %d has no name", i)
		}
		if seen[p.Name] {
			return invalid("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if !p.Type.Valid() {
			return invalid("parameter %q has unknown type %q", p.Name, p.Type)
		}
		if p.Items != "" && (p.Type != TypeArray || !p.Items.Valid()) {
			return invalid("parameter %q has invalid items type %q", p.Name, p.Items)
		}
		if p.Required && p.Default != nil {
			return invalid("required parameter %q must not have a default", p.Name)
		}
		if err := checkValues(p); err != nil {
			return invalid("%s", err.Error())
		}
	}

	cs, err := compileDescriptor(d)
	if err != nil {
		return invalid("%s", err.Error())
	}
	d.compiled = cs
	return nil
}
