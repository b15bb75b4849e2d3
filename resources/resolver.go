package resources

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "resources")

// Resolver resolves static and templated resource URIs to content.
// It is populated at startup and read-only after Freeze.
type Resolver struct {
	lock      sync.RWMutex
	frozen    bool
	static    map[string]*Descriptor
	order     []*Descriptor
	templates []*template
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		static: make(map[string]*Descriptor),
	}
}

// Register adds descriptors. A URI with placeholders is registered as a
// template. Registration is atomic: on error nothing is added.
func (r *Resolver) Register(list ...Descriptor) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.frozen {
		return errors.WithStack(ErrResolverFrozen)
	}

	var (
		newStatic    []*Descriptor
		newTemplates []*template
		seen         = map[string]bool{}
	)
	for i := range list {
		d := list[i]
		if d.URI == "" {
			return errors.Newf("resource URI is required")
		}
		if d.Read == nil {
			return errors.Newf("resource %s: read function is required", d.URI)
		}
		if seen[d.URI] || r.exists(d.URI) {
			return errors.WithMessagef(ErrDuplicateResource, "%s", d.URI)
		}
		seen[d.URI] = true

		if d.IsTemplate() {
			t, err := compileTemplate(&d)
			if err != nil {
				return err
			}
			newTemplates = append(newTemplates, t)
		} else {
			newStatic = append(newStatic, &d)
		}
	}

	for _, d := range newStatic {
		r.static[d.URI] = d
		r.order = append(r.order, d)
	}
	r.templates = append(r.templates, newTemplates...)
	return nil
}

func (r *Resolver) exists(uri string) bool {
	if _, ok := r.static[uri]; ok {
		return true
	}
	for _, t := range r.templates {
		if t.desc.URI == uri {
			return true
		}
	}
	return false
}

// Freeze makes the resolver read-only.
func (r *Resolver) Freeze() {
	r.lock.Lock()
	r.frozen = true
	r.lock.Unlock()
}

// List returns the static descriptors in registration order.
func (r *Resolver) List() []Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]Descriptor, 0, len(r.order))
	for _, d := range r.order {
		list = append(list, *d)
	}
	return list
}

// Templates returns the templated descriptors in registration order.
func (r *Resolver) Templates() []Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]Descriptor, 0, len(r.templates))
	for _, t := range r.templates {
		list = append(list, *t.desc)
	}
	return list
}

// Resolve returns the content for uri. Static URIs are matched exactly,
// otherwise templates are tried in registration order. Values taken from
// the URI path win over bindings; bindings fill placeholders the URI leaves
// as literal {name} tokens.
func (r *Resolver) Resolve(ctx context.Context, uri string, bindings Bindings) (*Content, error) {
	desc, bound, resolvedURI, err := r.lookup(uri, bindings)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "resolve_failed",
			"uri", uri,
			"err", err.Error(),
		)
		return nil, err
	}

	started := time.Now()
	defer metricskey.PerfResourceRead.MeasureSince(started, desc.URI)

	c, err := desc.Read(ctx, bound)
	if err != nil {
		metricskey.StatsResourceReadsFailed.IncrCounter(1, desc.URI)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "read_failed",
			"uri", resolvedURI,
			"err", err.Error(),
		)
		return nil, errors.WithMessagef(err, "failed to read resource %s", resolvedURI)
	}
	if c == nil {
		c = &Content{}
	}
	if c.URI == "" {
		c.URI = resolvedURI
	}
	if c.MIMEType == "" {
		c.MIMEType = desc.MIMEType
	}
	return c, nil
}

func (r *Resolver) lookup(uri string, bindings Bindings) (*Descriptor, Bindings, string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if d, ok := r.static[uri]; ok {
		return d, Bindings{}, uri, nil
	}
	for _, t := range r.templates {
		bound, missing, ok := t.match(uri, bindings)
		if !ok {
			continue
		}
		if len(missing) > 0 {
			return nil, nil, "", &UnboundPlaceholderError{URI: uri, Template: t.desc.URI, Missing: missing}
		}
		return t.desc, bound, t.expand(bound), nil
	}
	return nil, nil, "", &ResourceNotFoundError{URI: uri}
}
