package resources

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)
	nameRe        = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Placeholders returns the placeholder names of the URI template, in order.
func Placeholders(uri string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(uri, -1) {
		names = append(names, m[1])
	}
	return names
}

// template matches URIs against a templated descriptor. Each placeholder
// matches one non-empty path segment.
type template struct {
	desc  *Descriptor
	names []string
	re    *regexp.Regexp
}

func compileTemplate(d *Descriptor) (*template, error) {
	names := Placeholders(d.URI)
	seen := map[string]bool{}
	for _, n := range names {
		if !nameRe.MatchString(n) {
			return nil, errors.WithMessagef(ErrInvalidTemplate, "%s: placeholder %q", d.URI, n)
		}
		if seen[n] {
			return nil, errors.WithMessagef(ErrInvalidTemplate, "%s: repeated placeholder %q", d.URI, n)
		}
		seen[n] = true
	}

	var sb strings.Builder
	sb.WriteString("^")
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(d.URI, -1) {
		sb.WriteString(regexp.QuoteMeta(d.URI[last:loc[0]]))
		sb.WriteString("(?P<")
		sb.WriteString(d.URI[loc[2]:loc[3]])
		sb.WriteString(">[^/]+)")
		last = loc[1]
	}
	sb.WriteString(regexp.QuoteMeta(d.URI[last:]))
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, errors.WithMessagef(ErrInvalidTemplate, "%s: %s", d.URI, err.Error())
	}
	return &template{desc: d, names: names, re: re}, nil
}

// match returns the bindings for uri. A segment that is still the literal
// {name} token is taken from explicit, and reported in missing when absent.
func (t *template) match(uri string, explicit Bindings) (bound Bindings, missing []string, ok bool) {
	m := t.re.FindStringSubmatch(uri)
	if m == nil {
		return nil, nil, false
	}
	bound = make(Bindings, len(t.names))
	for i, name := range t.names {
		val := m[i+1]
		if val == "{"+name+"}" {
			v, has := explicit[name]
			if !has || v == "" {
				missing = append(missing, name)
				continue
			}
			val = v
		}
		bound[name] = val
	}
	return bound, missing, true
}

// expand substitutes bound values into the template URI.
func (t *template) expand(b Bindings) string {
	return placeholderRe.ReplaceAllStringFunc(t.desc.URI, func(tok string) string {
		if v, ok := b[tok[1:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}
