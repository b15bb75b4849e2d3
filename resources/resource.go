package resources

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Bindings maps placeholder names to values.
type Bindings map[string]string

// Content is the opaque payload of a resource with its media type.
type Content struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"-"`
}

// Text returns Data as a string.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	return string(c.Data)
}

// ReadFunc produces the content of a resource. For templated descriptors
// the bindings hold a value for every placeholder.
type ReadFunc func(ctx context.Context, b Bindings) (*Content, error)

// Descriptor describes a static or templated resource.
type Descriptor struct {
	// URI is the identifier, optionally with {name} placeholders.
	URI         string
	Name        string
	Description string
	MIMEType    string
	Read        ReadFunc
}

// IsTemplate returns true if the URI has placeholders.
func (d *Descriptor) IsTemplate() bool {
	return len(Placeholders(d.URI)) > 0
}

// Text returns a ReadFunc producing text/plain content from fn.
func Text(fn func(ctx context.Context, b Bindings) (string, error)) ReadFunc {
	return func(ctx context.Context, b Bindings) (*Content, error) {
		s, err := fn(ctx, b)
		if err != nil {
			return nil, err
		}
		return &Content{MIMEType: "text/plain", Data: []byte(s)}, nil
	}
}

// JSON returns a ReadFunc producing application/json content from the value
// returned by fn.
func JSON(fn func(ctx context.Context, b Bindings) (any, error)) ReadFunc {
	return func(ctx context.Context, b Bindings) (*Content, error) {
		v, err := fn(ctx, b)
		if err != nil {
			return nil, err
		}
		js, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal resource")
		}
		return &Content{MIMEType: "application/json", Data: js}, nil
	}
}
