package tools

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/schema"
	"github.com/go-playground/validator/v10"
)

var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names, as the model sees them
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// DescriptorOption customizes a typed descriptor.
type DescriptorOption func(*Descriptor)

// WithStrict closes the parameter set.
func WithStrict() DescriptorOption {
	return func(d *Descriptor) {
		d.Strict = true
	}
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(timeout time.Duration) DescriptorOption {
	return func(d *Descriptor) {
		d.Timeout = timeout
	}
}

// NewTypedTool returns a descriptor whose parameters are reflected from I.
// Arguments are decoded into I and checked with its `validate` tags before
// fn is called.
func NewTypedTool[I any, O any](
	name, description string,
	fn func(ctx context.Context, in *I, ch Channel) (O, error),
	opts ...DescriptorOption,
) (Descriptor, error) {
	var input I
	sc, err := schema.New(reflect.TypeOf(input))
	if err != nil {
		return Descriptor{}, errors.WithMessagef(err, "tool %s", name)
	}
	params, err := paramsFromSchema(sc)
	if err != nil {
		return Descriptor{}, &InvalidDescriptorError{Name: name, Reason: err.Error()}
	}

	d := Descriptor{
		Name:        name,
		Description: description,
		Params:      params,
		Handler: func(ctx context.Context, args Args, ch Channel) (any, error) {
			in := new(I)
			if err := args.Decode(in); err != nil {
				return nil, &ValidationError{
					Tool: name,
					Violations: []Violation{{
						Kind:    ViolationInvalid,
						Message: err.Error(),
					}},
				}
			}
			if err := validate.Struct(in); err != nil {
				return nil, structViolations(name, err)
			}
			return fn(ctx, in, ch)
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d, nil
}

// MustTypedTool is NewTypedTool that panics on error.
func MustTypedTool[I any, O any](
	name, description string,
	fn func(ctx context.Context, in *I, ch Channel) (O, error),
	opts ...DescriptorOption,
) Descriptor {
	d, err := NewTypedTool(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func paramsFromSchema(sc *schema.Schema) ([]ParamSpec, error) {
	props := schema.Properties(sc.Parameters)
	params := make([]ParamSpec, 0, len(props))
	for _, p := range props {
		ps := ParamSpec{
			Name:        p.Name,
			Type:        ParamType(p.Type),
			Description: p.Description,
			Required:    p.Required && p.Default == nil,
			Enum:        p.Enum,
			Default:     p.Default,
		}
		if !ps.Type.Valid() {
			return nil, errors.Newf("parameter %q has unsupported type %q", p.Name, p.Type)
		}
		if p.Items != nil && ParamType(p.Items.Type).Valid() {
			ps.Items = ParamType(p.Items.Type)
		}
		params = append(params, ps)
	}
	return params, nil
}

func structViolations(tool string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithMessagef(err, "failed to validate %s input", tool)
	}
	ve := &ValidationError{Tool: tool}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		ve.Violations = append(ve.Violations, Violation{
			Param:   fe.Field(),
			Kind:    ViolationInvalid,
			Message: fmt.Sprintf("parameter %q does not satisfy %s", fe.Field(), rule),
		})
	}
	return ve
}
