package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// schemaURL names the single resource added to each compiler.
const schemaURL = "arguments.json"

// Validator checks raw arguments against a descriptor's parameters.
type Validator struct {
	strict bool
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithStrictParameters rejects unknown arguments for descriptors that do
// not set Strict themselves. By default unknown arguments are ignored.
func WithStrictParameters(strict bool) ValidatorOption {
	return func(v *Validator) {
		v.strict = strict
	}
}

// NewValidator returns a Validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// compiledSchema is the argument schema of a descriptor, as declared and
// with additional properties rejected.
type compiledSchema struct {
	open   *jsv.Schema
	closed *jsv.Schema
}

func compileDescriptor(d *Descriptor) (*compiledSchema, error) {
	open, err := compileSchema(d.Schema(), false)
	if err != nil {
		return nil, err
	}
	closed, err := compileSchema(d.Schema(), true)
	if err != nil {
		return nil, err
	}
	return &compiledSchema{open: open, closed: closed}, nil
}

func compileSchema(s *jsonschema.Schema, closed bool) (*jsv.Schema, error) {
	doc, err := toDocument(s)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to encode schema")
	}
	if m, ok := doc.(map[string]any); ok && closed {
		m["additionalProperties"] = false
	}

	c := jsv.NewCompiler()
	c.DefaultDraft(jsv.Draft2020)
	if err = c.AddResource(schemaURL, doc); err != nil {
		return nil, errors.WithMessage(err, "failed to add schema")
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to compile schema")
	}
	return sch, nil
}

// toDocument returns v in the form produced by decoding JSON, with numbers
// as json.Number. The result shares no memory with v.
func toDocument(v any) (any, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return jsv.UnmarshalJSON(bytes.NewReader(js))
}

// Validate returns typed arguments, or a ValidationError listing every
// violation. Absent optional parameters receive a copy of their default.
func (v *Validator) Validate(d *Descriptor, raw map[string]any) (Args, error) {
	cs := d.compiled
	if cs == nil {
		var err error
		if cs, err = compileDescriptor(d); err != nil {
			return nil, errors.WithMessagef(err, "tool %s", d.Name)
		}
	}
	sch := cs.open
	if d.Strict || v.strict {
		sch = cs.closed
	}

	present := make(map[string]any, len(raw))
	for name, val := range raw {
		if _, declared := d.Param(name); declared && val == nil {
			continue
		}
		present[name] = val
	}
	inst, err := toDocument(present)
	if err != nil {
		return nil, &ValidationError{Tool: d.Name, Violations: []Violation{{
			Kind:    ViolationInvalid,
			Message: "arguments are not a JSON object: " + err.Error(),
		}}}
	}

	if err = sch.Validate(inst); err != nil {
		var verr *jsv.ValidationError
		if !errors.As(err, &verr) {
			return nil, errors.WithMessagef(err, "failed to validate arguments of %s", d.Name)
		}
		return nil, &ValidationError{Tool: d.Name, Violations: violations(d, inst, verr)}
	}

	doc, _ := inst.(map[string]any)
	args := make(Args, len(d.Params))
	for i := range d.Params {
		p := &d.Params[i]
		if val, ok := doc[p.Name]; ok {
			args[p.Name] = canonical(p.Type, p.Items, val)
			continue
		}
		if p.Default != nil {
			def, err := toDocument(p.Default)
			if err != nil {
				return nil, errors.WithMessagef(err, "invalid default of %s.%s", d.Name, p.Name)
			}
			args[p.Name] = canonical(p.Type, p.Items, def)
		}
	}
	return args, nil
}

// violation ranks: a parameter reports its most basic problem only.
var violationRank = map[ViolationKind]int{
	ViolationMissing: 0,
	ViolationType:    1,
	ViolationEnum:    2,
	ViolationInvalid: 3,
}

// violations flattens the schema errors into one violation per parameter,
// in declaration order, followed by unknown arguments sorted by name.
func violations(d *Descriptor, inst any, verr *jsv.ValidationError) []Violation {
	doc, _ := inst.(map[string]any)
	byParam := map[string]Violation{}
	var unknown, other []string

	add := func(v Violation) {
		if cur, ok := byParam[v.Param]; ok && violationRank[cur.Kind] <= violationRank[v.Kind] {
			return
		}
		byParam[v.Param] = v
	}

	var walk func(e *jsv.ValidationError)
	walk = func(e *jsv.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}

		if len(e.InstanceLocation) == 0 {
			switch k := e.ErrorKind.(type) {
			case *kind.Required:
				for _, name := range k.Missing {
					add(Violation{
						Param:   name,
						Kind:    ViolationMissing,
						Message: fmt.Sprintf("missing required parameter %q", name),
					})
				}
			case *kind.AdditionalProperties:
				unknown = append(unknown, k.Properties...)
			default:
				other = append(other, e.Error())
			}
			return
		}

		name := e.InstanceLocation[0]
		p, ok := d.Param(name)
		if !ok {
			other = append(other, e.Error())
			return
		}
		val := doc[name]
		switch e.ErrorKind.(type) {
		case *kind.Type:
			add(Violation{
				Param:   name,
				Kind:    ViolationType,
				Message: fmt.Sprintf("parameter %q must be %s, got %s", name, typeLabel(p), jsonType(val)),
			})
		case *kind.Enum:
			add(Violation{
				Param:   name,
				Kind:    ViolationEnum,
				Message: fmt.Sprintf("parameter %q must be one of %s, got %s", name, formatAllowed(p.Enum), formatValue(val)),
				Allowed: p.Enum,
			})
		default:
			add(Violation{
				Param:   name,
				Kind:    ViolationInvalid,
				Message: fmt.Sprintf("parameter %q is invalid: %s", name, e.Error()),
			})
		}
	}
	walk(verr)

	list := make([]Violation, 0, len(byParam)+len(unknown)+len(other))
	for _, p := range d.Params {
		if v, ok := byParam[p.Name]; ok {
			list = append(list, v)
		}
	}
	sort.Strings(unknown)
	for i, name := range unknown {
		if i > 0 && unknown[i-1] == name {
			continue
		}
		list = append(list, Violation{
			Param:   name,
			Kind:    ViolationUnknown,
			Message: fmt.Sprintf("unknown parameter %q", name),
		})
	}
	for _, msg := range other {
		list = append(list, Violation{Kind: ViolationInvalid, Message: msg})
	}
	if len(list) == 0 {
		list = append(list, Violation{Kind: ViolationInvalid, Message: verr.Error()})
	}
	return list
}

// checkValues verifies that the enum values and the default of p match
// its type, and that the default is one of the enum values.
func checkValues(p *ParamSpec) error {
	typed := &jsonschema.Schema{Type: string(p.Type)}
	if p.Items != "" {
		typed.Items = &jsonschema.Schema{Type: string(p.Items)}
	}
	sch, err := compileSchema(typed, false)
	if err != nil {
		return err
	}

	for _, e := range p.Enum {
		if !conforms(sch, e) {
			return errors.Errorf("enum value %v of parameter %q is not %s", e, p.Name, p.Type)
		}
	}
	if p.Default == nil {
		return nil
	}
	if !conforms(sch, p.Default) {
		return errors.Errorf("default of parameter %q is not %s", p.Name, p.Type)
	}
	if len(p.Enum) > 0 {
		typed.Enum = p.Enum
		if sch, err = compileSchema(typed, false); err != nil {
			return err
		}
		if !conforms(sch, p.Default) {
			return errors.Errorf("default of parameter %q is not one of %s", p.Name, formatAllowed(p.Enum))
		}
	}
	return nil
}

func conforms(sch *jsv.Schema, v any) bool {
	doc, err := toDocument(v)
	return err == nil && sch.Validate(doc) == nil
}

// canonical converts a validated JSON value to the Go type of t:
// float64 numbers, int64 integers and json.Number-free maps and slices.
func canonical(t ParamType, items ParamType, v any) any {
	switch t {
	case TypeNumber:
		if n, ok := v.(json.Number); ok {
			f, _ := n.Float64()
			return f
		}
	case TypeInteger:
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i
			}
			f, _ := n.Float64()
			return int64(f)
		}
	case TypeArray:
		if list, ok := v.([]any); ok {
			for i, el := range list {
				list[i] = canonical(items, "", el)
			}
			return list
		}
	}
	return plain(v)
}

// plain replaces json.Number with float64 in v.
func plain(v any) any {
	switch val := v.(type) {
	case json.Number:
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, el := range val {
			val[k] = plain(el)
		}
	case []any:
		for i, el := range val {
			val[i] = plain(el)
		}
	}
	return v
}

func typeLabel(p *ParamSpec) string {
	if p.Type == TypeArray && p.Items != "" {
		return fmt.Sprintf("array of %s", p.Items)
	}
	return string(p.Type)
}

// jsonType names the JSON type of a decoded value.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func formatAllowed(list []any) string {
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, fmt.Sprint(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}
