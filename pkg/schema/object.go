package schema

import (
	"slices"

	"github.com/invopop/jsonschema"
)

// Property is a flat description of one top level object property.
type Property struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []any
	Default     any
	Items       *jsonschema.Schema
}

// NewObject builds an object schema with the properties in the given order.
// When closed is set, additional properties are not allowed.
func NewObject(props []Property, closed bool) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, p := range props {
		ps := &jsonschema.Schema{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
			Default:     p.Default,
			Items:       p.Items,
		}
		s.Properties.Set(p.Name, ps)
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	if closed {
		s.AdditionalProperties = jsonschema.FalseSchema
	}
	return s
}

// Properties returns the top level properties of an object schema in
// declaration order.
func Properties(s *jsonschema.Schema) []Property {
	if s == nil || s.Properties == nil {
		return nil
	}
	props := make([]Property, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		v := pair.Value
		p := Property{
			Name:     pair.Key,
			Required: slices.Contains(s.Required, pair.Key),
		}
		if v != nil {
			p.Type = v.Type
			p.Description = v.Description
			p.Enum = v.Enum
			p.Default = v.Default
			p.Items = v.Items
			if p.Type == "" && len(v.AnyOf) > 0 {
				// nullable pointers reflect as anyOf[T, null]
				p.Type = v.AnyOf[0].Type
			}
		}
		props = append(props, p)
	}
	return props
}
