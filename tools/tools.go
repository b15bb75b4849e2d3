package tools

import (
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llmutils"
	"github.com/effective-security/toolflow/pkg/schema"
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the descriptor parameters.
func (d *Descriptor) Schema() *jsonschema.Schema {
	props := make([]schema.Property, 0, len(d.Params))
	for _, p := range d.Params {
		prop := schema.Property{
			Name:        p.Name,
			Type:        string(p.Type),
			Description: p.Description,
			Required:    p.Required,
			Enum:        p.Enum,
			Default:     p.Default,
		}
		if p.Items != "" {
			prop.Items = &jsonschema.Schema{Type: string(p.Items)}
		}
		props = append(props, prop)
	}
	return schema.NewObject(props, d.Strict)
}

// LLMTool returns the function definition sent to the model.
func (d *Descriptor) LLMTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema(),
			Strict:      d.Strict,
		},
	}
}

// LLMTools returns the function definitions of all registered tools.
func (r *Registry) LLMTools() []llms.Tool {
	list := r.List()
	defs := make([]llms.Tool, 0, len(list))
	for _, d := range list {
		defs = append(defs, d.LLMTool())
	}
	return defs
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns names and descriptions of the tools as fenced
// JSON, for use in a system prompt.
func GetDescriptions(list ...*Descriptor) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}
