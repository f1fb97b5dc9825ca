package skill

import (
	"github.com/invopop/jsonschema"
)

// JSONSchema builds a JSON schema for the tool's parameters so agent-facing
// collaborators can advertise the tool without knowing the skill kind.
func (t *Tool) JSONSchema() *jsonschema.Schema {
	properties := jsonschema.NewProperties()
	var required []string

	for _, p := range t.Parameters {
		prop := &jsonschema.Schema{
			Description: p.Description,
		}
		switch p.Type {
		case TypeInteger:
			prop.Type = "integer"
		case TypeNumber:
			prop.Type = "number"
		case TypeBoolean:
			prop.Type = "boolean"
		case TypeArray:
			prop.Type = "array"
			prop.Items = &jsonschema.Schema{Type: "string"}
		case TypeEnum:
			prop.Type = "string"
			for _, v := range p.Enum {
				prop.Enum = append(prop.Enum, v)
			}
		default:
			prop.Type = "string"
		}
		if p.Default != nil {
			prop.Default = *p.Default
		}
		properties.Set(p.Name, prop)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Description:          t.Description,
		Properties:           properties,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
