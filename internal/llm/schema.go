package llm

// Property is one field of a function's argument object. Array properties
// describe their element with Items, object properties nest Properties.
type Property struct {
	Name        string
	Type        string
	Description string
	Items       *Property
	Properties  []Property
	Required    []string
}

// FunctionSchema declares a structured output the model must produce.
type FunctionSchema struct {
	Name        string
	Description string
	Properties  []Property
	Required    []string
}

// Parameters renders the JSON schema object used by the OpenAI and
// Anthropic tool APIs.
func (f FunctionSchema) Parameters() map[string]any {
	return objectSchema(f.Properties, f.Required)
}

func objectSchema(props []Property, required []string) map[string]any {
	properties := make(map[string]any, len(props))
	for _, p := range props {
		properties[p.Name] = p.jsonSchema()
	}
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func (p Property) jsonSchema() map[string]any {
	if p.Type == "object" {
		out := objectSchema(p.Properties, p.Required)
		if p.Description != "" {
			out["description"] = p.Description
		}
		return out
	}
	out := map[string]any{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Items != nil {
		out["items"] = p.Items.jsonSchema()
	}
	return out
}
