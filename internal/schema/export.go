package schema

// Document is the machine-readable form of the schema table handed to
// clients in a schemas_response.
type Document struct {
	Schema      string                `json:"$schema"`
	Title       string                `json:"title"`
	Version     string                `json:"version"`
	Definitions map[string]Definition `json:"definitions"`
}

// Definition is the JSON Schema object describing one event kind.
type Definition struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property describes one field. Type is a string for a single category and a
// list for a union of categories.
type Property struct {
	Type any      `json:"type,omitempty"`
	Enum []string `json:"enum,omitempty"`
}

// Export renders the full schema table as a JSON Schema document.
func Export() Document {
	doc := Document{
		Schema:      "http://json-schema.org/draft-07/schema#",
		Title:       "agi.diy Event Schemas",
		Version:     "1.0.0",
		Definitions: make(map[string]Definition, len(schemas)),
	}

	for kind, s := range schemas {
		props := make(map[string]Property, len(s.Required)+len(s.Optional))
		for _, group := range [][]string{s.Required, s.Optional} {
			for _, field := range group {
				props[field] = exportConstraint(s.Fields[field])
			}
		}

		required := make([]string, len(s.Required))
		copy(required, s.Required)

		doc.Definitions[kind] = Definition{
			Type:                 "object",
			Properties:           props,
			Required:             required,
			AdditionalProperties: false,
		}
	}

	return doc
}

func exportConstraint(c Constraint) Property {
	if c.Enum != nil {
		return Property{Enum: append([]string(nil), c.Enum...)}
	}
	switch len(c.Types) {
	case 0:
		return Property{}
	case 1:
		return Property{Type: string(c.Types[0])}
	default:
		types := make([]string, len(c.Types))
		for i, t := range c.Types {
			types[i] = string(t)
		}
		return Property{Type: types}
	}
}
