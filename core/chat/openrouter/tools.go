package openrouter

import (
	"github.com/invopop/jsonschema"
	"github.com/tinybuddy/buddy-core/core/chat"
)

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

func toTools(tools []chat.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	wireTools := make([]tool, 0, len(tools))
	for _, t := range tools {
		var parameters *jsonschema.Schema
		if t.Parameters != nil {
			parameters = reflector.Reflect(t.Parameters)
			// The backend expects a bare object schema for arguments.
			parameters.Version = ""
		}
		wireTools = append(wireTools, tool{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  parameters,
			},
		})
	}
	return wireTools
}
