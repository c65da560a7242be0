package llm

import "github.com/askdb/askdb-engine/pkg/adapters/datasource"

// SampleTableToolName is the only capability exposed to the model.
const SampleTableToolName = "sampleTable"

// ToolDefinition defines a tool that can be called by the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ParameterProperty defines a parameter property in JSON Schema format.
type ParameterProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
}

// NewToolDefinition creates a tool definition with an object parameter schema.
func NewToolDefinition(name, description string, properties map[string]ParameterProperty, required []string) ToolDefinition {
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		prop := map[string]any{
			"type":        v.Type,
			"description": v.Description,
		}
		if len(v.Enum) > 0 {
			prop["enum"] = v.Enum
		}
		if v.Minimum != nil {
			prop["minimum"] = *v.Minimum
		}
		if v.Maximum != nil {
			prop["maximum"] = *v.Maximum
		}
		props[k] = prop
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// SampleTableTool returns the sampleTable definition sent with every generation request.
func SampleTableTool() ToolDefinition {
	minRows, maxRows := datasource.MinSampleRows, datasource.MaxSampleRows
	return NewToolDefinition(
		SampleTableToolName,
		"Get sample rows from a specific table to understand its data structure - MUST be called before generating SQL for tables not previously sampled",
		map[string]ParameterProperty{
			"tableName": {
				Type:        "string",
				Description: "The name of the table to sample from",
			},
			"numRows": {
				Type:        "integer",
				Description: "Number of rows to return (between 1 and 10)",
				Minimum:     &minRows,
				Maximum:     &maxRows,
			},
		},
		[]string{"tableName", "numRows"},
	)
}
