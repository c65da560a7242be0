package prompts

import (
	"fmt"
	"strings"
)

// outputGrammar is shared by the initial and follow-up prompts.
const outputGrammar = "## Output Format\n" +
	"Return ONLY valid JSON with this structure:\n" +
	"```json\n" +
	`{
  "display": [
    {
      "type": "table|stat|chart",
      "sql": "SELECT ... FROM ...",
      "description": "What this display shows"
    }
  ],
  "explanation": "Optional short note on how the request was interpreted"
}
` + "```\n\n" +
	"Each display object carries exactly ONE SQL statement. Never share a single query between displays.\n\n" +
	"### Visualization Types\n\n" +
	"#### 1. Data Tables\n" +
	"```json\n" +
	`{
  "type": "table",
  "sql": "",
  "columns": {
    "database_column": "User-Friendly Label",
    "another_column": "Another Label"
  },
  "description": "What this table shows"
}
` + "```\n\n" +
	"#### 2. Statistical Metrics\n" +
	"```json\n" +
	`{
  "type": "stat",
  "sql": "",
  "id": "column id from SQL",
  "name": "Title of stat card",
  "unit": "Optional unit (e.g. '%', 'USD')",
  "description": "What this metric represents"
}
` + "```\n\n" +
	"#### 3. Charts\n" +
	"```json\n" +
	`{
  "type": "chart",
  "chartType": "bar|line|pie|scatter",
  "title": "Chart Title",
  "sql": "",
  "xAxis": {
    "column": "x_axis_column_name",
    "label": "X-Axis Label"
  },
  "yAxis": {
    "column": "y_axis_column_name",
    "label": "Y-Axis Label"
  },
  "category": {
    "column": "optional_series_column_name",
    "label": "Series Label"
  },
  "description": "What this chart visualizes"
}
` + "```\n\n"

const sqlPractices = `## SQL Best Practices
- Use joins based on foreign keys.
- Handle NULLs (COALESCE, IS NULL).
- Use aliases.
- Add ORDER BY.
- Only SELECT statements; the database connection is read-only.
`

// BuildSQLGenerationPrompt creates the system prompt for a fresh request.
func BuildSQLGenerationPrompt(schemaText string) string {
	var prompt strings.Builder

	prompt.WriteString("# PostgreSQL Query Generator\n\n")
	prompt.WriteString("You are an expert SQL engineer. Translate natural language requests into optimized PostgreSQL queries.\n\n")

	writeSchemaBlock(&prompt, schemaText)

	prompt.WriteString("## Core Workflow\n")
	prompt.WriteString("1. Analyze Request: Identify tables, joins, conditions.\n")
	fmt.Fprintf(&prompt, "2. Sample Data: MUST call `sampleTable(tableName, numRows = %d)` for relevant tables before writing SQL to understand structure, types, relationships (NULLs, keys, ranges).\n", defaultSampleRows)
	prompt.WriteString("3. Generate SQL: Create optimized PostgreSQL queries for each visualization.\n")
	prompt.WriteString("4. Recommend Visualizations: Suggest appropriate displays (table, stat, chart).\n")
	prompt.WriteString("5. Return JSON Response: Output ONLY valid JSON matching the specified structure below. No prose outside the JSON.\n\n")

	prompt.WriteString(outputGrammar)
	prompt.WriteString(sqlPractices)
	prompt.WriteString("\nRemember: Output ONLY valid JSON.")

	return prompt.String()
}

// defaultSampleRows is the row count suggested to the model.
const defaultSampleRows = 5

func writeSchemaBlock(prompt *strings.Builder, schemaText string) {
	prompt.WriteString("## Database Schema\n")
	prompt.WriteString("```\n")
	prompt.WriteString(schemaText)
	if !strings.HasSuffix(schemaText, "\n") {
		prompt.WriteString("\n")
	}
	prompt.WriteString("```\n\n")
}
