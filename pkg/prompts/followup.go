package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/askdb/askdb-engine/pkg/models"
)

// maxExcerptRows bounds how many previous result rows are shown to the model.
const maxExcerptRows = 2

// BuildFollowupSQLPrompt creates the system prompt for refining a previous
// answer. It carries the previous query, each previous display with a short
// result excerpt, the previous explanation and the new instruction.
func BuildFollowupSQLPrompt(schemaText string, prev *models.QueryContext, instruction string) string {
	var prompt strings.Builder

	prompt.WriteString("# PostgreSQL Query Refinement\n\n")
	prompt.WriteString("You are an expert SQL engineer. A user already received SQL displays for an earlier request and now wants them changed or extended.\n\n")

	writeSchemaBlock(&prompt, schemaText)

	prompt.WriteString("## Previous Request\n")
	if prev != nil {
		prompt.WriteString(prev.Query)
	}
	prompt.WriteString("\n\n")

	prompt.WriteString("## Previous Displays\n")
	if prev == nil || len(prev.Display) == 0 {
		prompt.WriteString("(none)\n")
	} else {
		for i, d := range prev.Display {
			writePreviousDisplay(&prompt, i+1, d)
		}
	}
	prompt.WriteString("\n")

	if prev != nil && prev.Explanation != "" {
		prompt.WriteString("## Previous Explanation\n")
		prompt.WriteString(prev.Explanation)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Follow-up Instruction\n")
	prompt.WriteString(instruction)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Core Workflow\n")
	prompt.WriteString("1. Decide which previous displays to keep unchanged, which to modify and which new ones to append.\n")
	prompt.WriteString("2. Sample Data: call `sampleTable` only for tables that were not examined before. Tables used by the previous SQL are already known.\n")
	prompt.WriteString("3. Return the COMPLETE updated display list, including unchanged displays, as JSON.\n\n")

	prompt.WriteString(outputGrammar)
	prompt.WriteString(sqlPractices)
	prompt.WriteString("\nRemember: Output ONLY valid JSON.")

	return prompt.String()
}

func writePreviousDisplay(prompt *strings.Builder, n int, d models.DisplayResult) {
	fmt.Fprintf(prompt, "### Display %d (%s)\n", n, d.Type)
	if d.Description != "" {
		fmt.Fprintf(prompt, "Description: %s\n", d.Description)
	}
	prompt.WriteString("SQL:\n```sql\n")
	prompt.WriteString(strings.TrimSpace(d.SQL))
	prompt.WriteString("\n```\n")

	prompt.WriteString("Results excerpt:\n```json\n")
	prompt.WriteString(resultsExcerpt(d.Results))
	prompt.WriteString("\n```\n")
}

// resultsExcerpt encodes at most maxExcerptRows rows.
func resultsExcerpt(rows []map[string]any) string {
	if len(rows) > maxExcerptRows {
		rows = rows[:maxExcerptRows]
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
