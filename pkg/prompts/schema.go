// Package prompts renders schema text and the system prompts for SQL generation.
package prompts

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb-engine/pkg/models"
)

// FormatSchema renders a schema as Markdown for the model. Output is a pure
// function of the input: tables and enums appear in the order given.
func FormatSchema(schema *models.DatabaseSchema) string {
	var out strings.Builder

	if len(schema.Enums) > 0 {
		out.WriteString("## Enums (Custom Types)\n")
		for _, e := range schema.Enums {
			fmt.Fprintf(&out, "- %s: %s\n", e.Name, strings.Join(e.Values, ", "))
		}
		out.WriteString("\n")
	}

	out.WriteString("## Tables\n")
	for _, table := range schema.Tables {
		fmt.Fprintf(&out, "### %s (%d rows)\n", table.Name, table.RowCount)
		out.WriteString("#### Columns:\n")
		for _, col := range table.Columns {
			writeColumn(&out, col)
		}
		out.WriteString("\n")
	}

	return out.String()
}

func writeColumn(out *strings.Builder, col models.DatabaseColumn) {
	fmt.Fprintf(out, "- %s: %s", col.Name, col.DataType)
	if col.UDTName != "" && col.UDTName != col.DataType {
		fmt.Fprintf(out, " (%s)", col.UDTName)
	}
	if !col.IsNullable {
		out.WriteString(" NOT NULL")
	}
	if col.DefaultValue != nil && *col.DefaultValue != "" {
		fmt.Fprintf(out, " DEFAULT %s", *col.DefaultValue)
	}
	if col.IsPrimaryKey {
		out.WriteString(" [PRIMARY KEY]")
	}
	if col.IsForeignKey {
		fmt.Fprintf(out, " [FOREIGN KEY → %s.%s]", col.ForeignTable, col.ForeignColumn)
	}
	out.WriteString("\n")
}
