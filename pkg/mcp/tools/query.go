// Package tools provides the MCP tools of askdb-engine.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/services"
)

// QueryToolDeps contains dependencies for the query tools.
type QueryToolDeps struct {
	Generator services.SQLGenerationService
	Queries   services.QueryService
	Schema    services.SchemaService
	NewTools  services.ToolExecutorFactory
	Logger    *zap.Logger
}

// generateSQLResult mirrors the HTTP query response. Display carries rows
// only when the tool was asked to execute.
type generateSQLResult struct {
	Query       string `json:"query"`
	Display     any    `json:"display"`
	Explanation string `json:"explanation,omitempty"`
}

// RegisterQueryTools registers generate_sql, sample_table and get_schema.
func RegisterQueryTools(s *server.MCPServer, deps *QueryToolDeps) {
	registerGenerateSQLTool(s, deps)
	registerSampleTableTool(s, deps)
	registerGetSchemaTool(s, deps)
}

func registerGenerateSQLTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"generate_sql",
		mcp.WithDescription(
			"Translate a natural-language question about a PostgreSQL database into one or more read-only SQL queries "+
				"with display metadata (table, stat or chart). The model may sample table rows while it works. "+
				"With execute=true (the default) every query is run read-only and its rows are attached.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer, e.g. 'top 5 customers by revenue'")),
		mcp.WithString("connection_string", mcp.Required(), mcp.Description("PostgreSQL connection string of the target database")),
		mcp.WithBoolean("execute", mcp.DefaultBool(true), mcp.Description("Run the generated queries and include their rows")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult("invalid_arguments", err.Error()), nil
		}
		connStr, err := req.RequireString("connection_string")
		if err != nil {
			return NewErrorResult("invalid_arguments", err.Error()), nil
		}
		query = strings.TrimSpace(query)

		result, err := deps.Generator.GenerateSQL(ctx, query, connStr, nil)
		if err != nil {
			return toolFailure(deps.Logger, "generate_sql", err)
		}

		out := generateSQLResult{Query: query, Display: result.Display, Explanation: result.Explanation}
		if req.GetBool("execute", true) {
			displays, err := deps.Queries.ExecuteDisplays(ctx, result.Display, connStr, nil)
			if err != nil {
				return toolFailure(deps.Logger, "generate_sql", err)
			}
			out.Display = displays
		}

		return jsonResult(out)
	})
}

func registerSampleTableTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"sample_table",
		mcp.WithDescription("Return a random sample of rows from a table, as the SQL generator sees them."),
		mcp.WithString("table_name", mcp.Required(), mcp.Description("Unquoted table name, e.g. 'orders'")),
		mcp.WithNumber("num_rows",
			mcp.Description("Number of rows to return"),
			mcp.DefaultNumber(datasource.DefaultSampleRows),
			mcp.Min(datasource.MinSampleRows),
			mcp.Max(datasource.MaxSampleRows),
		),
		mcp.WithString("connection_string", mcp.Required(), mcp.Description("PostgreSQL connection string of the target database")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table_name")
		if err != nil {
			return NewErrorResult("invalid_arguments", err.Error()), nil
		}
		connStr, err := req.RequireString("connection_string")
		if err != nil {
			return NewErrorResult("invalid_arguments", err.Error()), nil
		}

		// Route through the same executor the model uses so validation and
		// clamping are identical.
		args, err := json.Marshal(map[string]any{
			"tableName": strings.TrimSpace(table),
			"numRows":   req.GetInt("num_rows", datasource.DefaultSampleRows),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}

		rows, err := deps.NewTools(connStr, nil).ExecuteTool(ctx, llm.SampleTableToolName, string(args))
		if err != nil {
			var argErr *llm.ToolArgumentError
			if errors.As(err, &argErr) {
				return NewErrorResult("invalid_arguments", argErr.Error()), nil
			}
			return toolFailure(deps.Logger, "sample_table", err)
		}
		return mcp.NewToolResultText(rows), nil
	})
}

func registerGetSchemaTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription("Return the schema text (tables, columns, keys, enums, approximate row counts) the SQL generator is prompted with."),
		mcp.WithString("connection_string", mcp.Required(), mcp.Description("PostgreSQL connection string of the target database")),
		mcp.WithBoolean("refresh", mcp.DefaultBool(false), mcp.Description("Discard the cached schema and introspect again")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connStr, err := req.RequireString("connection_string")
		if err != nil {
			return NewErrorResult("invalid_arguments", err.Error()), nil
		}

		if req.GetBool("refresh", false) {
			if err := deps.Schema.Invalidate(ctx, connStr); err != nil {
				deps.Logger.Warn("Failed to invalidate cached schema", zap.Error(err))
			}
		}

		text, err := deps.Schema.GetFormattedSchema(ctx, connStr)
		if err != nil {
			return toolFailure(deps.Logger, "get_schema", err)
		}
		return mcp.NewToolResultText(text), nil
	})
}

// toolFailure turns actionable errors into error results and everything
// else into a protocol error.
func toolFailure(logger *zap.Logger, tool string, err error) (*mcp.CallToolResult, error) {
	if result, ok := errorResult(err); ok {
		logger.Info("Tool returned error result", zap.String("tool", tool), zap.String("error", logging.SanitizeError(err)))
		return result, nil
	}
	logger.Error("Tool failed", zap.String("tool", tool), zap.String("error", logging.SanitizeError(err)))
	return nil, fmt.Errorf("%s failed: %w", tool, err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
