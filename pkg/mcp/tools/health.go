package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
)

type healthResult struct {
	Status  string                `json:"status"`
	Version string                `json:"version"`
	Pools   *datasource.PoolStats `json:"pools,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server. stats may
// be nil when no pool registry is running.
func RegisterHealthTool(s *server.MCPServer, version string, stats func() datasource.PoolStats) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and target database pool usage"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if stats != nil {
			snapshot := stats()
			result.Pools = &snapshot
		}
		return jsonResult(result)
	})
}
