// Package mcp exposes the engine's query tools over the Model Context Protocol.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/mcp/tools"
)

// ServerName is advertised to MCP clients during initialization.
const ServerName = "askdb-engine"

// Config holds what the MCP server needs to register its tools.
type Config struct {
	Version   string
	Tools     *tools.QueryToolDeps
	PoolStats func() datasource.PoolStats // optional
}

// Server wraps the mcp-go MCPServer with the engine's tool set registered.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server with health and query tools registered.
func NewServer(cfg *Config, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	tools.RegisterHealthTool(mcpServer, cfg.Version, cfg.PoolStats)
	if cfg.Tools != nil {
		tools.RegisterQueryTools(mcpServer, cfg.Tools)
	}

	s := &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
	s.logger.Info("MCP server ready", zap.Int("tools", len(mcpServer.ListTools())))
	return s
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns a stateless streamable HTTP transport for the server.
// Routing to /mcp is done by the caller's router.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
