package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/middleware"
)

// RouterConfig collects the handlers served by the engine. MCP is optional.
type RouterConfig struct {
	Health    *HealthHandler
	Query     *QueryHandler
	Dashboard *DashboardHandler
	MCP       http.Handler
	Logger    *zap.Logger
}

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	cfg.Health.RegisterRoutes(r)
	cfg.Query.RegisterRoutes(r)
	cfg.Dashboard.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.MCP != nil {
		r.With(middleware.MCPRequestLogger(logger.Named("mcp"))).Handle("/mcp", cfg.MCP)
	}

	return r
}
