package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/config"
	"github.com/askdb/askdb-engine/pkg/handlers"
	"github.com/askdb/askdb-engine/pkg/mcp"
	"github.com/askdb/askdb-engine/pkg/mcp/tools"
	"github.com/askdb/askdb-engine/pkg/repositories"
	"github.com/askdb/askdb-engine/pkg/services"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and MCP endpoint when enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load("")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("llm_endpoint", cfg.LLM.Endpoint),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("max_turns", cfg.Generation.MaxTurns),
		zap.Bool("mcp_enabled", cfg.MCPEnabled))

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.close()

	queries := services.NewQueryService(eng.executor, repositories.NewExecutionRepository(db), queryServiceConfig(cfg), logger)

	routerCfg := &handlers.RouterConfig{
		Health:    handlers.NewHealthHandler(cfg, eng.pools, logger),
		Query:     handlers.NewQueryHandler(eng.generator, queries, logger),
		Dashboard: handlers.NewDashboardHandler(queries, logger),
		Logger:    logger,
	}
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(&mcp.Config{
			Version: cfg.Version,
			Tools: &tools.QueryToolDeps{
				Generator: eng.generator,
				Queries:   queries,
				Schema:    eng.schema,
				NewTools:  eng.newTools,
				Logger:    logger,
			},
			PoolStats: eng.pools.Stats,
		}, logger)
		routerCfg.MCP = mcpServer.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handlers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting askdb-engine",
			zap.String("addr", srv.Addr),
			zap.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
