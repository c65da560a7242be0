package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/adapters/datasource/postgres"
	"github.com/askdb/askdb-engine/pkg/config"
	"github.com/askdb/askdb-engine/pkg/database"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/services"
)

// engine is the generation stack shared by serve and ask. It does not include
// the execution-history store, which only serve needs.
type engine struct {
	pools     *datasource.PoolRegistry
	executor  *postgres.Executor
	redis     *redis.Client
	schema    services.SchemaService
	newTools  services.ToolExecutorFactory
	generator services.SQLGenerationService
	logger    *zap.Logger
}

func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine, error) {
	chat, err := llm.NewClient(&llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		AppName:  cfg.LLM.AppName,
		AppURL:   cfg.LLM.AppURL,
		Timeout:  cfg.LLM.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model gateway: %w", err)
	}

	var (
		cache       services.SchemaCache
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		cache = services.NewRedisSchemaCache(redisClient)
		logger.Info("Using redis schema cache", zap.String("addr", cfg.Redis.Addr()))
	} else {
		cache = services.NewMemorySchemaCache()
	}

	pools := datasource.NewPoolRegistry(datasource.PoolRegistryConfig{
		IdleTTL:      cfg.Datasource.PoolIdleTTL,
		PoolMaxConns: cfg.Datasource.PoolMaxConns,
		PoolMinConns: cfg.Datasource.PoolMinConns,
	}, logger)
	executor := postgres.NewExecutor(pools, logger)
	introspector := postgres.NewSchemaIntrospector(pools, logger)

	schema := services.NewSchemaService(introspector, cache, cfg.SchemaCache.TTL, logger)
	newTools := services.NewSampleTableToolFactory(executor, logger)
	generator := services.NewSQLGenerationService(schema, chat, newTools, &services.SQLGenerationConfig{
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		MaxTurns:          cfg.Generation.MaxTurns,
		ParallelToolCalls: cfg.Generation.ParallelToolCalls,
	}, logger)

	return &engine{
		pools:     pools,
		executor:  executor,
		redis:     redisClient,
		schema:    schema,
		newTools:  newTools,
		generator: generator,
		logger:    logger,
	}, nil
}

// close releases pools and the redis client.
func (e *engine) close() {
	if err := e.pools.Close(); err != nil {
		e.logger.Warn("Failed to close connection pools", zap.Error(err))
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}

func queryServiceConfig(cfg *config.Config) *services.QueryServiceConfig {
	return &services.QueryServiceConfig{
		AdHocTimeout:   cfg.Query.AdHocTimeout,
		RefreshTimeout: cfg.Query.RefreshTimeout,
	}
}
