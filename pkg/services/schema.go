package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/models"
	"github.com/askdb/askdb-engine/pkg/prompts"
)

const (
	// DefaultSchemaCacheTTL bounds how long an introspected schema is reused.
	DefaultSchemaCacheTTL = time.Hour
	// DefaultIntrospectionTimeout bounds one shared introspection.
	DefaultIntrospectionTimeout = time.Minute
)

// SchemaService provides the structure of target databases for prompting.
type SchemaService interface {
	// GetSchema returns the cached or freshly introspected schema.
	GetSchema(ctx context.Context, connectionString string) (*models.DatabaseSchema, error)

	// GetFormattedSchema returns the schema rendered for the system prompt.
	GetFormattedSchema(ctx context.Context, connectionString string) (string, error)

	// Invalidate drops the cached schema for a connection string.
	Invalidate(ctx context.Context, connectionString string) error
}

type schemaService struct {
	introspector datasource.SchemaIntrospector
	cache        SchemaCache
	ttl          time.Duration
	timeout      time.Duration
	group        singleflight.Group
	logger       *zap.Logger
}

// NewSchemaService creates a schema service. A nil cache disables caching.
func NewSchemaService(
	introspector datasource.SchemaIntrospector,
	cache SchemaCache,
	ttl time.Duration,
	logger *zap.Logger,
) SchemaService {
	if ttl <= 0 {
		ttl = DefaultSchemaCacheTTL
	}
	return &schemaService{
		introspector: introspector,
		cache:        cache,
		ttl:          ttl,
		timeout:      DefaultIntrospectionTimeout,
		logger:       logger.Named("schema"),
	}
}

var _ SchemaService = (*schemaService)(nil)

func (s *schemaService) GetSchema(ctx context.Context, connectionString string) (*models.DatabaseSchema, error) {
	if s.cache != nil {
		schema, err := s.cache.Get(ctx, connectionString)
		if err != nil {
			s.logger.Warn("Schema cache read failed, introspecting",
				zap.String("error", logging.SanitizeError(err)))
		} else if schema != nil {
			return schema, nil
		}
	}

	// Concurrent misses for the same database share one introspection. It is
	// detached from any single caller; each caller stops waiting on its own ctx.
	ch := s.group.DoChan(cacheKey(connectionString), func() (any, error) {
		introCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.introspect(introCtx, connectionString)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.DatabaseSchema), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *schemaService) introspect(ctx context.Context, connectionString string) (*models.DatabaseSchema, error) {
	start := time.Now()
	schema, err := s.introspector.GetFullSchema(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}

	s.logger.Info("Schema introspected",
		zap.String("datasource", logging.SanitizeConnectionString(connectionString)),
		zap.Int("tables", len(schema.Tables)),
		zap.Int("enums", len(schema.Enums)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, connectionString, schema, s.ttl); err != nil {
			s.logger.Warn("Failed to cache schema", zap.String("error", logging.SanitizeError(err)))
		}
	}
	return schema, nil
}

func (s *schemaService) GetFormattedSchema(ctx context.Context, connectionString string) (string, error) {
	schema, err := s.GetSchema(ctx, connectionString)
	if err != nil {
		return "", err
	}
	return prompts.FormatSchema(schema), nil
}

func (s *schemaService) Invalidate(ctx context.Context, connectionString string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, connectionString)
}
