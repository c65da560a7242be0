package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askdb/askdb-engine/pkg/models"
)

// SchemaCache stores introspected schemas by connection string. Get returns
// (nil, nil) on a miss.
type SchemaCache interface {
	Get(ctx context.Context, connectionString string) (*models.DatabaseSchema, error)
	Set(ctx context.Context, connectionString string, schema *models.DatabaseSchema, ttl time.Duration) error
	Delete(ctx context.Context, connectionString string) error
}

// cacheKey hashes the connection string so credentials never become a key.
func cacheKey(connectionString string) string {
	sum := sha256.Sum256([]byte(connectionString))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	schema    *models.DatabaseSchema
	expiresAt time.Time
}

// MemorySchemaCache is a process-local TTL cache.
type MemorySchemaCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemorySchemaCache creates an empty in-memory cache.
func NewMemorySchemaCache() *MemorySchemaCache {
	return &MemorySchemaCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemorySchemaCache) Get(_ context.Context, connectionString string) (*models.DatabaseSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(connectionString)
	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return entry.schema, nil
}

func (c *MemorySchemaCache) Set(_ context.Context, connectionString string, schema *models.DatabaseSchema, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(connectionString)] = memoryEntry{schema: schema, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemorySchemaCache) Delete(_ context.Context, connectionString string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(connectionString))
	return nil
}

const redisSchemaKeyPrefix = "askdb:schema:"

// RedisSchemaCache shares schemas between engine instances.
type RedisSchemaCache struct {
	client redis.Cmdable
}

// NewRedisSchemaCache wraps a connected redis client.
func NewRedisSchemaCache(client redis.Cmdable) *RedisSchemaCache {
	return &RedisSchemaCache{client: client}
}

func (c *RedisSchemaCache) Get(ctx context.Context, connectionString string) (*models.DatabaseSchema, error) {
	data, err := c.client.Get(ctx, redisSchemaKeyPrefix+cacheKey(connectionString)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var schema models.DatabaseSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode cached schema: %w", err)
	}
	return &schema, nil
}

func (c *RedisSchemaCache) Set(ctx context.Context, connectionString string, schema *models.DatabaseSchema, ttl time.Duration) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	if err := c.client.Set(ctx, redisSchemaKeyPrefix+cacheKey(connectionString), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisSchemaCache) Delete(ctx context.Context, connectionString string) error {
	if err := c.client.Del(ctx, redisSchemaKeyPrefix+cacheKey(connectionString)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

var (
	_ SchemaCache = (*MemorySchemaCache)(nil)
	_ SchemaCache = (*RedisSchemaCache)(nil)
)
