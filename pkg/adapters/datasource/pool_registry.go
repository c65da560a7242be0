package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/metrics"
	"github.com/askdb/askdb-engine/pkg/retry"
)

const (
	DefaultPoolIdleTTL     = 30 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
	DefaultPoolMaxConns    = 10
	DefaultConnectTimeout  = 30 * time.Second
)

var errRegistryClosed = errors.New("pool registry is closed")

// PoolRegistryConfig holds configuration for the pool registry.
type PoolRegistryConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	PoolMaxConns    int32
	PoolMinConns    int32
	// ConnectTimeout bounds building a new pool, retries included.
	ConnectTimeout time.Duration
	Retry          *retry.Config
}

// PoolRegistry owns one pgx pool per distinct connection string. Pools are
// created lazily, reused across requests, evicted after IdleTTL without use and
// closed by Close. It is constructed once and shared by reference.
type PoolRegistry struct {
	mu      sync.RWMutex
	pools   map[string]*managedPool // key: connection string
	cfg     PoolRegistryConfig
	stopped bool
	stopCh  chan struct{}
	logger  *zap.Logger

	building singleflight.Group // key: connection string
}

type managedPool struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastUsed time.Time
}

// NewPoolRegistry creates a registry and starts its idle-eviction goroutine.
func NewPoolRegistry(cfg PoolRegistryConfig, logger *zap.Logger) *PoolRegistry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultPoolIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}

	r := &PoolRegistry{
		pools:  make(map[string]*managedPool),
		cfg:    cfg,
		stopCh: make(chan struct{}),
		logger: logger.Named("pool-registry"),
	}
	go r.evictIdle()
	return r
}

// Get returns the pool for connString, creating it on first use. A cached pool
// that fails a ping is replaced.
func (r *PoolRegistry) Get(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	r.mu.RLock()
	managed, exists := r.pools[connString]
	stopped := r.stopped
	r.mu.RUnlock()

	if stopped {
		return nil, errRegistryClosed
	}

	if exists {
		managed.mu.Lock()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := managed.pool.Ping(pingCtx)
		cancel()
		if err == nil {
			managed.lastUsed = time.Now()
			managed.mu.Unlock()
			return managed.pool, nil
		}
		managed.mu.Unlock()

		r.logger.Warn("Pooled connection unhealthy, recreating",
			zap.String("target", logging.SanitizeConnectionString(connString)),
			zap.String("error", logging.SanitizeError(err)))
		r.remove(connString, managed)
	}

	return r.create(ctx, connString)
}

// create builds the pool for connString outside the registry lock. Concurrent
// first uses of one key share a single build; each caller waits on its own ctx.
func (r *PoolRegistry) create(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	ch := r.building.DoChan(connString, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ConnectTimeout)
		defer cancel()
		return r.build(buildCtx, connString)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pgxpool.Pool), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *PoolRegistry) build(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if pool, ok, err := r.lookup(connString); ok || err != nil {
		return pool, err
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		r.logger.Error("Failed to parse connection string",
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to parse connection string: %s", logging.SanitizeError(err))
	}
	poolConfig.MaxConns = r.cfg.PoolMaxConns
	poolConfig.MinConns = r.cfg.PoolMinConns
	poolConfig.MaxConnIdleTime = r.cfg.IdleTTL

	pool, err := retry.DoIfRetryable(ctx, r.cfg.Retry, func() (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		r.logger.Error("Failed to create pool",
			zap.String("target", logging.SanitizeConnectionString(connString)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to connect to database: %s", logging.SanitizeError(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		pool.Close()
		return nil, errRegistryClosed
	}
	if managed, exists := r.pools[connString]; exists {
		pool.Close()
		managed.touch()
		return managed.pool, nil
	}

	r.pools[connString] = &managedPool{pool: pool, lastUsed: time.Now()}
	metrics.SetPoolsOpen(len(r.pools))

	r.logger.Info("Created connection pool",
		zap.String("target", logging.SanitizeConnectionString(connString)),
		zap.Int("pools", len(r.pools)))

	return pool, nil
}

// lookup reports a pool stored for connString since the caller last checked.
func (r *PoolRegistry) lookup(connString string) (*pgxpool.Pool, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return nil, false, errRegistryClosed
	}
	if managed, exists := r.pools[connString]; exists {
		managed.touch()
		return managed.pool, true, nil
	}
	return nil, false, nil
}

func (m *managedPool) touch() {
	m.mu.Lock()
	m.lastUsed = time.Now()
	m.mu.Unlock()
}

// remove closes and forgets the pool for key if it is still the given entry.
func (r *PoolRegistry) remove(key string, stale *managedPool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if managed, exists := r.pools[key]; exists && managed == stale {
		managed.pool.Close()
		delete(r.pools, key)
		metrics.SetPoolsOpen(len(r.pools))
	}
}

func (r *PoolRegistry) evictIdle() {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.performCleanup(time.Now())
		case <-r.stopCh:
			return
		}
	}
}

// performCleanup closes pools idle for longer than IdleTTL as of now.
func (r *PoolRegistry) performCleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return 0
	}

	evicted := 0
	for key, managed := range r.pools {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > r.cfg.IdleTTL {
			managed.pool.Close()
			delete(r.pools, key)
			evicted++
		}
	}

	if evicted > 0 {
		metrics.SetPoolsOpen(len(r.pools))
		r.logger.Info("Evicted idle pools",
			zap.Int("count", evicted),
			zap.Int("remaining", len(r.pools)))
	}
	return evicted
}

// Close closes every pool and stops eviction. Safe to call more than once.
func (r *PoolRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}
	r.stopped = true
	close(r.stopCh)

	for _, managed := range r.pools {
		managed.pool.Close()
	}
	r.pools = make(map[string]*managedPool)
	metrics.SetPoolsOpen(0)

	r.logger.Info("Pool registry closed")
	return nil
}

// PoolStats summarizes the registry.
type PoolStats struct {
	Pools             int `json:"pools"`
	AcquiredConns     int `json:"acquired_conns"`
	TotalConns        int `json:"total_conns"`
	OldestIdleSeconds int `json:"oldest_idle_seconds"`
}

// Stats returns a snapshot of registry state.
func (r *PoolRegistry) Stats() PoolStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	stats := PoolStats{Pools: len(r.pools)}
	for _, managed := range r.pools {
		s := managed.pool.Stat()
		stats.AcquiredConns += int(s.AcquiredConns())
		stats.TotalConns += int(s.TotalConns())

		managed.mu.Lock()
		idle := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	return stats
}
