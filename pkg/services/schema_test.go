package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/askdb/askdb-engine/pkg/models"
)

func testSchema() *models.DatabaseSchema {
	return &models.DatabaseSchema{
		Tables: []models.DatabaseTable{{
			Name:     "users",
			RowCount: 3,
			Columns: []models.DatabaseColumn{
				{Name: "id", DataType: "integer", UDTName: "int4", IsPrimaryKey: true},
				{Name: "email", DataType: "text", UDTName: "text", IsNullable: true},
			},
		}},
		Enums: []models.DatabaseEnum{{Name: "order_status", Values: []string{"pending", "shipped"}}},
	}
}

func TestSchemaService_CachesIntrospection(t *testing.T) {
	intro := &mockIntrospector{schema: testSchema()}
	svc := NewSchemaService(intro, NewMemorySchemaCache(), time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := svc.GetSchema(ctx, testConnStr)
	require.NoError(t, err)
	second, err := svc.GetSchema(ctx, testConnStr)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, intro.count())

	_, err = svc.GetSchema(ctx, "postgres://other/db")
	require.NoError(t, err)
	assert.Equal(t, 2, intro.count())
}

func TestSchemaService_Invalidate(t *testing.T) {
	intro := &mockIntrospector{schema: testSchema()}
	svc := NewSchemaService(intro, NewMemorySchemaCache(), time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.GetSchema(ctx, testConnStr)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, testConnStr))
	_, err = svc.GetSchema(ctx, testConnStr)
	require.NoError(t, err)

	assert.Equal(t, 2, intro.count())
}

func TestSchemaService_NoCache(t *testing.T) {
	intro := &mockIntrospector{schema: testSchema()}
	svc := NewSchemaService(intro, nil, 0, zaptest.NewLogger(t))

	for range 3 {
		_, err := svc.GetSchema(context.Background(), testConnStr)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, intro.count())
	assert.NoError(t, svc.Invalidate(context.Background(), testConnStr))
}

func TestSchemaService_ConcurrentMissesShareIntrospection(t *testing.T) {
	intro := &mockIntrospector{schema: testSchema(), release: make(chan struct{})}
	svc := NewSchemaService(intro, NewMemorySchemaCache(), time.Hour, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	results := make([]*models.DatabaseSchema, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := svc.GetSchema(context.Background(), testConnStr)
			assert.NoError(t, err)
			results[i] = s
		}()
	}

	require.Eventually(t, func() bool { return intro.count() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(intro.release)
	wg.Wait()

	assert.Equal(t, 1, intro.count())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestSchemaService_CanceledCallerDoesNotFailOthers(t *testing.T) {
	intro := &mockIntrospector{schema: testSchema(), release: make(chan struct{})}
	svc := NewSchemaService(intro, NewMemorySchemaCache(), time.Hour, zaptest.NewLogger(t))

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.GetSchema(leaderCtx, testConnStr)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return intro.count() == 1 }, time.Second, time.Millisecond)

	type result struct {
		schema *models.DatabaseSchema
		err    error
	}
	follower := make(chan result, 1)
	go func() {
		s, err := svc.GetSchema(context.Background(), testConnStr)
		follower <- result{s, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting")
	}

	close(intro.release)
	select {
	case res := <-follower:
		require.NoError(t, res.err)
		assert.Equal(t, testSchema(), res.schema)
	case <-time.After(time.Second):
		t.Fatal("waiting caller never returned")
	}
	assert.Equal(t, 1, intro.count())

	// The detached introspection still populated the cache.
	_, err := svc.GetSchema(context.Background(), testConnStr)
	require.NoError(t, err)
	assert.Equal(t, 1, intro.count())
}

func TestSchemaService_IntrospectionErrorNotCached(t *testing.T) {
	intro := &mockIntrospector{err: errors.New("password authentication failed")}
	svc := NewSchemaService(intro, NewMemorySchemaCache(), time.Hour, zaptest.NewLogger(t))

	_, err := svc.GetSchema(context.Background(), testConnStr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to introspect schema")

	intro.err = nil
	intro.schema = testSchema()
	_, err = svc.GetSchema(context.Background(), testConnStr)
	require.NoError(t, err)
	assert.Equal(t, 2, intro.count())
}

func TestSchemaService_GetFormattedSchema(t *testing.T) {
	svc := NewSchemaService(&mockIntrospector{schema: testSchema()}, nil, 0, zaptest.NewLogger(t))

	text, err := svc.GetFormattedSchema(context.Background(), testConnStr)
	require.NoError(t, err)
	assert.Contains(t, text, "- order_status: pending, shipped")
	assert.Contains(t, text, "### users (3 rows)")
	assert.Contains(t, text, "- id: integer (int4) NOT NULL [PRIMARY KEY]")
}

func TestMemorySchemaCache_Expiry(t *testing.T) {
	cache := NewMemorySchemaCache()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testConnStr, testSchema(), time.Minute))

	got, err := cache.Get(ctx, testConnStr)
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(time.Minute)
	got, err = cache.Get(ctx, testConnStr)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheKey_HidesConnectionString(t *testing.T) {
	key := cacheKey(testConnStr)
	assert.Len(t, key, 64)
	assert.NotContains(t, key, "secret")
	assert.Equal(t, key, cacheKey(testConnStr))
	assert.NotEqual(t, key, cacheKey(testConnStr+"?sslmode=disable"))
}

func newTestRedisCache(t *testing.T) (*RedisSchemaCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSchemaCache(client), mr
}

func TestRedisSchemaCache_RoundTrip(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	got, err := cache.Get(ctx, testConnStr)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, testConnStr, testSchema(), time.Hour))

	key := redisSchemaKeyPrefix + cacheKey(testConnStr)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	got, err = cache.Get(ctx, testConnStr)
	require.NoError(t, err)
	assert.Equal(t, testSchema(), got)

	require.NoError(t, cache.Delete(ctx, testConnStr))
	assert.False(t, mr.Exists(key))
}

func TestRedisSchemaCache_Expiry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testConnStr, testSchema(), time.Minute))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, testConnStr)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSchemaCache_CorruptEntry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	require.NoError(t, mr.Set(redisSchemaKeyPrefix+cacheKey(testConnStr), "{not json"))

	_, err := cache.Get(context.Background(), testConnStr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode cached schema")
}

func TestSchemaService_FallsBackWhenRedisUnavailable(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	mr.Close()

	intro := &mockIntrospector{schema: testSchema()}
	svc := NewSchemaService(intro, cache, time.Hour, zaptest.NewLogger(t))

	got, err := svc.GetSchema(context.Background(), testConnStr)
	require.NoError(t, err)
	assert.Equal(t, "users", got.Tables[0].Name)
	assert.Equal(t, 1, intro.count())
}
