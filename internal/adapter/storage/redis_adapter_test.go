package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "test-idem-key-" + uuid.NewString()

	ok, err := adapter.SetIdempotency(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "expected first call to succeed")

	ok, err = adapter.SetIdempotency(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "expected second call to fail")

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}

func TestReleaseIdempotency(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "test-release-key-" + uuid.NewString()

	ok, err := adapter.SetIdempotency(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, adapter.ReleaseIdempotency(ctx, key))

	ok, err = adapter.SetIdempotency(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "a released key can be claimed again")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "concurrent-idem-key-" + uuid.NewString()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, key)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.EqualValues(t, 1, successCount.Load())
}

type countingCatalog struct {
	*MemoryAdapter
	calls atomic.Int32
}

func (c *countingCatalog) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	c.calls.Add(1)
	return c.MemoryAdapter.GetProduct(ctx, productID)
}

func TestCachedCatalog_ReadThrough(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	backing := &countingCatalog{MemoryAdapter: NewMemoryAdapter()}
	id := "cached-product-" + uuid.NewString()
	require.NoError(t, backing.PutProduct(ctx, domain.Product{
		ID: id, Name: "Lamp", Price: decimal.RequireFromString("19.99"), QuantityAvailable: 4,
	}))

	catalog := NewCachedCatalog(client, backing, time.Minute, zap.NewNop())
	t.Cleanup(func() { catalog.Invalidate(context.Background(), id) })

	first, err := catalog.GetProduct(ctx, id)
	require.NoError(t, err)
	second, err := catalog.GetProduct(ctx, id)
	require.NoError(t, err)

	assert.EqualValues(t, 1, backing.calls.Load(), "second read is served from redis")
	assert.Equal(t, "Lamp", second.Name)
	assert.True(t, first.Price.Equal(second.Price), "price %s survives the cache", second.Price)
	assert.Equal(t, 4, second.QuantityAvailable)

	require.NoError(t, backing.PutProduct(ctx, domain.Product{
		ID: id, Name: "Lamp", Price: decimal.RequireFromString("24.50"), QuantityAvailable: 4,
	}))
	require.NoError(t, catalog.Invalidate(ctx, id))

	third, err := catalog.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "24.50", third.Price.StringFixed(2))
	assert.EqualValues(t, 2, backing.calls.Load())
}

func TestCachedCatalog_MissesAreNotCached(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	backing := &countingCatalog{MemoryAdapter: NewMemoryAdapter()}
	id := "late-product-" + uuid.NewString()

	catalog := NewCachedCatalog(client, backing, time.Minute, zap.NewNop())
	t.Cleanup(func() { catalog.Invalidate(context.Background(), id) })

	_, err := catalog.GetProduct(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, backing.PutProduct(ctx, domain.Product{ID: id, Name: "Late", Price: decimal.NewFromInt(1)}))

	p, err := catalog.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Late", p.Name)
}

func TestCachedCatalog_DiscardsUnreadableEntry(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	backing := &countingCatalog{MemoryAdapter: NewMemoryAdapter()}
	id := "corrupt-product-" + uuid.NewString()
	require.NoError(t, backing.PutProduct(ctx, domain.Product{ID: id, Name: "Fixed", Price: decimal.NewFromInt(3)}))
	require.NoError(t, client.Set(ctx, productKeyPrefix+id, "{not json", time.Minute).Err())

	catalog := NewCachedCatalog(client, backing, time.Minute, zap.NewNop())
	t.Cleanup(func() { catalog.Invalidate(context.Background(), id) })

	p, err := catalog.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fixed", p.Name)
	assert.EqualValues(t, 1, backing.calls.Load())
}

func TestCachedCatalog_FallsBackWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	backing := &countingCatalog{MemoryAdapter: NewMemoryAdapter()}
	require.NoError(t, backing.PutProduct(context.Background(), domain.Product{ID: "p1", Name: "Pen", Price: decimal.NewFromInt(1)}))

	catalog := NewCachedCatalog(client, backing, time.Minute, zap.New(core))
	p, err := catalog.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Pen", p.Name)

	assert.Equal(t, 1, logs.FilterMessage("product cache read failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("product cache write failed").Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "p1", entry.ContextMap()["product_id"])
	}
}

func TestProductCodec(t *testing.T) {
	in := domain.Product{ID: "p1", Name: "Pen", Price: decimal.RequireFromString("0.10"), QuantityAvailable: 2}

	raw, err := encodeProduct(in)
	require.NoError(t, err)
	out, err := decodeProduct(raw)
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.Price.Equal(out.Price))

	_, err = decodeProduct([]byte(`{"id":"p1","price":"abc"}`))
	assert.Error(t, err)
}
