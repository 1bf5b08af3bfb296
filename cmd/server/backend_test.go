package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/config"
)

func TestOpenBackend_MemoryWithSeeds(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	b, err := openBackend(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Nil(t, b.cache, "no redis configured")
	require.NoError(t, b.migrate(ctx))

	require.NoError(t, seedProducts(ctx, b.products, []config.ProductSeed{
		{ID: "A", Name: "Apple", Price: "1.25", QuantityAvailable: 3},
	}))

	p, err := b.catalog.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Apple", p.Name)
	assert.Equal(t, "1.25", p.Price.StringFixed(2))
}

func TestSeedProducts_BadPrice(t *testing.T) {
	b, err := openBackend(context.Background(), config.Default(), zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	err = seedProducts(context.Background(), b.products, []config.ProductSeed{{ID: "A", Price: "cheap"}})
	assert.ErrorContains(t, err, `product A price "cheap"`)
}

func TestOpenBackend_UnreachableRedis(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := openBackend(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect redis")
}
