package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/port"
)

const (
	productKeyPrefix  = "product:"
	idempotencyKeyTTL = 24 * time.Hour
	DefaultCatalogTTL = 30 * time.Second
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// CachedCatalog is a read-through cache in front of a ProductCatalog.
// Missing products are never cached so newly added products show up immediately.
type CachedCatalog struct {
	client *redis.Client
	next   port.ProductCatalog
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCatalog(client *redis.Client, next port.ProductCatalog, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{client: client, next: next, ttl: ttl, logger: logger}
}

type cachedProduct struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Price             string `json:"price"`
	QuantityAvailable int    `json:"quantityAvailable"`
}

func (c *CachedCatalog) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	key := productKeyPrefix + productID

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if p, decodeErr := decodeProduct(raw); decodeErr == nil {
			return p, nil
		}
		c.logger.Warn("discarding unreadable cached product", zap.String("product_id", productID))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("product cache read failed", zap.String("product_id", productID), zap.Error(err))
	}

	p, err := c.next.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	if encoded, err := encodeProduct(p); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("product cache write failed", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return p, nil
}

// Invalidate drops the cached copy of a product after it changes in the backing store.
func (c *CachedCatalog) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, productKeyPrefix+productID).Err()
}

func encodeProduct(p domain.Product) ([]byte, error) {
	return json.Marshal(cachedProduct{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price.String(),
		QuantityAvailable: p.QuantityAvailable,
	})
}

func decodeProduct(raw []byte) (domain.Product, error) {
	var cp cachedProduct
	if err := json.Unmarshal(raw, &cp); err != nil {
		return domain.Product{}, err
	}
	price, err := decimal.NewFromString(cp.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("cached price of %s: %w", cp.ID, err)
	}
	return domain.Product{
		ID:                cp.ID,
		Name:              cp.Name,
		Price:             price,
		QuantityAvailable: cp.QuantityAvailable,
	}, nil
}
