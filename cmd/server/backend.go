package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/adapter/storage"
	"github.com/rl1809/shop-dashboard/internal/config"
	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/port"
)

type productWriter interface {
	PutProduct(ctx context.Context, p domain.Product) error
}

// backend is the persistence side of the service for one store driver.
type backend struct {
	store    port.TransactionStore
	catalog  port.ProductCatalog
	recorder port.EventRecorder
	products productWriter
	cache    port.CacheRepository
	migrate  func(context.Context) error
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{migrate: func(context.Context) error { return nil }}

	switch cfg.Store.Driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.Store.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.Store.MaxConns)
		db.SetMaxIdleConns(cfg.Store.MaxConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping mysql: %w", err)
		}
		log.Info("connected to mysql")

		adapter := storage.NewMySQLAdapter(db)
		b.store, b.catalog, b.recorder, b.products = adapter, adapter, adapter, adapter
		b.migrate = adapter.Migrate
		b.closers = append(b.closers, func() { db.Close() })

	case config.DriverPostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.Store.PostgresDSN, int32(cfg.Store.MaxConns))
		if err != nil {
			return nil, err
		}
		log.Info("connected to postgres")

		adapter := storage.NewPostgresAdapter(pool)
		b.store, b.catalog, b.recorder, b.products = adapter, adapter, adapter, adapter
		b.migrate = adapter.Migrate
		b.closers = append(b.closers, pool.Close)

	default:
		adapter := storage.NewMemoryAdapter()
		b.store, b.catalog, b.recorder, b.products = adapter, adapter, adapter, adapter
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			b.Close()
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

		cached := storage.NewCachedCatalog(rdb, b.catalog, cfg.Redis.CatalogTTL, log)
		b.cache = storage.NewRedisAdapter(rdb)
		b.catalog = cached
		b.products = invalidatingWriter{next: b.products, cache: cached}
		b.closers = append(b.closers, func() { rdb.Close() })
	}

	return b, nil
}

// invalidatingWriter drops the cached copy after every product write.
type invalidatingWriter struct {
	next  productWriter
	cache *storage.CachedCatalog
}

func (w invalidatingWriter) PutProduct(ctx context.Context, p domain.Product) error {
	if err := w.next.PutProduct(ctx, p); err != nil {
		return err
	}
	return w.cache.Invalidate(ctx, p.ID)
}

// seedProducts upserts the configured products into the catalog.
func seedProducts(ctx context.Context, w productWriter, seeds []config.ProductSeed) error {
	for _, s := range seeds {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return fmt.Errorf("product %s price %q: %w", s.ID, s.Price, err)
		}
		p := domain.Product{
			ID:                s.ID,
			Name:              s.Name,
			Price:             price,
			QuantityAvailable: s.QuantityAvailable,
		}
		if err := w.PutProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", s.ID, err)
		}
	}
	return nil
}
