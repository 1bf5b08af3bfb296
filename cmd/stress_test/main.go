package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/adapter/storage"
	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/core/service"
	"github.com/rl1809/shop-dashboard/internal/port"
)

const (
	productID     = "stress-product"
	totalRequests = 50
	queueSize     = 1000
)

type stressStore interface {
	port.TransactionStore
	port.ProductCatalog
	PutProduct(ctx context.Context, p domain.Product) error
}

func main() {
	ctx := context.Background()

	store, cleanup := openStore(ctx)
	defer cleanup()

	if err := store.PutProduct(ctx, domain.Product{
		ID:                productID,
		Name:              "Stress Product",
		Price:             decimal.RequireFromString("9.99"),
		QuantityAvailable: 100,
	}); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}

	userID := fmt.Sprintf("stress-user-%d", time.Now().UnixNano())

	cartService := service.NewCartService(store, store, nil, zap.NewNop(), service.Options{
		MaxRetries: totalRequests,
		QueueSize:  queueSize,
	})
	defer cartService.Close()

	// Drain the event queue in background
	go func() {
		for range cartService.GetEventQueue() {
		}
	}()

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := cartService.AddItem(ctx, userID, productID); err != nil {
				log.Printf("add item failed: %v", err)
				failCount.Add(1)
				return
			}
			successCount.Add(1)
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	cart, err := store.FetchOpenCart(ctx, userID)
	if err != nil || cart == nil {
		log.Fatalf("FAIL: open cart not found: %v", err)
	}

	line, _ := domain.FindLineItem(cart.LineItems, productID)
	if len(cart.LineItems) == 1 && line.Amount == int(success) && success == totalRequests {
		fmt.Printf("PASS: single line item with amount %d\n", line.Amount)
	} else {
		fmt.Printf("FAIL: expected one line item with amount %d, got %d items, amount %d\n",
			totalRequests, len(cart.LineItems), line.Amount)
	}
	fmt.Printf("Final cart version: %d\n", cart.Version)
}

// openStore uses MySQL when MYSQL_DSN is set, otherwise the in-memory store.
func openStore(ctx context.Context) (stressStore, func()) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return storage.NewMemoryAdapter(), func() {}
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	return adapter, func() { db.Close() }
}
