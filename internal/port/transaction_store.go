package port

import (
	"context"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

type TransactionStore interface {
	// FetchOpenCart returns the user's single cart transaction, or nil if none exists
	FetchOpenCart(ctx context.Context, userID string) (*domain.Transaction, error)

	// Create persists a new transaction; a second open cart for the same user is a conflict
	Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)

	// Update applies a partial update with version check for optimistic locking
	Update(ctx context.Context, id string, patch domain.TransactionPatch) (domain.Transaction, error)

	// List returns transactions matching the filter, newest first
	List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// FetchByID retrieves a transaction or domain.ErrNotFound
	FetchByID(ctx context.Context, id string) (domain.Transaction, error)
}

type ProductCatalog interface {
	// GetProduct retrieves a product or domain.ErrNotFound
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

type EventRecorder interface {
	RecordEvent(ctx context.Context, event domain.TransactionEvent) error
}
