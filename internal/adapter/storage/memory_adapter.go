package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

// MemoryAdapter keeps transactions, products and events in process memory.
// It backs the "memory" store driver and the service tests.
type MemoryAdapter struct {
	mu           sync.RWMutex
	transactions map[string]domain.Transaction
	openCarts    map[string]string // userID -> transactionID
	products     map[string]domain.Product
	events       []domain.TransactionEvent
	now          func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		transactions: make(map[string]domain.Transaction),
		openCarts:    make(map[string]string),
		products:     make(map[string]domain.Product),
		now:          time.Now,
	}
}

func (m *MemoryAdapter) FetchOpenCart(ctx context.Context, userID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.openCarts[userID]
	if !ok {
		return nil, nil
	}
	tx := m.transactions[id].Clone()
	return &tx, nil
}

func (m *MemoryAdapter) Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if err := domain.ValidateLineItems(tx.LineItems); err != nil {
		return domain.Transaction{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.transactions[tx.ID]; exists {
		return domain.Transaction{}, fmt.Errorf("transaction %s already exists: %w", tx.ID, domain.ErrConflict)
	}
	if tx.Status == domain.TransactionStatusCart {
		if _, open := m.openCarts[tx.UserID]; open {
			return domain.Transaction{}, fmt.Errorf("user %s already has an open cart: %w", tx.UserID, domain.ErrConflict)
		}
		m.openCarts[tx.UserID] = tx.ID
	}

	if tx.Version == 0 {
		tx.Version = 1
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.now()
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}

	stored := tx.Clone()
	m.transactions[tx.ID] = stored
	return stored.Clone(), nil
}

func (m *MemoryAdapter) Update(ctx context.Context, id string, patch domain.TransactionPatch) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}

	next, err := current.Apply(patch, m.now())
	if err != nil {
		return domain.Transaction{}, err
	}
	if next.Version == current.Version {
		return next.Clone(), nil
	}

	if current.Status == domain.TransactionStatusCart && next.Status != domain.TransactionStatusCart {
		delete(m.openCarts, current.UserID)
	}
	m.transactions[id] = next
	return next.Clone(), nil
}

func (m *MemoryAdapter) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range m.transactions {
		if filter.Matches(tx) {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryAdapter) FetchByID(ctx context.Context, id string) (domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx.Clone(), nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return p, nil
}

func (m *MemoryAdapter) PutProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, productID)
	return nil
}

func (m *MemoryAdapter) RecordEvent(ctx context.Context, event domain.TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryAdapter) Events() []domain.TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TransactionEvent, len(m.events))
	copy(out, m.events)
	return out
}
