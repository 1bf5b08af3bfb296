package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/port"
)

// contractStore is everything a full backend implements.
type contractStore interface {
	port.TransactionStore
	port.ProductCatalog
	port.EventRecorder
	PutProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, productID string) error
}

// runStoreContract exercises the behaviour every TransactionStore backend must share.
func runStoreContract(t *testing.T, store contractStore) {
	t.Run("CreateAndFetchOpenCart", func(t *testing.T) {
		ctx := context.Background()
		userID := "contract-user-" + uuid.NewString()

		cart, err := store.FetchOpenCart(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, cart)

		created, err := store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p1", Amount: 1}))
		require.NoError(t, err)
		assert.Equal(t, 1, created.Version)

		cart, err = store.FetchOpenCart(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, cart)
		assert.Equal(t, created.ID, cart.ID)
		assert.Equal(t, domain.TransactionStatusCart, cart.Status)
		assert.Equal(t, []domain.LineItem{{ProductID: "p1", Amount: 1}}, cart.LineItems)
	})

	t.Run("SecondOpenCartConflicts", func(t *testing.T) {
		ctx := context.Background()
		userID := "contract-user-" + uuid.NewString()

		_, err := store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p1", Amount: 1}))
		require.NoError(t, err)

		_, err = store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p2", Amount: 1}))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ConcurrentCreatesLeaveOneCart", func(t *testing.T) {
		ctx := context.Background()
		userID := "contract-user-" + uuid.NewString()

		var g errgroup.Group
		results := make([]error, 5)
		for i := range results {
			g.Go(func() error {
				_, results[i] = store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p1", Amount: 1}))
				return nil
			})
		}
		require.NoError(t, g.Wait())

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("VersionedUpdate", func(t *testing.T) {
		ctx := context.Background()
		created, err := store.Create(ctx, newCart("contract-user-"+uuid.NewString(), domain.LineItem{ProductID: "p1", Amount: 1}))
		require.NoError(t, err)

		updated, err := store.Update(ctx, created.ID, domain.TransactionPatch{
			LineItems:       []domain.LineItem{{ProductID: "p1", Amount: 2}},
			ExpectedVersion: created.Version,
		})
		require.NoError(t, err)
		assert.Equal(t, created.Version+1, updated.Version)

		_, err = store.Update(ctx, created.ID, domain.TransactionPatch{
			LineItems:       []domain.LineItem{{ProductID: "p1", Amount: 9}},
			ExpectedVersion: created.Version, // stale
		})
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := store.FetchByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.LineItem{{ProductID: "p1", Amount: 2}}, got.LineItems)
		assert.Equal(t, updated.Version, got.Version)
	})

	t.Run("UnchangedUpdateKeepsVersion", func(t *testing.T) {
		ctx := context.Background()
		created, err := store.Create(ctx, newCart("contract-user-"+uuid.NewString(), domain.LineItem{ProductID: "p1", Amount: 1}))
		require.NoError(t, err)

		pending := domain.TransactionStatusPending
		moved, err := store.Update(ctx, created.ID, domain.TransactionPatch{Status: &pending})
		require.NoError(t, err)

		again, err := store.Update(ctx, created.ID, domain.TransactionPatch{Status: &pending})
		require.NoError(t, err)
		assert.Equal(t, moved.Version, again.Version)

		got, err := store.FetchByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, moved.Version, got.Version)
		assert.True(t, moved.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("LifecycleGuard", func(t *testing.T) {
		ctx := context.Background()
		userID := "contract-user-" + uuid.NewString()
		created, err := store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p1", Amount: 1}))
		require.NoError(t, err)

		pending := domain.TransactionStatusPending
		moved, err := store.Update(ctx, created.ID, domain.TransactionPatch{Status: &pending})
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusPending, moved.Status)

		cart, err := store.FetchOpenCart(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, cart, "a pending transaction is no longer the open cart")

		_, err = store.Update(ctx, created.ID, domain.TransactionPatch{
			LineItems: []domain.LineItem{{ProductID: "p1", Amount: 5}},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		approved := domain.TransactionStatusApproved
		_, err = store.Update(ctx, created.ID, domain.TransactionPatch{Status: &approved})
		require.NoError(t, err)

		back := domain.TransactionStatusCart
		_, err = store.Update(ctx, created.ID, domain.TransactionPatch{Status: &back})
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		got, err := store.FetchByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusApproved, got.Status)
		assert.Equal(t, []domain.LineItem{{ProductID: "p1", Amount: 1}}, got.LineItems)

		// a new cart may be opened once the previous one is submitted
		_, err = store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p2", Amount: 1}))
		assert.NoError(t, err)
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		pending := domain.TransactionStatusPending
		_, err := store.Update(context.Background(), "missing-"+uuid.NewString(), domain.TransactionPatch{Status: &pending})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.FetchByID(context.Background(), "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListFilters", func(t *testing.T) {
		ctx := context.Background()
		userID := "contract-user-" + uuid.NewString()

		first, err := store.Create(ctx, newCart(userID, domain.LineItem{ProductID: "p1", Amount: 1}))
		require.NoError(t, err)
		pending := domain.TransactionStatusPending
		_, err = store.Update(ctx, first.ID, domain.TransactionPatch{Status: &pending})
		require.NoError(t, err)

		second := newCart(userID, domain.LineItem{ProductID: "p2", Amount: 1})
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		second.UpdatedAt = second.CreatedAt
		_, err = store.Create(ctx, second)
		require.NoError(t, err)

		all, err := store.List(ctx, domain.TransactionFilter{UserID: userID})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].ID, "newest first")

		onlyPending, err := store.List(ctx, domain.TransactionFilter{
			UserID:   userID,
			Statuses: []domain.TransactionStatus{domain.TransactionStatusPending, domain.TransactionStatusApproved},
		})
		require.NoError(t, err)
		require.Len(t, onlyPending, 1)
		assert.Equal(t, first.ID, onlyPending[0].ID)
	})

	t.Run("Products", func(t *testing.T) {
		ctx := context.Background()
		id := "contract-product-" + uuid.NewString()

		_, err := store.GetProduct(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, store.PutProduct(ctx, domain.Product{
			ID: id, Name: "Widget", Price: decimal.RequireFromString("12.34"), QuantityAvailable: 7,
		}))
		p, err := store.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Widget", p.Name)
		assert.Equal(t, "12.34", p.Price.StringFixed(2))
		assert.Equal(t, 7, p.QuantityAvailable)

		require.NoError(t, store.DeleteProduct(ctx, id))
		_, err = store.GetProduct(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("RecordEventIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		event := domain.TransactionEvent{
			ID:            uuid.NewString(),
			TransactionID: "tx-" + uuid.NewString(),
			UserID:        "contract-user",
			Type:          domain.EventCartCreated,
			ProductID:     "p1",
			Amount:        1,
			Status:        domain.TransactionStatusCart,
			Version:       1,
			OccurredAt:    time.Now().UTC(),
		}
		require.NoError(t, store.RecordEvent(ctx, event))
		require.NoError(t, store.RecordEvent(ctx, event))
	})
}

func newCart(userID string, items ...domain.LineItem) domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.NewCart(fmt.Sprintf("tx-%s", uuid.NewString()), userID, items, now)
}
