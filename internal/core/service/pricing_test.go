package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
)

type failingCatalog struct {
	err error
}

func (f failingCatalog) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return domain.Product{}, f.err
}

func TestComputeTotal(t *testing.T) {
	ctx := context.Background()
	catalog := newMemoryStore(t, product("A", "10", 1), product("B", "5", 1))
	calc := NewPricingCalculator(catalog)

	tx := domain.Transaction{LineItems: []domain.LineItem{
		{ProductID: "A", Amount: 2},
		{ProductID: "B", Amount: 1},
	}}

	total, err := calc.ComputeTotal(ctx, tx)
	require.NoError(t, err)
	assert.True(t, total.Amount.Equal(decimal.NewFromInt(25)), "got %s", total.Amount)
	assert.False(t, total.Incomplete)
	assert.Empty(t, total.MissingProductIDs)

	require.NoError(t, catalog.DeleteProduct(ctx, "B"))

	total, err = calc.ComputeTotal(ctx, tx)
	require.NoError(t, err)
	assert.True(t, total.Amount.Equal(decimal.NewFromInt(20)), "got %s", total.Amount)
	assert.True(t, total.Incomplete)
	assert.Equal(t, []string{"B"}, total.MissingProductIDs)
}

func TestComputeTotal_DecimalPrices(t *testing.T) {
	catalog := newMemoryStore(t, product("A", "0.10", 1), product("B", "0.20", 1))
	calc := NewPricingCalculator(catalog)

	total, err := calc.ComputeTotal(context.Background(), domain.Transaction{LineItems: []domain.LineItem{
		{ProductID: "A", Amount: 3},
		{ProductID: "B", Amount: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, "0.50", total.Amount.StringFixed(2))
}

func TestComputeTotal_EmptyTransaction(t *testing.T) {
	calc := NewPricingCalculator(newMemoryStore(t))

	total, err := calc.ComputeTotal(context.Background(), domain.Transaction{})
	require.NoError(t, err)
	assert.True(t, total.Amount.IsZero())
	assert.False(t, total.Incomplete)
}

func TestComputeTotal_CatalogFailurePropagates(t *testing.T) {
	boom := errors.New("catalog unavailable")
	calc := NewPricingCalculator(failingCatalog{err: boom})

	_, err := calc.ComputeTotal(context.Background(), domain.Transaction{LineItems: []domain.LineItem{
		{ProductID: "A", Amount: 1},
	}})
	assert.ErrorIs(t, err, boom)
}
