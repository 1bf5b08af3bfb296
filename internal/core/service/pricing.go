package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/port"
)

// Total is derived from current catalog prices on every read.
type Total struct {
	Amount            decimal.Decimal
	Incomplete        bool
	MissingProductIDs []string
}

type PricingCalculator struct {
	catalog port.ProductCatalog
}

func NewPricingCalculator(catalog port.ProductCatalog) *PricingCalculator {
	return &PricingCalculator{catalog: catalog}
}

// ComputeTotal sums amount × price over the line items. Products missing from
// the catalog are left out of the sum and flag the total as incomplete.
func (p *PricingCalculator) ComputeTotal(ctx context.Context, tx domain.Transaction) (Total, error) {
	total := Total{Amount: decimal.Zero}

	for _, item := range tx.LineItems {
		product, err := p.catalog.GetProduct(ctx, item.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			total.Incomplete = true
			total.MissingProductIDs = append(total.MissingProductIDs, item.ProductID)
			continue
		}
		if err != nil {
			return Total{}, fmt.Errorf("price product %s: %w", item.ProductID, err)
		}
		total.Amount = total.Amount.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Amount))))
	}

	return total, nil
}
