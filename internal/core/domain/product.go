package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID                string
	Name              string
	Price             decimal.Decimal
	QuantityAvailable int
}

// InStock reports whether an add-to-cart is a regular add or a preorder.
func (p Product) InStock() bool {
	return p.QuantityAvailable > 0
}
