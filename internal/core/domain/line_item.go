package domain

import "fmt"

// MergeLineItem returns a new slice with productID added once: an existing
// line is replaced in place with amount+1, otherwise {productID, 1} is appended.
func MergeLineItem(items []LineItem, productID string) []LineItem {
	out := make([]LineItem, 0, len(items)+1)
	merged := false
	for _, item := range items {
		if item.ProductID == productID && !merged {
			item.Amount++
			merged = true
		}
		out = append(out, item)
	}
	if !merged {
		out = append(out, LineItem{ProductID: productID, Amount: 1})
	}
	return out
}

func ValidateLineItems(items []LineItem) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ProductID == "" {
			return NewValidationError(fmt.Sprintf("lineItems[%d].productId", i), "is required")
		}
		if item.Amount < 1 {
			return NewValidationError(fmt.Sprintf("lineItems[%d].amount", i), "must be at least 1")
		}
		if _, dup := seen[item.ProductID]; dup {
			return NewValidationError(fmt.Sprintf("lineItems[%d].productId", i),
				fmt.Sprintf("duplicate product %s", item.ProductID))
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

func FindLineItem(items []LineItem, productID string) (LineItem, bool) {
	for _, item := range items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return LineItem{}, false
}
