package domain

import "fmt"

// Listing presets used by the transactions dashboard tabs.
const (
	ListingAll       = "all"
	ListingCancelled = "cancelled"
	ListingCompleted = "completed"
)

// FilterForListing maps a dashboard tab to a filter. "all" hides open carts.
func FilterForListing(userID, listing string) (TransactionFilter, error) {
	f := TransactionFilter{UserID: userID}
	switch listing {
	case "", ListingAll:
		f.Statuses = []TransactionStatus{TransactionStatusPending, TransactionStatusApproved, TransactionStatusRejected}
	case ListingCancelled:
		f.Statuses = []TransactionStatus{TransactionStatusRejected}
	case ListingCompleted:
		f.Statuses = []TransactionStatus{TransactionStatusApproved}
	default:
		st, err := ParseTransactionStatus(listing)
		if err != nil {
			return TransactionFilter{}, NewValidationError("listing", fmt.Sprintf("unknown listing %q", listing))
		}
		f.Statuses = []TransactionStatus{st}
	}
	return f, nil
}
