package domain

import "fmt"

var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusCart:    {TransactionStatusPending},
	TransactionStatusPending: {TransactionStatusApproved, TransactionStatusRejected},
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case TransactionStatusCart, TransactionStatusPending, TransactionStatusApproved, TransactionStatusRejected:
		return st, nil
	}
	return "", NewValidationError("status", fmt.Sprintf("unknown status %q", s))
}

// AcceptsLineItems reports whether line items may still change.
func (s TransactionStatus) AcceptsLineItems() bool {
	return s == TransactionStatusCart
}

func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to TransactionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("cannot move from %s to %s: %w", from, to, ErrInvalidState)
	}
	return nil
}
