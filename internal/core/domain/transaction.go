package domain

import (
	"fmt"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusCart     TransactionStatus = "cart"
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusRejected TransactionStatus = "rejected"
)

type LineItem struct {
	ProductID string `json:"productId"`
	Amount    int    `json:"amount"`
}

type Transaction struct {
	ID        string
	UserID    string
	LineItems []LineItem
	Status    TransactionStatus
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionPatch is the partial update accepted by a TransactionStore.
// Nil fields are left untouched. ExpectedVersion 0 skips the version check.
type TransactionPatch struct {
	LineItems       []LineItem
	Status          *TransactionStatus
	ExpectedVersion int
}

func (p TransactionPatch) HasLineItems() bool {
	return p.LineItems != nil
}

// NewCart builds the first version of a user's open cart.
func NewCart(id, userID string, items []LineItem, now time.Time) Transaction {
	return Transaction{
		ID:        id,
		UserID:    userID,
		LineItems: items,
		Status:    TransactionStatusCart,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply returns a copy of t with the patch applied. Every store funnels its
// updates through Apply, so the lifecycle rules hold regardless of caller.
// A patch that changes nothing returns t as-is, version and timestamps included.
func (t Transaction) Apply(patch TransactionPatch, now time.Time) (Transaction, error) {
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != t.Version {
		return Transaction{}, fmt.Errorf("transaction %s at version %d, expected %d: %w",
			t.ID, t.Version, patch.ExpectedVersion, ErrConflict)
	}

	next := t.Clone()
	changed := false

	if patch.HasLineItems() {
		if !t.Status.AcceptsLineItems() {
			return Transaction{}, fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, ErrInvalidState)
		}
		if len(patch.LineItems) == 0 {
			return Transaction{}, NewValidationError("lineItems", "must not be empty")
		}
		if err := ValidateLineItems(patch.LineItems); err != nil {
			return Transaction{}, err
		}
		if !equalItems(t.LineItems, patch.LineItems) {
			next.LineItems = cloneItems(patch.LineItems)
			changed = true
		}
	}

	if patch.Status != nil && *patch.Status != t.Status {
		if err := ValidateTransition(t.Status, *patch.Status); err != nil {
			return Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		next.Status = *patch.Status
		changed = true
	}

	if !changed {
		return next, nil
	}
	next.Version = t.Version + 1
	next.UpdatedAt = now
	return next, nil
}

func (t Transaction) Clone() Transaction {
	c := t
	c.LineItems = cloneItems(t.LineItems)
	return c
}

func equalItems(a, b []LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// TransactionFilter narrows List results. Empty fields match everything.
type TransactionFilter struct {
	UserID   string
	Statuses []TransactionStatus
}

func (f TransactionFilter) Matches(t Transaction) bool {
	if f.UserID != "" && f.UserID != t.UserID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == t.Status {
			return true
		}
	}
	return false
}
