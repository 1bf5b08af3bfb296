package domain

import "time"

type TransactionEventType string

const (
	EventCartCreated   TransactionEventType = "cart_created"
	EventItemAdded     TransactionEventType = "item_added"
	EventStatusChanged TransactionEventType = "status_changed"
)

type TransactionEvent struct {
	ID            string
	TransactionID string
	UserID        string
	Type          TransactionEventType
	ProductID     string
	Amount        int
	Status        TransactionStatus
	Version       int
	OccurredAt    time.Time
}
