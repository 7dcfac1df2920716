package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of money moved between two users.
// Rows are append-only: written once per transfer, never updated or deleted.
type Transaction struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"senderId"`
	RecipientID string          `json:"recipientId"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"createdAt"`
}
