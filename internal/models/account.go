package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the money of a single user. AccountNumber is the externally
// visible identifier; ID stays internal.
type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	AccountNumber string          `json:"accountNumber"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// UserSummary is one row of the users listing: a user joined with their account.
type UserSummary struct {
	Username      string          `json:"username"`
	FullName      string          `json:"fullName"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
}
