package services

import "errors"

// Contract errors surfaced by the account service. Handlers translate them
// to transport statuses with errors.Is; anything else is a persistence
// failure that left no partial state behind.
var (
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrAccountNotFound          = errors.New("account not found")
	ErrSenderAccountNotFound    = errors.New("sender account not found")
	ErrRecipientAccountNotFound = errors.New("recipient account not found")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrDuplicateUsername        = errors.New("username already exists")
	ErrInvalidCredentials       = errors.New("invalid login credentials")
	ErrSelfTransfer             = errors.New("cannot transfer to own account")
	ErrAccountNumberExhausted   = errors.New("could not allocate a unique account number")
)
