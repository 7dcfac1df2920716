package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/dignitybank/dignity-be/internal/models"
	"github.com/dignitybank/dignity-be/internal/store"
)

const (
	// Account numbers are the bank prefix followed by eight random digits.
	accountNumberPrefix = "23"
	accountNumberDigits = 8

	// How often registration re-rolls a colliding account number before
	// giving up with ErrAccountNumberExhausted.
	maxNumberAttempts = 5
)

// AccountServiceProvider defines the interface for account services.
type AccountServiceProvider interface {
	Register(ctx context.Context, username, password, firstName, lastName string) (models.Account, error)
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, senderUserID, recipientAccountNumber string, amount decimal.Decimal) error
	ListUsers(ctx context.Context) ([]models.UserSummary, error)
	AccountForUser(ctx context.Context, userID string) (models.Account, error)
	TransfersForUser(ctx context.Context, userID string) ([]models.Transaction, error)
}

// AccountService enforces the ledger invariants: balances never go
// negative, and a transfer moves money between two accounts atomically so
// the total across all accounts is unchanged.
type AccountService struct {
	ledger *store.Ledger
	events EventServiceProvider

	// randInt draws the random digits of a fresh account number; tests
	// swap in a deterministic sequence.
	randInt func(upper *big.Int) (*big.Int, error)

	// Per-account mutexes serialize each account's read-modify-write
	// independently of the database engine.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAccountService creates a new AccountService. The event service may be
// nil; money operations never depend on the audit feed.
func NewAccountService(ledger *store.Ledger, events EventServiceProvider) *AccountService {
	return &AccountService{
		ledger: ledger,
		events: events,
		randInt: func(upper *big.Int) (*big.Int, error) {
			return rand.Int(rand.Reader, upper)
		},
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *AccountService) accountLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[id]; !ok {
		s.locks[id] = &sync.Mutex{}
	}
	return s.locks[id]
}

// lockAccounts acquires the per-account locks in sorted id order, so two
// concurrent transfers touching the same pair of accounts in opposite
// directions cannot deadlock. The returned func releases the locks.
func (s *AccountService) lockAccounts(ids ...string) func() {
	sort.Strings(ids)
	var held []*sync.Mutex
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		m := s.accountLock(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Register creates a user and their account in one transaction: both rows
// are committed together or neither is. The new account starts at zero.
func (s *AccountService) Register(ctx context.Context, username, password, firstName, lastName string) (models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
	}
	account := models.Account{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		FirstName: firstName,
		LastName:  lastName,
		Balance:   decimal.Zero,
	}

	err = s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := s.ledger.UserByUsername(ctx, tx, username)
		if err == nil {
			return ErrDuplicateUsername
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := s.ledger.CreateUser(ctx, tx, user); err != nil {
			// The pre-check can lose a race; the unique constraint is
			// the authority either way.
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateUsername
			}
			return err
		}

		number, err := s.allocateAccountNumber(ctx, tx)
		if err != nil {
			return err
		}
		account.AccountNumber = number

		return s.ledger.CreateAccount(ctx, tx, account)
	})
	if err != nil {
		return models.Account{}, err
	}

	s.recordEvent(ctx, "account.register", "info",
		fmt.Sprintf("Account %s opened for %s", account.AccountNumber, username), account.AccountNumber)
	return account, nil
}

// allocateAccountNumber generates a fresh account number, re-rolling on
// collision. The uniqueness probe runs inside the registration transaction
// so the number is still free when the account row commits.
func (s *AccountService) allocateAccountNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(accountNumberDigits), nil)
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		n, err := s.randInt(upper)
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}
		number := fmt.Sprintf("%s%0*d", accountNumberPrefix, accountNumberDigits, n)

		taken, err := s.ledger.AccountNumberExists(ctx, tx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", ErrAccountNumberExhausted
}

// Authenticate verifies a user's credentials. The error does not reveal
// whether the username or the password was wrong.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.ledger.UserByUsername(ctx, s.ledger.DB(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	// Don't hand the password hash back to the caller.
	user.PasswordHash = ""
	return user, nil
}

// Deposit adds money to the user's account and returns the new balance.
func (s *AccountService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	account, err := s.accountForMutation(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	unlock := s.lockAccounts(account.ID)
	defer unlock()

	var balance decimal.Decimal
	err = s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.ledger.AccountByOwner(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, ErrAccountNotFound)
		}
		current.Balance = current.Balance.Add(amount)
		if err := s.ledger.UpdateBalances(ctx, tx, current); err != nil {
			return err
		}
		balance = current.Balance
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.recordEvent(ctx, "account.deposit", "info",
		fmt.Sprintf("Deposited %s into account %s", amount, account.AccountNumber), account.AccountNumber)
	return balance, nil
}

// Withdraw removes money from the user's account and returns the new
// balance. The balance check and the write happen under the same account
// lock and transaction, so concurrent withdrawals cannot jointly overdraw.
func (s *AccountService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	account, err := s.accountForMutation(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	unlock := s.lockAccounts(account.ID)
	defer unlock()

	var balance decimal.Decimal
	err = s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.ledger.AccountByOwner(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, ErrAccountNotFound)
		}
		if current.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		current.Balance = current.Balance.Sub(amount)
		if err := s.ledger.UpdateBalances(ctx, tx, current); err != nil {
			return err
		}
		balance = current.Balance
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.recordEvent(ctx, "account.withdraw", "info",
		fmt.Sprintf("Withdrew %s from account %s", amount, account.AccountNumber), account.AccountNumber)
	return balance, nil
}

// Transfer moves money from the sender's account to the account with the
// given number. Both balance writes and the transaction record commit
// atomically. Error precedence: invalid amount, sender missing,
// insufficient balance, recipient missing, self transfer.
func (s *AccountService) Transfer(ctx context.Context, senderUserID, recipientAccountNumber string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	sender, err := s.ledger.AccountByOwner(ctx, s.ledger.DB(), senderUserID)
	if err != nil {
		return mapNotFound(err, ErrSenderAccountNotFound)
	}

	// Resolve the recipient up front so its lock can be taken in order with
	// the sender's; a missing recipient is reported only after the balance
	// check, which takes precedence.
	recipient, recipientErr := s.ledger.AccountByNumber(ctx, s.ledger.DB(), recipientAccountNumber)
	if recipientErr != nil && !errors.Is(recipientErr, store.ErrNotFound) {
		return recipientErr
	}

	lockIDs := []string{sender.ID}
	if recipientErr == nil {
		lockIDs = append(lockIDs, recipient.ID)
	}
	unlock := s.lockAccounts(lockIDs...)
	defer unlock()

	var rec models.Transaction
	err = s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		from, err := s.ledger.AccountByOwner(ctx, tx, senderUserID)
		if err != nil {
			return mapNotFound(err, ErrSenderAccountNotFound)
		}
		if from.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		if recipientErr != nil {
			return ErrRecipientAccountNotFound
		}

		to, err := s.ledger.AccountByNumber(ctx, tx, recipientAccountNumber)
		if err != nil {
			return mapNotFound(err, ErrRecipientAccountNotFound)
		}
		if to.ID == from.ID {
			return ErrSelfTransfer
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)
		if err := s.ledger.UpdateBalances(ctx, tx, from, to); err != nil {
			return err
		}

		rec = models.Transaction{
			ID:          uuid.New().String(),
			SenderID:    from.UserID,
			RecipientID: to.UserID,
			Amount:      amount,
			CreatedAt:   time.Now().UTC(),
		}
		return s.ledger.AppendTransaction(ctx, tx, rec)
	})
	if err != nil {
		return err
	}

	s.recordEvent(ctx, "account.transfer", "info",
		fmt.Sprintf("Transferred %s from account %s", amount, sender.AccountNumber), sender.AccountNumber)
	s.recordEvent(ctx, "account.transfer", "info",
		fmt.Sprintf("Received %s into account %s", amount, recipientAccountNumber), recipientAccountNumber)
	return nil
}

// ListUsers returns a read-only snapshot of every user holding an account.
func (s *AccountService) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	return s.ledger.ListUserAccounts(ctx, s.ledger.DB())
}

// AccountForUser retrieves the account owned by the given user.
func (s *AccountService) AccountForUser(ctx context.Context, userID string) (models.Account, error) {
	account, err := s.ledger.AccountByOwner(ctx, s.ledger.DB(), userID)
	if err != nil {
		return models.Account{}, mapNotFound(err, ErrAccountNotFound)
	}
	return account, nil
}

// TransfersForUser retrieves the transfers the user sent or received.
func (s *AccountService) TransfersForUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.ledger.TransactionsForUser(ctx, s.ledger.DB(), userID)
}

// accountForMutation resolves the account a deposit or withdrawal targets.
// The balance it carries is a preview only; mutations re-read inside their
// transaction while holding the account lock.
func (s *AccountService) accountForMutation(ctx context.Context, userID string) (models.Account, error) {
	account, err := s.ledger.AccountByOwner(ctx, s.ledger.DB(), userID)
	if err != nil {
		return models.Account{}, mapNotFound(err, ErrAccountNotFound)
	}
	return account, nil
}

func (s *AccountService) recordEvent(ctx context.Context, eventType, level, message, accountNumber string) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, eventType, level, message, &accountNumber); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record ledger event")
	}
}

// mapNotFound converts the store's not-found error into the operation's
// contract error; anything else passes through untouched.
func mapNotFound(err error, notFound error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return err
}
