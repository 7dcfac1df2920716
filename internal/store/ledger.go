package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dignitybank/dignity-be/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an insert loses a uniqueness race that the
// caller's own pre-checks did not observe.
var ErrConflict = errors.New("store: conflict")

// mapConflict translates the driver's constraint-violation error into
// ErrConflict so callers can react without knowing the driver.
func mapConflict(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same queries can run on the pool or inside an open transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger is the durable set of users, accounts and transaction records.
type Ledger struct {
	db *sql.DB
}

// New creates a Ledger over an open database handle.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// DB exposes the underlying pool for plain reads outside a transaction.
func (l *Ledger) DB() Querier {
	return l.db
}

// WithTx runs fn inside a transaction. Every write fn makes commits
// together or not at all; a failed transaction leaves no partial state
// visible to subsequent reads.
func (l *Ledger) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (l *Ledger) CreateUser(ctx context.Context, q Querier, user models.User) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)",
		user.ID, user.Username, user.PasswordHash)
	return mapConflict(err)
}

// UserByUsername retrieves a user by username, including the password hash.
func (l *Ledger) UserByUsername(ctx context.Context, q Querier, username string) (models.User, error) {
	var user models.User
	row := q.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// CreateAccount inserts a new account row.
func (l *Ledger) CreateAccount(ctx context.Context, q Querier, account models.Account) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO accounts (id, user_id, account_number, first_name, last_name, balance) VALUES (?, ?, ?, ?, ?, ?)",
		account.ID, account.UserID, account.AccountNumber, account.FirstName, account.LastName, account.Balance)
	return mapConflict(err)
}

const accountColumns = "id, user_id, account_number, first_name, last_name, balance, created_at"

func scanAccount(row *sql.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.FirstName, &a.LastName, &a.Balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, err
	}
	return a, nil
}

// AccountByOwner retrieves the account owned by the given user.
func (l *Ledger) AccountByOwner(ctx context.Context, q Querier, userID string) (models.Account, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ?", userID)
	return scanAccount(row)
}

// AccountByNumber retrieves an account by its external account number.
func (l *Ledger) AccountByNumber(ctx context.Context, q Querier, number string) (models.Account, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = ?", number)
	return scanAccount(row)
}

// AccountNumberExists reports whether an account number is already taken.
func (l *Ledger) AccountNumberExists(ctx context.Context, q Querier, number string) (bool, error) {
	var exists int
	row := q.QueryRowContext(ctx,
		"SELECT 1 FROM accounts WHERE account_number = ? LIMIT 1", number)
	err := row.Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateBalances writes the balance of one or more accounts. Callers that
// need the writes to be all-or-nothing must pass a transaction started with
// WithTx; this is what makes a transfer's dual mutation atomic.
func (l *Ledger) UpdateBalances(ctx context.Context, q Querier, accounts ...models.Account) error {
	for _, account := range accounts {
		res, err := q.ExecContext(ctx,
			"UPDATE accounts SET balance = ? WHERE id = ?", account.Balance, account.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("account %s: %w", account.ID, ErrNotFound)
		}
	}
	return nil
}

// AppendTransaction inserts a transfer record. The table is append-only;
// there is deliberately no update or delete counterpart.
func (l *Ledger) AppendTransaction(ctx context.Context, q Querier, rec models.Transaction) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO transactions (id, sender_id, recipient_id, amount, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.SenderID, rec.RecipientID, rec.Amount, rec.CreatedAt)
	return err
}

// TransactionsForUser retrieves the transfers a user took part in, newest first.
func (l *Ledger) TransactionsForUser(ctx context.Context, q Querier, userID string) ([]models.Transaction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, amount, created_at FROM transactions
		 WHERE sender_id = ? OR recipient_id = ?
		 ORDER BY created_at DESC, id`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Transaction
	for rows.Next() {
		var rec models.Transaction
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.RecipientID, &rec.Amount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListUserAccounts returns a snapshot join of all users holding an account.
// Users without an account are omitted, matching the registration flow
// where user and account are always created together.
func (l *Ledger) ListUserAccounts(ctx context.Context, q Querier) ([]models.UserSummary, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT u.username, a.first_name, a.last_name, a.account_number, a.balance
		 FROM users u JOIN accounts a ON a.user_id = u.id
		 ORDER BY u.username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.UserSummary
	for rows.Next() {
		var s models.UserSummary
		var first, last string
		if err := rows.Scan(&s.Username, &first, &last, &s.AccountNumber, &s.Balance); err != nil {
			return nil, err
		}
		s.FullName = first + " " + last
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
