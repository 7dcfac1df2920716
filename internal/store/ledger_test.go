package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dignitybank/dignity-be/internal/database"
	"github.com/dignitybank/dignity-be/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	return New(db)
}

func seedUserWithAccount(t *testing.T, l *Ledger, username, number, balance string) (models.User, models.Account) {
	t.Helper()
	ctx := context.Background()

	user := models.User{ID: "user-" + username, Username: username, PasswordHash: "x"}
	account := models.Account{
		ID:            "acct-" + username,
		UserID:        user.ID,
		AccountNumber: number,
		FirstName:     "First",
		LastName:      "Last",
		Balance:       decimal.RequireFromString(balance),
	}
	require.NoError(t, l.CreateUser(ctx, l.DB(), user))
	require.NoError(t, l.CreateAccount(ctx, l.DB(), account))
	return user, account
}

func TestAccountLookups(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, want := seedUserWithAccount(t, l, "alice", "2311111111", "42.50")

	byOwner, err := l.AccountByOwner(ctx, l.DB(), want.UserID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, byOwner.ID)
	assert.True(t, byOwner.Balance.Equal(decimal.RequireFromString("42.50")))

	byNumber, err := l.AccountByNumber(ctx, l.DB(), want.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, want.ID, byNumber.ID)

	_, err = l.AccountByOwner(ctx, l.DB(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = l.AccountByNumber(ctx, l.DB(), "2300000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccountNumberExists(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedUserWithAccount(t, l, "alice", "2311111111", "0")

	taken, err := l.AccountNumberExists(ctx, l.DB(), "2311111111")
	require.NoError(t, err)
	assert.True(t, taken)

	free, err := l.AccountNumberExists(ctx, l.DB(), "2399999999")
	require.NoError(t, err)
	assert.False(t, free)
}

// An insert that loses a uniqueness race surfaces as ErrConflict, not as a
// raw driver error, so callers can keep their duplicate handling intact.
func TestCreateUserDuplicateUsernameIsConflict(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.CreateUser(ctx, l.DB(),
		models.User{ID: "u1", Username: "alice", PasswordHash: "x"}))

	err := l.CreateUser(ctx, l.DB(),
		models.User{ID: "u2", Username: "alice", PasswordHash: "y"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateAccountDuplicateNumberIsConflict(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedUserWithAccount(t, l, "alice", "2311111111", "0")
	bob := models.User{ID: "u-bob", Username: "bob", PasswordHash: "x"}
	require.NoError(t, l.CreateUser(ctx, l.DB(), bob))

	err := l.CreateAccount(ctx, l.DB(), models.Account{
		ID: "acct-bob", UserID: bob.ID, AccountNumber: "2311111111",
		Balance: decimal.Zero,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := l.WithTx(ctx, func(tx *sql.Tx) error {
		user := models.User{ID: "u1", Username: "ghost", PasswordHash: "x"}
		if err := l.CreateUser(ctx, tx, user); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = l.UserByUsername(ctx, l.DB(), "ghost")
	require.ErrorIs(t, err, ErrNotFound, "rolled back writes must not be visible")
}

// Writing several balances inside one transaction is all-or-nothing: if one
// update misses its row, earlier updates in the same transaction vanish too.
func TestUpdateBalancesAllOrNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, account := seedUserWithAccount(t, l, "alice", "2311111111", "10")

	missing := models.Account{ID: "no-such-account", Balance: decimal.RequireFromString("99")}
	updated := account
	updated.Balance = decimal.RequireFromString("20")

	err := l.WithTx(ctx, func(tx *sql.Tx) error {
		return l.UpdateBalances(ctx, tx, updated, missing)
	})
	require.ErrorIs(t, err, ErrNotFound)

	got, err := l.AccountByOwner(ctx, l.DB(), account.UserID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.Balance.String(), "partial writes must not survive a failed transaction")
}

func TestAppendAndListTransactions(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	alice, _ := seedUserWithAccount(t, l, "alice", "2311111111", "100")
	bob, _ := seedUserWithAccount(t, l, "bob", "2322222222", "0")

	now := time.Now().UTC()
	first := models.Transaction{
		ID: "tx1", SenderID: alice.ID, RecipientID: bob.ID,
		Amount: decimal.RequireFromString("25"), CreatedAt: now.Add(-time.Minute),
	}
	second := models.Transaction{
		ID: "tx2", SenderID: bob.ID, RecipientID: alice.ID,
		Amount: decimal.RequireFromString("5"), CreatedAt: now,
	}
	require.NoError(t, l.AppendTransaction(ctx, l.DB(), first))
	require.NoError(t, l.AppendTransaction(ctx, l.DB(), second))

	records, err := l.TransactionsForUser(ctx, l.DB(), alice.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tx2", records[0].ID, "newest first")
	assert.Equal(t, "tx1", records[1].ID)
	assert.True(t, records[1].Amount.Equal(decimal.RequireFromString("25")))

	records, err = l.TransactionsForUser(ctx, l.DB(), "stranger")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListUserAccountsOmitsAccountlessUsers(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedUserWithAccount(t, l, "alice", "2311111111", "12.30")
	orphan := models.User{ID: "u-orphan", Username: "orphan", PasswordHash: "x"}
	require.NoError(t, l.CreateUser(ctx, l.DB(), orphan))

	summaries, err := l.ListUserAccounts(ctx, l.DB())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "alice", summaries[0].Username)
	assert.Equal(t, "First Last", summaries[0].FullName)
	assert.Equal(t, "2311111111", summaries[0].AccountNumber)
	assert.Equal(t, "12.3", summaries[0].Balance.String())
}
