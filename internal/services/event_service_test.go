package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dignitybank/dignity-be/internal/database"
)

func newTestEventService(t *testing.T) *EventService {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	return NewEventService(db, nil)
}

func TestRecordAndRecentEvents(t *testing.T) {
	svc := newTestEventService(t)
	ctx := context.Background()

	number := "2311111111"
	require.NoError(t, svc.Record(ctx, "account.deposit", "info", "Deposited 10", &number))
	require.NoError(t, svc.Record(ctx, "ledger.audit.violation", "error", "Negative balance", nil))

	events, err := svc.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byType := make(map[string]int)
	for _, e := range events {
		byType[e.Type]++
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}
	assert.Equal(t, 1, byType["account.deposit"])
	assert.Equal(t, 1, byType["ledger.audit.violation"])

	for _, e := range events {
		if e.Type == "account.deposit" {
			require.NotNil(t, e.AccountNumber)
			assert.Equal(t, number, *e.AccountNumber)
		} else {
			assert.Nil(t, e.AccountNumber)
		}
	}
}

func TestRecentEventsHonorsLimit(t *testing.T) {
	svc := newTestEventService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, "account.deposit", "info", "x", nil))
	}

	events, err := svc.RecentEvents(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
