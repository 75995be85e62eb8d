package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

func TestExitEventStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExitEventStore(pool)
	ctx := context.Background()

	exits := []*domain.ExitEvent{
		{
			ExitID: "e2", SignalID: "s2", ExitRuleID: "r1",
			SignalDate: day(4), SignalPrice: 100, ExitDate: day(9), ExitPrice: 84,
			Reason: domain.ExitReasonStopLoss, Return: -0.16, HoldDays: 5,
		},
		{
			ExitID: "e1", SignalID: "s1", ExitRuleID: "r1",
			SignalDate: day(1), SignalPrice: 100, ExitDate: day(3), ExitPrice: 112,
			Reason: domain.ExitReasonTakeProfit, Return: 0.12, HoldDays: 2,
		},
		{
			ExitID: "e3", SignalID: "s1", ExitRuleID: "r2",
			SignalDate: day(1), SignalPrice: 100, ExitDate: day(2), ExitPrice: 106,
			Reason: domain.ExitReasonTakeProfit, Return: 0.06, HoldDays: 1,
		},
	}
	require.NoError(t, store.InsertBulk(ctx, exits))

	got, err := store.GetBySignalID(ctx, "s1", "r2")
	require.NoError(t, err)
	assert.Equal(t, exits[2], got)

	byRule, err := store.GetByExitRule(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, byRule, 2)
	assert.Equal(t, "e1", byRule[0].ExitID)
	assert.Equal(t, "e2", byRule[1].ExitID)
	assert.Equal(t, domain.ExitReasonStopLoss, byRule[1].Reason)
}

func TestExitEventStore_Errors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExitEventStore(pool)
	ctx := context.Background()

	_, err := store.GetBySignalID(ctx, "missing", "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := &domain.ExitEvent{
		ExitID: "e1", SignalID: "s1", ExitRuleID: "r1",
		SignalDate: day(1), SignalPrice: 100, ExitDate: day(2), ExitPrice: 111,
		Reason: domain.ExitReasonTakeProfit, Return: 0.11, HoldDays: 1,
	}
	require.NoError(t, store.InsertBulk(ctx, []*domain.ExitEvent{first}))

	// Same (signal, rule) under a different exit_id violates the unique pair.
	again := *first
	again.ExitID = "e9"
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.ExitEvent{&again}), storage.ErrDuplicateKey)
}

func TestExitEventStore_InvalidInput(t *testing.T) {
	store := NewExitEventStore(nil)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))
	bad := []*domain.ExitEvent{{ExitID: "e1", SignalID: "s1", Reason: "MAYBE"}}
	assert.ErrorIs(t, store.InsertBulk(ctx, bad), storage.ErrInvalidInput)
}
