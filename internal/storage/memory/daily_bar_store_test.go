package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestDailyBarStore_InsertBulkAndGetAll(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	bars := []*domain.DailyBar{
		{Date: day(2), Close: 102},
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 101},
	}

	if err := store.InsertBulk(ctx, bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 bars, got %d", len(result))
	}
	for i, want := range []float64{100, 101, 102} {
		if result[i].Close != want {
			t.Errorf("Position %d: expected close %v, got %v", i, want, result[i].Close)
		}
	}

	// Returned bars are copies.
	result[0].Close = -1
	again, _ := store.GetAll(ctx)
	if again[0].Close != 100 {
		t.Error("store data was mutated through returned pointer")
	}
}

func TestDailyBarStore_DuplicateKey(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	bars := []*domain.DailyBar{{Date: day(0), Close: 100}}
	if err := store.InsertBulk(ctx, bars); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same calendar day with a time component is still a duplicate.
	dup := []*domain.DailyBar{{Date: day(0).Add(3 * time.Hour), Close: 200}}
	if err := store.InsertBulk(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestDailyBarStore_IntraBatchDuplicate(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	bars := []*domain.DailyBar{
		{Date: day(0), Close: 100},
		{Date: day(0), Close: 101},
	}
	if err := store.InsertBulk(ctx, bars); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	result, _ := store.GetAll(ctx)
	if len(result) != 0 {
		t.Errorf("Expected 0 bars (rollback), got %d", len(result))
	}
}

func TestDailyBarStore_InvalidInput(t *testing.T) {
	store := NewDailyBarStore()
	err := store.InsertBulk(context.Background(), []*domain.DailyBar{{Close: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero date, got %v", err)
	}
}

func TestDailyBarStore_GetByDateRange(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	var bars []*domain.DailyBar
	for i := 0; i < 10; i++ {
		bars = append(bars, &domain.DailyBar{Date: day(i), Close: float64(i)})
	}
	if err := store.InsertBulk(ctx, bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByDateRange(ctx, day(3), day(5))
	if err != nil {
		t.Fatalf("GetByDateRange failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 bars in [3,5], got %d", len(result))
	}
	if result[0].Close != 3 || result[2].Close != 5 {
		t.Errorf("Unexpected range bounds: %v..%v", result[0].Close, result[2].Close)
	}
}
