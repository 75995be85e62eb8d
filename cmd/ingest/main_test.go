package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage/memory"
)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestIngest_SkipsStoredDates(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewDailyBarStore()
	features := memory.NewFeatureStore()

	firstBars := []*domain.DailyBar{{Date: day(0), Close: 100}, {Date: day(1), Close: 101}}
	firstFeatures := []*domain.FeatureRecord{{Date: day(0)}}

	nb, nf, err := ingest(ctx, bars, features, firstBars, firstFeatures, zerolog.Nop())
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if nb != 2 || nf != 1 {
		t.Fatalf("expected 2 bars and 1 feature, got %d and %d", nb, nf)
	}

	// A longer export re-sent in full appends only the new days.
	longerBars := append(firstBars, &domain.DailyBar{Date: day(2), Close: 102})
	longerFeatures := append(firstFeatures, &domain.FeatureRecord{Date: day(1)}, &domain.FeatureRecord{Date: day(2)})

	nb, nf, err = ingest(ctx, bars, features, longerBars, longerFeatures, zerolog.Nop())
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if nb != 1 || nf != 2 {
		t.Errorf("expected 1 new bar and 2 new features, got %d and %d", nb, nf)
	}

	all, _ := bars.GetAll(ctx)
	if len(all) != 3 {
		t.Errorf("expected 3 stored bars, got %d", len(all))
	}

	nb, nf, err = ingest(ctx, bars, features, longerBars, longerFeatures, zerolog.Nop())
	if err != nil || nb != 0 || nf != 0 {
		t.Errorf("expected no-op re-run, got %d, %d, %v", nb, nf, err)
	}
}
