package normalization

import (
	"context"
	"fmt"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// Dataset is the prepared input of a backtest run.
type Dataset struct {
	Bars    []*domain.DailyBar       // sorted by date ASC
	MAs     []domain.MovingAverages  // index-aligned with Bars
	Records []*domain.AnalysisRecord // joined, sorted by date ASC
}

// Prepare sorts bars, derives moving averages over the full price series
// and joins the features. Inputs are not modified.
func Prepare(bars []*domain.DailyBar, features []*domain.FeatureRecord) *Dataset {
	sorted := SortedBars(bars)
	mas := ComputeMovingAverages(sorted)
	return &Dataset{
		Bars:    sorted,
		MAs:     mas,
		Records: JoinFeatures(features, sorted, mas),
	}
}

// Runner loads stored series and prepares them.
type Runner struct {
	barStore     storage.DailyBarStore
	featureStore storage.FeatureStore
}

// NewRunner creates a new normalization runner.
func NewRunner(barStore storage.DailyBarStore, featureStore storage.FeatureStore) *Runner {
	return &Runner{
		barStore:     barStore,
		featureStore: featureStore,
	}
}

// Load reads every bar and feature record and prepares the dataset.
func (r *Runner) Load(ctx context.Context) (*Dataset, error) {
	bars, err := r.barStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	features, err := r.featureStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}

	return Prepare(bars, features), nil
}
