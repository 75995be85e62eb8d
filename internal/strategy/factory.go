package strategy

import (
	"errors"

	"btc-signal-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownFilterType   = errors.New("unknown filter type")
	ErrUnknownExitType     = errors.New("unknown exit type")
	ErrMissingMinSentiment = errors.New("MA_TREND requires MinSentimentBalance")
	ErrMissingMinWhale100k = errors.New("MA_TREND requires MinWhaleCount100k")
	ErrMissingTakeProfit   = errors.New("THRESHOLD requires TakeProfit")
	ErrMissingStopLoss     = errors.New("THRESHOLD requires StopLoss")
	ErrInvalidThresholds   = errors.New("THRESHOLD requires TakeProfit > StopLoss")
)

// FilterFromConfig creates an EntryFilter from domain.FilterConfig.
// Validates required parameters per filter type.
func FilterFromConfig(cfg domain.FilterConfig) (EntryFilter, error) {
	switch cfg.FilterType {
	case domain.FilterTypeMATrend:
		return fromTrendFilterConfig(cfg)
	default:
		return nil, ErrUnknownFilterType
	}
}

// ExitFromConfig creates an ExitRule from domain.ExitConfig.
func ExitFromConfig(cfg domain.ExitConfig) (ExitRule, error) {
	switch cfg.ExitType {
	case domain.ExitTypeThreshold:
		return fromThresholdConfig(cfg)
	default:
		return nil, ErrUnknownExitType
	}
}

func fromTrendFilterConfig(cfg domain.FilterConfig) (*TrendFilter, error) {
	if cfg.MinSentimentBalance == nil {
		return nil, ErrMissingMinSentiment
	}
	if cfg.MinWhaleCount100k == nil {
		return nil, ErrMissingMinWhale100k
	}

	return NewTrendFilter(TrendFilterParams{
		MinSentimentBalance: *cfg.MinSentimentBalance,
		MinWhaleCount100k:   *cfg.MinWhaleCount100k,
		MinWhaleCount1m:     cfg.MinWhaleCount1m,
		CompatBitwiseGate:   cfg.CompatBitwiseGate,
	}), nil
}

func fromThresholdConfig(cfg domain.ExitConfig) (*ThresholdExit, error) {
	if cfg.TakeProfit == nil {
		return nil, ErrMissingTakeProfit
	}
	if cfg.StopLoss == nil {
		return nil, ErrMissingStopLoss
	}
	if *cfg.TakeProfit <= *cfg.StopLoss {
		return nil, ErrInvalidThresholds
	}

	return NewThresholdExit(*cfg.TakeProfit, *cfg.StopLoss), nil
}
