package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"btc-signal-lab/internal/cache"
	"btc-signal-lab/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

// SignalView is the JSON form of a signal.
type SignalView struct {
	SignalID   string  `json:"signal_id"`
	StrategyID string  `json:"strategy_id"`
	Date       string  `json:"date"`
	Price      float64 `json:"price"`
}

// ExitView is the JSON form of an exit.
type ExitView struct {
	ExitID      string  `json:"exit_id"`
	SignalID    string  `json:"signal_id"`
	ExitRuleID  string  `json:"exit_rule_id"`
	SignalDate  string  `json:"signal_date"`
	SignalPrice float64 `json:"signal_price"`
	ExitDate    string  `json:"exit_date"`
	ExitPrice   float64 `json:"exit_price"`
	Reason      string  `json:"reason"`
	Outcome     string  `json:"outcome"` // WIN | LOSS
	Return      float64 `json:"return"`
	HoldDays    int     `json:"hold_days"`
}

// Summary is the outcome of one filter/rule pair.
type Summary struct {
	StrategyID   string  `json:"strategy_id"`
	ExitRuleID   string  `json:"exit_rule_id"`
	Signals      int     `json:"signals"`
	Exits        int     `json:"exits"`
	Open         int     `json:"open"`
	TakeProfits  int     `json:"take_profits"`
	StopLosses   int     `json:"stop_losses"`
	WinRate      float64 `json:"win_rate"`
	ReturnMean   float64 `json:"return_mean"`
	ReturnMedian float64 `json:"return_median"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	MeanHoldDays float64 `json:"mean_hold_days"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) signals(c echo.Context) error {
	strategyID := param(c, "strategy_id", s.opts.DefaultStrategyID)
	if strategyID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "strategy_id is required"})
	}

	signals, err := s.opts.SignalStore.GetByStrategy(c.Request().Context(), strategyID)
	if err != nil {
		return s.internalError(c, "load signals", err)
	}

	views := make([]SignalView, len(signals))
	for i, sig := range signals {
		views[i] = SignalView{
			SignalID:   sig.SignalID,
			StrategyID: sig.StrategyID,
			Date:       domain.DayKey(sig.Date),
			Price:      sig.Price,
		}
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) exits(c echo.Context) error {
	exitRuleID := param(c, "exit_rule_id", s.opts.DefaultExitRuleID)
	if exitRuleID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "exit_rule_id is required"})
	}

	exits, err := s.opts.ExitEventStore.GetByExitRule(c.Request().Context(), exitRuleID)
	if err != nil {
		return s.internalError(c, "load exits", err)
	}

	views := make([]ExitView, len(exits))
	for i, e := range exits {
		views[i] = ExitView{
			ExitID:      e.ExitID,
			SignalID:    e.SignalID,
			ExitRuleID:  e.ExitRuleID,
			SignalDate:  domain.DayKey(e.SignalDate),
			SignalPrice: e.SignalPrice,
			ExitDate:    domain.DayKey(e.ExitDate),
			ExitPrice:   e.ExitPrice,
			Reason:      e.Reason.String(),
			Outcome:     e.OutcomeClass(),
			Return:      e.Return,
			HoldDays:    e.HoldDays,
		}
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) summary(c echo.Context) error {
	ctx := c.Request().Context()
	strategyID := param(c, "strategy_id", s.opts.DefaultStrategyID)
	exitRuleID := param(c, "exit_rule_id", s.opts.DefaultExitRuleID)
	if strategyID == "" || exitRuleID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "strategy_id and exit_rule_id are required"})
	}

	key := "summary:" + strategyID + ":" + exitRuleID
	if s.opts.Cache != nil {
		var cached Summary
		err := s.opts.Cache.Get(ctx, key, &cached)
		if err == nil {
			c.Response().Header().Set("X-Cache", "HIT")
			return c.JSON(http.StatusOK, cached)
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
	}

	report, err := s.generator.Generate(ctx, strategyID, exitRuleID)
	if err != nil {
		return s.internalError(c, "generate summary", err)
	}

	sum := Summary{StrategyID: strategyID, ExitRuleID: exitRuleID}
	if len(report.StrategyMetrics) > 0 {
		m := report.StrategyMetrics[0]
		sum = Summary{
			StrategyID:   m.StrategyID,
			ExitRuleID:   m.ExitRuleID,
			Signals:      m.TotalSignals,
			Exits:        m.TotalExits,
			Open:         m.Unresolved,
			TakeProfits:  m.TakeProfits,
			StopLosses:   m.StopLosses,
			WinRate:      m.WinRate,
			ReturnMean:   m.ReturnMean,
			ReturnMedian: m.ReturnMedian,
			MaxDrawdown:  m.MaxDrawdown,
			MeanHoldDays: m.MeanHoldDays,
		}
	}

	if s.opts.Cache != nil {
		ttl := s.opts.CacheTTL
		if ttl == 0 {
			ttl = 5 * time.Minute
		}
		if err := s.opts.Cache.Set(ctx, key, sum, ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	c.Response().Header().Set("X-Cache", "MISS")
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) status(c echo.Context) error {
	if s.opts.Status == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "running"})
	}
	return c.JSON(http.StatusOK, s.opts.Status())
}

func (s *Server) internalError(c echo.Context, what string, err error) error {
	s.logger.Error().Err(err).Str("path", c.Path()).Msg(what)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: what + " failed"})
}

func param(c echo.Context, name, fallback string) string {
	if v := c.QueryParam(name); v != "" {
		return v
	}
	return fallback
}
