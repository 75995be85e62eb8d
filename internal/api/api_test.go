package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-signal-lab/internal/cache"
	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
	"btc-signal-lab/internal/storage/memory"
)

type mapCache struct {
	data map[string][]byte
	sets int
}

func (m *mapCache) Get(_ context.Context, key string, dest any) error {
	b, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.sets++
	m.data[key] = b
	return nil
}

type failingSignals struct {
	storage.SignalStore
}

func (failingSignals) GetByStrategy(context.Context, string) ([]*domain.Signal, error) {
	return nil, errors.New("db down")
}

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestServer(t *testing.T, c Cache) *Server {
	t.Helper()
	ctx := context.Background()

	signals := memory.NewSignalStore()
	exits := memory.NewExitEventStore()
	require.NoError(t, signals.InsertBulk(ctx, []*domain.Signal{
		{SignalID: "s2", StrategyID: "f1", Date: day(3), Price: 110},
		{SignalID: "s1", StrategyID: "f1", Date: day(1), Price: 100},
		{SignalID: "s3", StrategyID: "f1", Date: day(5), Price: 120},
	}))
	require.NoError(t, exits.InsertBulk(ctx, []*domain.ExitEvent{
		{
			ExitID: "e1", SignalID: "s1", ExitRuleID: "r1",
			SignalDate: day(1), SignalPrice: 100, ExitDate: day(4), ExitPrice: 112,
			Reason: domain.ExitReasonTakeProfit, Return: 0.12, HoldDays: 3,
		},
		{
			ExitID: "e2", SignalID: "s2", ExitRuleID: "r1",
			SignalDate: day(3), SignalPrice: 110, ExitDate: day(9), ExitPrice: 93,
			Reason: domain.ExitReasonStopLoss, Return: -0.1545, HoldDays: 6,
		},
	}))

	return New(Options{
		SignalStore:       signals,
		ExitEventStore:    exits,
		DefaultStrategyID: "f1",
		DefaultExitRuleID: "r1",
		Cache:             c,
		Logger:            zerolog.Nop(),
	})
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSignals(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/signals")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []SignalView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "s1", views[0].SignalID)
	assert.Equal(t, "2023-01-02", views[0].Date)

	rec = get(t, s, "/api/signals?strategy_id=other")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestExits(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/exits?exit_rule_id=r1")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ExitView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "TAKE_PROFIT", views[0].Reason)
	assert.Equal(t, "STOP_LOSS", views[1].Reason)
	assert.Equal(t, "WIN", views[0].Outcome)
	assert.Equal(t, "LOSS", views[1].Outcome)
	assert.Equal(t, 6, views[1].HoldDays)
}

func TestSummary_Cached(t *testing.T) {
	c := &mapCache{data: map[string][]byte{}}
	s := newTestServer(t, c)

	rec := get(t, s, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var sum Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Signals)
	assert.Equal(t, 2, sum.Exits)
	assert.Equal(t, 1, sum.Open)
	assert.Equal(t, 1, sum.TakeProfits)
	assert.Equal(t, 1, sum.StopLosses)
	assert.InDelta(t, 0.5, sum.WinRate, 1e-9)

	rec = get(t, s, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, c.sets)
}

func TestBadRequestAndErrors(t *testing.T) {
	s := New(Options{
		SignalStore:    failingSignals{},
		ExitEventStore: memory.NewExitEventStore(),
		Logger:         zerolog.Nop(),
	})

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/signals").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/exits").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/summary?strategy_id=f1").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/api/signals?strategy_id=f1").Code)
}

func TestStatus(t *testing.T) {
	s := New(Options{
		SignalStore:    memory.NewSignalStore(),
		ExitEventStore: memory.NewExitEventStore(),
		Status:         func() any { return map[string]int{"runs": 2} },
		Logger:         zerolog.Nop(),
	})

	rec := get(t, s, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":2}`, rec.Body.String())
}
