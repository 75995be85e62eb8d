// Package api serves stored signals, exits and outcome summaries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/reporting"
	"btc-signal-lab/internal/storage"
)

// Cache is the response cache used by the summary endpoint.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Options configures the HTTP server.
type Options struct {
	SignalStore    storage.SignalStore
	ExitEventStore storage.ExitEventStore
	AggregateStore storage.StrategyAggregateStore // optional

	// Used when a request does not name a filter or rule.
	DefaultStrategyID string
	DefaultExitRuleID string

	Cache    Cache // optional
	CacheTTL time.Duration

	// Status reports scheduler state for /api/status. Optional.
	Status func() any

	Logger zerolog.Logger
}

// Server wraps an Echo instance with the API routes.
type Server struct {
	echo      *echo.Echo
	opts      Options
	generator *reporting.Generator
	logger    zerolog.Logger
}

// New creates the server and registers routes.
func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		opts:      opts,
		generator: reporting.NewGenerator(opts.SignalStore, opts.ExitEventStore, opts.AggregateStore),
		logger:    opts.Logger.With().Str("component", "api").Logger(),
	}

	e.Use(s.recoverer, s.requestLogger)

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	g := e.Group("/api")
	g.GET("/signals", s.signals)
	g.GET("/exits", s.exits)
	g.GET("/summary", s.summary)
	g.GET("/status", s.status)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown. Returns nil after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) recoverer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
				err = c.JSON(http.StatusInternalServerError, errorBody{Error: "internal server error"})
			}
		}()
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Debug().
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Int("status", c.Response().Status).
			Dur("latency", time.Since(start)).
			Msg("request")
		return nil
	}
}
