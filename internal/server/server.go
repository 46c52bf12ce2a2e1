package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"metalwatch/internal/alerting"
	"metalwatch/internal/ingest"
)

// Options wire the trigger server.
type Options struct {
	ListenAddr string
	Ingest     *ingest.Service
	Evaluator  *alerting.Evaluator
}

// Server exposes the update and alert runs over HTTP so an external
// scheduler can trigger them. Each request executes one run to completion.
type Server struct {
	opts   Options
	echo   *echo.Echo
	logger zerolog.Logger
}

// New builds the trigger server and registers routes.
func New(opts Options, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		opts:   opts,
		echo:   e,
		logger: logger.With().Str("component", "server").Logger(),
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/tasks/update", s.handleUpdate)
	e.POST("/tasks/alerts", s.handleAlerts)

	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("starting trigger server")
	err := s.echo.Start(s.opts.ListenAddr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleUpdate(c echo.Context) error {
	task := c.QueryParam("task")

	err := s.opts.Ingest.RunTask(c.Request().Context(), task)
	if errors.Is(err, ingest.ErrUnknownTask) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid task; use ?task=commodities or ?task=fx or ?task=platinum",
		})
	}
	if err != nil {
		s.logger.Error().Err(err).Str("task", task).Msg("update run failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "task": task})
}

func (s *Server) handleAlerts(c echo.Context) error {
	if s.opts.Evaluator == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "alerting not configured"})
	}

	fired, err := s.opts.Evaluator.Run(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("alert run failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "alerts": fired})
}
