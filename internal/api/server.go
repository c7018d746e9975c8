// Package api exposes the review workflow over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/ingest"
	"github.com/pbaille/hot/internal/metrics"
	"github.com/pbaille/hot/internal/review"
	"github.com/pbaille/hot/internal/store"
	"github.com/pbaille/hot/internal/suggest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HeaderUserID carries the acting reviewer's identity
const HeaderUserID = "X-User-ID"

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP server configuration
type Config struct {
	Host string
	Port int
}

// Server handles HTTP requests for the classification API
type Server struct {
	echo    *echo.Echo
	review  *review.Service
	health  Pinger
	fetch   func(ctx context.Context, url string) (string, error)
	logger  *zap.Logger
	config  *Config
	nowFunc func() time.Time
}

// New creates the API server. health may be nil.
func New(svc *review.Service, health Pinger, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("review service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, HeaderUserID},
	}))
	e.Use(requestLogger(logger))

	s := &Server{
		echo:    e,
		review:  svc,
		health:  health,
		fetch:   ingest.Fetch,
		logger:  logger,
		config:  cfg,
		nowFunc: time.Now,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the response so the status is known
				c.Error(err)
			}
			duration := time.Since(start)

			req := c.Request()
			route := c.Path()
			if route == "" {
				route = "/"
			}
			status := c.Response().Status

			metrics.HTTPRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(req.Method, route).Observe(duration.Seconds())

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/suggest", s.handleSuggest)
	v1.POST("/confirm", s.handleConfirm)

	v1.POST("/batches", s.handleCreateBatch)
	v1.GET("/items", s.handleListItems)
	v1.GET("/queue", s.handleQueue)
	v1.POST("/items/:id/confirm", s.handleConfirmItem)
	v1.POST("/items/:id/defer", s.handleDeferItem)
	v1.POST("/items/:id/unclassified", s.handleUnclassifiedItem)
	v1.DELETE("/items/:id", s.handleDeleteItem)
	v1.POST("/auto-classify", s.handleAutoClassify)

	v1.GET("/library", s.handleListLibrary)
	v1.GET("/library/stats", s.handleLibraryStats)
	v1.GET("/library/export", s.handleExportLibrary)
	v1.PUT("/library/:id", s.handleReclassifyEntry)
	v1.DELETE("/library/:id", s.handleDeleteEntry)

	v1.GET("/activity", s.handleActivity)
	v1.GET("/analytics", s.handleAnalytics)
	v1.GET("/analytics/temporal", s.handleTemporal)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or tested as a plain handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// HealthResponse is the response body for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// httpError maps domain errors to HTTP errors
func (s *Server) httpError(err error) error {
	var fault *suggest.StoreFault
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, suggest.ErrInvalidInput), errors.Is(err, review.ErrEmptyBatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &fault):
		s.logger.Error("library unavailable", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "library unavailable")
	}
	s.logger.Error("request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func userID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
}

func parseCategory(raw string) (domain.Category, error) {
	cat, err := domain.ParseCategory(raw)
	if err != nil {
		return domain.CategoryNone, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return cat, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}
