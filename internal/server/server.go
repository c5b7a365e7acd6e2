package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Addr          string  // Server bind address (e.g., ":8090")
	DevMode       bool    // Enable development mode (detailed error responses)
	APIKey        string  // Optional API key for authentication
	RunsPerMinute float64 // Rate limit for POST /v1/runs per client (default 2)
}

func (c ServerConfig) runRate() float64 {
	if c.RunsPerMinute <= 0 {
		return 2.0 / 60
	}
	return c.RunsPerMinute / 60
}

// ServerDeps contains dependencies required to create a new Server
type ServerDeps struct {
	Handlers *Handlers
	Config   ServerConfig
}

// Server wraps Echo HTTP server with additional lifecycle management
type Server struct {
	e         *echo.Echo
	cfg       ServerConfig
	closed    chan struct{}
	closeOnce sync.Once
}

func NewServer(deps ServerDeps) (*Server, error) {
	h := deps.Handlers
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(h.logger()))

	// POST /v1/runs blocks until the supply confirms
	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 11 * time.Minute
	e.Server.IdleTimeout = 60 * time.Second

	RegisterRoutes(e, h, deps.Config)

	return &Server{e: e, cfg: deps.Config, closed: make(chan struct{})}, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start() error {
	return s.e.Start(s.cfg.Addr)
}

// Shutdown stops accepting requests and waits up to 10 seconds for in-flight
// ones. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.closeOnce.Do(func() { close(s.closed) })
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until Shutdown has returned or ctx is done
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger *logrus.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"path":    v.URIPath,
				"status":  v.Status,
				"latency": v.Latency,
				"remote":  v.RemoteIP,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			if v.Status >= http.StatusInternalServerError {
				entry.Warn("request")
			} else {
				entry.Debug("request")
			}
			return nil
		},
	})
}

// SetNoCacheHeaders middleware prevents caching of API responses
func SetNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

// SetJSONContentType middleware marks responses as JSON, except websocket
// upgrades.
func SetJSONContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket") {
			c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		return next(c)
	}
}
