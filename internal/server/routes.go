package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes wires middleware and the /v1 API onto e.
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = jsonErrorHandler(h.logger())

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			// browsers cannot set headers on websocket upgrades
			KeyLookup: "header:X-API-Key,query:api_key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)

	// Chain: reads and dry runs
	v1.GET("/wallet", h.Wallet, h.requireEngine)
	v1.GET("/risk", h.RiskStatus, h.requireEngine)
	v1.POST("/risk/check", h.RiskCheck, h.requireEngine)
	v1.POST("/quote", h.Quote, h.requireEngine)

	// Runs: history, live feed, and the one endpoint that sends transactions
	v1.GET("/runs/recent", h.RecentRuns)
	v1.GET("/runs/live", h.LiveRuns)
	v1.POST("/runs", h.Run, h.requireEngine, limiter(cfg.runRate(), 1, 5*time.Minute))

	// AI over run history
	v1.POST("/ai/ask", h.AIAsk, limiter(0.2, 2, 2*time.Minute))

	// Feature flags
	v1.GET("/flags", h.FlagsList)
	v1.POST("/flags", h.FlagsUpsert)
	v1.GET("/flags/:key", h.FlagsGet)
	v1.PUT("/flags/:key", h.FlagsUpdate)
	v1.DELETE("/flags/:key", h.FlagsDelete)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}

// limiter is a per-client (by IP) token bucket of perSecond requests.
func limiter(perSecond float64, burst int, expiresIn time.Duration) echo.MiddlewareFunc {
	return middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: expiresIn,
	}))
}
