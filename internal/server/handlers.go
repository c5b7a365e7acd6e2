package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/ai"
	"github.com/Kizito2001/defi-swap-supply/internal/flags"
	"github.com/Kizito2001/defi-swap-supply/internal/storage"
	"github.com/Kizito2001/defi-swap-supply/internal/swapsupply"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Engine is the part of swapsupply.Engine the API drives.
type Engine interface {
	Run(ctx context.Context, intent *swapsupply.RunIntent) (*swapsupply.RunResult, error)
	Quote(ctx context.Context, intent *swapsupply.RunIntent) (*swapsupply.QuoteResult, error)
	CheckRisk(ctx context.Context, intent *swapsupply.RunIntent) (*swapsupply.RiskCheckResult, error)
	WalletInfo(ctx context.Context) (*swapsupply.WalletInfo, error)
	RiskStatus() *swapsupply.RiskStatus
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Engine       Engine           // Swap-and-supply engine (nil disables run, quote, wallet and risk endpoints)
	Cache        storage.RunCache // Redis-backed run history and live feed
	Flags        *flags.Store     // Redis-backed feature flags store
	AI           *ai.Agent        // AI agent for natural language queries
	AIBaseConfig ai.AgentConfig   // Base configuration for AI agents
	DevMode      bool             // Enable detailed error responses in development
	Logger       *logrus.Logger   // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) logger() *logrus.Logger {
	if h.Logger == nil {
		h.Logger = logrus.New()
	}
	return h.Logger
}

// Health reports whether the service and its optional backends are up
func (h *Handlers) Health(c echo.Context) error {
	resp := HealthResponse{OK: true, Engine: h.Engine != nil}
	if h.Cache != nil {
		ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		up := h.Cache.Ping(ctx) == nil
		resp.Redis = &up
	}
	return c.JSON(http.StatusOK, resp)
}

// RecentRuns returns the most recent runs with optional limit parameter
// Accepts limit query parameter (default: 20, range: 1-100)
func (h *Handlers) RecentRuns(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "run history is not configured", nil)
	}

	limit := 20
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 100 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentRuns(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get runs", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// requireEngine answers 503 on chain endpoints when no engine is configured
func (h *Handlers) requireEngine(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.Engine == nil {
			return h.err(c, http.StatusServiceUnavailable, "engine is not configured", nil)
		}
		return next(c)
	}
}

// Wallet returns the signer's native and token balances
func (h *Handlers) Wallet(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	info, err := h.Engine.WalletInfo(ctx)
	if err != nil {
		return h.err(c, http.StatusBadGateway, "failed to read wallet", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, info)
}

// RiskStatus returns configured limits and today's usage
func (h *Handlers) RiskStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Engine.RiskStatus())
}

// RiskCheck evaluates a run request against the risk rules without sending anything
func (h *Handlers) RiskCheck(c echo.Context) error {
	intent, ok, err := h.bindIntent(c)
	if !ok {
		return err
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.CheckRisk(ctx, intent)
	if err != nil {
		return h.engineErr(c, "risk check failed", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Quote returns the expected swap output for a run request
func (h *Handlers) Quote(c echo.Context) error {
	intent, ok, err := h.bindIntent(c)
	if !ok {
		return err
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.Quote(ctx, intent)
	if err != nil {
		return h.engineErr(c, "quote failed", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Run swaps and supplies. A run that reached the chain returns its result
// even when a later step failed, so the caller learns the swap tx.
func (h *Handlers) Run(c echo.Context) error {
	intent, ok, err := h.bindIntent(c)
	if !ok {
		return err
	}

	// transactions are awaited; allow several block times per step
	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Minute)
	defer cancel()

	res, err := h.Engine.Run(ctx, intent)
	if err == nil {
		return c.JSON(http.StatusOK, RunResponse{Result: res})
	}

	h.logger().WithError(err).WithField("failed_at", swapsupply.FailedStep(err)).Warn("api run failed")
	if res == nil || res.AmountIn == nil || swapsupply.FailedStep(err) == "" {
		return h.engineErr(c, "run failed", err)
	}
	return c.JSON(http.StatusBadGateway, RunResponse{Result: res, Error: err.Error()})
}

// bindIntent decodes a RunRequest. When ok is false the error response has
// already been written and err is what the handler should return.
func (h *Handlers) bindIntent(c echo.Context) (intent *swapsupply.RunIntent, ok bool, err error) {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return nil, false, h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Amount = strings.TrimSpace(req.Amount)
	if req.Amount == "" {
		return nil, false, h.err(c, http.StatusBadRequest, "amount is required", map[string]any{"amount": "required"})
	}

	return &swapsupply.RunIntent{
		Amount:      req.Amount,
		SlippageBps: req.SlippageBps,
		FeeTier:     req.FeeTier,
		Reason:      req.Reason,
		RequestedAt: time.Now(),
	}, true, nil
}

// FlagsUpsert creates or updates a feature flag with the given key and value
// Validates key format and returns the created/updated flag
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	if h.Flags == nil {
		return h.err(c, http.StatusServiceUnavailable, "flags are not configured", nil)
	}
	var req FlagUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := flags.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, req.Key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to upsert flag", nil)
	}
	h.logger().WithFields(logrus.Fields{"key": out.Key, "value": out.Value}).Info("flag set")
	return c.JSON(http.StatusOK, out)
}

// FlagsUpdate updates an existing feature flag with the given key
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	if h.Flags == nil {
		return h.err(c, http.StatusServiceUnavailable, "flags are not configured", nil)
	}
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	var req FlagUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update flag", nil)
	}
	h.logger().WithFields(logrus.Fields{"key": out.Key, "value": out.Value}).Info("flag set")
	return c.JSON(http.StatusOK, out)
}

// FlagsGet retrieves a feature flag by its key
// Returns 404 if flag doesn't exist
func (h *Handlers) FlagsGet(c echo.Context) error {
	if h.Flags == nil {
		return h.err(c, http.StatusServiceUnavailable, "flags are not configured", nil)
	}
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "flag not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsList returns all feature flags
func (h *Handlers) FlagsList(c echo.Context) error {
	if h.Flags == nil {
		return h.err(c, http.StatusServiceUnavailable, "flags are not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsDelete removes a feature flag by its key
// Returns 204 No Content on successful deletion
func (h *Handlers) FlagsDelete(c echo.Context) error {
	if h.Flags == nil {
		return h.err(c, http.StatusServiceUnavailable, "flags are not configured", nil)
	}
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete flag", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// AIAsk answers natural language questions about run history
// Supports optional model override for one-off requests
func (h *Handlers) AIAsk(c echo.Context) error {
	if h.AI == nil {
		return h.err(c, http.StatusBadRequest, "ai is not configured", nil)
	}

	var req AIAskRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return h.err(c, http.StatusBadRequest, "question is required", map[string]any{"question": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 45*time.Second)
	defer cancel()

	start := time.Now()

	// Use default AI agent or create temporary one with custom model
	agent := h.AI
	if m := strings.TrimSpace(req.Model); m != "" {
		cfg := h.AIBaseConfig
		cfg.Model = m
		a, err := ai.NewAgent(ctx, cfg)
		if err != nil {
			return h.err(c, http.StatusInternalServerError, "failed to create ai agent", nil)
		}
		agent = a
		defer func() {
			_ = a.Close()
		}()
	}

	res, err := agent.Ask(ctx, req.Question)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "ai ask failed", map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusOK, AIAskResponse{
		SQL:       res.SQL,
		Answer:    res.Answer,
		Rows:      res.Rows,
		Truncated: res.Truncated,
		TookMs:    time.Since(start).Milliseconds(),
	})
}
