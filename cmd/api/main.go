package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/ai"
	"github.com/Kizito2001/defi-swap-supply/internal/cache"
	"github.com/Kizito2001/defi-swap-supply/internal/config"
	"github.com/Kizito2001/defi-swap-supply/internal/flags"
	"github.com/Kizito2001/defi-swap-supply/internal/server"
	"github.com/Kizito2001/defi-swap-supply/internal/swapsupply"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// main starts the HTTP API. Chain settings are optional: without them the
// run, quote, wallet and risk endpoints answer 503.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, using system environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := &server.Handlers{
		DevMode: cfg.DevMode,
		Logger:  logger,
	}

	// Redis: run history, live feed and flags
	var flagStore *flags.Store
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Logger: logger})
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, run history and flags endpoints disabled")
	} else {
		defer rc.Close()
		h.Cache = rc
		flagStore, err = flags.NewStore(rc.Client())
		if err != nil {
			logger.WithError(err).Fatal("failed to create flags store")
		}
		h.Flags = flagStore
	}

	// Engine: only when the chain is configured. It records through the
	// connection above; Redis was already tried, so it does not dial again.
	if ec, err := swapsupply.EngineConfigFrom(cfg, logger); err != nil {
		logger.WithError(err).Warn("chain not configured, run endpoints disabled")
	} else {
		ec.RedisAddr = ""
		if rc != nil {
			ec.Cache = rc
			ec.Flags = flagStore
		}
		engine, err := swapsupply.NewEngine(ctx, ec)
		if err != nil {
			logger.WithError(err).Fatal("failed to start engine")
		}
		defer engine.Close()
		h.Engine = engine
	}

	// AI agent for natural language queries (optional)
	h.AIBaseConfig = ai.AgentConfig{
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		Model:              cfg.AIModel,
		Logger:             logger,
	}
	if cfg.OpenRouterAPIKey != "" {
		agent, err := ai.NewAgent(ctx, h.AIBaseConfig)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize ai agent")
		} else {
			defer agent.Close()
			h.AI = agent
		}
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("api server did not close cleanly")
	}
}
