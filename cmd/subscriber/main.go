// subscriber prints runs as they are published on the live channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kizito2001/defi-swap-supply/internal/cache"
	"github.com/Kizito2001/defi-swap-supply/internal/config"
	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	status := flag.String("status", "", "only show runs with this status (success|failed)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Logger: logger})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer rc.Close()

	channel := constants.PubSubChannelRuns
	if *status != "" {
		channel = "runs:status:" + *status
	}
	runs, err := rc.Subscribe(ctx, channel)
	if err != nil {
		logger.WithError(err).Fatal("subscribe failed")
	}

	logger.WithField("channel", channel).Info("subscriber running, press Ctrl+C to stop")
	for run := range runs {
		printRun(run)
	}
	logger.Info("shutting down subscriber")
}

func printRun(run *models.RunEvent) {
	line := fmt.Sprintf("%s | %s | %g %s -> %g %s | fee %d",
		run.Timestamp.Format("15:04:05"), run.Status,
		run.AmountIn, run.TokenIn, run.AmountOut, run.TokenOut, run.FeeTier)
	if run.Status == models.RunStatusFailed {
		line += fmt.Sprintf(" | failed at %s: %s", run.FailedStep, run.Error)
	} else if run.SupplyTx != "" {
		line += " | supply " + run.SupplyTx
	}
	fmt.Println(line)
}
