package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/models"
	"github.com/Kizito2001/defi-swap-supply/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var _ storage.RunCache = (*RedisCache)(nil)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Logger   *logrus.Logger
}

// RedisCache keeps the recent run list and the live run channel.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: Addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.Addr, err)
	}

	c := NewRedisCacheFromClient(client, cfg.Logger)
	c.logger.WithField("addr", cfg.Addr).Info("connected to Redis")
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client, e.g. one shared with the
// flags store.
func NewRedisCacheFromClient(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisCache{client: client, logger: logger}
}

// Client exposes the underlying connection for stores that share it.
func (r *RedisCache) Client() *redis.Client { return r.client }

func (r *RedisCache) AddRecentRun(ctx context.Context, run *models.RunEvent) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentRuns, data)
	pipe.LTrim(ctx, constants.RedisKeyRecentRuns, 0, constants.MaxRecentRuns-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add recent run: %w", err)
	}
	return nil
}

func (r *RedisCache) GetRecentRuns(ctx context.Context, limit int64) ([]*models.RunEvent, error) {
	if limit <= 0 {
		limit = constants.MaxRecentRuns
	}

	vals, err := r.client.LRange(ctx, constants.RedisKeyRecentRuns, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}

	out := make([]*models.RunEvent, 0, len(vals))
	for _, v := range vals {
		var run models.RunEvent
		if err := json.Unmarshal([]byte(v), &run); err != nil {
			r.logger.WithError(err).Debug("skipping malformed run entry")
			continue
		}
		out = append(out, &run)
	}
	return out, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
