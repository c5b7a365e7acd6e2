package storage

import (
	"context"
	"io"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/models"
)

// RunCache defines the interface for caching recent runs
type RunCache interface {
	// AddRecentRun adds a run to the recent runs list
	AddRecentRun(ctx context.Context, run *models.RunEvent) error

	// GetRecentRuns retrieves the most recent runs, newest first
	GetRecentRuns(ctx context.Context, limit int64) ([]*models.RunEvent, error)

	// PublishRun publishes a run to the Pub/Sub channel
	PublishRun(ctx context.Context, run *models.RunEvent) error

	// SubscribeRuns subscribes to real-time run events
	SubscribeRuns(ctx context.Context) (<-chan *models.RunEvent, error)

	// Ping checks if the cache is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// RunStore defines the interface for persistent run storage
type RunStore interface {
	// InsertRun inserts a run into the store
	InsertRun(ctx context.Context, run *models.RunEvent) error

	// SwapsSince returns the wallet's runs whose swap was sent at or after
	// since, oldest first
	SwapsSince(ctx context.Context, wallet string, since time.Time) ([]*models.RunEvent, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	io.Closer
}
