package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/Kizito2001/defi-swap-supply/internal/models"
	"github.com/Kizito2001/defi-swap-supply/internal/storage"
	"github.com/sirupsen/logrus"
)

var _ storage.RunStore = (*ClickHouseStore)(nil)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

// EnsureSchema creates the runs table if it does not exist.
func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, runsTableDDL); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         String,
	timestamp      DateTime64(3, 'UTC'),
	wallet         String,
	chain_id       Int64,
	status         LowCardinality(String),
	failed_step    String,
	error          String,
	token_in       LowCardinality(String),
	token_out      LowCardinality(String),
	amount_in      Float64,
	amount_out     Float64,
	amount_in_raw  String,
	amount_out_raw String,
	fee_tier       UInt32,
	pool           String,
	pool_version   LowCardinality(String),
	swap_tx        String,
	supply_tx      String,
	duration_ms    Int64
) ENGINE = MergeTree
ORDER BY (timestamp, run_id)
`

func (c *ClickHouseStore) InsertRun(ctx context.Context, run *models.RunEvent) error {
	query := `
		INSERT INTO runs (
			run_id, timestamp, wallet, chain_id, status, failed_step, error,
			token_in, token_out, amount_in, amount_out, amount_in_raw, amount_out_raw,
			fee_tier, pool, pool_version, swap_tx, supply_tx, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		run.RunID,
		run.Timestamp,
		run.Wallet,
		run.ChainID,
		run.Status,
		run.FailedStep,
		run.Error,
		run.TokenIn,
		run.TokenOut,
		run.AmountIn,
		run.AmountOut,
		run.AmountInRaw,
		run.AmountOutRaw,
		run.FeeTier,
		run.Pool,
		run.PoolVersion,
		run.SwapTx,
		run.SupplyTx,
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// SwapsSince reads back the fields the daily limit needs.
func (c *ClickHouseStore) SwapsSince(ctx context.Context, wallet string, since time.Time) ([]*models.RunEvent, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT run_id, timestamp, token_in, amount_in, amount_in_raw
		FROM runs
		WHERE wallet = ? AND swap_tx != '' AND timestamp >= ?
		ORDER BY timestamp
	`, wallet, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query swaps: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunEvent
	for rows.Next() {
		run := &models.RunEvent{Wallet: wallet}
		if err := rows.Scan(&run.RunID, &run.Timestamp, &run.TokenIn, &run.AmountIn, &run.AmountInRaw); err != nil {
			return nil, fmt.Errorf("failed to scan swap: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
