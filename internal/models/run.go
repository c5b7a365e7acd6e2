package models

import "time"

// Run statuses
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// RunEvent is the recorded outcome of one swap-and-supply run.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Wallet     string    `json:"wallet"`
	ChainID    int64     `json:"chain_id"`
	Status     string    `json:"status"`
	FailedStep string    `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`

	TokenIn      string  `json:"token_in"`  // symbol
	TokenOut     string  `json:"token_out"` // symbol
	AmountIn     float64 `json:"amount_in"`
	AmountOut    float64 `json:"amount_out"`
	AmountInRaw  string  `json:"amount_in_raw"`
	AmountOutRaw string  `json:"amount_out_raw"`
	FeeTier      uint32  `json:"fee_tier"`

	Pool        string `json:"pool"`
	PoolVersion string `json:"pool_version"`
	SwapTx      string `json:"swap_tx,omitempty"`
	SupplyTx    string `json:"supply_tx,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}
