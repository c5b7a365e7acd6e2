package swapsupply

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Step names used in logs, errors and recorded runs.
const (
	StepApproveSwap   = "approve_swap"
	StepSwap          = "swap"
	StepApproveSupply = "approve_supply"
	StepSupply        = "supply"
)

// RunIntent is a request to swap Amount of the input token and supply the
// proceeds.
type RunIntent struct {
	// Amount in human-readable units of the input token (e.g. "10" USDC)
	Amount string

	// Optional overrides; nil falls back to configured defaults
	SlippageBps *uint16
	FeeTier     *uint32

	Reason      string
	RequestedAt time.Time
}

// SwapParams are validated, executable exactInputSingle parameters.
type SwapParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int

	SlippageBps uint16
	Intent      *RunIntent
	ParsedAt    time.Time
}

// SupplyParams are the lending pool deposit parameters.
type SupplyParams struct {
	Asset        common.Address
	Amount       *big.Int
	OnBehalfOf   common.Address
	ReferralCode uint16
}

// StepResult describes one confirmed on-chain step.
type StepResult struct {
	Step        string    `json:"step"`
	ApproveTx   string    `json:"approve_tx,omitempty"` // empty when the allowance already covered the amount
	TxHash      string    `json:"tx_hash"`
	ExplorerURL string    `json:"explorer_url"`
	BlockNumber uint64    `json:"block_number"`
	GasUsed     uint64    `json:"gas_used"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// QuoteResult is a dry-run answer for a swap.
type QuoteResult struct {
	TokenIn      TokenInfo `json:"token_in"`
	TokenOut     TokenInfo `json:"token_out"`
	Fee          uint32    `json:"fee"`
	AmountIn     *big.Int  `json:"amount_in"`
	AmountOut    *big.Int  `json:"amount_out"`
	MinAmountOut *big.Int  `json:"min_amount_out"`
	SlippageBps  uint16    `json:"slippage_bps"`
	GasEstimate  *big.Int  `json:"gas_estimate,omitempty"`
	QuotedAt     time.Time `json:"quoted_at"`
}

// RunResult is the final outcome of Run.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	FailedAt  string        `json:"failed_at,omitempty"`
	TokenIn   TokenInfo     `json:"token_in"`
	TokenOut  TokenInfo     `json:"token_out"`
	AmountIn  *big.Int      `json:"amount_in"`
	AmountOut *big.Int      `json:"amount_out,omitempty"`
	FeeTier   uint32        `json:"fee_tier"`
	Swap      *StepResult   `json:"swap,omitempty"`
	Supply    *StepResult   `json:"supply,omitempty"`
	Pool      string        `json:"pool"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TokenInfo identifies an ERC-20 token.
type TokenInfo struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// TokenBalance is a token balance in raw and human units.
type TokenBalance struct {
	TokenInfo
	Raw   *big.Int `json:"raw"`
	Human string   `json:"human"`
}

// WalletInfo reports the signer's balances.
type WalletInfo struct {
	Address    common.Address `json:"address"`
	ChainID    int64          `json:"chain_id"`
	BalanceWei *big.Int       `json:"balance_wei"`
	BalanceETH string         `json:"balance_eth"`
	TokenIn    TokenBalance   `json:"token_in"`
	TokenOut   TokenBalance   `json:"token_out"`
}

// RiskCheckResult contains risk validation outcome
type RiskCheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	ExceedsMaxAmountIn  bool `json:"exceeds_max_amount_in,omitempty"`
	ExceedsDailyLimit   bool `json:"exceeds_daily_limit,omitempty"`
	TokenNotAllowed     bool `json:"token_not_allowed,omitempty"`
	SlippageTooHigh     bool `json:"slippage_too_high,omitempty"`
	InsufficientBalance bool `json:"insufficient_balance,omitempty"`

	DailyUsed      string `json:"daily_used"`
	DailyRemaining string `json:"daily_remaining"`
}

// RiskStatus returns current risk limits and usage
type RiskStatus struct {
	MaxAmountIn    string   `json:"max_amount_in"`
	DailyLimitIn   string   `json:"daily_limit_in"`
	DailyUsedIn    string   `json:"daily_used_in"`
	DailyRemaining string   `json:"daily_remaining_in"`
	AllowedTokens  []string `json:"allowed_tokens"`
}
