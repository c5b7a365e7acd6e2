package swapsupply

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RiskConfig defines risk management parameters. Amounts are in human units
// of the input token.
type RiskConfig struct {
	// Per-run limit (zero = unlimited)
	MaxAmountIn decimal.Decimal

	// Daily limit, rolling 24h window (zero = unlimited)
	DailyLimitIn decimal.Decimal

	// Slippage constraints
	DefaultSlippageBps uint16 // 0 keeps amountOutMinimum at zero
	MaxSlippageBps     uint16

	// Token allow-list by symbol (empty = allow all)
	AllowedTokens []string
}

// DefaultRiskConfig returns conservative risk settings
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxAmountIn:        decimal.NewFromInt(1000),
		DailyLimitIn:       decimal.NewFromInt(10000),
		DefaultSlippageBps: 0,
		MaxSlippageBps:     1000, // 10%
	}
}

// RiskManager enforces risk limits
type RiskManager struct {
	config       RiskConfig
	dailyTracker *DailyLimitTracker
}

func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{
		config:       config,
		dailyTracker: NewDailyLimitTracker(),
	}
}

// CheckRun validates a run against all risk rules. balanceIn is the wallet's
// raw tokenIn balance; nil skips the balance check.
func (rm *RiskManager) CheckRun(
	ctx context.Context,
	params *SwapParams,
	tokenIn, tokenOut TokenInfo,
	balanceIn *big.Int,
) (*RiskCheckResult, error) {
	if params == nil || params.AmountIn == nil {
		return nil, fmt.Errorf("params is nil")
	}

	amount := decimal.NewFromBigInt(params.AmountIn, -int32(tokenIn.Decimals))
	dailyUsed := rm.dailyTracker.GetDailyUsage()

	result := &RiskCheckResult{
		Allowed:        true,
		DailyUsed:      dailyUsed.String(),
		DailyRemaining: rm.remaining(dailyUsed).String(),
	}

	// 1. Per-run limit
	if rm.config.MaxAmountIn.IsPositive() && amount.GreaterThan(rm.config.MaxAmountIn) {
		result.Allowed = false
		result.ExceedsMaxAmountIn = true
		result.Reason = fmt.Sprintf("amount %s %s exceeds max %s per run",
			amount, tokenIn.Symbol, rm.config.MaxAmountIn)
		return result, nil
	}

	// 2. Daily limit
	if rm.config.DailyLimitIn.IsPositive() && dailyUsed.Add(amount).GreaterThan(rm.config.DailyLimitIn) {
		result.Allowed = false
		result.ExceedsDailyLimit = true
		result.Reason = fmt.Sprintf("daily limit exceeded: used %s + %s > %s %s",
			dailyUsed, amount, rm.config.DailyLimitIn, tokenIn.Symbol)
		return result, nil
	}

	// 3. Token allow-list
	if !rm.isTokenAllowed(tokenIn.Symbol) || !rm.isTokenAllowed(tokenOut.Symbol) {
		result.Allowed = false
		result.TokenNotAllowed = true
		result.Reason = fmt.Sprintf("token not allowed: %s or %s", tokenIn.Symbol, tokenOut.Symbol)
		return result, nil
	}

	// 4. Slippage
	if rm.config.MaxSlippageBps > 0 && params.SlippageBps > rm.config.MaxSlippageBps {
		result.Allowed = false
		result.SlippageTooHigh = true
		result.Reason = fmt.Sprintf("slippage %d bps exceeds max %d bps",
			params.SlippageBps, rm.config.MaxSlippageBps)
		return result, nil
	}

	// 5. Balance
	if balanceIn != nil && balanceIn.Cmp(params.AmountIn) < 0 {
		result.Allowed = false
		result.InsufficientBalance = true
		result.Reason = fmt.Sprintf("insufficient %s balance: have %s, need %s",
			tokenIn.Symbol, FormatAmount(balanceIn, tokenIn.Decimals), amount)
		return result, nil
	}

	return result, nil
}

// RecordRun records a completed swap for daily limit tracking
func (rm *RiskManager) RecordRun(params *SwapParams, tokenIn TokenInfo) {
	rm.dailyTracker.Record(decimal.NewFromBigInt(params.AmountIn, -int32(tokenIn.Decimals)))
}

func (rm *RiskManager) Status() *RiskStatus {
	used := rm.dailyTracker.GetDailyUsage()
	return &RiskStatus{
		MaxAmountIn:    rm.config.MaxAmountIn.String(),
		DailyLimitIn:   rm.config.DailyLimitIn.String(),
		DailyUsedIn:    used.String(),
		DailyRemaining: rm.remaining(used).String(),
		AllowedTokens:  rm.config.AllowedTokens,
	}
}

func (rm *RiskManager) remaining(used decimal.Decimal) decimal.Decimal {
	if !rm.config.DailyLimitIn.IsPositive() {
		return decimal.Zero
	}
	return decimal.Max(rm.config.DailyLimitIn.Sub(used), decimal.Zero)
}

func (rm *RiskManager) isTokenAllowed(symbol string) bool {
	if len(rm.config.AllowedTokens) == 0 {
		return true
	}
	for _, allowed := range rm.config.AllowedTokens {
		if strings.EqualFold(allowed, symbol) {
			return true
		}
	}
	return false
}

// DailyLimitTracker tracks rolling 24-hour usage
type DailyLimitTracker struct {
	mu      sync.Mutex
	records []usageRecord
	now     func() time.Time
}

type usageRecord struct {
	timestamp time.Time
	amount    decimal.Decimal
}

func NewDailyLimitTracker() *DailyLimitTracker {
	return &DailyLimitTracker{now: time.Now}
}

func (t *DailyLimitTracker) Record(amount decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, usageRecord{timestamp: t.now(), amount: amount})
	t.cleanup()
}

// GetDailyUsage sums usage over the last 24 hours
func (t *DailyLimitTracker) GetDailyUsage() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cleanup()
	total := decimal.Zero
	for _, r := range t.records {
		total = total.Add(r.amount)
	}
	return total
}

// Load replaces tracked usage with records, e.g. swaps read back from storage.
func (t *DailyLimitTracker) Load(records []usageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append([]usageRecord(nil), records...)
	t.cleanup()
}

// Reset clears all tracked usage
func (t *DailyLimitTracker) Reset() {
	t.mu.Lock()
	t.records = nil
	t.mu.Unlock()
}

// cleanup drops records older than 24 hours. Caller holds mu.
func (t *DailyLimitTracker) cleanup() {
	cutoff := t.now().Add(-24 * time.Hour)
	kept := t.records[:0]
	for _, r := range t.records {
		if r.timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	t.records = kept
}
