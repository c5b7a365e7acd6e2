package swapsupply

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type DecisionEngine struct {
	risk    RiskConfig
	feeTier uint32
}

func NewDecisionEngine(risk RiskConfig, feeTier uint32) *DecisionEngine {
	if feeTier == 0 {
		feeTier = constants.DefaultFeeTier
	}
	return &DecisionEngine{risk: risk, feeTier: feeTier}
}

func (de *DecisionEngine) ValidateIntent(intent *RunIntent) error {
	if intent == nil {
		return fmt.Errorf("intent is nil")
	}
	if strings.TrimSpace(intent.Amount) == "" {
		return fmt.Errorf("amount required")
	}
	d, err := decimal.NewFromString(strings.TrimSpace(intent.Amount))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", intent.Amount, err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("amount must be > 0")
	}
	if intent.FeeTier != nil && !slices.Contains(constants.AllowedFeeTiers, *intent.FeeTier) {
		return fmt.Errorf("unsupported fee tier %d (allowed: %v)", *intent.FeeTier, constants.AllowedFeeTiers)
	}
	if intent.SlippageBps != nil && *intent.SlippageBps >= constants.BpsDenominator {
		return fmt.Errorf("slippage must be below %d bps", constants.BpsDenominator)
	}
	return nil
}

func (de *DecisionEngine) EnrichIntent(intent *RunIntent) {
	if intent.RequestedAt.IsZero() {
		intent.RequestedAt = time.Now()
	}
	if intent.SlippageBps == nil {
		v := de.risk.DefaultSlippageBps
		intent.SlippageBps = &v
	}
	if intent.FeeTier == nil {
		v := de.feeTier
		intent.FeeTier = &v
	}
}

// ParseIntent turns an intent into swap parameters for tokenIn -> tokenOut
// paid to recipient. AmountOutMinimum starts at zero; the executor raises it
// from a quote when slippage protection is on.
func (de *DecisionEngine) ParseIntent(intent *RunIntent, tokenIn, tokenOut TokenInfo, recipient common.Address) (*SwapParams, error) {
	if err := de.ValidateIntent(intent); err != nil {
		return nil, err
	}
	de.EnrichIntent(intent)

	amountIn, err := ToRawAmount(intent.Amount, tokenIn.Decimals)
	if err != nil {
		return nil, err
	}

	return &SwapParams{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		Fee:               *intent.FeeTier,
		Recipient:         recipient,
		AmountIn:          amountIn,
		AmountOutMinimum:  new(big.Int),
		SqrtPriceLimitX96: new(big.Int),
		SlippageBps:       *intent.SlippageBps,
		Intent:            intent,
		ParsedAt:          time.Now(),
	}, nil
}

// ToRawAmount converts a human amount to integer token units. Amounts with
// more fractional digits than the token supports are rejected rather than
// rounded.
func ToRawAmount(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("amount must be > 0")
	}
	raw := d.Shift(int32(decimals))
	if !raw.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return raw.BigInt(), nil
}

// FormatAmount renders raw token units with the token's decimals.
func FormatAmount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// ApplySlippage returns amountOut reduced by slippageBps.
func ApplySlippage(amountOut *big.Int, slippageBps uint16) *big.Int {
	if amountOut == nil || slippageBps >= constants.BpsDenominator {
		return new(big.Int) // 100% slippage = no output
	}

	// minOut = amountOut * (10000 - slippageBps) / 10000
	factor := big.NewInt(int64(constants.BpsDenominator - int(slippageBps)))
	out := new(big.Int).Mul(amountOut, factor)
	return out.Quo(out, big.NewInt(constants.BpsDenominator))
}
