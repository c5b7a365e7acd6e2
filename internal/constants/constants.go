package constants

import "time"

// Redis keys
const (
	RedisKeyRecentRuns = "runs:recent"
)

// Redis Pub/Sub channels
const (
	PubSubChannelRuns = "runs:live"
)

// Limits
const (
	MaxRecentRuns = 100
)

// Flag keys
const (
	// FlagExecute gates every run that sends transactions. Missing means enabled.
	FlagExecute = "swapsupply.execute"
)

// Uniswap v3 pool fee tiers, in hundredths of a bip.
const (
	FeeTierLowest = 100
	FeeTierLow    = 500
	FeeTierMedium = 3000
	FeeTierHigh   = 10000

	DefaultFeeTier = FeeTierMedium
)

var AllowedFeeTiers = []uint32{FeeTierLowest, FeeTierLow, FeeTierMedium, FeeTierHigh}

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10_000

// Run defaults
const (
	DefaultSwapAmount     = "10"
	DefaultExplorerTxURL  = "https://sepolia.etherscan.io/tx/"
	DefaultConfirmTimeout = 3 * time.Minute
)
