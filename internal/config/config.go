package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/contracts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Chain
	RPCUrl     string
	ChainID    int64 // 0 = ask the node
	PrivateKey string

	// Contracts (no defaults; must be set for the target network)
	TokenInAddress     string
	TokenOutAddress    string
	RouterAddress      string
	QuoterAddress      string // optional, enables quotes and slippage protection
	LendingPoolAddress string
	PoolVersion        string

	// Run parameters
	FeeTier       int
	SlippageBps   int
	SwapAmount    string
	ReferralCode  int
	ExplorerTxURL string

	// Risk limits, in human units of the input token (0 = unlimited)
	MaxAmountIn    decimal.Decimal
	DailyLimitIn   decimal.Decimal
	MaxSlippageBps int
	AllowedTokens  []string

	// HTTP client settings
	HTTPTimeout      time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	TxConfirmTimeout time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// API
	APIAddr string
	APIKey  string
	DevMode bool

	// AI
	OpenRouterAPIKey string
	AIModel          string

	LogLevel string
}

// ContractAddresses are the parsed contract addresses of a Config.
type ContractAddresses struct {
	TokenIn     common.Address
	TokenOut    common.Address
	Router      common.Address
	Quoter      common.Address // zero when unset
	LendingPool common.Address
}

func Load() *Config {
	return &Config{
		// Chain
		RPCUrl:     getEnv("RPC_URL", ""),
		ChainID:    int64(getIntEnv("CHAIN_ID", 0)),
		PrivateKey: getEnv("PRIVATE_KEY", ""),

		// Contracts
		TokenInAddress:     getEnv("TOKEN_IN_ADDRESS", getEnv("USDC_ADDRESS", "")),
		TokenOutAddress:    getEnv("TOKEN_OUT_ADDRESS", getEnv("LINK_ADDRESS", "")),
		RouterAddress:      getEnv("UNISWAP_ROUTER_ADDRESS", ""),
		QuoterAddress:      getEnv("UNISWAP_QUOTER_ADDRESS", ""),
		LendingPoolAddress: getEnv("AAVE_LENDING_POOL_ADDRESS", ""),
		PoolVersion:        getEnv("AAVE_POOL_VERSION", string(contracts.PoolV2)),

		// Run
		FeeTier:       getIntEnv("SWAP_FEE_TIER", constants.DefaultFeeTier),
		SlippageBps:   getIntEnv("SWAP_SLIPPAGE_BPS", 0),
		SwapAmount:    getEnv("SWAP_AMOUNT", constants.DefaultSwapAmount),
		ReferralCode:  getIntEnv("AAVE_REFERRAL_CODE", 0),
		ExplorerTxURL: getEnv("EXPLORER_TX_URL", constants.DefaultExplorerTxURL),

		// Risk
		MaxAmountIn:    getDecimalEnv("MAX_AMOUNT_IN", decimal.NewFromInt(1000)),
		DailyLimitIn:   getDecimalEnv("DAILY_LIMIT_IN", decimal.NewFromInt(10000)),
		MaxSlippageBps: getIntEnv("MAX_SLIPPAGE_BPS", 1000),
		AllowedTokens:  getListEnv("ALLOWED_TOKENS"),

		// HTTP
		HTTPTimeout:      getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:       getIntEnv("MAX_RETRIES", 5),
		RetryBackoff:     getDurationEnv("RETRY_BACKOFF", 2*time.Second),
		TxConfirmTimeout: getDurationEnv("TX_CONFIRM_TIMEOUT", constants.DefaultConfirmTimeout),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "defi"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// API
		APIAddr: getEnv("API_ADDR", ":8090"),
		APIKey:  getEnv("API_KEY", ""),
		DevMode: getBoolEnv("DEV_MODE", false),

		// AI
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		AIModel:          getEnv("AI_MODEL", "openai/gpt-4.1-mini"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks settings every binary relies on. Chain settings are only
// required by binaries that send transactions; see ValidateChain.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if _, err := contracts.ParsePoolVersion(c.PoolVersion); err != nil {
		errs = append(errs, fmt.Errorf("AAVE_POOL_VERSION: %w", err))
	}
	if c.FeeTier < 0 || !slices.Contains(constants.AllowedFeeTiers, uint32(c.FeeTier)) {
		errs = append(errs, fmt.Errorf("SWAP_FEE_TIER: %d is not one of %v", c.FeeTier, constants.AllowedFeeTiers))
	}
	if c.SlippageBps < 0 || c.SlippageBps >= constants.BpsDenominator {
		errs = append(errs, fmt.Errorf("SWAP_SLIPPAGE_BPS: must be in [0, %d)", constants.BpsDenominator))
	}
	if c.MaxSlippageBps < 0 || c.MaxSlippageBps > constants.BpsDenominator {
		errs = append(errs, fmt.Errorf("MAX_SLIPPAGE_BPS: must be in [0, %d]", constants.BpsDenominator))
	}
	if c.ReferralCode < 0 || c.ReferralCode > 0xffff {
		errs = append(errs, fmt.Errorf("AAVE_REFERRAL_CODE: must fit in uint16"))
	}
	if d, err := decimal.NewFromString(c.SwapAmount); err != nil || !d.IsPositive() {
		errs = append(errs, fmt.Errorf("SWAP_AMOUNT: %q is not a positive number", c.SwapAmount))
	}
	if c.MaxAmountIn.IsNegative() || c.DailyLimitIn.IsNegative() {
		errs = append(errs, fmt.Errorf("MAX_AMOUNT_IN and DAILY_LIMIT_IN must not be negative"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES: must not be negative"))
	}

	for name, v := range map[string]string{
		"TOKEN_IN_ADDRESS":          c.TokenInAddress,
		"TOKEN_OUT_ADDRESS":         c.TokenOutAddress,
		"UNISWAP_ROUTER_ADDRESS":    c.RouterAddress,
		"UNISWAP_QUOTER_ADDRESS":    c.QuoterAddress,
		"AAVE_LENDING_POOL_ADDRESS": c.LendingPoolAddress,
	} {
		if v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s: %q is not a 20-byte hex address", name, v))
		}
	}

	return errors.Join(errs...)
}

// ValidateChain checks everything needed to sign and send transactions.
func (c *Config) ValidateChain() error {
	var errs []error
	required := []struct{ name, val string }{
		{"RPC_URL", c.RPCUrl},
		{"PRIVATE_KEY", c.PrivateKey},
		{"TOKEN_IN_ADDRESS", c.TokenInAddress},
		{"TOKEN_OUT_ADDRESS", c.TokenOutAddress},
		{"UNISWAP_ROUTER_ADDRESS", c.RouterAddress},
		{"AAVE_LENDING_POOL_ADDRESS", c.LendingPoolAddress},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.TokenInAddress != "" && strings.EqualFold(c.TokenInAddress, c.TokenOutAddress) {
		errs = append(errs, fmt.Errorf("TOKEN_IN_ADDRESS and TOKEN_OUT_ADDRESS must differ"))
	}
	return errors.Join(errs...)
}

// Contracts parses the configured addresses. Call after ValidateChain.
func (c *Config) Contracts() ContractAddresses {
	out := ContractAddresses{
		TokenIn:     common.HexToAddress(c.TokenInAddress),
		TokenOut:    common.HexToAddress(c.TokenOutAddress),
		Router:      common.HexToAddress(c.RouterAddress),
		LendingPool: common.HexToAddress(c.LendingPoolAddress),
	}
	if c.QuoterAddress != "" {
		out.Quoter = common.HexToAddress(c.QuoterAddress)
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
