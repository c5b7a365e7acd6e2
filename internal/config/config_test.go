package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdc   = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	link   = "0x779877A7B0D9E8603169DdbD7836e478b4624789"
	router = "0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E"
	pool   = "0x6Ae43d3271ff6888e7Fc43Fd7321a503ff738951"
)

// clearEnv blanks every variable Load reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"RPC_URL", "CHAIN_ID", "PRIVATE_KEY", "TOKEN_IN_ADDRESS", "USDC_ADDRESS", "TOKEN_OUT_ADDRESS",
		"LINK_ADDRESS", "UNISWAP_ROUTER_ADDRESS", "UNISWAP_QUOTER_ADDRESS", "AAVE_LENDING_POOL_ADDRESS",
		"AAVE_POOL_VERSION", "SWAP_FEE_TIER", "SWAP_SLIPPAGE_BPS", "SWAP_AMOUNT", "AAVE_REFERRAL_CODE",
		"EXPLORER_TX_URL", "MAX_AMOUNT_IN", "DAILY_LIMIT_IN", "MAX_SLIPPAGE_BPS", "ALLOWED_TOKENS",
		"HTTP_TIMEOUT", "MAX_RETRIES", "RETRY_BACKOFF", "TX_CONFIRM_TIMEOUT", "DEV_MODE", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func setChainEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("TOKEN_IN_ADDRESS", usdc)
	t.Setenv("TOKEN_OUT_ADDRESS", link)
	t.Setenv("UNISWAP_ROUTER_ADDRESS", router)
	t.Setenv("AAVE_LENDING_POOL_ADDRESS", pool)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, 3000, cfg.FeeTier)
	assert.Equal(t, 0, cfg.SlippageBps)
	assert.Equal(t, "10", cfg.SwapAmount)
	assert.Equal(t, "v2", cfg.PoolVersion)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/", cfg.ExplorerTxURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3*time.Minute, cfg.TxConfirmTimeout)
	assert.True(t, cfg.MaxAmountIn.Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, cfg.TokenInAddress, "addresses have no defaults")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	setChainEnv(t)
	t.Setenv("SWAP_FEE_TIER", "500")
	t.Setenv("SWAP_SLIPPAGE_BPS", "50")
	t.Setenv("AAVE_POOL_VERSION", "v3")
	t.Setenv("TX_CONFIRM_TIMEOUT", "90s")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("MAX_AMOUNT_IN", "25.5")
	t.Setenv("ALLOWED_TOKENS", "USDC, LINK,,")
	t.Setenv("CHAIN_ID", "11155111")

	cfg := Load()
	require.NoError(t, cfg.ValidateChain())

	assert.Equal(t, 500, cfg.FeeTier)
	assert.Equal(t, 50, cfg.SlippageBps)
	assert.Equal(t, "v3", cfg.PoolVersion)
	assert.Equal(t, 90*time.Second, cfg.TxConfirmTimeout)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "25.5", cfg.MaxAmountIn.String())
	assert.Equal(t, []string{"USDC", "LINK"}, cfg.AllowedTokens)
	assert.Equal(t, int64(11155111), cfg.ChainID)
}

func TestLoad_LegacyTokenNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("USDC_ADDRESS", usdc)
	t.Setenv("LINK_ADDRESS", link)

	cfg := Load()
	assert.Equal(t, usdc, cfg.TokenInAddress)
	assert.Equal(t, link, cfg.TokenOutAddress)

	t.Setenv("TOKEN_IN_ADDRESS", link)
	assert.Equal(t, link, Load().TokenInAddress)
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_RETRIES", "many")
	t.Setenv("HTTP_TIMEOUT", "soon")
	t.Setenv("DEV_MODE", "maybe")

	cfg := Load()
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.DevMode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad fee tier", map[string]string{"SWAP_FEE_TIER": "2500"}, "SWAP_FEE_TIER"},
		{"slippage too high", map[string]string{"SWAP_SLIPPAGE_BPS": "10000"}, "SWAP_SLIPPAGE_BPS"},
		{"bad pool version", map[string]string{"AAVE_POOL_VERSION": "v4"}, "AAVE_POOL_VERSION"},
		{"bad address", map[string]string{"TOKEN_IN_ADDRESS": "0xINSERT_USDC_CONTRACT_ADDRESS"}, "TOKEN_IN_ADDRESS"},
		{"bad amount", map[string]string{"SWAP_AMOUNT": "-1"}, "SWAP_AMOUNT"},
		{"bad referral", map[string]string{"AAVE_REFERRAL_CODE": "70000"}, "AAVE_REFERRAL_CODE"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateChain_RequiresEverything(t *testing.T) {
	clearEnv(t)
	err := Load().ValidateChain()
	require.Error(t, err)
	for _, name := range []string{"RPC_URL", "PRIVATE_KEY", "TOKEN_IN_ADDRESS", "TOKEN_OUT_ADDRESS", "UNISWAP_ROUTER_ADDRESS", "AAVE_LENDING_POOL_ADDRESS"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestValidateChain_SameTokens(t *testing.T) {
	setChainEnv(t)
	t.Setenv("TOKEN_OUT_ADDRESS", usdc)

	err := Load().ValidateChain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestContracts(t *testing.T) {
	setChainEnv(t)

	addrs := Load().Contracts()
	assert.Equal(t, common.HexToAddress(usdc), addrs.TokenIn)
	assert.Equal(t, common.HexToAddress(pool), addrs.LendingPool)
	assert.Equal(t, common.Address{}, addrs.Quoter)
}
