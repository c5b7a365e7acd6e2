package swapsupply

import (
	"fmt"

	"github.com/Kizito2001/defi-swap-supply/internal/config"
	"github.com/Kizito2001/defi-swap-supply/internal/contracts"
	"github.com/sirupsen/logrus"
)

// EngineConfigFrom builds an EngineConfig from environment settings. It fails
// unless cfg carries everything needed to sign and send transactions.
func EngineConfigFrom(cfg *config.Config, logger *logrus.Logger) (EngineConfig, error) {
	if err := cfg.ValidateChain(); err != nil {
		return EngineConfig{}, err
	}
	version, err := contracts.ParsePoolVersion(cfg.PoolVersion)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("AAVE_POOL_VERSION: %w", err)
	}
	addrs := cfg.Contracts()

	return EngineConfig{
		RPCURL:       cfg.RPCUrl,
		RPCTimeout:   cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,

		PrivateKey:     cfg.PrivateKey,
		ChainID:        cfg.ChainID,
		ConfirmTimeout: cfg.TxConfirmTimeout,

		TokenIn:     addrs.TokenIn,
		TokenOut:    addrs.TokenOut,
		Router:      addrs.Router,
		Quoter:      addrs.Quoter,
		LendingPool: addrs.LendingPool,
		PoolVersion: version,

		FeeTier:       uint32(cfg.FeeTier),
		ReferralCode:  uint16(cfg.ReferralCode),
		ExplorerTxURL: cfg.ExplorerTxURL,

		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,

		RiskConfig: RiskConfig{
			MaxAmountIn:        cfg.MaxAmountIn,
			DailyLimitIn:       cfg.DailyLimitIn,
			DefaultSlippageBps: uint16(cfg.SlippageBps),
			MaxSlippageBps:     uint16(cfg.MaxSlippageBps),
			AllowedTokens:      cfg.AllowedTokens,
		},
		Logger: logger,
	}, nil
}
