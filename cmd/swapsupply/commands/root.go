package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Kizito2001/defi-swap-supply/internal/config"
	"github.com/Kizito2001/defi-swap-supply/internal/swapsupply"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	logger = newLogger()
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "swapsupply",
		Short:         "Swap a token on Uniswap v3 and supply the proceeds to Aave",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(envFile)

			cfg = config.Load()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			lvl, _ := logrus.ParseLevel(cfg.LogLevel)
			logger.SetLevel(lvl)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	root.AddCommand(runCmd(), quoteCmd(), supplyCmd(), walletCmd(), riskCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("command failed")
		return err
	}
	return nil
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func loadEnv(path string) {
	if err := godotenv.Load(path); err != nil {
		logger.Debugf("no .env file at %s, using system environment variables", path)
	} else {
		logger.Debugf("loaded .env from %s", path)
	}
}

// openEngine connects to the chain and the optional run history backends.
func openEngine(ctx context.Context) (*swapsupply.Engine, error) {
	ec, err := swapsupply.EngineConfigFrom(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return swapsupply.NewEngine(ctx, ec)
}

func closeEngine(e *swapsupply.Engine) {
	if err := e.Close(); err != nil {
		logger.WithError(err).Warn("engine close failed")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// intentFlags are the run parameters shared by run, quote and risk.
type intentFlags struct {
	slippageBps int
	feeTier     int
	reason      string
}

func (f *intentFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.slippageBps, "slippage-bps", -1, "slippage tolerance in bps (default SWAP_SLIPPAGE_BPS)")
	cmd.Flags().IntVar(&f.feeTier, "fee", 0, "Uniswap pool fee tier (default SWAP_FEE_TIER)")
	cmd.Flags().StringVar(&f.reason, "reason", "", "free-form note stored with the run")
}

// intent builds a RunIntent for args[0], or SWAP_AMOUNT when no amount is given.
func (f *intentFlags) intent(args []string) (*swapsupply.RunIntent, error) {
	amount := cfg.SwapAmount
	if len(args) > 0 {
		amount = args[0]
	}
	intent := &swapsupply.RunIntent{Amount: amount, Reason: f.reason}

	if f.slippageBps >= 0 {
		if f.slippageBps > 0xffff {
			return nil, fmt.Errorf("--slippage-bps out of range")
		}
		bps := uint16(f.slippageBps)
		intent.SlippageBps = &bps
	}
	if f.feeTier > 0 {
		fee := uint32(f.feeTier)
		intent.FeeTier = &fee
	}
	return intent, nil
}
