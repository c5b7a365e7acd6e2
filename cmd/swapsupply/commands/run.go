package commands

import (
	"fmt"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/swapsupply"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// run [amount]: approve, swap, approve, supply.
func runCmd() *cobra.Command {
	var f intentFlags
	cmd := &cobra.Command{
		Use:   "run [amount]",
		Short: "Swap amount of the input token and supply the output to the lending pool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := f.intent(args)
			if err != nil {
				return err
			}

			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			res, runErr := engine.Run(cmd.Context(), intent)
			if jsonOut {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printRun(res)
			}
			if runErr != nil {
				return fmt.Errorf("run %s failed at %q: %w", res.RunID, res.FailedAt, runErr)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func printRun(res *swapsupply.RunResult) {
	fmt.Printf("Run:      %s\n", res.RunID)
	if res.AmountIn != nil {
		fmt.Printf("Swap:     %s %s -> %s %s (fee %d)\n",
			swapsupply.FormatAmount(res.AmountIn, res.TokenIn.Decimals), res.TokenIn.Symbol,
			swapsupply.FormatAmount(res.AmountOut, res.TokenOut.Decimals), res.TokenOut.Symbol,
			res.FeeTier)
	}
	printStep("Swap tx", res.Swap)
	printStep("Supply tx", res.Supply)
	if res.Success {
		fmt.Printf("Status:   success in %s\n", res.Duration.Round(time.Millisecond))
		return
	}
	fmt.Printf("Status:   failed at %s: %s\n", res.FailedAt, res.Error)
}

func printStep(label string, s *swapsupply.StepResult) {
	if s == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"step":  s.Step,
		"tx":    s.TxHash,
		"block": s.BlockNumber,
		"gas":   s.GasUsed,
	}).Debug("step confirmed")
	fmt.Printf("%-9s %s\n", label+":", s.ExplorerURL)
}
