package commands

import (
	"fmt"

	"github.com/Kizito2001/defi-swap-supply/internal/swapsupply"
	"github.com/spf13/cobra"
)

// quote [amount]: dry run through the quoter, nothing is sent.
func quoteCmd() *cobra.Command {
	var f intentFlags
	cmd := &cobra.Command{
		Use:   "quote [amount]",
		Short: "Show the expected swap output without sending transactions",
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

			q, err := engine.Quote(cmd.Context(), intent)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(q)
			}

			fmt.Printf("Pair:       %s/%s (fee %d)\n", q.TokenIn.Symbol, q.TokenOut.Symbol, q.Fee)
			fmt.Printf("Amount in:  %s %s\n", swapsupply.FormatAmount(q.AmountIn, q.TokenIn.Decimals), q.TokenIn.Symbol)
			fmt.Printf("Amount out: %s %s\n", swapsupply.FormatAmount(q.AmountOut, q.TokenOut.Decimals), q.TokenOut.Symbol)
			fmt.Printf("Minimum:    %s %s (%d bps)\n", swapsupply.FormatAmount(q.MinAmountOut, q.TokenOut.Decimals), q.TokenOut.Symbol, q.SlippageBps)
			if q.GasEstimate != nil {
				fmt.Printf("Gas:        %s\n", q.GasEstimate)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
