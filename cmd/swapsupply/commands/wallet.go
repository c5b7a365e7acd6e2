package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func walletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the signer address and its balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			info, err := engine.WalletInfo(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(info)
			}

			fmt.Printf("Address: %s (chain %d)\n", info.Address.Hex(), info.ChainID)
			fmt.Printf("Native:  %s\n", info.BalanceETH)
			fmt.Printf("%-8s %s\n", info.TokenIn.Symbol+":", info.TokenIn.Human)
			fmt.Printf("%-8s %s\n", info.TokenOut.Symbol+":", info.TokenOut.Human)
			return nil
		},
	}
}
