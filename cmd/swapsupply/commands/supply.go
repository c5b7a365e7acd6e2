package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// supply <amount>: deposit the output token without swapping, e.g. to finish
// a run whose supply step failed.
func supplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supply <amount>",
		Short: "Supply amount of the output token to the lending pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			step, err := engine.Supply(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(step)
			}
			fmt.Printf("Supplied %s in block %d\n", args[0], step.BlockNumber)
			fmt.Println(step.ExplorerURL)
			return nil
		},
	}
}
