package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// risk [amount]: show limits, or check an amount against them.
func riskCmd() *cobra.Command {
	var f intentFlags
	cmd := &cobra.Command{
		Use:   "risk [amount]",
		Short: "Show risk limits, or check whether a run of amount would be allowed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeEngine(engine)

			if len(args) == 0 {
				st := engine.RiskStatus()
				if jsonOut {
					return printJSON(st)
				}
				allowed := "any"
				if len(st.AllowedTokens) > 0 {
					allowed = strings.Join(st.AllowedTokens, ", ")
				}
				fmt.Printf("Max per run: %s\n", st.MaxAmountIn)
				fmt.Printf("Daily limit: %s (remaining %s)\n", st.DailyLimitIn, st.DailyRemaining)
				fmt.Printf("Tokens:      %s\n", allowed)
				return nil
			}

			intent, err := f.intent(args)
			if err != nil {
				return err
			}
			check, err := engine.CheckRisk(cmd.Context(), intent)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(check)
			}
			if check.Allowed {
				fmt.Printf("Allowed (daily remaining %s)\n", check.DailyRemaining)
				return nil
			}
			fmt.Printf("Rejected: %s\n", check.Reason)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
