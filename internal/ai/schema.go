package ai

import "fmt"

// runsSchemaDescription describes the runs table for NL→SQL prompting. It
// follows the DDL in internal/cache/clickhouse.go.
func runsSchemaDescription(database string) string {
	return fmt.Sprintf(`
Database: %s
Table: runs

Columns:
  - run_id         String     -- unique run id (uuid)
  - timestamp      DateTime64 -- run start time (UTC)
  - wallet         String     -- signing wallet address
  - chain_id       Int64      -- EVM chain id (11155111 = Sepolia)
  - status         String     -- 'success' or 'failed'
  - failed_step    String     -- approve_swap, swap, approve_supply or supply; empty on success
  - error          String     -- error message of a failed run
  - token_in       String     -- symbol of the token swapped away (e.g. USDC)
  - token_out      String     -- symbol of the token received and supplied (e.g. LINK)
  - amount_in      Float64    -- amount of token_in swapped
  - amount_out     Float64    -- amount of token_out received (0 if the swap failed)
  - amount_in_raw  String     -- amount_in in integer token units
  - amount_out_raw String     -- amount_out in integer token units
  - fee_tier       UInt32     -- pool fee in hundredths of a bip (3000 = 0.3%%)
  - pool           String     -- lending pool address
  - pool_version   String     -- 'v2' (deposit) or 'v3' (supply)
  - swap_tx        String     -- swap transaction hash
  - supply_tx      String     -- supply transaction hash
  - duration_ms    Int64      -- wall time of the run

Notes:
  - A failed supply after a successful swap leaves swap_tx set and supply_tx empty.
  - A standalone supply (finishing an earlier failed run) has empty token_in and swap_tx, amount_in = 0.
  - Time filters should use timestamp, e.g. timestamp >= now() - INTERVAL 24 HOUR.
`, database)
}
