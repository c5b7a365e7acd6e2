// Package abis embeds the contract interfaces the swap-and-supply flow talks to.
package abis

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed json/*.json
var files embed.FS

var (
	// ERC20 covers approve/allowance/balanceOf/decimals/symbol and the Transfer event.
	ERC20 = mustLoad("erc20.json")
	// SwapRouter is the Uniswap SwapRouter02 exactInputSingle entrypoint.
	SwapRouter = mustLoad("swap_router02.json")
	// Quoter is the Uniswap QuoterV2 quoteExactInputSingle entrypoint.
	Quoter = mustLoad("quoter_v2.json")
	// LendingPool holds both the Aave v2 deposit and the Aave v3 supply signatures.
	LendingPool = mustLoad("lending_pool.json")
)

// Load parses an embedded ABI by file name.
func Load(name string) (abi.ABI, error) {
	raw, err := files.ReadFile("json/" + name)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi %s: %w", name, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", name, err)
	}
	return parsed, nil
}

func mustLoad(name string) abi.ABI {
	parsed, err := Load(name)
	if err != nil {
		panic(err)
	}
	return parsed
}
