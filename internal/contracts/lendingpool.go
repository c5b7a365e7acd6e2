package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Kizito2001/defi-swap-supply/internal/abis"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PoolVersion selects the lending pool entrypoint.
type PoolVersion string

const (
	// PoolV2 is the Aave v2 LendingPool, entered through deposit().
	PoolV2 PoolVersion = "v2"
	// PoolV3 is the Aave v3 Pool, entered through supply().
	PoolV3 PoolVersion = "v3"
)

// ParsePoolVersion accepts "v2"/"v3" (case-insensitive, "2"/"3" too).
func ParsePoolVersion(s string) (PoolVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v2", "2", "":
		return PoolV2, nil
	case "v3", "3":
		return PoolV3, nil
	default:
		return "", fmt.Errorf("unknown lending pool version %q (use v2 or v3)", s)
	}
}

// Method returns the pool function used to deposit liquidity.
func (v PoolVersion) Method() string {
	if v == PoolV3 {
		return "supply"
	}
	return "deposit"
}

// LendingPool proxies an Aave lending pool.
type LendingPool struct {
	address  common.Address
	version  PoolVersion
	contract *bind.BoundContract
}

func NewLendingPool(address common.Address, version PoolVersion, backend bind.ContractBackend) *LendingPool {
	return &LendingPool{
		address:  address,
		version:  version,
		contract: bind.NewBoundContract(address, abis.LendingPool, backend, backend, backend),
	}
}

func (p *LendingPool) Address() common.Address { return p.address }
func (p *LendingPool) Version() PoolVersion    { return p.version }

// Supply deposits amount of asset on behalf of onBehalfOf.
func (p *LendingPool) Supply(
	opts *bind.TransactOpts,
	asset common.Address,
	amount *big.Int,
	onBehalfOf common.Address,
	referralCode uint16,
) (*types.Transaction, error) {
	method := p.version.Method()
	tx, err := p.contract.Transact(opts, method, asset, amount, onBehalfOf, referralCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return tx, nil
}
