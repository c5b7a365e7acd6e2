package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Kizito2001/defi-swap-supply/internal/abis"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ExactInputSingleParams mirrors IV3SwapRouter.ExactInputSingleParams.
// uint24 and uint160 are packed from *big.Int.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// QuoteExactInputSingleParams mirrors IQuoterV2.QuoteExactInputSingleParams.
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Quote is the QuoterV2 answer for a single-pool exact-input swap.
type Quote struct {
	AmountOut               *big.Int
	SqrtPriceX96After       *big.Int
	InitializedTicksCrossed uint32
	GasEstimate             *big.Int
}

// SwapRouter proxies a Uniswap SwapRouter02 deployment.
type SwapRouter struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewSwapRouter(address common.Address, backend bind.ContractBackend) *SwapRouter {
	return &SwapRouter{
		address:  address,
		contract: bind.NewBoundContract(address, abis.SwapRouter, backend, backend, backend),
	}
}

func (r *SwapRouter) Address() common.Address { return r.address }

func (r *SwapRouter) ExactInputSingle(opts *bind.TransactOpts, params ExactInputSingleParams) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("exactInputSingle: %w", err)
	}
	return tx, nil
}

// Quoter proxies a Uniswap QuoterV2 deployment. QuoterV2 functions are
// non-view but are meant to be eth_call'ed, never sent.
type Quoter struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewQuoter(address common.Address, backend bind.ContractCaller) *Quoter {
	return &Quoter{
		address:  address,
		contract: bind.NewBoundContract(address, abis.Quoter, backend, nil, nil),
	}
}

func (q *Quoter) Address() common.Address { return q.address }

func (q *Quoter) QuoteExactInputSingle(ctx context.Context, params QuoteExactInputSingleParams) (*Quote, error) {
	var out []interface{}
	if err := q.contract.Call(&bind.CallOpts{Context: ctx}, &out, "quoteExactInputSingle", params); err != nil {
		return nil, fmt.Errorf("quoteExactInputSingle: %w", err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("quoteExactInputSingle: expected 4 outputs, got %d", len(out))
	}

	return &Quote{
		AmountOut:               *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		SqrtPriceX96After:       *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		InitializedTicksCrossed: *abi.ConvertType(out[2], new(uint32)).(*uint32),
		GasEstimate:             *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
	}, nil
}
