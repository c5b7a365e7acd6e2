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

// ERC20 is a thin proxy over an ERC-20 token contract.
type ERC20 struct {
	address  common.Address
	contract *bind.BoundContract
}

// Transfer is a decoded ERC-20 Transfer event.
type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

func NewERC20(address common.Address, backend bind.ContractBackend) *ERC20 {
	return &ERC20{
		address:  address,
		contract: bind.NewBoundContract(address, abis.ERC20, backend, backend, backend),
	}
}

func (t *ERC20) Address() common.Address { return t.address }

func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "symbol"); err != nil {
		return "", fmt.Errorf("symbol(%s): %w", t.address.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("decimals(%s): %w", t.address.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", t.address.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, fmt.Errorf("allowance(%s): %w", t.address.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Approve lets spender pull up to amount of this token from the signer.
func (t *ERC20) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	tx, err := t.contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("approve(%s): %w", t.address.Hex(), err)
	}
	return tx, nil
}

// ParseTransfer decodes a Transfer log. It returns ok=false for logs that
// are not ERC-20 transfers (wrong topic or shape).
func ParseTransfer(log types.Log) (*Transfer, bool, error) {
	ev := abis.ERC20.Events["Transfer"]
	if len(log.Topics) != 3 || log.Topics[0] != ev.ID {
		return nil, false, nil
	}

	values, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, false, fmt.Errorf("unpack transfer: %w", err)
	}
	if len(values) != 1 {
		return nil, false, fmt.Errorf("unpack transfer: expected 1 value, got %d", len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, false, fmt.Errorf("unpack transfer: unexpected value type %T", values[0])
	}

	return &Transfer{
		From:  common.BytesToAddress(log.Topics[1].Bytes()),
		To:    common.BytesToAddress(log.Topics[2].Bytes()),
		Value: value,
	}, true, nil
}

// TransferLog builds the log a token emits for a transfer of value.
func TransferLog(token, from, to common.Address, value *big.Int) types.Log {
	data := common.LeftPadBytes(value.Bytes(), 32)
	return types.Log{
		Address: token,
		Topics: []common.Hash{
			abis.ERC20.Events["Transfer"].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: data,
	}
}
