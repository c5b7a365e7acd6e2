package swapsupply

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var ErrNoQuoter = errors.New("no quoter configured")

// Token is the ERC-20 surface the executor uses.
type Token interface {
	Address() common.Address
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error)
}

type Router interface {
	Address() common.Address
	ExactInputSingle(opts *bind.TransactOpts, params contracts.ExactInputSingleParams) (*types.Transaction, error)
}

type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, params contracts.QuoteExactInputSingleParams) (*contracts.Quote, error)
}

type LendingPool interface {
	Address() common.Address
	Version() contracts.PoolVersion
	Supply(opts *bind.TransactOpts, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) (*types.Transaction, error)
}

// Signer signs and tracks transactions for one account.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	Balance(ctx context.Context) (*big.Int, error)
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

type ExecutorConfig struct {
	ExplorerTxURL string
	Logger        *logrus.Logger
}

// Executor sends the approve, swap and supply transactions, each awaited
// before the next.
type Executor struct {
	signer   Signer
	tokenIn  Token
	tokenOut Token
	router   Router
	quoter   Quoter // optional
	pool     LendingPool

	explorer string
	logger   *logrus.Logger
}

func NewExecutor(
	signer Signer,
	tokenIn, tokenOut Token,
	router Router,
	quoter Quoter,
	pool LendingPool,
	cfg ExecutorConfig,
) *Executor {
	if cfg.ExplorerTxURL == "" {
		cfg.ExplorerTxURL = constants.DefaultExplorerTxURL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Executor{
		signer:   signer,
		tokenIn:  tokenIn,
		tokenOut: tokenOut,
		router:   router,
		quoter:   quoter,
		pool:     pool,
		explorer: cfg.ExplorerTxURL,
		logger:   cfg.Logger,
	}
}

// Quote asks the quoter for the expected output of params without sending
// anything, and fills MinAmountOut from the slippage tolerance.
func (e *Executor) Quote(ctx context.Context, params *SwapParams) (*QuoteResult, error) {
	if params == nil {
		return nil, fmt.Errorf("params is nil")
	}
	if e.quoter == nil {
		return nil, ErrNoQuoter
	}

	q, err := e.quoter.QuoteExactInputSingle(ctx, contracts.QuoteExactInputSingleParams{
		TokenIn:           params.TokenIn,
		TokenOut:          params.TokenOut,
		AmountIn:          params.AmountIn,
		Fee:               new(big.Int).SetUint64(uint64(params.Fee)),
		SqrtPriceLimitX96: params.SqrtPriceLimitX96,
	})
	if err != nil {
		return nil, err
	}

	return &QuoteResult{
		Fee:          params.Fee,
		AmountIn:     params.AmountIn,
		AmountOut:    q.AmountOut,
		MinAmountOut: ApplySlippage(q.AmountOut, params.SlippageBps),
		SlippageBps:  params.SlippageBps,
		GasEstimate:  q.GasEstimate,
		QuotedAt:     time.Now(),
	}, nil
}

// Swap approves the router for AmountIn, sends exactInputSingle and returns
// the amount of tokenOut the recipient received.
func (e *Executor) Swap(ctx context.Context, params *SwapParams) (*big.Int, *StepResult, error) {
	if params == nil || params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, nil, stepErr(StepSwap, "", fmt.Errorf("amountIn must be > 0"))
	}
	log := e.logger.WithFields(logrus.Fields{
		"step":      StepSwap,
		"token_in":  params.TokenIn.Hex(),
		"token_out": params.TokenOut.Hex(),
		"amount_in": params.AmountIn.String(),
		"fee":       params.Fee,
	})

	if params.SlippageBps > 0 && e.quoter != nil && (params.AmountOutMinimum == nil || params.AmountOutMinimum.Sign() == 0) {
		q, err := e.Quote(ctx, params)
		if err != nil {
			return nil, nil, stepErr(StepSwap, "", fmt.Errorf("quote for slippage: %w", err))
		}
		params.AmountOutMinimum = q.MinAmountOut
		log = log.WithField("min_out", q.MinAmountOut.String())
	}
	if params.AmountOutMinimum == nil {
		params.AmountOutMinimum = new(big.Int)
	}
	if params.SqrtPriceLimitX96 == nil {
		params.SqrtPriceLimitX96 = new(big.Int)
	}

	log.Info("approving router")
	approveTx, err := e.ensureAllowance(ctx, e.tokenIn, e.router.Address(), params.AmountIn, StepApproveSwap)
	if err != nil {
		return nil, nil, err
	}

	balanceBefore, err := e.tokenOut.BalanceOf(ctx, params.Recipient)
	if err != nil {
		log.WithError(err).Warn("could not read output balance before swap")
		balanceBefore = nil
	}

	opts, err := e.signer.TransactOpts(ctx)
	if err != nil {
		return nil, nil, stepErr(StepSwap, "", err)
	}

	log.Info("executing swap")
	tx, err := e.router.ExactInputSingle(opts, contracts.ExactInputSingleParams{
		TokenIn:           params.TokenIn,
		TokenOut:          params.TokenOut,
		Fee:               new(big.Int).SetUint64(uint64(params.Fee)),
		Recipient:         params.Recipient,
		AmountIn:          params.AmountIn,
		AmountOutMinimum:  params.AmountOutMinimum,
		SqrtPriceLimitX96: params.SqrtPriceLimitX96,
	})
	if err != nil {
		return nil, nil, stepErr(StepSwap, "", err)
	}

	receipt, err := e.wait(ctx, StepSwap, tx)
	if err != nil {
		return nil, nil, err
	}

	amountOut := e.outputAmount(ctx, receipt, params.Recipient, balanceBefore)
	if amountOut.Sign() == 0 {
		return nil, nil, stepErr(StepSwap, tx.Hash().Hex(), ErrNoOutput)
	}

	step := e.stepResult(StepSwap, approveTx, receipt)
	log.WithFields(logrus.Fields{
		"tx":         step.TxHash,
		"amount_out": amountOut.String(),
	}).Infof("Swap Transaction: %s", step.ExplorerURL)

	return amountOut, step, nil
}

// Supply approves the lending pool for Amount of the asset and deposits it.
func (e *Executor) Supply(ctx context.Context, params SupplyParams) (*StepResult, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, stepErr(StepSupply, "", fmt.Errorf("amount must be > 0"))
	}
	log := e.logger.WithFields(logrus.Fields{
		"step":   StepSupply,
		"asset":  params.Asset.Hex(),
		"amount": params.Amount.String(),
		"pool":   e.pool.Address().Hex(),
		"method": e.pool.Version().Method(),
	})

	log.Info("approving lending pool")
	approveTx, err := e.ensureAllowance(ctx, e.tokenOut, e.pool.Address(), params.Amount, StepApproveSupply)
	if err != nil {
		return nil, err
	}

	opts, err := e.signer.TransactOpts(ctx)
	if err != nil {
		return nil, stepErr(StepSupply, "", err)
	}

	log.Info("supplying to lending pool")
	tx, err := e.pool.Supply(opts, params.Asset, params.Amount, params.OnBehalfOf, params.ReferralCode)
	if err != nil {
		return nil, stepErr(StepSupply, "", err)
	}

	receipt, err := e.wait(ctx, StepSupply, tx)
	if err != nil {
		return nil, err
	}

	step := e.stepResult(StepSupply, approveTx, receipt)
	log.WithField("tx", step.TxHash).Infof("Supply Transaction: %s", step.ExplorerURL)
	return step, nil
}

// ensureAllowance approves spender for amount unless the current allowance
// already covers it, and waits for the approval to be mined. It returns the
// approval tx hash, or "" when no approval was needed.
func (e *Executor) ensureAllowance(ctx context.Context, token Token, spender common.Address, amount *big.Int, step string) (string, error) {
	owner := e.signer.Address()
	log := e.logger.WithFields(logrus.Fields{
		"step":    step,
		"token":   token.Address().Hex(),
		"spender": spender.Hex(),
	})

	current, err := token.Allowance(ctx, owner, spender)
	switch {
	case err != nil:
		log.WithError(err).Warn("allowance lookup failed, approving anyway")
	case current.Cmp(amount) >= 0:
		log.WithField("allowance", current.String()).Debug("allowance sufficient, skipping approve")
		return "", nil
	}

	opts, err := e.signer.TransactOpts(ctx)
	if err != nil {
		return "", stepErr(step, "", err)
	}
	tx, err := token.Approve(opts, spender, amount)
	if err != nil {
		return "", stepErr(step, "", err)
	}
	if _, err := e.wait(ctx, step, tx); err != nil {
		return "", err
	}

	log.WithField("tx", tx.Hash().Hex()).Debug("approval mined")
	return tx.Hash().Hex(), nil
}

func (e *Executor) wait(ctx context.Context, step string, tx *types.Transaction) (*types.Receipt, error) {
	hash := tx.Hash().Hex()
	receipt, err := e.signer.WaitMined(ctx, tx)
	if err != nil {
		return nil, stepErr(step, hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, stepErr(step, hash, ErrTxReverted)
	}
	return receipt, nil
}

// outputAmount sums tokenOut Transfer events to recipient in the receipt.
// Without any, it falls back to the recipient's balance change.
func (e *Executor) outputAmount(ctx context.Context, receipt *types.Receipt, recipient common.Address, before *big.Int) *big.Int {
	total := new(big.Int)
	token := e.tokenOut.Address()
	for _, l := range receipt.Logs {
		if l == nil || l.Address != token {
			continue
		}
		tr, ok, err := contracts.ParseTransfer(*l)
		if err != nil {
			e.logger.WithError(err).Debug("skipping undecodable transfer log")
			continue
		}
		if ok && tr.To == recipient {
			total.Add(total, tr.Value)
		}
	}
	if total.Sign() > 0 || before == nil {
		return total
	}

	after, err := e.tokenOut.BalanceOf(ctx, recipient)
	if err != nil {
		e.logger.WithError(err).Warn("could not read output balance after swap")
		return total
	}
	delta := new(big.Int).Sub(after, before)
	if delta.Sign() < 0 {
		return total
	}
	return delta
}

func (e *Executor) stepResult(step, approveTx string, receipt *types.Receipt) *StepResult {
	res := &StepResult{
		Step:        step,
		ApproveTx:   approveTx,
		TxHash:      receipt.TxHash.Hex(),
		ExplorerURL: e.explorer + receipt.TxHash.Hex(),
		GasUsed:     receipt.GasUsed,
		ConfirmedAt: time.Now(),
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res
}
