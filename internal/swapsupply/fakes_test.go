package swapsupply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var (
	walletAddr   = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	usdcAddr     = common.HexToAddress("0x94a9D9AC8a22534E3FaCa9F4e7F2E2cf85d5E4C8")
	linkAddr     = common.HexToAddress("0xf8Fb3713D459D7C1018BD0A49D19b4C44290EBE5")
	routerAddr   = common.HexToAddress("0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E")
	poolAddr     = common.HexToAddress("0x6Ae43d3271ff6888e7Fc43Fd7321a503ff738951")
	errBoom      = errors.New("boom")
	sixDecimals  = uint8(6)
	eighteenDecs = uint8(18)
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// chain is a scripted stand-in for the node: it records every call in
// order and mines every transaction immediately.
type chain struct {
	mu    sync.Mutex
	calls []string
	nonce uint64

	reverted map[string]bool // send key -> receipt fails
	failSend map[string]bool // send key -> send errors
	waitErr  error

	swapOut     *big.Int // Transfer log value emitted by the swap
	emitLogs    bool
	balanceGain *big.Int // balance change applied by the swap

	receipts map[common.Hash]*types.Receipt
}

func newChain() *chain {
	return &chain{
		reverted: map[string]bool{},
		failSend: map[string]bool{},
		swapOut:  big.NewInt(4_200_000_000_000_000),
		emitLogs: true,
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (c *chain) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *chain) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// send records label and returns a transaction whose receipt is already
// known. key selects scripted failures.
func (c *chain) send(key, label string, logs ...*types.Log) (*types.Transaction, error) {
	c.record(label)
	if c.failSend[key] {
		return nil, fmt.Errorf("%s: %w", key, errBoom)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	tx := types.NewTx(&types.LegacyTx{Nonce: c.nonce, GasPrice: big.NewInt(1), Gas: 21000})
	status := types.ReceiptStatusSuccessful
	if c.reverted[key] {
		status = types.ReceiptStatusFailed
	}
	for _, l := range logs {
		l.TxHash = tx.Hash()
	}
	c.receipts[tx.Hash()] = &types.Receipt{
		TxHash:      tx.Hash(),
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(100 + c.nonce),
		GasUsed:     50_000,
		Logs:        logs,
	}
	return tx, nil
}

type fakeSigner struct {
	c       *chain
	balance *big.Int
}

func (s *fakeSigner) Address() common.Address { return walletAddr }
func (s *fakeSigner) ChainID() *big.Int       { return big.NewInt(11155111) }

func (s *fakeSigner) Balance(ctx context.Context) (*big.Int, error) {
	if s.balance == nil {
		return big.NewInt(1e18), nil
	}
	return s.balance, nil
}

func (s *fakeSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: walletAddr, Context: ctx}, nil
}

func (s *fakeSigner) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	s.c.record("wait")
	if s.c.waitErr != nil {
		return nil, s.c.waitErr
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	r, ok := s.c.receipts[tx.Hash()]
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", tx.Hash().Hex())
	}
	return r, nil
}

type fakeToken struct {
	c        *chain
	name     string
	addr     common.Address
	symbol   string
	decimals uint8

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	allowErr   error
	balanceErr error
	metaCalls  int
}

func newFakeToken(c *chain, name string, addr common.Address, symbol string, decimals uint8) *fakeToken {
	return &fakeToken{
		c:          c,
		name:       name,
		addr:       addr,
		symbol:     symbol,
		decimals:   decimals,
		balances:   map[common.Address]*big.Int{},
		allowances: map[common.Address]*big.Int{},
	}
}

func (t *fakeToken) Address() common.Address { return t.addr }

func (t *fakeToken) Symbol(ctx context.Context) (string, error) {
	t.mu.Lock()
	t.metaCalls++
	t.mu.Unlock()
	return t.symbol, nil
}

func (t *fakeToken) Decimals(ctx context.Context) (uint8, error) { return t.decimals, nil }

func (t *fakeToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	if t.balanceErr != nil {
		return nil, t.balanceErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[owner]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (t *fakeToken) setBalance(owner common.Address, v *big.Int) {
	t.mu.Lock()
	t.balances[owner] = v
	t.mu.Unlock()
}

func (t *fakeToken) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	t.c.record(t.name + ".allowance")
	if t.allowErr != nil {
		return nil, t.allowErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[spender]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

func (t *fakeToken) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	key := t.name + ".approve"
	tx, err := t.c.send(key, fmt.Sprintf("%s(%s,%s)", key, spenderName(spender), amount))
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.allowances[spender] = new(big.Int).Set(amount)
	t.mu.Unlock()
	return tx, nil
}

type fakeRouter struct {
	c     *chain
	out   *fakeToken
	last  contracts.ExactInputSingleParams
	delay time.Duration // time the swap takes to send
}

func (r *fakeRouter) Address() common.Address { return routerAddr }

func (r *fakeRouter) ExactInputSingle(opts *bind.TransactOpts, params contracts.ExactInputSingleParams) (*types.Transaction, error) {
	r.last = params
	time.Sleep(r.delay)
	var logs []*types.Log
	if r.c.emitLogs && r.c.swapOut != nil {
		l := contracts.TransferLog(params.TokenOut, poolAddr, params.Recipient, r.c.swapOut)
		logs = append(logs, &l)
	}
	tx, err := r.c.send("exactInputSingle", "exactInputSingle", logs...)
	if err != nil {
		return nil, err
	}
	if r.c.balanceGain != nil && !r.c.reverted["exactInputSingle"] {
		bal, _ := r.out.BalanceOf(context.Background(), params.Recipient)
		r.out.setBalance(params.Recipient, bal.Add(bal, r.c.balanceGain))
	}
	return tx, nil
}

type fakeQuoter struct {
	amountOut *big.Int
	err       error
	calls     int
}

func (q *fakeQuoter) QuoteExactInputSingle(ctx context.Context, params contracts.QuoteExactInputSingleParams) (*contracts.Quote, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return &contracts.Quote{AmountOut: q.amountOut, GasEstimate: big.NewInt(120_000)}, nil
}

type fakePool struct {
	c       *chain
	version contracts.PoolVersion
	asset   common.Address
	amount  *big.Int
	behalf  common.Address
	ref     uint16
}

func (p *fakePool) Address() common.Address       { return poolAddr }
func (p *fakePool) Version() contracts.PoolVersion { return p.version }

func (p *fakePool) Supply(opts *bind.TransactOpts, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) (*types.Transaction, error) {
	p.asset, p.amount, p.behalf, p.ref = asset, amount, onBehalfOf, referralCode
	m := p.version.Method()
	return p.c.send(m, m)
}

func spenderName(a common.Address) string {
	switch a {
	case routerAddr:
		return "router"
	case poolAddr:
		return "pool"
	}
	return a.Hex()
}

// fixture wires one scripted chain with USDC in and LINK out.
type fixture struct {
	chain  *chain
	signer *fakeSigner
	usdc   *fakeToken
	link   *fakeToken
	router *fakeRouter
	pool   *fakePool
}

func newFixture() *fixture {
	c := newChain()
	usdc := newFakeToken(c, "usdc", usdcAddr, "USDC", sixDecimals)
	link := newFakeToken(c, "link", linkAddr, "LINK", eighteenDecs)
	usdc.setBalance(walletAddr, big.NewInt(1_000_000_000)) // 1000 USDC
	return &fixture{
		chain:  c,
		signer: &fakeSigner{c: c},
		usdc:   usdc,
		link:   link,
		router: &fakeRouter{c: c, out: link},
		pool:   &fakePool{c: c, version: contracts.PoolV2},
	}
}

func (f *fixture) executor(q Quoter) *Executor {
	return NewExecutor(f.signer, f.usdc, f.link, f.router, q, f.pool, ExecutorConfig{Logger: quietLogger()})
}

func (f *fixture) swapParams(amountIn int64) *SwapParams {
	return &SwapParams{
		TokenIn:           usdcAddr,
		TokenOut:          linkAddr,
		Fee:               3000,
		Recipient:         walletAddr,
		AmountIn:          big.NewInt(amountIn),
		AmountOutMinimum:  new(big.Int),
		SqrtPriceLimitX96: new(big.Int),
	}
}
