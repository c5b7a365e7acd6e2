package swapsupply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/cache"
	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/contracts"
	"github.com/Kizito2001/defi-swap-supply/internal/flags"
	"github.com/Kizito2001/defi-swap-supply/internal/models"
	"github.com/Kizito2001/defi-swap-supply/internal/rpc"
	"github.com/Kizito2001/defi-swap-supply/internal/storage"
	"github.com/Kizito2001/defi-swap-supply/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// FlagChecker reads runtime switches such as the execution kill switch.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string, def bool) (bool, error)
}

// Engine is the main orchestrator: swap tokenIn for tokenOut, then supply
// the proceeds to the lending pool.
type Engine struct {
	signer   Signer
	tokenIn  Token
	tokenOut Token
	pool     LendingPool

	cache storage.RunCache // optional
	store storage.RunStore // optional
	flags FlagChecker      // optional

	decisionEngine *DecisionEngine
	executor       *Executor
	riskManager    *RiskManager
	referralCode   uint16
	logger         *logrus.Logger

	// runMu serialises everything that sends transactions: runs share
	// the wallet nonce, the daily limit and the output balance.
	runMu sync.Mutex

	mu     sync.Mutex
	tokens map[common.Address]TokenInfo

	closers []io.Closer
}

// EngineConfig holds configuration for the engine
type EngineConfig struct {
	// RPC settings
	RPCURL       string
	RPCTimeout   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// Wallet
	PrivateKey     string
	ChainID        int64
	ConfirmTimeout time.Duration

	// Contracts
	TokenIn     common.Address
	TokenOut    common.Address
	Router      common.Address
	Quoter      common.Address // zero disables quotes
	LendingPool common.Address
	PoolVersion contracts.PoolVersion

	FeeTier       uint32
	ReferralCode  uint16
	ExplorerTxURL string

	// Storage, best-effort; empty disables. Cache and Flags, when set, are
	// used instead of dialing RedisAddr and stay owned by the caller.
	Cache              storage.RunCache
	Flags              FlagChecker
	RedisAddr          string
	RedisPassword      string
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	RiskConfig RiskConfig
	Logger     *logrus.Logger
}

// EngineDeps wires an engine from already-built parts.
type EngineDeps struct {
	Signer   Signer
	TokenIn  Token
	TokenOut Token
	Router   Router
	Quoter   Quoter // optional
	Pool     LendingPool

	Cache storage.RunCache // optional
	Store storage.RunStore // optional
	Flags FlagChecker      // optional

	RiskConfig    RiskConfig
	FeeTier       uint32
	ReferralCode  uint16
	ExplorerTxURL string
	Logger        *logrus.Logger

	// Closers are closed, in order, by Engine.Close.
	Closers []io.Closer
}

// NewEngine dials the node and connects the optional stores. Redis and
// ClickHouse failures are logged and the engine runs without them.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger

	// 1. RPC client
	client, err := rpc.Dial(ctx, rpc.ClientConfig{
		BaseURL:      cfg.RPCURL,
		Timeout:      cfg.RPCTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	closers := []io.Closer{client}

	// 2. Wallet
	var chainID *big.Int
	if cfg.ChainID > 0 {
		chainID = big.NewInt(cfg.ChainID)
	}
	w, err := wallet.NewWallet(ctx, wallet.WalletConfig{
		PrivateKey:     cfg.PrivateKey,
		ChainID:        chainID,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         log,
	}, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	// 3. Contracts
	var quoter Quoter
	if cfg.Quoter != (common.Address{}) {
		quoter = contracts.NewQuoter(cfg.Quoter, client)
	}

	deps := EngineDeps{
		Signer:        w,
		TokenIn:       contracts.NewERC20(cfg.TokenIn, client),
		TokenOut:      contracts.NewERC20(cfg.TokenOut, client),
		Router:        contracts.NewSwapRouter(cfg.Router, client),
		Quoter:        quoter,
		Pool:          contracts.NewLendingPool(cfg.LendingPool, cfg.PoolVersion, client),
		RiskConfig:    cfg.RiskConfig,
		FeeTier:       cfg.FeeTier,
		ReferralCode:  cfg.ReferralCode,
		ExplorerTxURL: cfg.ExplorerTxURL,
		Logger:        log,
	}

	// 4. Redis: run history, live feed, flags
	deps.Cache, deps.Flags = cfg.Cache, cfg.Flags
	if cfg.Cache == nil && cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Logger: log})
		if err != nil {
			log.WithError(err).Warn("redis unavailable, runs will not be cached")
		} else {
			deps.Cache = rc
			closers = append(closers, rc)
			if fs, err := flags.NewStore(rc.Client()); err == nil && deps.Flags == nil {
				deps.Flags = fs
			}
		}
	}

	// 5. ClickHouse: run history
	if cfg.ClickHouseAddr != "" && cfg.ClickHouseDatabase != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   log,
		})
		if err != nil {
			log.WithError(err).Warn("clickhouse unavailable, runs will not be stored")
		} else if err := ch.EnsureSchema(ctx); err != nil {
			log.WithError(err).Warn("clickhouse schema setup failed, runs will not be stored")
			_ = ch.Close()
		} else {
			deps.Store = ch
			closers = append(closers, ch)
		}
	}

	deps.Closers = closers
	eng, err := NewEngineWithDeps(deps)
	if err != nil {
		return nil, err
	}

	// 6. Daily usage from earlier processes
	if err := eng.LoadUsage(ctx); err != nil {
		log.WithError(err).Warn("daily usage not loaded, limit counts this process only")
	}
	return eng, nil
}

func NewEngineWithDeps(deps EngineDeps) (*Engine, error) {
	if deps.Signer == nil || deps.TokenIn == nil || deps.TokenOut == nil || deps.Router == nil || deps.Pool == nil {
		return nil, fmt.Errorf("signer, tokens, router and pool are required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}

	executor := NewExecutor(deps.Signer, deps.TokenIn, deps.TokenOut, deps.Router, deps.Quoter, deps.Pool, ExecutorConfig{
		ExplorerTxURL: deps.ExplorerTxURL,
		Logger:        deps.Logger,
	})

	return &Engine{
		signer:         deps.Signer,
		tokenIn:        deps.TokenIn,
		tokenOut:       deps.TokenOut,
		pool:           deps.Pool,
		cache:          deps.Cache,
		store:          deps.Store,
		flags:          deps.Flags,
		decisionEngine: NewDecisionEngine(deps.RiskConfig, deps.FeeTier),
		executor:       executor,
		riskManager:    NewRiskManager(deps.RiskConfig),
		referralCode:   deps.ReferralCode,
		logger:         deps.Logger,
		tokens:         make(map[common.Address]TokenInfo),
		closers:        deps.Closers,
	}, nil
}

// Run swaps the intent's amount and supplies what the swap returned. The
// result is returned even on failure and records how far the run got; a
// completed swap is never reversed.
func (e *Engine) Run(ctx context.Context, intent *RunIntent) (*RunResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	res := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Pool:      e.pool.Address().Hex(),
	}
	log := e.logger.WithField("run_id", res.RunID)

	err := e.run(ctx, intent, res, log)
	res.Duration = time.Since(res.StartedAt)
	if err != nil {
		res.Error = err.Error()
		res.FailedAt = FailedStep(err)
		log.WithError(err).WithField("step", res.FailedAt).Error("run failed")
	} else {
		res.Success = true
		log.WithFields(logrus.Fields{
			"amount_in":  FormatAmount(res.AmountIn, res.TokenIn.Decimals),
			"amount_out": FormatAmount(res.AmountOut, res.TokenOut.Decimals),
			"duration":   res.Duration,
		}).Info("run complete")
	}

	// only runs that reached the chain are worth recording
	if res.AmountIn != nil {
		e.record(ctx, res)
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, intent *RunIntent, res *RunResult, log *logrus.Entry) error {
	if err := e.checkEnabled(ctx); err != nil {
		return err
	}

	in, out, err := e.tokenPair(ctx)
	if err != nil {
		return err
	}
	res.TokenIn, res.TokenOut = in, out

	params, err := e.decisionEngine.ParseIntent(intent, in, out, e.signer.Address())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	balance, err := e.tokenIn.BalanceOf(ctx, e.signer.Address())
	if err != nil {
		return fmt.Errorf("failed to get %s balance: %w", in.Symbol, err)
	}
	check, err := e.riskManager.CheckRun(ctx, params, in, out, balance)
	if err != nil {
		return err
	}
	if !check.Allowed {
		return fmt.Errorf("%w: %s", ErrRiskRejected, check.Reason)
	}

	res.AmountIn = params.AmountIn
	res.FeeTier = params.Fee
	log.WithFields(logrus.Fields{
		"amount": FormatAmount(params.AmountIn, in.Decimals),
		"pair":   in.Symbol + "/" + out.Symbol,
		"reason": intent.Reason,
	}).Info("starting swap and supply")

	amountOut, swapStep, err := e.executor.Swap(ctx, params)
	if err != nil {
		return err
	}
	res.AmountOut = amountOut
	res.Swap = swapStep
	e.riskManager.RecordRun(params, in)

	supplyStep, err := e.executor.Supply(ctx, SupplyParams{
		Asset:        out.Address,
		Amount:       amountOut,
		OnBehalfOf:   e.signer.Address(),
		ReferralCode: e.referralCode,
	})
	if err != nil {
		return err
	}
	res.Supply = supplyStep
	return nil
}

// Supply deposits amount (human units of tokenOut) without swapping first,
// e.g. to finish a run whose supply step failed. The supply is recorded as a
// run with no swap.
func (e *Engine) Supply(ctx context.Context, amount string) (*StepResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if err := e.checkEnabled(ctx); err != nil {
		return nil, err
	}
	_, out, err := e.tokenPair(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := ToRawAmount(amount, out.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrInvalidIntent)
	}

	res := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Pool:      e.pool.Address().Hex(),
		TokenOut:  out,
		AmountOut: raw,
	}
	log := e.logger.WithField("run_id", res.RunID)

	step, err := e.executor.Supply(ctx, SupplyParams{
		Asset:        out.Address,
		Amount:       raw,
		OnBehalfOf:   e.signer.Address(),
		ReferralCode: e.referralCode,
	})
	res.Duration = time.Since(res.StartedAt)
	res.Supply = step
	if err != nil {
		res.Error = err.Error()
		res.FailedAt = FailedStep(err)
		log.WithError(err).Error("supply failed")
	} else {
		res.Success = true
		log.WithField("amount", FormatAmount(raw, out.Decimals)).Info("supply complete")
	}
	e.record(ctx, res)
	return step, err
}

// Quote returns the expected output for an intent without executing
func (e *Engine) Quote(ctx context.Context, intent *RunIntent) (*QuoteResult, error) {
	in, out, err := e.tokenPair(ctx)
	if err != nil {
		return nil, err
	}
	params, err := e.decisionEngine.ParseIntent(intent, in, out, e.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	q, err := e.executor.Quote(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	q.TokenIn, q.TokenOut = in, out
	return q, nil
}

// CheckRisk validates an intent against risk rules without executing
func (e *Engine) CheckRisk(ctx context.Context, intent *RunIntent) (*RiskCheckResult, error) {
	in, out, err := e.tokenPair(ctx)
	if err != nil {
		return nil, err
	}
	params, err := e.decisionEngine.ParseIntent(intent, in, out, e.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}
	balance, err := e.tokenIn.BalanceOf(ctx, e.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return e.riskManager.CheckRun(ctx, params, in, out, balance)
}

// WalletInfo returns the signer's native and token balances
func (e *Engine) WalletInfo(ctx context.Context) (*WalletInfo, error) {
	in, out, err := e.tokenPair(ctx)
	if err != nil {
		return nil, err
	}

	addr := e.signer.Address()
	wei, err := e.signer.Balance(ctx)
	if err != nil {
		return nil, err
	}
	balIn, err := e.tokenIn.BalanceOf(ctx, addr)
	if err != nil {
		return nil, err
	}
	balOut, err := e.tokenOut.BalanceOf(ctx, addr)
	if err != nil {
		return nil, err
	}

	return &WalletInfo{
		Address:    addr,
		ChainID:    e.signer.ChainID().Int64(),
		BalanceWei: wei,
		BalanceETH: FormatAmount(wei, 18),
		TokenIn:    TokenBalance{TokenInfo: in, Raw: balIn, Human: FormatAmount(balIn, in.Decimals)},
		TokenOut:   TokenBalance{TokenInfo: out, Raw: balOut, Human: FormatAmount(balOut, out.Decimals)},
	}, nil
}

// LoadUsage replaces the tracked daily usage with the swaps the store holds
// for this wallet and input token over the last 24 hours.
func (e *Engine) LoadUsage(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	in, _, err := e.tokenPair(ctx)
	if err != nil {
		return err
	}
	runs, err := e.store.SwapsSince(ctx, e.signer.Address().Hex(), time.Now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to load daily usage: %w", err)
	}

	usage := make([]usageRecord, 0, len(runs))
	for _, r := range runs {
		if r.TokenIn != in.Symbol {
			continue
		}
		usage = append(usage, usageRecord{timestamp: r.Timestamp, amount: eventAmountIn(r, in.Decimals)})
	}
	e.riskManager.dailyTracker.Load(usage)

	e.logger.WithFields(logrus.Fields{
		"swaps": len(usage),
		"used":  e.riskManager.dailyTracker.GetDailyUsage().String(),
	}).Debug("daily usage loaded")
	return nil
}

// RiskStatus returns current risk limits and usage
func (e *Engine) RiskStatus() *RiskStatus {
	return e.riskManager.Status()
}

// Close cleans up all resources
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

func (e *Engine) checkEnabled(ctx context.Context) error {
	if e.flags == nil {
		return nil
	}
	on, err := e.flags.IsEnabled(ctx, constants.FlagExecute, true)
	if err != nil {
		e.logger.WithError(err).Warn("flag lookup failed, assuming execution enabled")
		return nil
	}
	if !on {
		return ErrExecutionDisabled
	}
	return nil
}

func (e *Engine) tokenPair(ctx context.Context) (TokenInfo, TokenInfo, error) {
	in, err := e.tokenInfo(ctx, e.tokenIn)
	if err != nil {
		return TokenInfo{}, TokenInfo{}, err
	}
	out, err := e.tokenInfo(ctx, e.tokenOut)
	if err != nil {
		return TokenInfo{}, TokenInfo{}, err
	}
	return in, out, nil
}

// tokenInfo reads symbol and decimals once per token.
func (e *Engine) tokenInfo(ctx context.Context, t Token) (TokenInfo, error) {
	e.mu.Lock()
	info, ok := e.tokens[t.Address()]
	e.mu.Unlock()
	if ok {
		return info, nil
	}

	decimals, err := t.Decimals(ctx)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("failed to read token metadata: %w", err)
	}
	symbol, err := t.Symbol(ctx)
	if err != nil {
		// non-standard tokens may omit symbol()
		e.logger.WithError(err).WithField("token", t.Address().Hex()).Debug("symbol unavailable")
		symbol = t.Address().Hex()
	}

	info = TokenInfo{Address: t.Address(), Symbol: symbol, Decimals: decimals}
	e.mu.Lock()
	e.tokens[t.Address()] = info
	e.mu.Unlock()
	return info, nil
}

// record publishes the run to the cache and store (best-effort).
func (e *Engine) record(ctx context.Context, res *RunResult) {
	ev := e.runEvent(res)
	log := e.logger.WithField("run_id", res.RunID)

	// the run context may already be cancelled; recording gets its own deadline
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if e.cache != nil {
		if err := e.cache.AddRecentRun(rctx, ev); err != nil {
			log.WithError(err).Warn("failed to cache run")
		}
		if err := e.cache.PublishRun(rctx, ev); err != nil {
			log.WithError(err).Warn("failed to publish run")
		}
	}
	if e.store != nil {
		if err := e.store.InsertRun(rctx, ev); err != nil {
			log.WithError(err).Warn("failed to store run")
		}
	}
}

func (e *Engine) runEvent(res *RunResult) *models.RunEvent {
	ev := &models.RunEvent{
		RunID:        res.RunID,
		Timestamp:    res.StartedAt.UTC(),
		Wallet:       e.signer.Address().Hex(),
		ChainID:      e.signer.ChainID().Int64(),
		Status:       models.RunStatusSuccess,
		TokenIn:      res.TokenIn.Symbol,
		TokenOut:     res.TokenOut.Symbol,
		AmountIn:     humanFloat(res.AmountIn, res.TokenIn.Decimals),
		AmountOut:    humanFloat(res.AmountOut, res.TokenOut.Decimals),
		AmountInRaw:  rawString(res.AmountIn),
		AmountOutRaw: rawString(res.AmountOut),
		FeeTier:      res.FeeTier,
		Pool:         res.Pool,
		PoolVersion:  string(e.pool.Version()),
		DurationMs:   res.Duration.Milliseconds(),
	}
	if !res.Success {
		ev.Status = models.RunStatusFailed
		ev.FailedStep = res.FailedAt
		ev.Error = res.Error
	}
	if res.Swap != nil {
		ev.SwapTx = res.Swap.TxHash
	}
	if res.Supply != nil {
		ev.SupplyTx = res.Supply.TxHash
	}
	return ev
}

// eventAmountIn prefers the exact raw amount and falls back to the float.
func eventAmountIn(ev *models.RunEvent, decimals uint8) decimal.Decimal {
	if raw, err := decimal.NewFromString(ev.AmountInRaw); err == nil && raw.IsPositive() {
		return raw.Shift(-int32(decimals))
	}
	return decimal.NewFromFloat(ev.AmountIn)
}

func humanFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

func rawString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
