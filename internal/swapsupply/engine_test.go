package swapsupply

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
	"github.com/Kizito2001/defi-swap-supply/internal/contracts"
	"github.com/Kizito2001/defi-swap-supply/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu        sync.Mutex
	recent    []*models.RunEvent
	published []*models.RunEvent
	err       error
	closed    bool
}

func (c *memCache) AddRecentRun(ctx context.Context, run *models.RunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.recent = append([]*models.RunEvent{run}, c.recent...)
	return nil
}

func (c *memCache) GetRecentRuns(ctx context.Context, limit int64) ([]*models.RunEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recent, nil
}

func (c *memCache) PublishRun(ctx context.Context, run *models.RunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, run)
	return nil
}

func (c *memCache) SubscribeRuns(ctx context.Context) (<-chan *models.RunEvent, error) {
	return nil, errors.New("not supported")
}

func (c *memCache) Ping(ctx context.Context) error { return nil }

func (c *memCache) Close() error {
	c.closed = true
	return nil
}

type memStore struct {
	mu       sync.Mutex
	runs     []*models.RunEvent
	queryErr error
	closeErr error
}

func (s *memStore) InsertRun(ctx context.Context, run *models.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memStore) SwapsSince(ctx context.Context, wallet string, since time.Time) ([]*models.RunEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []*models.RunEvent
	for _, r := range s.runs {
		if r.Wallet == wallet && r.SwapTx != "" && !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Ping(ctx context.Context) error { return nil }
func (s *memStore) Close() error                   { return s.closeErr }

type staticFlags struct {
	values map[string]bool
	err    error
}

func (f *staticFlags) IsEnabled(ctx context.Context, key string, def bool) (bool, error) {
	if f.err != nil {
		return def, f.err
	}
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return def, nil
}

type engineFixture struct {
	*fixture
	cache *memCache
	store *memStore
	flags *staticFlags
	eng   *Engine
}

func newEngineFixture(t *testing.T, mutate func(*EngineDeps)) *engineFixture {
	t.Helper()
	f := newFixture()
	ef := &engineFixture{
		fixture: f,
		cache:   &memCache{},
		store:   &memStore{},
		flags:   &staticFlags{values: map[string]bool{}},
	}
	deps := EngineDeps{
		Signer:       f.signer,
		TokenIn:      f.usdc,
		TokenOut:     f.link,
		Router:       f.router,
		Pool:         f.pool,
		Cache:        ef.cache,
		Store:        ef.store,
		Flags:        ef.flags,
		RiskConfig:   DefaultRiskConfig(),
		FeeTier:      constants.DefaultFeeTier,
		ReferralCode: 0,
		Logger:       quietLogger(),
		Closers:      nil,
	}
	if mutate != nil {
		mutate(&deps)
	}
	eng, err := NewEngineWithDeps(deps)
	require.NoError(t, err)
	ef.eng = eng
	return ef
}

func TestNewEngineWithDeps_RequiresParts(t *testing.T) {
	_, err := NewEngineWithDeps(EngineDeps{})
	assert.Error(t, err)
}

func TestNewEngine_UsesSharedCache(t *testing.T) {
	c := &memCache{}
	fl := &staticFlags{values: map[string]bool{}}

	// http dials lazily and the chain id is given, so nothing is sent
	eng, err := NewEngine(context.Background(), EngineConfig{
		RPCURL:      "http://127.0.0.1:1",
		PrivateKey:  "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		ChainID:     11155111,
		TokenIn:     usdcAddr,
		TokenOut:    linkAddr,
		Router:      routerAddr,
		LendingPool: poolAddr,
		PoolVersion: contracts.PoolV2,
		Cache:       c,
		Flags:       fl,
		RedisAddr:   "127.0.0.1:1",
		RiskConfig:  DefaultRiskConfig(),
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	assert.Same(t, c, eng.cache)
	assert.Same(t, fl, eng.flags)

	require.NoError(t, eng.Close())
	assert.False(t, c.closed, "shared cache belongs to the caller")
}

func TestEngine_RunSuccess(t *testing.T) {
	ef := newEngineFixture(t, nil)

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10", Reason: "test"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Error)
	assert.Equal(t, "USDC", res.TokenIn.Symbol)
	assert.Equal(t, "LINK", res.TokenOut.Symbol)
	assert.Equal(t, int64(10_000_000), res.AmountIn.Int64())
	assert.Equal(t, "4200000000000000", res.AmountOut.String())
	assert.Equal(t, uint32(3000), res.FeeTier)
	require.NotNil(t, res.Swap)
	require.NotNil(t, res.Supply)
	assert.Equal(t, poolAddr.Hex(), res.Pool)

	// supplied exactly the swap output
	assert.Equal(t, 0, res.AmountOut.Cmp(ef.pool.amount))
	assert.Equal(t, walletAddr, ef.pool.behalf)

	require.Len(t, ef.cache.recent, 1)
	require.Len(t, ef.cache.published, 1)
	require.Len(t, ef.store.runs, 1)

	ev := ef.store.runs[0]
	assert.Equal(t, res.RunID, ev.RunID)
	assert.Equal(t, models.RunStatusSuccess, ev.Status)
	assert.Equal(t, walletAddr.Hex(), ev.Wallet)
	assert.Equal(t, int64(11155111), ev.ChainID)
	assert.Equal(t, 10.0, ev.AmountIn)
	assert.InDelta(t, 0.0042, ev.AmountOut, 1e-12)
	assert.Equal(t, "10000000", ev.AmountInRaw)
	assert.Equal(t, "4200000000000000", ev.AmountOutRaw)
	assert.Equal(t, "v2", ev.PoolVersion)
	assert.Equal(t, res.Swap.TxHash, ev.SwapTx)
	assert.Equal(t, res.Supply.TxHash, ev.SupplyTx)

	assert.Equal(t, "10", ef.eng.RiskStatus().DailyUsedIn)
}

func TestEngine_RunRecordingFailureIsNotFatal(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.cache.err = errBoom

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, ef.store.runs, 1)
}

func TestEngine_RunDisabledByFlag(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.flags.values[constants.FlagExecute] = false

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	assert.ErrorIs(t, err, ErrExecutionDisabled)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Empty(t, ef.chain.Calls())
	assert.Empty(t, ef.store.runs)

	_, err = ef.eng.Supply(context.Background(), "1")
	assert.ErrorIs(t, err, ErrExecutionDisabled)
}

func TestEngine_RunFlagLookupErrorProceeds(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.flags.err = errBoom

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestEngine_RunRiskRejected(t *testing.T) {
	ef := newEngineFixture(t, func(d *EngineDeps) {
		d.RiskConfig.MaxAmountIn = decimal.NewFromInt(5)
	})

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRiskRejected)
	assert.Contains(t, err.Error(), "exceeds max")
	assert.False(t, res.Success)
	assert.Empty(t, ef.chain.Calls())
	assert.Empty(t, ef.cache.recent)
}

func TestEngine_RunInsufficientBalance(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.usdc.setBalance(walletAddr, big.NewInt(1))

	_, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	assert.ErrorIs(t, err, ErrRiskRejected)
	assert.Empty(t, ef.chain.Calls())
}

func TestEngine_RunInvalidIntent(t *testing.T) {
	ef := newEngineFixture(t, nil)

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "abc"})
	assert.Error(t, err)
	assert.Empty(t, res.FailedAt)
	assert.Empty(t, ef.chain.Calls())
}

func TestEngine_RunSupplyFailureKeepsSwap(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.chain.reverted["deposit"] = true

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTxReverted)

	assert.False(t, res.Success)
	assert.Equal(t, StepSupply, res.FailedAt)
	require.NotNil(t, res.Swap)
	assert.Nil(t, res.Supply)
	assert.Equal(t, "4200000000000000", res.AmountOut.String())

	// the swap counts toward the daily limit even though supply failed
	assert.Equal(t, "10", ef.eng.RiskStatus().DailyUsedIn)

	require.Len(t, ef.store.runs, 1)
	ev := ef.store.runs[0]
	assert.Equal(t, models.RunStatusFailed, ev.Status)
	assert.Equal(t, StepSupply, ev.FailedStep)
	assert.NotEmpty(t, ev.Error)
	assert.Equal(t, res.Swap.TxHash, ev.SwapTx)
	assert.Empty(t, ev.SupplyTx)
}

func TestEngine_RunSwapRevertRecordsFailure(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.chain.reverted["exactInputSingle"] = true

	res, err := ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	assert.ErrorIs(t, err, ErrTxReverted)
	assert.Equal(t, StepSwap, res.FailedAt)
	assert.NotContains(t, ef.chain.Calls(), "deposit")
	assert.Equal(t, "0", ef.eng.RiskStatus().DailyUsedIn)

	require.Len(t, ef.cache.published, 1)
	assert.Equal(t, models.RunStatusFailed, ef.cache.published[0].Status)
	assert.Equal(t, "0", ef.cache.published[0].AmountOutRaw)
}

func TestEngine_TokenInfoIsCached(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ctx := context.Background()

	_, err := ef.eng.CheckRisk(ctx, &RunIntent{Amount: "1"})
	require.NoError(t, err)
	_, err = ef.eng.CheckRisk(ctx, &RunIntent{Amount: "2"})
	require.NoError(t, err)

	assert.Equal(t, 1, ef.usdc.metaCalls)
	assert.Equal(t, 1, ef.link.metaCalls)
}

func TestEngine_CheckRiskDoesNotExecute(t *testing.T) {
	ef := newEngineFixture(t, nil)

	r, err := ef.eng.CheckRisk(context.Background(), &RunIntent{Amount: "2000"})
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.True(t, r.ExceedsMaxAmountIn)
	assert.Empty(t, ef.chain.Calls())
}

func TestEngine_Quote(t *testing.T) {
	ef := newEngineFixture(t, nil)
	_, err := ef.eng.Quote(context.Background(), &RunIntent{Amount: "1"})
	assert.ErrorIs(t, err, ErrNoQuoter)

	q := &fakeQuoter{amountOut: big.NewInt(5_000)}
	ef = newEngineFixture(t, func(d *EngineDeps) { d.Quoter = q })
	res, err := ef.eng.Quote(context.Background(), &RunIntent{Amount: "1", SlippageBps: u16(100)})
	require.NoError(t, err)
	assert.Equal(t, "USDC", res.TokenIn.Symbol)
	assert.Equal(t, "LINK", res.TokenOut.Symbol)
	assert.Equal(t, int64(1_000_000), res.AmountIn.Int64())
	assert.Equal(t, int64(4_950), res.MinAmountOut.Int64())
	assert.Empty(t, ef.chain.Calls())
}

func TestEngine_Supply(t *testing.T) {
	ef := newEngineFixture(t, func(d *EngineDeps) { d.ReferralCode = 42 })

	step, err := ef.eng.Supply(context.Background(), "0.5")
	require.NoError(t, err)
	assert.Equal(t, StepSupply, step.Step)
	assert.Equal(t, "500000000000000000", ef.pool.amount.String())
	assert.Equal(t, uint16(42), ef.pool.ref)
	assert.NotContains(t, ef.chain.Calls(), "exactInputSingle")

	// recorded as a run without a swap
	require.Len(t, ef.store.runs, 1)
	require.Len(t, ef.cache.published, 1)
	ev := ef.store.runs[0]
	assert.NotEmpty(t, ev.RunID)
	assert.Equal(t, models.RunStatusSuccess, ev.Status)
	assert.Equal(t, "LINK", ev.TokenOut)
	assert.Equal(t, "500000000000000000", ev.AmountOutRaw)
	assert.Equal(t, "0", ev.AmountInRaw)
	assert.Empty(t, ev.SwapTx)
	assert.Equal(t, step.TxHash, ev.SupplyTx)

	// a supply is not a swap and does not count toward the daily limit
	assert.Equal(t, "0", ef.eng.RiskStatus().DailyUsedIn)

	_, err = ef.eng.Supply(context.Background(), "-1")
	assert.ErrorIs(t, err, ErrInvalidIntent)
	_, err = ef.eng.Supply(context.Background(), "0")
	assert.ErrorIs(t, err, ErrInvalidIntent)
	assert.Len(t, ef.store.runs, 1)
}

func TestEngine_SupplyFailureIsRecorded(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.chain.reverted["deposit"] = true

	step, err := ef.eng.Supply(context.Background(), "1")
	assert.ErrorIs(t, err, ErrTxReverted)
	assert.Nil(t, step)

	require.Len(t, ef.store.runs, 1)
	ev := ef.store.runs[0]
	assert.Equal(t, models.RunStatusFailed, ev.Status)
	assert.Equal(t, StepSupply, ev.FailedStep)
	assert.NotEmpty(t, ev.Error)
	assert.Empty(t, ev.SupplyTx)
}

func TestEngine_ConcurrentRunsShareDailyLimit(t *testing.T) {
	ef := newEngineFixture(t, func(d *EngineDeps) {
		d.RiskConfig.DailyLimitIn = decimal.NewFromInt(15)
	})
	ef.router.delay = 50 * time.Millisecond

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ef.eng.Run(context.Background(), &RunIntent{Amount: "10"})
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrRiskRejected):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, "10", ef.eng.RiskStatus().DailyUsedIn)
	assert.Len(t, ef.store.runs, 1)
}

func TestEngine_LoadUsage(t *testing.T) {
	ef := newEngineFixture(t, func(d *EngineDeps) {
		d.RiskConfig.DailyLimitIn = decimal.NewFromInt(15)
	})
	ctx := context.Background()
	now := time.Now()
	wallet := walletAddr.Hex()

	ef.store.runs = []*models.RunEvent{
		{Timestamp: now.Add(-time.Hour), Wallet: wallet, TokenIn: "USDC", AmountIn: 10, AmountInRaw: "10000000", SwapTx: "0x01"},
		// older than the window
		{Timestamp: now.Add(-25 * time.Hour), Wallet: wallet, TokenIn: "USDC", AmountIn: 10, AmountInRaw: "10000000", SwapTx: "0x02"},
		// swap never sent
		{Timestamp: now.Add(-time.Hour), Wallet: wallet, TokenIn: "USDC", AmountIn: 10, AmountInRaw: "10000000"},
		// other input token
		{Timestamp: now.Add(-time.Hour), Wallet: wallet, TokenIn: "DAI", AmountIn: 3, AmountInRaw: "3000000000000000000", SwapTx: "0x03"},
		// other wallet
		{Timestamp: now.Add(-time.Hour), Wallet: "0x0000000000000000000000000000000000000001", TokenIn: "USDC", AmountIn: 4, AmountInRaw: "4000000", SwapTx: "0x04"},
		// no raw amount
		{Timestamp: now.Add(-2 * time.Hour), Wallet: wallet, TokenIn: "USDC", AmountIn: 0.5, SwapTx: "0x05"},
	}

	require.NoError(t, ef.eng.LoadUsage(ctx))
	assert.Equal(t, "10.5", ef.eng.RiskStatus().DailyUsedIn)
	assert.Equal(t, "4.5", ef.eng.RiskStatus().DailyRemaining)

	_, err := ef.eng.Run(ctx, &RunIntent{Amount: "10"})
	assert.ErrorIs(t, err, ErrRiskRejected)

	// loading again replaces rather than adds
	require.NoError(t, ef.eng.LoadUsage(ctx))
	assert.Equal(t, "10.5", ef.eng.RiskStatus().DailyUsedIn)
}

func TestEngine_LoadUsageAcrossEngines(t *testing.T) {
	first := newEngineFixture(t, nil)
	_, err := first.eng.Run(context.Background(), &RunIntent{Amount: "10"})
	require.NoError(t, err)

	// a new process over the same store sees the earlier swap
	second := newEngineFixture(t, func(d *EngineDeps) { d.Store = first.store })
	require.NoError(t, second.eng.LoadUsage(context.Background()))
	assert.Equal(t, "10", second.eng.RiskStatus().DailyUsedIn)
}

func TestEngine_LoadUsageErrors(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.store.queryErr = errBoom
	assert.ErrorIs(t, ef.eng.LoadUsage(context.Background()), errBoom)

	noStore := newEngineFixture(t, func(d *EngineDeps) { d.Store = nil })
	assert.NoError(t, noStore.eng.LoadUsage(context.Background()))
}

func TestEngine_WalletInfo(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.signer.balance = big.NewInt(1_500_000_000_000_000_000)
	ef.link.setBalance(walletAddr, big.NewInt(3_000_000_000_000_000_000))

	info, err := ef.eng.WalletInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, walletAddr, info.Address)
	assert.Equal(t, int64(11155111), info.ChainID)
	assert.Equal(t, "1.5", info.BalanceETH)
	assert.Equal(t, "1000", info.TokenIn.Human)
	assert.Equal(t, "USDC", info.TokenIn.Symbol)
	assert.Equal(t, "3", info.TokenOut.Human)
}

func TestEngine_WalletInfoBalanceError(t *testing.T) {
	ef := newEngineFixture(t, nil)
	ef.link.balanceErr = errBoom

	_, err := ef.eng.WalletInfo(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestEngine_Close(t *testing.T) {
	c := &memCache{}
	s := &memStore{closeErr: errBoom}
	ef := newEngineFixture(t, func(d *EngineDeps) { d.Closers = append(d.Closers, c, s) })

	err := ef.eng.Close()
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, c.closed)
}
