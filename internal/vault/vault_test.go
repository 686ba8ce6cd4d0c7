package vault

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/journal"
	"github.com/jarrodwatts/aborean-vault/internal/oracle"
	"github.com/jarrodwatts/aborean-vault/internal/position"
	"github.com/jarrodwatts/aborean-vault/internal/valuation"
	"github.com/jarrodwatts/aborean-vault/internal/venue"
	"github.com/jarrodwatts/aborean-vault/internal/venue/venuetest"
)

const (
	admin      = "0xadmin"
	alice      = "0xalice"
	bob        = "0xbob"
	token0Feed = "0xfeed0"
	token1Feed = "0xfeed1"
)

var (
	token0      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	token1      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	rewardToken = common.HexToAddress("0x0000000000000000000000000000000000000003")
	vaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")

	oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// memorySink collects journal records for assertions.
type memorySink struct {
	mu      sync.Mutex
	records []journal.Record
}

func (m *memorySink) Append(_ context.Context, recs []journal.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recs...)
	return nil
}

func (m *memorySink) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Op)
	}
	return out
}

type fixture struct {
	vault     *Vault
	pool      *venuetest.SimPool
	swapper   *venuetest.SimSwapVenue
	positions *venuetest.SimPositionVenue
	gauge     *venuetest.SimStakingVenue
	feed      *venuetest.StaticFeed
	governor  *venuetest.SimGovernor
	sink      *memorySink
}

// freshQuote is a tight, just-published quote at the given raw price with
// exponent -8.
func freshQuote(rawPrice int64) venue.PriceQuote {
	return venue.PriceQuote{
		Price:       big.NewInt(rawPrice),
		Conf:        big.NewInt(0),
		Expo:        -8,
		PublishTime: time.Now(),
	}
}

func defaultParams() Params {
	return Params{
		Admin:            admin,
		VaultAddress:     vaultAddr,
		Token0:           token0,
		Token1:           token1,
		BaseIsToken0:     true,
		TickSpacing:      60,
		RewardToken:      rewardToken,
		MinDeposit:       big.NewInt(1_000_000),
		SwapSlippageBps:  50,
		WithdrawFloorBps: 9_800,
		RangeWidthTicks:  1824,
		TxTimeout:        time.Minute,
	}
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()

	pool, err := venuetest.NewSimPool(0)
	require.NoError(t, err)

	swapper := venuetest.NewSimSwapVenue(10)
	swapper.SetPrice(token0, new(big.Int).Set(oneToken))
	swapper.SetPrice(token1, new(big.Int).Set(oneToken))
	swapper.SetPrice(rewardToken, new(big.Int).Set(oneToken))

	positions := venuetest.NewSimPositionVenue(pool)
	gauge := venuetest.NewSimStakingVenue()

	feed := venuetest.NewStaticFeed()
	feed.SetQuote(token0Feed, freshQuote(100_000_000))
	feed.SetQuote(token1Feed, freshQuote(100_000_000))

	ledger, err := position.NewLedger(position.Config{
		Token0:      token0,
		Token1:      token1,
		TickSpacing: 60,
		SlippageBps: 500,
		Recipient:   vaultAddr,
	}, positions, gauge, pool, zap.NewNop())
	require.NoError(t, err)

	adapter := oracle.NewAdapter(feed, time.Minute, zap.NewNop())
	engine, err := valuation.NewEngine(valuation.Config{
		Token0Feed:   token0Feed,
		Token1Feed:   token1Feed,
		BaseIsToken0: true,
	}, pool, adapter, ledger, zap.NewNop())
	require.NoError(t, err)

	governor := venuetest.NewSimGovernor()
	sink := &memorySink{}

	v, err := New(params, ledger, engine, swapper, pool, governor, sink, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		vault:     v,
		pool:      pool,
		swapper:   swapper,
		positions: positions,
		gauge:     gauge,
		feed:      feed,
		governor:  governor,
		sink:      sink,
	}
}

// withinBps asserts got is within tolBps basis points of want.
func withinBps(t *testing.T, want, got *big.Int, tolBps int64) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))
	bound := new(big.Int).Mul(want, big.NewInt(tolBps))
	require.LessOrEqual(t, diff.Cmp(bound), 0,
		"want %s got %s beyond %d bps", want, got, tolBps)
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	shares, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)
	require.Equal(t, 0, shares.Cmp(oneToken))
	require.Equal(t, 0, f.vault.TotalSupply().Cmp(oneToken))
	require.Equal(t, 0, f.vault.BalanceOf(alice).Cmp(oneToken))

	pos := f.vault.Position()
	require.NotNil(t, pos)
	require.True(t, pos.Staked)
	require.True(t, f.gauge.IsStaked(pos.ID))
	require.Positive(t, pos.Liquidity.Sign())

	// Swap fees and liquidity rounding are the only losses.
	tv, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)
	withinBps(t, oneToken, tv, 200)
}

func TestDepositMinimumBoundary(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, big.NewInt(999_999))
	require.ErrorIs(t, err, ErrBelowMinimum)

	_, err = f.vault.Deposit(ctx, alice, big.NewInt(1_000_000))
	require.NoError(t, err)

	_, err = f.vault.Deposit(ctx, alice, big.NewInt(0))
	require.ErrorIs(t, err, ErrZeroAmount)
	_, err = f.vault.Deposit(ctx, "", big.NewInt(1_000_000))
	require.ErrorIs(t, err, ErrZeroAddress)
}

func TestEqualDepositorsGetEqualShares(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	aliceShares, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)
	bobShares, err := f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	withinBps(t, aliceShares, bobShares, 100)

	sum := new(big.Int).Add(f.vault.BalanceOf(alice), f.vault.BalanceOf(bob))
	require.Equal(t, 0, f.vault.TotalSupply().Cmp(sum))
}

func TestRedeemRoundTrip(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	deposit := new(big.Int).Set(oneToken)
	shares, err := f.vault.Deposit(ctx, alice, deposit)
	require.NoError(t, err)

	proceeds, err := f.vault.Redeem(ctx, alice, shares)
	require.NoError(t, err)

	floor := new(big.Int).Mul(deposit, big.NewInt(9_800))
	floor.Div(floor, big.NewInt(10_000))
	require.GreaterOrEqual(t, proceeds.Cmp(floor), 0,
		"round trip returned %s, floor %s", proceeds, floor)

	require.Equal(t, 0, f.vault.TotalSupply().Sign())
	require.Equal(t, 0, f.vault.BalanceOf(alice).Sign())
}

func TestWithdrawByAmount(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	half := new(big.Int).Rsh(oneToken, 1)
	proceeds, err := f.vault.Withdraw(ctx, alice, half)
	require.NoError(t, err)
	withinBps(t, half, proceeds, 200)

	require.Positive(t, f.vault.BalanceOf(alice).Sign())
	require.Negative(t, f.vault.TotalSupply().Cmp(oneToken))
}

func TestWithdrawWithoutShares(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Withdraw(ctx, alice, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	tooMany := new(big.Int).Add(f.vault.BalanceOf(alice), big.NewInt(1))
	_, err = f.vault.Redeem(ctx, alice, tooMany)
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestSharePriceTracksOracle(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	// Empty vault prices shares at exactly one.
	price, err := f.vault.SharePrice(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, price.Cmp(oneToken))

	aliceShares, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	// Base asset appreciates 20% against the paired asset. Vault value in
	// base units drops, so the same base deposit now buys more shares.
	f.feed.SetQuote(token0Feed, freshQuote(120_000_000))

	bobShares, err := f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.NoError(t, err)
	require.Positive(t, bobShares.Cmp(aliceShares),
		"bob %s should outmint alice %s after base appreciation", bobShares, aliceShares)
}

func TestOracleGatingBlocksAccounting(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	stale := freshQuote(100_000_000)
	stale.PublishTime = time.Now().Add(-2 * time.Minute)
	f.feed.SetQuote(token1Feed, stale)

	_, err = f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.ErrorIs(t, err, oracle.ErrStalePrice)
	_, err = f.vault.Withdraw(ctx, alice, new(big.Int).Rsh(oneToken, 1))
	require.ErrorIs(t, err, oracle.ErrStalePrice)

	wide := freshQuote(100_000_000)
	wide.Conf = big.NewInt(1_000_000) // conf * 100 == price
	f.feed.SetQuote(token1Feed, wide)

	_, err = f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.ErrorIs(t, err, oracle.ErrLowConfidence)
}

func TestPoolPriceMoveBarelyMovesValuation(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	before, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)

	// A 2% pool price push with unchanged oracle prices only shifts the
	// position's composition; the valuation change is second order.
	require.NoError(t, f.pool.SetTick(200))
	after, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)

	withinBps(t, before, after, 50)
}

func TestSlippageAbortLeavesPositionIntact(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	// Oracle prices token1 well above the venue's execution price, so any
	// honest payout lands under the 98% floor.
	f.feed.SetQuote(token1Feed, freshQuote(150_000_000))

	liquidityBefore := new(big.Int).Set(f.vault.Position().Liquidity)
	supplyBefore := f.vault.TotalSupply()

	_, err = f.vault.Withdraw(ctx, alice, new(big.Int).Rsh(oneToken, 1))
	require.ErrorIs(t, err, ErrSlippage)

	_, err = f.vault.Redeem(ctx, alice, f.vault.BalanceOf(alice))
	require.ErrorIs(t, err, ErrSlippage)

	// The abort must be clean: no liquidity removed, no shares burned.
	require.Equal(t, 0, f.vault.Position().Liquidity.Cmp(liquidityBefore))
	require.Equal(t, 0, f.vault.TotalSupply().Cmp(supplyBefore))
}

func TestOutOfBandValueInvisibleToValuation(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	aliceShares, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	valueBefore, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)
	priceBefore, err := f.vault.SharePrice(ctx)
	require.NoError(t, err)

	// Value arriving outside the deposit flow: rewards accrue at the gauge
	// but sit outside the position until compounded.
	f.gauge.AccrueReward(f.vault.Position().ID, new(big.Int).Rsh(oneToken, 3))

	valueAfter, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)
	priceAfter, err := f.vault.SharePrice(ctx)
	require.NoError(t, err)

	// Valuation reads only position liquidity and oracle quotes, so the
	// windfall neither moves the share price nor skews the next mint.
	require.Equal(t, 0, valueAfter.Cmp(valueBefore))
	require.Equal(t, 0, priceAfter.Cmp(priceBefore))

	bobShares, err := f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.NoError(t, err)
	withinBps(t, aliceShares, bobShares, 100)
}

func TestPauseGatesMutationsOnly(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	require.ErrorIs(t, f.vault.Pause(alice), ErrNotAdmin)
	require.NoError(t, f.vault.Pause(admin))
	require.True(t, f.vault.Paused())

	_, err = f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.ErrorIs(t, err, ErrPaused)
	_, err = f.vault.Withdraw(ctx, alice, big.NewInt(1_000_000))
	require.ErrorIs(t, err, ErrPaused)

	// Valuation stays readable while paused.
	_, err = f.vault.TotalValue(ctx)
	require.NoError(t, err)
	_, err = f.vault.SharePrice(ctx)
	require.NoError(t, err)

	require.NoError(t, f.vault.Unpause(admin))
	_, err = f.vault.Deposit(ctx, bob, new(big.Int).Set(oneToken))
	require.NoError(t, err)
}

// reentrantSwapper calls back into the vault from inside a swap, the way a
// malicious token hook would.
type reentrantSwapper struct {
	inner    venue.SwapVenue
	vault    *Vault
	innerErr error
	fired    bool
}

func (r *reentrantSwapper) Quote(ctx context.Context, route venue.Route, amountIn *big.Int) (*big.Int, error) {
	return r.inner.Quote(ctx, route, amountIn)
}

func (r *reentrantSwapper) Swap(ctx context.Context, route venue.Route, amountIn, minAmountOut *big.Int, recipient common.Address, deadline time.Time) (*big.Int, error) {
	if !r.fired {
		r.fired = true
		_, r.innerErr = r.vault.Redeem(ctx, alice, big.NewInt(1))
	}
	return r.inner.Swap(ctx, route, amountIn, minAmountOut, recipient, deadline)
}

func TestReentrantCallRejected(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	// Rebuild the vault with a swapper that reenters during Deposit.
	wrapped := &reentrantSwapper{inner: f.swapper}
	params := defaultParams()

	pool := f.pool
	positions := venuetest.NewSimPositionVenue(pool)
	gauge := venuetest.NewSimStakingVenue()
	ledger, err := position.NewLedger(position.Config{
		Token0:      token0,
		Token1:      token1,
		TickSpacing: 60,
		SlippageBps: 500,
		Recipient:   vaultAddr,
	}, positions, gauge, pool, zap.NewNop())
	require.NoError(t, err)

	adapter := oracle.NewAdapter(f.feed, time.Minute, zap.NewNop())
	engine, err := valuation.NewEngine(valuation.Config{
		Token0Feed:   token0Feed,
		Token1Feed:   token1Feed,
		BaseIsToken0: true,
	}, pool, adapter, ledger, zap.NewNop())
	require.NoError(t, err)

	v, err := New(params, ledger, engine, wrapped, pool, nil, nil, zap.NewNop())
	require.NoError(t, err)
	wrapped.vault = v

	_, err = v.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err, "outer deposit must survive the reentrant attempt")
	require.True(t, wrapped.fired)
	require.ErrorIs(t, wrapped.innerErr, ErrReentrant)
}

func TestCompoundGrowsSharePriceWithoutMinting(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	pos := f.vault.Position()
	reward := new(big.Int).Div(oneToken, big.NewInt(10))
	f.gauge.AccrueReward(pos.ID, reward)

	supplyBefore := f.vault.TotalSupply()
	priceBefore, err := f.vault.SharePrice(ctx)
	require.NoError(t, err)

	_, err = f.vault.Compound(ctx, alice)
	require.ErrorIs(t, err, ErrNotAdmin)

	compounded, err := f.vault.Compound(ctx, admin)
	require.NoError(t, err)
	require.Positive(t, compounded.Sign())

	require.Equal(t, 0, f.vault.TotalSupply().Cmp(supplyBefore))
	priceAfter, err := f.vault.SharePrice(ctx)
	require.NoError(t, err)
	require.Positive(t, priceAfter.Cmp(priceBefore),
		"share price %s should exceed %s after compounding", priceAfter, priceBefore)
}

func TestHarvestClaimsRewards(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)

	pos := f.vault.Position()
	reward := big.NewInt(42_000)
	f.gauge.AccrueReward(pos.ID, reward)

	claimed, err := f.vault.Harvest(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, 0, claimed.Cmp(reward))
	require.Equal(t, 0, f.gauge.Claimed.Cmp(reward))
}

func TestRebalanceRecentersRange(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	_, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)
	oldPos := f.vault.Position()

	needed, err := f.vault.NeedsRebalance(ctx)
	require.NoError(t, err)
	require.False(t, needed)

	// In-range rebalance is a no-op.
	require.NoError(t, f.vault.Rebalance(ctx, admin))
	require.Equal(t, oldPos.ID, f.vault.Position().ID)

	require.NoError(t, f.pool.SetTick(3_000))
	needed, err = f.vault.NeedsRebalance(ctx)
	require.NoError(t, err)
	require.True(t, needed)

	require.ErrorIs(t, f.vault.Rebalance(ctx, alice), ErrNotAdmin)
	require.NoError(t, f.vault.Rebalance(ctx, admin))

	newPos := f.vault.Position()
	require.NotNil(t, newPos)
	require.NotEqual(t, oldPos.ID, newPos.ID)
	require.True(t, newPos.InRange(3_000))
	require.True(t, f.gauge.IsStaked(newPos.ID))

	needed, err = f.vault.NeedsRebalance(ctx)
	require.NoError(t, err)
	require.False(t, needed)
}

func TestGovernanceHooks(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	pools := []common.Address{token0}
	weights := []*big.Int{big.NewInt(100)}

	require.ErrorIs(t, f.vault.VoteForEmissions(ctx, alice, pools, weights), ErrNotAdmin)
	require.NoError(t, f.vault.VoteForEmissions(ctx, admin, pools, weights))
	require.Equal(t, 1, f.governor.Votes)

	_, err := f.vault.LockRewards(ctx, admin, big.NewInt(0), time.Hour)
	require.ErrorIs(t, err, ErrZeroAmount)

	id, err := f.vault.LockRewards(ctx, admin, big.NewInt(500), time.Hour)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, 0, f.governor.Locked.Cmp(big.NewInt(500)))
}

func TestOperationsAreJournaled(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	shares, err := f.vault.Deposit(ctx, alice, new(big.Int).Set(oneToken))
	require.NoError(t, err)
	_, err = f.vault.Redeem(ctx, alice, shares)
	require.NoError(t, err)

	require.Equal(t, []string{journal.OpDeposit, journal.OpWithdraw}, f.sink.ops())
}
