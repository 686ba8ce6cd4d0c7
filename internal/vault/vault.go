// Package vault issues and redeems proportional claims against a single
// concentrated-liquidity position. Every state-mutating entry point runs
// under one transaction-scoped exclusion gate; a reentrant call into another
// guarded entry point fails immediately without touching the outer call.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/journal"
	"github.com/jarrodwatts/aborean-vault/internal/position"
	"github.com/jarrodwatts/aborean-vault/internal/tickmath"
	"github.com/jarrodwatts/aborean-vault/internal/valuation"
	"github.com/jarrodwatts/aborean-vault/internal/venue"
)

const bpsDenominator = 10_000

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Params is the vault's static configuration, validated once at construction.
type Params struct {
	Admin        string
	VaultAddress common.Address

	Token0       common.Address
	Token1       common.Address
	BaseIsToken0 bool
	TickSpacing  int32

	// RewardToken is the staking venue's emission token, swapped to the
	// base asset on compound. Leave zero when rewards already arrive as
	// the base asset.
	RewardToken common.Address

	MinDeposit *big.Int

	// SwapSlippageBps bounds each swap leg (50 = 0.5%).
	SwapSlippageBps uint32

	// WithdrawFloorBps is the minimum fraction of the requested withdrawal
	// the caller must receive (9800 = 98%).
	WithdrawFloorBps uint32

	// RangeWidthTicks is the half-width of a freshly chosen range, in raw
	// ticks before alignment. 1824 ticks is a ±20% price band.
	RangeWidthTicks int32

	// TxTimeout bounds every external swap/liquidity sub-call.
	TxTimeout time.Duration
}

func (p Params) Validate() error {
	if p.Admin == "" {
		return fmt.Errorf("admin address is required")
	}
	// The vault address receives swap output and collected liquidity.
	if p.VaultAddress == (common.Address{}) {
		return fmt.Errorf("vault address is required")
	}
	if p.Token0 == p.Token1 {
		return fmt.Errorf("token0 and token1 must differ")
	}
	if p.TickSpacing <= 0 {
		return fmt.Errorf("tick spacing must be positive")
	}
	if p.MinDeposit == nil || p.MinDeposit.Sign() <= 0 {
		return fmt.Errorf("minimum deposit must be positive")
	}
	if p.SwapSlippageBps >= bpsDenominator {
		return fmt.Errorf("swap slippage bps %d out of range", p.SwapSlippageBps)
	}
	if p.WithdrawFloorBps == 0 || p.WithdrawFloorBps > bpsDenominator {
		return fmt.Errorf("withdraw floor bps %d out of range", p.WithdrawFloorBps)
	}
	if p.RangeWidthTicks <= 0 {
		return fmt.Errorf("range width must be positive")
	}
	if p.TxTimeout <= 0 {
		return fmt.Errorf("tx timeout must be positive")
	}
	return nil
}

// Vault is the share-accounting core. All mutating methods are serialized by
// the exclusion gate; read-only queries bypass both the gate and pausing.
type Vault struct {
	params   Params
	ledger   *position.Ledger
	engine   *valuation.Engine
	swapper  venue.SwapVenue
	pool     venue.Pool
	governor venue.Governor
	sink     journal.Sink
	logger   *zap.Logger

	// gate is the transaction-scoped exclusion lock. TryLock failure means
	// a guarded operation is already running; the caller gets ErrReentrant
	// instead of blocking.
	gate sync.Mutex

	stateMu     sync.RWMutex
	paused      bool
	totalSupply *big.Int
	balances    map[string]*big.Int
}

// New builds a Vault. governor and sink may be nil; the corresponding admin
// hooks then fail and journaling is skipped.
func New(params Params, ledger *position.Ledger, engine *valuation.Engine, swapper venue.SwapVenue, pool venue.Pool, governor venue.Governor, sink journal.Sink, logger *zap.Logger) (*Vault, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("vault params: %w", err)
	}
	if ledger == nil || engine == nil || swapper == nil || pool == nil {
		return nil, fmt.Errorf("vault requires ledger, engine, swapper and pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		params:      params,
		ledger:      ledger,
		engine:      engine,
		swapper:     swapper,
		pool:        pool,
		governor:    governor,
		sink:        sink,
		logger:      logger,
		totalSupply: big.NewInt(0),
		balances:    make(map[string]*big.Int),
	}, nil
}

// Deposit accepts amount of the base asset from owner and mints proportional
// shares. Half the deposit is swapped to the paired asset, then both legs are
// added to the position (minting it on first deposit). Returns the shares
// minted.
func (v *Vault) Deposit(ctx context.Context, owner string, amount *big.Int) (*big.Int, error) {
	if owner == "" {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if amount.Cmp(v.params.MinDeposit) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, v.params.MinDeposit)
	}

	if !v.gate.TryLock() {
		return nil, ErrReentrant
	}
	defer v.gate.Unlock()

	if v.isPaused() {
		return nil, ErrPaused
	}

	totalValue, err := v.engine.TotalValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("value vault: %w", err)
	}

	supply := v.supply()
	shares, err := sharesForDeposit(amount, supply, totalValue)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(v.params.TxTimeout)

	// Resolve the range before the swap so a range failure costs nothing.
	tickLower, tickUpper, err := v.depositRange(ctx)
	if err != nil {
		return nil, err
	}

	amount0, amount1, err := v.splitForPosition(ctx, amount, deadline)
	if err != nil {
		return nil, err
	}

	if err := v.ledger.Deposit(ctx, amount0, amount1, tickLower, tickUpper, deadline); err != nil {
		v.unwindSplit(ctx, amount0, amount1, deadline)
		return nil, fmt.Errorf("deposit into position: %w", err)
	}

	v.mint(owner, shares)

	v.logger.Info("deposit",
		zap.String("owner", owner),
		zap.String("amount", amount.String()),
		zap.String("shares", shares.String()),
		zap.String("total_value_before", totalValue.String()),
	)
	v.record(ctx, journal.Record{
		Op:         journal.OpDeposit,
		Owner:      owner,
		AssetsIn:   amount.String(),
		Shares:     shares.String(),
		TotalValue: totalValue.String(),
	})
	return shares, nil
}

// Withdraw redeems enough shares to pay out amount of the base asset and
// returns the assets actually received.
func (v *Vault) Withdraw(ctx context.Context, owner string, amount *big.Int) (*big.Int, error) {
	if owner == "" {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	if !v.gate.TryLock() {
		return nil, ErrReentrant
	}
	defer v.gate.Unlock()

	if v.isPaused() {
		return nil, ErrPaused
	}

	totalValue, err := v.engine.TotalValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("value vault: %w", err)
	}
	supply := v.supply()
	if supply.Sign() == 0 {
		return nil, ErrInsufficientShares
	}
	if totalValue.Sign() == 0 {
		return nil, ErrZeroTotalValue
	}

	// shares = ceil(amount * supply / totalValue), mirroring the floor on
	// the mint side so rounding never favors the withdrawer.
	shares := new(big.Int).Mul(amount, supply)
	shares = ceilDiv(shares, totalValue)

	return v.redeemLocked(ctx, owner, shares, supply, totalValue)
}

// Redeem burns exactly shares and returns the base-asset proceeds.
func (v *Vault) Redeem(ctx context.Context, owner string, shares *big.Int) (*big.Int, error) {
	if owner == "" {
		return nil, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	if !v.gate.TryLock() {
		return nil, ErrReentrant
	}
	defer v.gate.Unlock()

	if v.isPaused() {
		return nil, ErrPaused
	}

	totalValue, err := v.engine.TotalValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("value vault: %w", err)
	}
	supply := v.supply()
	if supply.Sign() == 0 {
		return nil, ErrInsufficientShares
	}
	if totalValue.Sign() == 0 {
		return nil, ErrZeroTotalValue
	}

	return v.redeemLocked(ctx, owner, shares, supply, totalValue)
}

// redeemLocked burns shares and pays out the base asset. Callers hold the
// gate and have verified supply and totalValue are positive.
func (v *Vault) redeemLocked(ctx context.Context, owner string, shares, supply, totalValue *big.Int) (*big.Int, error) {
	balance := v.balanceOf(owner)
	if shares.Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrInsufficientShares, shares, balance)
	}

	pos := v.ledger.Current()
	if pos == nil || pos.Liquidity.Sign() == 0 {
		return nil, ErrZeroTotalValue
	}

	// expected payout = shares * totalValue / supply, floored.
	expected := new(big.Int).Mul(shares, totalValue)
	expected.Div(expected, supply)

	liquidity := new(big.Int).Mul(pos.Liquidity, shares)
	liquidity.Div(liquidity, supply)

	floor := new(big.Int).Mul(expected, big.NewInt(int64(v.params.WithdrawFloorBps)))
	floor.Div(floor, big.NewInt(bpsDenominator))

	// Pre-flight the floor before touching the position. Quoting the removal
	// at the current pool state catches an oracle/venue price gap while the
	// liquidity is still intact; failing afterwards would leave the position
	// shrunk with no shares burned.
	quoted, err := v.quoteRemoval(ctx, pos, liquidity)
	if err != nil {
		return nil, err
	}
	if quoted.Cmp(floor) < 0 {
		return nil, fmt.Errorf("%w: quoted %s, floor %s", ErrSlippage, quoted, floor)
	}

	deadline := time.Now().Add(v.params.TxTimeout)

	amount0, amount1, err := v.ledger.Withdraw(ctx, liquidity, deadline)
	if err != nil {
		return nil, fmt.Errorf("withdraw from position: %w", err)
	}

	baseLeg, pairedLeg := amount0, amount1
	if !v.params.BaseIsToken0 {
		baseLeg, pairedLeg = amount1, amount0
	}

	proceeds := new(big.Int).Set(baseLeg)
	if pairedLeg.Sign() > 0 {
		swapped, err := v.swapWithSlippage(ctx, v.pairedToken(), v.baseToken(), pairedLeg, deadline)
		if err != nil {
			v.restoreLegs(ctx, amount0, amount1, pos, deadline)
			return nil, fmt.Errorf("swap paired leg: %w", err)
		}
		proceeds.Add(proceeds, swapped)
	}

	// The swap carries its own minOut bound, but removal plus swap can still
	// land under the floor together. Fold the proceeds back into the position
	// before failing so the value stays inside valuation.
	if proceeds.Cmp(floor) < 0 {
		v.restoreProceeds(ctx, proceeds, pos, deadline)
		return nil, fmt.Errorf("%w: received %s, floor %s", ErrSlippage, proceeds, floor)
	}

	v.burn(owner, shares)

	v.logger.Info("withdraw",
		zap.String("owner", owner),
		zap.String("shares", shares.String()),
		zap.String("proceeds", proceeds.String()),
	)
	v.record(ctx, journal.Record{
		Op:         journal.OpWithdraw,
		Owner:      owner,
		AssetsOut:  proceeds.String(),
		Shares:     shares.String(),
		TotalValue: totalValue.String(),
	})
	return proceeds, nil
}

// TotalValue reports the vault's current value in base-asset units. It is
// not blocked by pausing or by the exclusion gate.
func (v *Vault) TotalValue(ctx context.Context) (*big.Int, error) {
	return v.engine.TotalValue(ctx)
}

// SharePrice returns the 18-decimal price of one share in base-asset units.
// An empty vault prices shares at exactly one.
func (v *Vault) SharePrice(ctx context.Context) (*big.Int, error) {
	supply := v.supply()
	if supply.Sign() == 0 {
		return new(big.Int).Set(wad), nil
	}
	totalValue, err := v.engine.TotalValue(ctx)
	if err != nil {
		return nil, err
	}
	price := new(big.Int).Mul(totalValue, wad)
	return price.Div(price, supply), nil
}

// TotalSupply returns the outstanding share count.
func (v *Vault) TotalSupply() *big.Int {
	return v.supply()
}

// BalanceOf returns owner's share balance.
func (v *Vault) BalanceOf(owner string) *big.Int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	balance, ok := v.balances[owner]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// Position returns a copy of the active position, or nil.
func (v *Vault) Position() *position.Position {
	return v.ledger.Current()
}

// Pause stops deposits and withdrawals. Valuation stays available.
func (v *Vault) Pause(caller string) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	v.stateMu.Lock()
	v.paused = true
	v.stateMu.Unlock()
	v.logger.Info("vault paused", zap.String("caller", caller))
	return nil
}

// Unpause re-enables deposits and withdrawals.
func (v *Vault) Unpause(caller string) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	v.stateMu.Lock()
	v.paused = false
	v.stateMu.Unlock()
	v.logger.Info("vault unpaused", zap.String("caller", caller))
	return nil
}

// Paused reports the pause gate.
func (v *Vault) Paused() bool {
	return v.isPaused()
}

// NeedsRebalance reports whether the live pool tick sits outside the active
// position's range.
func (v *Vault) NeedsRebalance(ctx context.Context) (bool, error) {
	pos := v.ledger.Current()
	if pos == nil {
		return false, nil
	}
	state, err := v.pool.CurrentState(ctx)
	if err != nil {
		return false, fmt.Errorf("read pool state: %w", err)
	}
	return !pos.InRange(state.Tick), nil
}

// Rebalance drains the position and re-centers it around the current pool
// price. It is a no-op when no position exists or the position is still in
// range.
func (v *Vault) Rebalance(ctx context.Context, caller string) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if !v.gate.TryLock() {
		return ErrReentrant
	}
	defer v.gate.Unlock()

	needed, err := v.NeedsRebalance(ctx)
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}

	deadline := time.Now().Add(v.params.TxTimeout)

	amount0, amount1, err := v.ledger.Drain(ctx, deadline)
	if err != nil {
		return fmt.Errorf("drain position: %w", err)
	}

	// A drained out-of-range position is one-sided. Consolidate into the
	// base asset, then re-split so the new centered range takes both legs.
	baseLeg, pairedLeg := amount0, amount1
	if !v.params.BaseIsToken0 {
		baseLeg, pairedLeg = amount1, amount0
	}
	total := new(big.Int).Set(baseLeg)
	if pairedLeg.Sign() > 0 {
		swapped, err := v.swapWithSlippage(ctx, v.pairedToken(), v.baseToken(), pairedLeg, deadline)
		if err != nil {
			return fmt.Errorf("consolidate drained legs: %w", err)
		}
		total.Add(total, swapped)
	}

	tickLower, tickUpper, err := v.freshRange(ctx)
	if err != nil {
		return err
	}

	amount0, amount1, err = v.splitForPosition(ctx, total, deadline)
	if err != nil {
		return err
	}

	if err := v.ledger.Deposit(ctx, amount0, amount1, tickLower, tickUpper, deadline); err != nil {
		v.unwindSplit(ctx, amount0, amount1, deadline)
		return fmt.Errorf("remint position: %w", err)
	}

	v.logger.Info("rebalanced",
		zap.String("caller", caller),
		zap.Int32("tick_lower", tickLower),
		zap.Int32("tick_upper", tickUpper),
	)
	v.record(ctx, journal.Record{Op: journal.OpRebalance, Owner: caller})
	return nil
}

// PendingRewards reports unclaimed gauge rewards for the active position.
// It is a read and takes no lock.
func (v *Vault) PendingRewards(ctx context.Context) (*big.Int, error) {
	return v.ledger.PendingRewards(ctx)
}

// Harvest claims pending staking rewards and returns the reward amount.
func (v *Vault) Harvest(ctx context.Context, caller string) (*big.Int, error) {
	if err := v.requireAdmin(caller); err != nil {
		return nil, err
	}
	if !v.gate.TryLock() {
		return nil, ErrReentrant
	}
	defer v.gate.Unlock()

	rewards, err := v.ledger.Harvest(ctx)
	if err != nil {
		return nil, err
	}
	if rewards.Sign() > 0 {
		v.logger.Info("harvest", zap.String("rewards", rewards.String()))
		v.record(ctx, journal.Record{Op: journal.OpHarvest, Owner: caller, AssetsIn: rewards.String()})
	}
	return rewards, nil
}

// Compound claims rewards, converts them to the base asset, and folds them
// back into the position. No new shares are minted, so the yield accrues to
// existing holders through share-price appreciation. Returns the base-asset
// amount compounded.
func (v *Vault) Compound(ctx context.Context, caller string) (*big.Int, error) {
	if err := v.requireAdmin(caller); err != nil {
		return nil, err
	}
	if !v.gate.TryLock() {
		return nil, ErrReentrant
	}
	defer v.gate.Unlock()

	rewards, err := v.ledger.Harvest(ctx)
	if err != nil {
		return nil, err
	}
	if rewards.Sign() == 0 {
		return big.NewInt(0), nil
	}

	deadline := time.Now().Add(v.params.TxTimeout)

	baseAmount := rewards
	if v.params.RewardToken != (common.Address{}) && v.params.RewardToken != v.baseToken() {
		baseAmount, err = v.swapWithSlippage(ctx, v.params.RewardToken, v.baseToken(), rewards, deadline)
		if err != nil {
			return nil, fmt.Errorf("swap rewards: %w", err)
		}
	}

	tickLower, tickUpper, err := v.depositRange(ctx)
	if err != nil {
		return nil, err
	}
	amount0, amount1, err := v.splitForPosition(ctx, baseAmount, deadline)
	if err != nil {
		return nil, err
	}
	if err := v.ledger.Deposit(ctx, amount0, amount1, tickLower, tickUpper, deadline); err != nil {
		v.unwindSplit(ctx, amount0, amount1, deadline)
		return nil, fmt.Errorf("compound into position: %w", err)
	}

	v.logger.Info("compound", zap.String("base_amount", baseAmount.String()))
	v.record(ctx, journal.Record{Op: journal.OpCompound, Owner: caller, AssetsIn: baseAmount.String()})
	return baseAmount, nil
}

// VoteForEmissions forwards an emissions vote to the governance venue.
func (v *Vault) VoteForEmissions(ctx context.Context, caller string, pools []common.Address, weights []*big.Int) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if v.governor == nil {
		return fmt.Errorf("no governance venue configured")
	}
	return v.governor.CastVote(ctx, pools, weights)
}

// LockRewards locks amount of the reward token with the governance venue.
func (v *Vault) LockRewards(ctx context.Context, caller string, amount *big.Int, duration time.Duration) (uint64, error) {
	if err := v.requireAdmin(caller); err != nil {
		return 0, err
	}
	if v.governor == nil {
		return 0, fmt.Errorf("no governance venue configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	return v.governor.CreateLock(ctx, amount, duration)
}

// quoteRemoval prices the base-asset proceeds of removing liquidity at the
// current pool state, using the swap venue's own quote for the paired leg.
func (v *Vault) quoteRemoval(ctx context.Context, pos *position.Position, liquidity *big.Int) (*big.Int, error) {
	state, err := v.pool.CurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pool state: %w", err)
	}
	sqrtLower, err := tickmath.SqrtRatioAtTick(pos.TickLower)
	if err != nil {
		return nil, err
	}
	sqrtUpper, err := tickmath.SqrtRatioAtTick(pos.TickUpper)
	if err != nil {
		return nil, err
	}
	amount0, amount1, err := tickmath.AmountsForLiquidity(state.SqrtPriceX96, sqrtLower, sqrtUpper, liquidity)
	if err != nil {
		return nil, err
	}

	baseLeg, pairedLeg := amount0, amount1
	if !v.params.BaseIsToken0 {
		baseLeg, pairedLeg = amount1, amount0
	}
	out := new(big.Int).Set(baseLeg)
	if pairedLeg.Sign() > 0 {
		route := venue.Route{TokenIn: v.pairedToken(), TokenOut: v.baseToken(), TickSpacing: v.params.TickSpacing}
		quote, err := v.swapper.Quote(ctx, route, pairedLeg)
		if err != nil {
			return nil, fmt.Errorf("quote paired leg: %w", err)
		}
		out.Add(out, quote)
	}
	return out, nil
}

// restoreLegs puts withdrawn legs back into the position after a failed
// follow-up step. Best effort; a failure here is logged, not returned, since
// the caller is already propagating the original error.
func (v *Vault) restoreLegs(ctx context.Context, amount0, amount1 *big.Int, pos *position.Position, deadline time.Time) {
	if err := v.ledger.Deposit(ctx, amount0, amount1, pos.TickLower, pos.TickUpper, deadline); err != nil {
		v.logger.Error("restore withdrawn legs failed", zap.Error(err))
	}
}

// restoreProceeds re-splits consolidated base proceeds and puts them back
// into the position.
func (v *Vault) restoreProceeds(ctx context.Context, proceeds *big.Int, pos *position.Position, deadline time.Time) {
	amount0, amount1, err := v.splitForPosition(ctx, proceeds, deadline)
	if err != nil {
		v.logger.Error("restore proceeds failed", zap.Error(err))
		return
	}
	v.restoreLegs(ctx, amount0, amount1, pos, deadline)
}

// unwindSplit swaps a split's paired leg back to the base asset after the
// position add failed, so the funds end up back in the deposit asset.
func (v *Vault) unwindSplit(ctx context.Context, amount0, amount1 *big.Int, deadline time.Time) {
	paired := amount1
	if !v.params.BaseIsToken0 {
		paired = amount0
	}
	if paired.Sign() == 0 {
		return
	}
	if _, err := v.swapWithSlippage(ctx, v.pairedToken(), v.baseToken(), paired, deadline); err != nil {
		v.logger.Error("unwind split failed", zap.Error(err))
	}
}

// splitForPosition swaps half of a base-asset amount into the paired asset
// and returns the two legs in token0/token1 order.
func (v *Vault) splitForPosition(ctx context.Context, amount *big.Int, deadline time.Time) (*big.Int, *big.Int, error) {
	half := new(big.Int).Rsh(amount, 1)
	keep := new(big.Int).Sub(amount, half)

	swapped, err := v.swapWithSlippage(ctx, v.baseToken(), v.pairedToken(), half, deadline)
	if err != nil {
		return nil, nil, fmt.Errorf("swap deposit leg: %w", err)
	}

	if v.params.BaseIsToken0 {
		return keep, swapped, nil
	}
	return swapped, keep, nil
}

// swapWithSlippage quotes a route and executes it with the configured bound:
// minOut = quote * (1 - slippageBps/10000).
func (v *Vault) swapWithSlippage(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, deadline time.Time) (*big.Int, error) {
	route := venue.Route{TokenIn: tokenIn, TokenOut: tokenOut, TickSpacing: v.params.TickSpacing}

	quote, err := v.swapper.Quote(ctx, route, amountIn)
	if err != nil {
		return nil, fmt.Errorf("quote swap: %w", err)
	}

	minOut := new(big.Int).Mul(quote, big.NewInt(bpsDenominator-int64(v.params.SwapSlippageBps)))
	minOut.Div(minOut, big.NewInt(bpsDenominator))

	out, err := v.swapper.Swap(ctx, route, amountIn, minOut, v.params.VaultAddress, deadline)
	if err != nil {
		return nil, fmt.Errorf("execute swap: %w", err)
	}
	return out, nil
}

// depositRange picks the tick bounds for a liquidity add: the active
// position's range when one exists, otherwise a fresh range around the
// current pool price.
func (v *Vault) depositRange(ctx context.Context) (int32, int32, error) {
	if pos := v.ledger.Current(); pos != nil {
		return pos.TickLower, pos.TickUpper, nil
	}
	return v.freshRange(ctx)
}

// freshRange centers a RangeWidthTicks half-width band on the current pool
// tick, aligned to the pool's tick spacing.
func (v *Vault) freshRange(ctx context.Context) (int32, int32, error) {
	state, err := v.pool.CurrentState(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read pool state: %w", err)
	}

	lower, err := tickmath.NearestUsableTick(state.Tick-v.params.RangeWidthTicks, v.params.TickSpacing)
	if err != nil {
		return 0, 0, err
	}
	upper, err := tickmath.NearestUsableTick(state.Tick+v.params.RangeWidthTicks, v.params.TickSpacing)
	if err != nil {
		return 0, 0, err
	}
	if lower >= upper {
		// Spacing wider than the band; widen to one spacing per side.
		lower -= v.params.TickSpacing
		upper += v.params.TickSpacing
	}
	return lower, upper, nil
}

func (v *Vault) baseToken() common.Address {
	if v.params.BaseIsToken0 {
		return v.params.Token0
	}
	return v.params.Token1
}

func (v *Vault) pairedToken() common.Address {
	if v.params.BaseIsToken0 {
		return v.params.Token1
	}
	return v.params.Token0
}

func (v *Vault) requireAdmin(caller string) error {
	if caller != v.params.Admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}
	return nil
}

func (v *Vault) isPaused() bool {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.paused
}

func (v *Vault) supply() *big.Int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return new(big.Int).Set(v.totalSupply)
}

func (v *Vault) balanceOf(owner string) *big.Int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	balance, ok := v.balances[owner]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (v *Vault) mint(owner string, shares *big.Int) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	if v.balances[owner] == nil {
		v.balances[owner] = big.NewInt(0)
	}
	v.balances[owner].Add(v.balances[owner], shares)
	v.totalSupply.Add(v.totalSupply, shares)
}

func (v *Vault) burn(owner string, shares *big.Int) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	v.balances[owner].Sub(v.balances[owner], shares)
	v.totalSupply.Sub(v.totalSupply, shares)
}

// record journals an operation. Journaling is observability, not accounting;
// a sink failure is logged and does not fail the operation.
func (v *Vault) record(ctx context.Context, rec journal.Record) {
	if v.sink == nil {
		return
	}
	rec.TotalSupply = v.supply().String()
	rec.Timestamp = time.Now().UTC()
	if err := v.sink.Append(ctx, []journal.Record{rec}); err != nil {
		v.logger.Warn("journal append failed", zap.Error(err), zap.String("op", rec.Op))
	}
}

// sharesForDeposit applies the proportional mint formula, flooring in the
// vault's favor. The first deposit mints 1:1.
func sharesForDeposit(amount, supply, totalValue *big.Int) (*big.Int, error) {
	if supply.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	if totalValue.Sign() == 0 {
		return nil, ErrZeroTotalValue
	}
	shares := new(big.Int).Mul(amount, supply)
	shares.Div(shares, totalValue)
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	return shares, nil
}

func ceilDiv(a, b *big.Int) *big.Int {
	quot, rem := new(big.Int).QuoRem(a, b, new(big.Int))
	if rem.Sign() > 0 {
		quot.Add(quot, big.NewInt(1))
	}
	return quot
}
