// Package position tracks the vault's single concentrated-liquidity position
// and mediates every mint / increase / decrease / stake / unstake against the
// external position and staking venues.
package position

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/tickmath"
	"github.com/jarrodwatts/aborean-vault/internal/venue"
)

const bpsDenominator = 10_000

var (
	ErrInvalidTickRange = errors.New("invalid tick range")
	ErrNoPosition       = errors.New("no active position")
	ErrExcessLiquidity  = errors.New("liquidity exceeds position liquidity")

	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// Position is the vault's single liquidity slot. A nil *Position means no
// position exists; there is no zero-id sentinel.
type Position struct {
	ID        uint64
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
	Staked    bool
}

// InRange reports whether tick lies inside the position's bounds.
func (p *Position) InRange(tick int32) bool {
	return tick >= p.TickLower && tick < p.TickUpper
}

func (p *Position) clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.Liquidity = new(big.Int).Set(p.Liquidity)
	return &out
}

// Config holds the pool pairing and slippage policy for the ledger.
type Config struct {
	Token0      common.Address
	Token1      common.Address
	TickSpacing int32

	// SlippageBps bounds how far below the expected token consumption a
	// liquidity call may execute (500 = 5%).
	SlippageBps uint32

	// Recipient receives collected tokens, normally the vault itself.
	Recipient common.Address
}

func (c Config) validate() error {
	if c.TickSpacing <= 0 {
		return fmt.Errorf("tick spacing must be positive, got %d", c.TickSpacing)
	}
	if c.SlippageBps >= bpsDenominator {
		return fmt.Errorf("slippage bps %d out of range", c.SlippageBps)
	}
	if c.Token0 == c.Token1 {
		return fmt.Errorf("token0 and token1 must differ")
	}
	return nil
}

// Ledger owns the position state machine. It is not safe for concurrent use;
// the vault serializes access behind its exclusion gate.
type Ledger struct {
	cfg       Config
	positions venue.PositionVenue
	gauge     venue.StakingVenue
	pool      venue.Pool
	logger    *zap.Logger

	current *Position
}

// NewLedger builds a Ledger with no active position.
func NewLedger(cfg Config, positions venue.PositionVenue, gauge venue.StakingVenue, pool venue.Pool, logger *zap.Logger) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	if positions == nil || gauge == nil || pool == nil {
		return nil, fmt.Errorf("ledger requires position, staking and pool venues")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		cfg:       cfg,
		positions: positions,
		gauge:     gauge,
		pool:      pool,
		logger:    logger,
	}, nil
}

// Current returns a copy of the active position, or nil if none exists.
func (l *Ledger) Current() *Position {
	return l.current.clone()
}

// Attach adopts an existing venue position, used to resume management after a
// process restart. The position must be on the ledger's token pair.
func (l *Ledger) Attach(ctx context.Context, id uint64, staked bool) error {
	info, err := l.positions.PositionInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("load position %d: %w", id, err)
	}
	if info.Token0 != l.cfg.Token0 || info.Token1 != l.cfg.Token1 {
		return fmt.Errorf("position %d is on pair %s/%s, not the managed pair", id, info.Token0, info.Token1)
	}
	l.current = &Position{
		ID:        id,
		TickLower: info.TickLower,
		TickUpper: info.TickUpper,
		Liquidity: new(big.Int).Set(info.Liquidity),
		Staked:    staked,
	}
	l.logger.Info("position attached",
		zap.Uint64("position_id", id),
		zap.Int32("tick_lower", info.TickLower),
		zap.Int32("tick_upper", info.TickUpper),
		zap.Bool("staked", staked),
	)
	return nil
}

// Deposit adds amount0/amount1 of liquidity. With no active position it mints
// one over [tickLower, tickUpper] and stakes it; otherwise it increases the
// existing position on its original range, unstaking and restaking around the
// call. A position drained to zero liquidity keeps its id and range, so a
// later deposit lands back on the same range until an explicit rebalance.
func (l *Ledger) Deposit(ctx context.Context, amount0, amount1 *big.Int, tickLower, tickUpper int32, deadline time.Time) error {
	if l.current == nil {
		return l.mint(ctx, amount0, amount1, tickLower, tickUpper, deadline)
	}
	return l.increase(ctx, amount0, amount1, deadline)
}

func (l *Ledger) mint(ctx context.Context, amount0, amount1 *big.Int, tickLower, tickUpper int32, deadline time.Time) error {
	if err := l.validateRange(tickLower, tickUpper); err != nil {
		return err
	}

	min0, min1, err := l.expectedMinimums(ctx, tickLower, tickUpper, amount0, amount1)
	if err != nil {
		return err
	}

	result, err := l.positions.Mint(ctx, venue.MintParams{
		Token0:         l.cfg.Token0,
		Token1:         l.cfg.Token1,
		TickSpacing:    l.cfg.TickSpacing,
		TickLower:      tickLower,
		TickUpper:      tickUpper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     min0,
		Amount1Min:     min1,
		Recipient:      l.cfg.Recipient,
		Deadline:       deadline,
	})
	if err != nil {
		return fmt.Errorf("mint position: %w", err)
	}

	if err := l.gauge.Stake(ctx, result.ID); err != nil {
		return fmt.Errorf("stake position %d: %w", result.ID, err)
	}

	l.current = &Position{
		ID:        result.ID,
		TickLower: tickLower,
		TickUpper: tickUpper,
		Liquidity: new(big.Int).Set(result.Liquidity),
		Staked:    true,
	}

	l.logger.Info("position minted",
		zap.Uint64("position_id", result.ID),
		zap.Int32("tick_lower", tickLower),
		zap.Int32("tick_upper", tickUpper),
		zap.String("liquidity", result.Liquidity.String()),
	)
	return nil
}

func (l *Ledger) increase(ctx context.Context, amount0, amount1 *big.Int, deadline time.Time) error {
	pos := l.current

	min0, min1, err := l.expectedMinimums(ctx, pos.TickLower, pos.TickUpper, amount0, amount1)
	if err != nil {
		return err
	}

	if pos.Staked {
		if err := l.gauge.Unstake(ctx, pos.ID); err != nil {
			return fmt.Errorf("unstake position %d: %w", pos.ID, err)
		}
		pos.Staked = false
	}

	liquidity, added0, added1, err := l.positions.IncreaseLiquidity(ctx, pos.ID, venue.IncreaseParams{
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     min0,
		Amount1Min:     min1,
		Deadline:       deadline,
	})
	if err != nil {
		return fmt.Errorf("increase liquidity on %d: %w", pos.ID, err)
	}

	if err := l.gauge.Stake(ctx, pos.ID); err != nil {
		return fmt.Errorf("restake position %d: %w", pos.ID, err)
	}
	pos.Staked = true
	pos.Liquidity.Add(pos.Liquidity, liquidity)

	l.logger.Info("liquidity increased",
		zap.Uint64("position_id", pos.ID),
		zap.String("liquidity_added", liquidity.String()),
		zap.String("amount0", added0.String()),
		zap.String("amount1", added1.String()),
	)
	return nil
}

// Withdraw removes the given liquidity from the position and returns the
// collected token amounts. Remaining liquidity is restaked; a fully drained
// position keeps its id and tick range.
func (l *Ledger) Withdraw(ctx context.Context, liquidity *big.Int, deadline time.Time) (amount0, amount1 *big.Int, err error) {
	pos := l.current
	if pos == nil {
		return nil, nil, ErrNoPosition
	}
	if liquidity.Cmp(pos.Liquidity) > 0 {
		return nil, nil, ErrExcessLiquidity
	}

	if pos.Staked {
		// Unstaking claims pending rewards on the venue side.
		if err := l.gauge.Unstake(ctx, pos.ID); err != nil {
			return nil, nil, fmt.Errorf("unstake position %d: %w", pos.ID, err)
		}
		pos.Staked = false
	}

	min0, min1, err := l.removalMinimums(ctx, pos, liquidity)
	if err != nil {
		return nil, nil, err
	}

	if _, _, err := l.positions.DecreaseLiquidity(ctx, pos.ID, liquidity, min0, min1, deadline); err != nil {
		return nil, nil, fmt.Errorf("decrease liquidity on %d: %w", pos.ID, err)
	}

	amount0, amount1, err = l.positions.Collect(ctx, pos.ID, l.cfg.Recipient, maxUint128, maxUint128)
	if err != nil {
		return nil, nil, fmt.Errorf("collect from %d: %w", pos.ID, err)
	}

	pos.Liquidity.Sub(pos.Liquidity, liquidity)
	if pos.Liquidity.Sign() > 0 {
		if err := l.gauge.Stake(ctx, pos.ID); err != nil {
			return nil, nil, fmt.Errorf("restake position %d: %w", pos.ID, err)
		}
		pos.Staked = true
	}

	l.logger.Info("liquidity withdrawn",
		zap.Uint64("position_id", pos.ID),
		zap.String("liquidity_removed", liquidity.String()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
		zap.String("liquidity_remaining", pos.Liquidity.String()),
	)
	return amount0, amount1, nil
}

// Drain removes all liquidity and abandons the position so the next deposit
// mints a fresh one. Used by the rebalance path.
func (l *Ledger) Drain(ctx context.Context, deadline time.Time) (amount0, amount1 *big.Int, err error) {
	pos := l.current
	if pos == nil {
		return big.NewInt(0), big.NewInt(0), nil
	}

	amount0, amount1, err = l.Withdraw(ctx, new(big.Int).Set(pos.Liquidity), deadline)
	if err != nil {
		return nil, nil, err
	}

	l.logger.Info("position drained", zap.Uint64("position_id", pos.ID))
	l.current = nil
	return amount0, amount1, nil
}

// Harvest claims pending staking rewards and returns the reward token amount.
func (l *Ledger) Harvest(ctx context.Context) (*big.Int, error) {
	pos := l.current
	if pos == nil || !pos.Staked {
		return big.NewInt(0), nil
	}
	rewards, err := l.gauge.ClaimRewards(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("claim rewards for %d: %w", pos.ID, err)
	}
	return rewards, nil
}

// PendingRewards reports unclaimed rewards without touching the gauge state.
func (l *Ledger) PendingRewards(ctx context.Context) (*big.Int, error) {
	pos := l.current
	if pos == nil || !pos.Staked {
		return big.NewInt(0), nil
	}
	pending, err := l.gauge.PendingRewards(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("pending rewards for %d: %w", pos.ID, err)
	}
	return pending, nil
}

func (l *Ledger) validateRange(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: lower %d >= upper %d", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return fmt.Errorf("%w: [%d, %d] outside global bounds", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if tickLower%l.cfg.TickSpacing != 0 || tickUpper%l.cfg.TickSpacing != 0 {
		return fmt.Errorf("%w: [%d, %d] not aligned to spacing %d", ErrInvalidTickRange, tickLower, tickUpper, l.cfg.TickSpacing)
	}
	return nil
}

// expectedMinimums derives slippage floors for a liquidity add. The floor is a
// fraction of the token consumption the venue is expected to take for the
// implied liquidity, not of the raw inputs: concentrated-liquidity deposits
// legitimately consume unequal ratios depending on tick alignment.
func (l *Ledger) expectedMinimums(ctx context.Context, tickLower, tickUpper int32, amount0, amount1 *big.Int) (*big.Int, *big.Int, error) {
	expected0, expected1, err := l.expectedAmounts(ctx, tickLower, tickUpper, amount0, amount1)
	if err != nil {
		return nil, nil, err
	}
	return l.applySlippage(expected0), l.applySlippage(expected1), nil
}

func (l *Ledger) expectedAmounts(ctx context.Context, tickLower, tickUpper int32, amount0, amount1 *big.Int) (*big.Int, *big.Int, error) {
	state, err := l.pool.CurrentState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read pool state: %w", err)
	}
	sqrtA, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	liquidity, err := tickmath.LiquidityForAmounts(state.SqrtPriceX96, sqrtA, sqrtB, amount0, amount1)
	if err != nil {
		return nil, nil, err
	}
	expected0, expected1, err := tickmath.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, err
	}
	return expected0, expected1, nil
}

func (l *Ledger) removalMinimums(ctx context.Context, pos *Position, liquidity *big.Int) (*big.Int, *big.Int, error) {
	state, err := l.pool.CurrentState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read pool state: %w", err)
	}
	sqrtA, err := tickmath.SqrtRatioAtTick(pos.TickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := tickmath.SqrtRatioAtTick(pos.TickUpper)
	if err != nil {
		return nil, nil, err
	}
	expected0, expected1, err := tickmath.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, err
	}
	return l.applySlippage(expected0), l.applySlippage(expected1), nil
}

func (l *Ledger) applySlippage(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bpsDenominator-int64(l.cfg.SlippageBps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}
