// Package venuetest provides in-memory venue implementations backed by the
// real concentrated-liquidity math, so vault-level tests exercise the same
// amount/liquidity conversions a live pool would.
package venuetest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jarrodwatts/aborean-vault/internal/tickmath"
	"github.com/jarrodwatts/aborean-vault/internal/venue"
)

var (
	ErrSlippageExceeded = errors.New("venuetest: output below minimum")
	ErrDeadlinePassed   = errors.New("venuetest: deadline passed")
	ErrUnknownPosition  = errors.New("venuetest: unknown position")
	ErrUnknownToken     = errors.New("venuetest: no price for token")
)

// SimPool is a pool with a settable price state.
type SimPool struct {
	state venue.PoolState
}

// NewSimPool creates a pool at the given tick, deriving the sqrt price from
// the tick so state stays self-consistent.
func NewSimPool(tick int32) (*SimPool, error) {
	pool := &SimPool{}
	if err := pool.SetTick(tick); err != nil {
		return nil, err
	}
	return pool, nil
}

func (p *SimPool) CurrentState(context.Context) (venue.PoolState, error) {
	return venue.PoolState{
		SqrtPriceX96: new(big.Int).Set(p.state.SqrtPriceX96),
		Tick:         p.state.Tick,
	}, nil
}

// SetTick moves the pool to tick.
func (p *SimPool) SetTick(tick int32) error {
	sqrt, err := tickmath.SqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	p.state = venue.PoolState{SqrtPriceX96: sqrt, Tick: tick}
	return nil
}

// SimSwapVenue prices swaps off a fixed USD price table with a flat fee.
type SimSwapVenue struct {
	prices map[common.Address]*big.Int // 18-decimal USD per whole token
	feeBps int64
	now    func() time.Time

	// SwapCount tracks executed swaps for assertions.
	SwapCount int
}

func NewSimSwapVenue(feeBps int64) *SimSwapVenue {
	return &SimSwapVenue{
		prices: make(map[common.Address]*big.Int),
		feeBps: feeBps,
		now:    time.Now,
	}
}

// SetPrice fixes the venue's USD price for token (18 decimals).
func (s *SimSwapVenue) SetPrice(token common.Address, price *big.Int) {
	s.prices[token] = new(big.Int).Set(price)
}

func (s *SimSwapVenue) Quote(_ context.Context, route venue.Route, amountIn *big.Int) (*big.Int, error) {
	priceIn, ok := s.prices[route.TokenIn]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, route.TokenIn)
	}
	priceOut, ok := s.prices[route.TokenOut]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, route.TokenOut)
	}

	out := new(big.Int).Mul(amountIn, priceIn)
	out.Div(out, priceOut)
	out.Mul(out, big.NewInt(10_000-s.feeBps))
	out.Div(out, big.NewInt(10_000))
	return out, nil
}

func (s *SimSwapVenue) Swap(ctx context.Context, route venue.Route, amountIn, minAmountOut *big.Int, _ common.Address, deadline time.Time) (*big.Int, error) {
	if s.now().After(deadline) {
		return nil, ErrDeadlinePassed
	}
	out, err := s.Quote(ctx, route, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: got %s want >= %s", ErrSlippageExceeded, out, minAmountOut)
	}
	s.SwapCount++
	return out, nil
}

type simPosition struct {
	info  venue.PositionInfo
	owed0 *big.Int
	owed1 *big.Int
}

// SimPositionVenue mints and mutates positions using the real liquidity math
// against the attached pool's current price.
type SimPositionVenue struct {
	pool      *SimPool
	nextID    uint64
	positions map[uint64]*simPosition
	now       func() time.Time
}

func NewSimPositionVenue(pool *SimPool) *SimPositionVenue {
	return &SimPositionVenue{
		pool:      pool,
		nextID:    1,
		positions: make(map[uint64]*simPosition),
		now:       time.Now,
	}
}

func (v *SimPositionVenue) consume(tickLower, tickUpper int32, desired0, desired1 *big.Int) (liquidity, used0, used1 *big.Int, err error) {
	state, err := v.pool.CurrentState(context.Background())
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtA, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtB, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, nil, err
	}
	liquidity, err = tickmath.LiquidityForAmounts(state.SqrtPriceX96, sqrtA, sqrtB, desired0, desired1)
	if err != nil {
		return nil, nil, nil, err
	}
	used0, used1, err = tickmath.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, nil, err
	}
	return liquidity, used0, used1, nil
}

func (v *SimPositionVenue) Mint(_ context.Context, params venue.MintParams) (venue.MintResult, error) {
	if v.now().After(params.Deadline) {
		return venue.MintResult{}, ErrDeadlinePassed
	}

	liquidity, used0, used1, err := v.consume(params.TickLower, params.TickUpper, params.Amount0Desired, params.Amount1Desired)
	if err != nil {
		return venue.MintResult{}, err
	}
	if used0.Cmp(params.Amount0Min) < 0 || used1.Cmp(params.Amount1Min) < 0 {
		return venue.MintResult{}, ErrSlippageExceeded
	}

	id := v.nextID
	v.nextID++
	v.positions[id] = &simPosition{
		info: venue.PositionInfo{
			Token0:    params.Token0,
			Token1:    params.Token1,
			TickLower: params.TickLower,
			TickUpper: params.TickUpper,
			Liquidity: new(big.Int).Set(liquidity),
		},
		owed0: big.NewInt(0),
		owed1: big.NewInt(0),
	}

	return venue.MintResult{ID: id, Liquidity: liquidity, Amount0: used0, Amount1: used1}, nil
}

func (v *SimPositionVenue) IncreaseLiquidity(_ context.Context, id uint64, params venue.IncreaseParams) (*big.Int, *big.Int, *big.Int, error) {
	pos, ok := v.positions[id]
	if !ok {
		return nil, nil, nil, ErrUnknownPosition
	}
	if v.now().After(params.Deadline) {
		return nil, nil, nil, ErrDeadlinePassed
	}

	liquidity, used0, used1, err := v.consume(pos.info.TickLower, pos.info.TickUpper, params.Amount0Desired, params.Amount1Desired)
	if err != nil {
		return nil, nil, nil, err
	}
	if used0.Cmp(params.Amount0Min) < 0 || used1.Cmp(params.Amount1Min) < 0 {
		return nil, nil, nil, ErrSlippageExceeded
	}

	pos.info.Liquidity.Add(pos.info.Liquidity, liquidity)
	return liquidity, used0, used1, nil
}

func (v *SimPositionVenue) DecreaseLiquidity(_ context.Context, id uint64, liquidity, amount0Min, amount1Min *big.Int, deadline time.Time) (*big.Int, *big.Int, error) {
	pos, ok := v.positions[id]
	if !ok {
		return nil, nil, ErrUnknownPosition
	}
	if v.now().After(deadline) {
		return nil, nil, ErrDeadlinePassed
	}
	if liquidity.Cmp(pos.info.Liquidity) > 0 {
		return nil, nil, fmt.Errorf("venuetest: decrease exceeds position liquidity")
	}

	state, err := v.pool.CurrentState(context.Background())
	if err != nil {
		return nil, nil, err
	}
	sqrtA, err := tickmath.SqrtRatioAtTick(pos.info.TickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := tickmath.SqrtRatioAtTick(pos.info.TickUpper)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := tickmath.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, err
	}
	if amount0.Cmp(amount0Min) < 0 || amount1.Cmp(amount1Min) < 0 {
		return nil, nil, ErrSlippageExceeded
	}

	pos.info.Liquidity.Sub(pos.info.Liquidity, liquidity)
	pos.owed0.Add(pos.owed0, amount0)
	pos.owed1.Add(pos.owed1, amount1)
	return amount0, amount1, nil
}

func (v *SimPositionVenue) Collect(_ context.Context, id uint64, _ common.Address, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, error) {
	pos, ok := v.positions[id]
	if !ok {
		return nil, nil, ErrUnknownPosition
	}

	take0 := new(big.Int).Set(pos.owed0)
	if take0.Cmp(amount0Max) > 0 {
		take0.Set(amount0Max)
	}
	take1 := new(big.Int).Set(pos.owed1)
	if take1.Cmp(amount1Max) > 0 {
		take1.Set(amount1Max)
	}

	pos.owed0.Sub(pos.owed0, take0)
	pos.owed1.Sub(pos.owed1, take1)
	return take0, take1, nil
}

func (v *SimPositionVenue) PositionInfo(_ context.Context, id uint64) (venue.PositionInfo, error) {
	pos, ok := v.positions[id]
	if !ok {
		return venue.PositionInfo{}, ErrUnknownPosition
	}
	info := pos.info
	info.Liquidity = new(big.Int).Set(pos.info.Liquidity)
	return info, nil
}

// SimStakingVenue tracks staked ids and accrued rewards.
type SimStakingVenue struct {
	staked  map[uint64]bool
	rewards map[uint64]*big.Int

	// Claimed accumulates all rewards paid out, for assertions.
	Claimed *big.Int
}

func NewSimStakingVenue() *SimStakingVenue {
	return &SimStakingVenue{
		staked:  make(map[uint64]bool),
		rewards: make(map[uint64]*big.Int),
		Claimed: big.NewInt(0),
	}
}

// AccrueReward credits pending rewards to a position.
func (s *SimStakingVenue) AccrueReward(id uint64, amount *big.Int) {
	if s.rewards[id] == nil {
		s.rewards[id] = big.NewInt(0)
	}
	s.rewards[id].Add(s.rewards[id], amount)
}

// IsStaked reports whether id is currently staked.
func (s *SimStakingVenue) IsStaked(id uint64) bool {
	return s.staked[id]
}

func (s *SimStakingVenue) Stake(_ context.Context, id uint64) error {
	s.staked[id] = true
	return nil
}

func (s *SimStakingVenue) Unstake(_ context.Context, id uint64) error {
	if !s.staked[id] {
		return fmt.Errorf("venuetest: position %d not staked", id)
	}
	delete(s.staked, id)
	s.payRewards(id)
	return nil
}

func (s *SimStakingVenue) ClaimRewards(_ context.Context, id uint64) (*big.Int, error) {
	if !s.staked[id] {
		return nil, fmt.Errorf("venuetest: position %d not staked", id)
	}
	return s.payRewards(id), nil
}

func (s *SimStakingVenue) PendingRewards(_ context.Context, id uint64) (*big.Int, error) {
	pending := s.rewards[id]
	if pending == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(pending), nil
}

func (s *SimStakingVenue) payRewards(id uint64) *big.Int {
	pending := s.rewards[id]
	if pending == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(pending)
	s.Claimed.Add(s.Claimed, out)
	pending.SetInt64(0)
	return out
}

// StaticFeed serves fixed price quotes per feed id.
type StaticFeed struct {
	quotes map[string]venue.PriceQuote
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{quotes: make(map[string]venue.PriceQuote)}
}

// SetQuote fixes the quote returned for feedID.
func (f *StaticFeed) SetQuote(feedID string, quote venue.PriceQuote) {
	f.quotes[feedID] = quote
}

func (f *StaticFeed) GetPriceNoOlderThan(_ context.Context, feedID string, _ time.Duration) (venue.PriceQuote, error) {
	quote, ok := f.quotes[feedID]
	if !ok {
		return venue.PriceQuote{}, fmt.Errorf("venuetest: no quote for feed %s", feedID)
	}
	return quote, nil
}

// SimGovernor records emissions votes and reward locks.
type SimGovernor struct {
	Votes  int
	Locks  int
	Locked *big.Int
}

func NewSimGovernor() *SimGovernor {
	return &SimGovernor{Locked: big.NewInt(0)}
}

func (g *SimGovernor) CastVote(_ context.Context, pools []common.Address, weights []*big.Int) error {
	if len(pools) != len(weights) {
		return fmt.Errorf("venuetest: pools and weights length mismatch")
	}
	g.Votes++
	return nil
}

func (g *SimGovernor) CreateLock(_ context.Context, amount *big.Int, _ time.Duration) (uint64, error) {
	g.Locks++
	g.Locked.Add(g.Locked, amount)
	return uint64(g.Locks), nil
}
