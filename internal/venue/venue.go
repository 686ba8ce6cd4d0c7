// Package venue declares the external collaborators the vault drives: the
// swap router, the position manager, the staking gauge, the pool itself, the
// price feed, and the emissions governor. The vault core only ever sees these
// interfaces; live EVM bindings live in venue/evm and in-memory simulations in
// venue/venuetest.
package venue

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Route identifies a single-hop swap path on the router.
type Route struct {
	TokenIn     common.Address
	TokenOut    common.Address
	TickSpacing int32
}

// SwapVenue executes token exchanges given a route and a slippage bound.
type SwapVenue interface {
	// Quote returns the expected output for amountIn without executing.
	Quote(ctx context.Context, route Route, amountIn *big.Int) (*big.Int, error)

	// Swap exchanges amountIn along route, failing if the output would be
	// below minAmountOut or the deadline has passed.
	Swap(ctx context.Context, route Route, amountIn, minAmountOut *big.Int, recipient common.Address, deadline time.Time) (*big.Int, error)
}

// MintParams parameterizes creation of a new liquidity position.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	TickSpacing    int32
	TickLower      int32
	TickUpper      int32
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       time.Time
}

// MintResult reports the position created by Mint.
type MintResult struct {
	ID        uint64
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// IncreaseParams parameterizes adding liquidity to an existing position. The
// tick range is fixed at mint time and cannot change here.
type IncreaseParams struct {
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       time.Time
}

// PositionInfo is the on-venue view of a position.
type PositionInfo struct {
	Token0    common.Address
	Token1    common.Address
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// PositionVenue custodies concentrated-liquidity positions.
type PositionVenue interface {
	Mint(ctx context.Context, params MintParams) (MintResult, error)
	IncreaseLiquidity(ctx context.Context, id uint64, params IncreaseParams) (liquidity, amount0, amount1 *big.Int, err error)
	DecreaseLiquidity(ctx context.Context, id uint64, liquidity, amount0Min, amount1Min *big.Int, deadline time.Time) (amount0, amount1 *big.Int, err error)
	Collect(ctx context.Context, id uint64, recipient common.Address, amount0Max, amount1Max *big.Int) (amount0, amount1 *big.Int, err error)
	PositionInfo(ctx context.Context, id uint64) (PositionInfo, error)
}

// StakingVenue custodies staked positions and emits reward tokens.
type StakingVenue interface {
	Stake(ctx context.Context, id uint64) error

	// Unstake withdraws the position and claims pending rewards as a side
	// effect of the venue's withdraw path.
	Unstake(ctx context.Context, id uint64) error

	// ClaimRewards claims pending rewards for a staked position and returns
	// the reward token amount received.
	ClaimRewards(ctx context.Context, id uint64) (*big.Int, error)

	// PendingRewards reports accrued but unclaimed rewards without claiming.
	PendingRewards(ctx context.Context, id uint64) (*big.Int, error)
}

// PoolState is the pool's instantaneous price. It is safe to use for
// composition math only; valuation must come from the oracle.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// Pool exposes the live price state of the managed pool.
type Pool interface {
	CurrentState(ctx context.Context) (PoolState, error)
}

// PriceQuote is one raw reading from the price feed provider.
type PriceQuote struct {
	Price       *big.Int
	Conf        *big.Int
	Expo        int32
	PublishTime time.Time
}

// PriceFeed provides per-asset price quotes keyed by feed ID.
type PriceFeed interface {
	GetPriceNoOlderThan(ctx context.Context, feedID string, maxAge time.Duration) (PriceQuote, error)
}

// Governor is the emissions-voting and reward-locking flow. The vault only
// forwards admin calls across this boundary; the governance mechanics live on
// the venue side.
type Governor interface {
	CastVote(ctx context.Context, pools []common.Address, weights []*big.Int) error
	CreateLock(ctx context.Context, amount *big.Int, duration time.Duration) (uint64, error)
}
