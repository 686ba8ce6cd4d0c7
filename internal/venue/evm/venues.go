// Package evm binds the venue interfaces to live contracts over an
// eth_call/transaction client pair. Read paths go through eth_call; mutating
// paths are packed here and submitted through a Transactor owned by the
// deployment (it carries the signing key, this package does not).
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jarrodwatts/aborean-vault/internal/venue"
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Transactor submits signed state-changing calls and returns the call's
// return data once the transaction is final.
type Transactor interface {
	Send(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Pool reads price state from a concentrated-liquidity pool contract.
type Pool struct {
	client  Caller
	address common.Address
}

func NewPool(client Caller, address common.Address) *Pool {
	return &Pool{client: client, address: address}
}

func (p *Pool) CurrentState(ctx context.Context) (venue.PoolState, error) {
	poolABI, err := loadABI("pool")
	if err != nil {
		return venue.PoolState{}, err
	}

	data, err := poolABI.Pack("slot0")
	if err != nil {
		return venue.PoolState{}, fmt.Errorf("pack slot0: %w", err)
	}
	resp, err := p.client.Call(ctx, p.address, data)
	if err != nil {
		return venue.PoolState{}, fmt.Errorf("call slot0: %w", err)
	}
	values, err := poolABI.Unpack("slot0", resp)
	if err != nil {
		return venue.PoolState{}, fmt.Errorf("unpack slot0: %w", err)
	}
	if len(values) < 2 {
		return venue.PoolState{}, fmt.Errorf("slot0 return size %d", len(values))
	}

	sqrtPrice, ok := values[0].(*big.Int)
	if !ok {
		return venue.PoolState{}, fmt.Errorf("slot0 sqrt price type %T", values[0])
	}
	tick, ok := values[1].(*big.Int)
	if !ok {
		return venue.PoolState{}, fmt.Errorf("slot0 tick type %T", values[1])
	}

	return venue.PoolState{
		SqrtPriceX96: sqrtPrice,
		Tick:         int32(tick.Int64()),
	}, nil
}

// Router implements SwapVenue over a quoter/router contract pair.
type Router struct {
	client Caller
	tx     Transactor
	quoter common.Address
	router common.Address
}

func NewRouter(client Caller, tx Transactor, quoter, router common.Address) *Router {
	return &Router{client: client, tx: tx, quoter: quoter, router: router}
}

type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	TickSpacing       *big.Int
	SqrtPriceLimitX96 *big.Int
}

func (r *Router) Quote(ctx context.Context, route venue.Route, amountIn *big.Int) (*big.Int, error) {
	quoterABI, err := loadABI("quoter")
	if err != nil {
		return nil, err
	}

	data, err := quoterABI.Pack("quoteExactInputSingle", quoteParams{
		TokenIn:           route.TokenIn,
		TokenOut:          route.TokenOut,
		AmountIn:          amountIn,
		TickSpacing:       big.NewInt(int64(route.TickSpacing)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("pack quote: %w", err)
	}
	resp, err := r.client.Call(ctx, r.quoter, data)
	if err != nil {
		return nil, fmt.Errorf("call quoter: %w", err)
	}
	values, err := quoterABI.Unpack("quoteExactInputSingle", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack quote: %w", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("quote amountOut type %T", values[0])
	}
	return amountOut, nil
}

type swapParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	TickSpacing       *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

func (r *Router) Swap(ctx context.Context, route venue.Route, amountIn, minAmountOut *big.Int, recipient common.Address, deadline time.Time) (*big.Int, error) {
	routerABI, err := loadABI("router")
	if err != nil {
		return nil, err
	}

	data, err := routerABI.Pack("exactInputSingle", swapParams{
		TokenIn:           route.TokenIn,
		TokenOut:          route.TokenOut,
		TickSpacing:       big.NewInt(int64(route.TickSpacing)),
		Recipient:         recipient,
		Deadline:          big.NewInt(deadline.Unix()),
		AmountIn:          amountIn,
		AmountOutMinimum:  minAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("pack swap: %w", err)
	}
	resp, err := r.tx.Send(ctx, r.router, data)
	if err != nil {
		return nil, fmt.Errorf("send swap: %w", err)
	}
	values, err := routerABI.Unpack("exactInputSingle", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack swap: %w", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("swap amountOut type %T", values[0])
	}
	return amountOut, nil
}

// PositionManager implements PositionVenue over a nonfungible position
// manager contract.
type PositionManager struct {
	client  Caller
	tx      Transactor
	address common.Address
}

func NewPositionManager(client Caller, tx Transactor, address common.Address) *PositionManager {
	return &PositionManager{client: client, tx: tx, address: address}
}

type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	TickSpacing    *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
	SqrtPriceX96   *big.Int
}

func (m *PositionManager) Mint(ctx context.Context, params venue.MintParams) (venue.MintResult, error) {
	nfpmABI, err := loadABI("positions")
	if err != nil {
		return venue.MintResult{}, err
	}

	data, err := nfpmABI.Pack("mint", mintParams{
		Token0:         params.Token0,
		Token1:         params.Token1,
		TickSpacing:    big.NewInt(int64(params.TickSpacing)),
		TickLower:      big.NewInt(int64(params.TickLower)),
		TickUpper:      big.NewInt(int64(params.TickUpper)),
		Amount0Desired: params.Amount0Desired,
		Amount1Desired: params.Amount1Desired,
		Amount0Min:     params.Amount0Min,
		Amount1Min:     params.Amount1Min,
		Recipient:      params.Recipient,
		Deadline:       big.NewInt(params.Deadline.Unix()),
		SqrtPriceX96:   big.NewInt(0),
	})
	if err != nil {
		return venue.MintResult{}, fmt.Errorf("pack mint: %w", err)
	}
	resp, err := m.tx.Send(ctx, m.address, data)
	if err != nil {
		return venue.MintResult{}, fmt.Errorf("send mint: %w", err)
	}
	values, err := nfpmABI.Unpack("mint", resp)
	if err != nil {
		return venue.MintResult{}, fmt.Errorf("unpack mint: %w", err)
	}
	if len(values) != 4 {
		return venue.MintResult{}, fmt.Errorf("mint return size %d", len(values))
	}

	tokenID := values[0].(*big.Int)
	return venue.MintResult{
		ID:        tokenID.Uint64(),
		Liquidity: values[1].(*big.Int),
		Amount0:   values[2].(*big.Int),
		Amount1:   values[3].(*big.Int),
	}, nil
}

type increaseParams struct {
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

func (m *PositionManager) IncreaseLiquidity(ctx context.Context, id uint64, params venue.IncreaseParams) (*big.Int, *big.Int, *big.Int, error) {
	nfpmABI, err := loadABI("positions")
	if err != nil {
		return nil, nil, nil, err
	}

	data, err := nfpmABI.Pack("increaseLiquidity", increaseParams{
		TokenId:        new(big.Int).SetUint64(id),
		Amount0Desired: params.Amount0Desired,
		Amount1Desired: params.Amount1Desired,
		Amount0Min:     params.Amount0Min,
		Amount1Min:     params.Amount1Min,
		Deadline:       big.NewInt(params.Deadline.Unix()),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pack increaseLiquidity: %w", err)
	}
	resp, err := m.tx.Send(ctx, m.address, data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("send increaseLiquidity: %w", err)
	}
	values, err := nfpmABI.Unpack("increaseLiquidity", resp)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unpack increaseLiquidity: %w", err)
	}
	if len(values) != 3 {
		return nil, nil, nil, fmt.Errorf("increaseLiquidity return size %d", len(values))
	}
	return values[0].(*big.Int), values[1].(*big.Int), values[2].(*big.Int), nil
}

type decreaseParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

func (m *PositionManager) DecreaseLiquidity(ctx context.Context, id uint64, liquidity, amount0Min, amount1Min *big.Int, deadline time.Time) (*big.Int, *big.Int, error) {
	nfpmABI, err := loadABI("positions")
	if err != nil {
		return nil, nil, err
	}

	data, err := nfpmABI.Pack("decreaseLiquidity", decreaseParams{
		TokenId:    new(big.Int).SetUint64(id),
		Liquidity:  liquidity,
		Amount0Min: amount0Min,
		Amount1Min: amount1Min,
		Deadline:   big.NewInt(deadline.Unix()),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pack decreaseLiquidity: %w", err)
	}
	resp, err := m.tx.Send(ctx, m.address, data)
	if err != nil {
		return nil, nil, fmt.Errorf("send decreaseLiquidity: %w", err)
	}
	values, err := nfpmABI.Unpack("decreaseLiquidity", resp)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack decreaseLiquidity: %w", err)
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("decreaseLiquidity return size %d", len(values))
	}
	return values[0].(*big.Int), values[1].(*big.Int), nil
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

func (m *PositionManager) Collect(ctx context.Context, id uint64, recipient common.Address, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, error) {
	nfpmABI, err := loadABI("positions")
	if err != nil {
		return nil, nil, err
	}

	data, err := nfpmABI.Pack("collect", collectParams{
		TokenId:    new(big.Int).SetUint64(id),
		Recipient:  recipient,
		Amount0Max: amount0Max,
		Amount1Max: amount1Max,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pack collect: %w", err)
	}
	resp, err := m.tx.Send(ctx, m.address, data)
	if err != nil {
		return nil, nil, fmt.Errorf("send collect: %w", err)
	}
	values, err := nfpmABI.Unpack("collect", resp)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack collect: %w", err)
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("collect return size %d", len(values))
	}
	return values[0].(*big.Int), values[1].(*big.Int), nil
}

func (m *PositionManager) PositionInfo(ctx context.Context, id uint64) (venue.PositionInfo, error) {
	nfpmABI, err := loadABI("positions")
	if err != nil {
		return venue.PositionInfo{}, err
	}

	data, err := nfpmABI.Pack("positions", new(big.Int).SetUint64(id))
	if err != nil {
		return venue.PositionInfo{}, fmt.Errorf("pack positions: %w", err)
	}
	resp, err := m.client.Call(ctx, m.address, data)
	if err != nil {
		return venue.PositionInfo{}, fmt.Errorf("call positions: %w", err)
	}
	values, err := nfpmABI.Unpack("positions", resp)
	if err != nil {
		return venue.PositionInfo{}, fmt.Errorf("unpack positions: %w", err)
	}
	if len(values) != 12 {
		return venue.PositionInfo{}, fmt.Errorf("positions return size %d", len(values))
	}

	return venue.PositionInfo{
		Token0:    values[2].(common.Address),
		Token1:    values[3].(common.Address),
		TickLower: int32(values[5].(*big.Int).Int64()),
		TickUpper: int32(values[6].(*big.Int).Int64()),
		Liquidity: values[7].(*big.Int),
	}, nil
}

// Gauge implements StakingVenue over a CL gauge contract.
type Gauge struct {
	client  Caller
	tx      Transactor
	address common.Address
}

func NewGauge(client Caller, tx Transactor, address common.Address) *Gauge {
	return &Gauge{client: client, tx: tx, address: address}
}

func (g *Gauge) Stake(ctx context.Context, id uint64) error {
	return g.send(ctx, "deposit", id)
}

func (g *Gauge) Unstake(ctx context.Context, id uint64) error {
	// The gauge's withdraw path pays out pending rewards.
	return g.send(ctx, "withdraw", id)
}

func (g *Gauge) ClaimRewards(ctx context.Context, id uint64) (*big.Int, error) {
	// Read pending rewards first; getReward itself returns nothing.
	earned, err := g.PendingRewards(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.send(ctx, "getReward", id); err != nil {
		return nil, err
	}
	return earned, nil
}

func (g *Gauge) PendingRewards(ctx context.Context, id uint64) (*big.Int, error) {
	gaugeABI, err := loadABI("gauge")
	if err != nil {
		return nil, err
	}
	data, err := gaugeABI.Pack("earned", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, fmt.Errorf("pack earned: %w", err)
	}
	resp, err := g.client.Call(ctx, g.address, data)
	if err != nil {
		return nil, fmt.Errorf("call earned: %w", err)
	}
	values, err := gaugeABI.Unpack("earned", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack earned: %w", err)
	}
	earned, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("earned type %T", values[0])
	}
	return earned, nil
}

func (g *Gauge) send(ctx context.Context, method string, id uint64) error {
	gaugeABI, err := loadABI("gauge")
	if err != nil {
		return err
	}
	data, err := gaugeABI.Pack(method, new(big.Int).SetUint64(id))
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	if _, err := g.tx.Send(ctx, g.address, data); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	return nil
}

// PriceFeed implements venue.PriceFeed over an on-chain pull oracle.
type PriceFeed struct {
	client  Caller
	address common.Address
}

func NewPriceFeed(client Caller, address common.Address) *PriceFeed {
	return &PriceFeed{client: client, address: address}
}

type feedPrice struct {
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime *big.Int
}

func (f *PriceFeed) GetPriceNoOlderThan(ctx context.Context, feedID string, maxAge time.Duration) (venue.PriceQuote, error) {
	feedABI, err := loadABI("feed")
	if err != nil {
		return venue.PriceQuote{}, err
	}

	data, err := feedABI.Pack("getPriceNoOlderThan", common.HexToHash(feedID), big.NewInt(int64(maxAge.Seconds())))
	if err != nil {
		return venue.PriceQuote{}, fmt.Errorf("pack getPriceNoOlderThan: %w", err)
	}
	resp, err := f.client.Call(ctx, f.address, data)
	if err != nil {
		return venue.PriceQuote{}, fmt.Errorf("call getPriceNoOlderThan: %w", err)
	}
	values, err := feedABI.Unpack("getPriceNoOlderThan", resp)
	if err != nil {
		return venue.PriceQuote{}, fmt.Errorf("unpack getPriceNoOlderThan: %w", err)
	}
	if len(values) != 1 {
		return venue.PriceQuote{}, fmt.Errorf("getPriceNoOlderThan return size %d", len(values))
	}

	price := *abi.ConvertType(values[0], new(feedPrice)).(*feedPrice)
	return venue.PriceQuote{
		Price:       big.NewInt(price.Price),
		Conf:        new(big.Int).SetUint64(price.Conf),
		Expo:        price.Expo,
		PublishTime: time.Unix(price.PublishTime.Int64(), 0),
	}, nil
}

// Governor implements venue.Governor over the emissions voter and the voting
// escrow contracts.
type Governor struct {
	tx     Transactor
	voter  common.Address
	escrow common.Address
}

func NewGovernor(tx Transactor, voter, escrow common.Address) *Governor {
	return &Governor{tx: tx, voter: voter, escrow: escrow}
}

func (g *Governor) CastVote(ctx context.Context, pools []common.Address, weights []*big.Int) error {
	voterABI, err := loadABI("voter")
	if err != nil {
		return err
	}
	data, err := voterABI.Pack("vote", pools, weights)
	if err != nil {
		return fmt.Errorf("pack vote: %w", err)
	}
	if _, err := g.tx.Send(ctx, g.voter, data); err != nil {
		return fmt.Errorf("send vote: %w", err)
	}
	return nil
}

func (g *Governor) CreateLock(ctx context.Context, amount *big.Int, duration time.Duration) (uint64, error) {
	escrowABI, err := loadABI("escrow")
	if err != nil {
		return 0, err
	}
	data, err := escrowABI.Pack("createLock", amount, big.NewInt(int64(duration.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("pack createLock: %w", err)
	}
	resp, err := g.tx.Send(ctx, g.escrow, data)
	if err != nil {
		return 0, fmt.Errorf("send createLock: %w", err)
	}
	values, err := escrowABI.Unpack("createLock", resp)
	if err != nil {
		return 0, fmt.Errorf("unpack createLock: %w", err)
	}
	tokenID, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("createLock tokenId type %T", values[0])
	}
	return tokenID.Uint64(), nil
}
