// Package valuation computes the vault's total value in base-asset units.
//
// The pool's live price is used only to derive the position's current token
// composition; the value of each leg always comes from the oracle. Reading
// value from the pool itself would let a flash loan move the instantaneous
// price and with it the share price, so that path does not exist here.
package valuation

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/oracle"
	"github.com/jarrodwatts/aborean-vault/internal/position"
	"github.com/jarrodwatts/aborean-vault/internal/tickmath"
	"github.com/jarrodwatts/aborean-vault/internal/venue"
)

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PositionSource yields the position to value. *position.Ledger satisfies it.
type PositionSource interface {
	Current() *position.Position
}

// Config names the price feeds of the pool pair and which side is the vault's
// base asset.
type Config struct {
	Token0Feed   string
	Token1Feed   string
	BaseIsToken0 bool
}

// Engine values the active position against the oracle.
type Engine struct {
	cfg    Config
	pool   venue.Pool
	prices *oracle.Adapter
	source PositionSource
	logger *zap.Logger
}

func NewEngine(cfg Config, pool venue.Pool, prices *oracle.Adapter, source PositionSource, logger *zap.Logger) (*Engine, error) {
	if cfg.Token0Feed == "" || cfg.Token1Feed == "" {
		return nil, fmt.Errorf("valuation config requires both feed ids")
	}
	if pool == nil || prices == nil || source == nil {
		return nil, fmt.Errorf("valuation engine requires pool, oracle and position source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, pool: pool, prices: prices, source: source, logger: logger}, nil
}

// TotalValue returns the position's value denominated in the base asset.
// With no active position it returns zero. Any oracle rejection (stale quote,
// wide confidence) fails the whole valuation; there is no fallback source.
func (e *Engine) TotalValue(ctx context.Context) (*big.Int, error) {
	pos := e.source.Current()
	if pos == nil || pos.Liquidity.Sign() == 0 {
		return big.NewInt(0), nil
	}

	amount0, amount1, err := e.composition(ctx, pos)
	if err != nil {
		return nil, err
	}

	price0, err := e.prices.Price(ctx, e.cfg.Token0Feed)
	if err != nil {
		return nil, fmt.Errorf("value token0: %w", err)
	}
	price1, err := e.prices.Price(ctx, e.cfg.Token1Feed)
	if err != nil {
		return nil, fmt.Errorf("value token1: %w", err)
	}

	usd0 := new(big.Int).Mul(amount0, price0)
	usd0.Div(usd0, wad)
	usd1 := new(big.Int).Mul(amount1, price1)
	usd1.Div(usd1, wad)

	totalUSD := new(big.Int).Add(usd0, usd1)

	basePrice := price0
	if !e.cfg.BaseIsToken0 {
		basePrice = price1
	}

	total := new(big.Int).Mul(totalUSD, wad)
	total.Div(total, basePrice)

	e.logger.Debug("valuation",
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
		zap.String("total_usd", totalUSD.String()),
		zap.String("total_base", total.String()),
	)
	return total, nil
}

// composition derives the position's current token split from the live pool
// price. This is the only place the pool price is consumed.
func (e *Engine) composition(ctx context.Context, pos *position.Position) (*big.Int, *big.Int, error) {
	state, err := e.pool.CurrentState(ctx)
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
	amount0, amount1, err := tickmath.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, pos.Liquidity)
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
