// Package oracle normalizes external price-feed quotes into 18-decimal
// fixed-point prices and gates them on staleness and confidence. Quotes are
// fetched fresh on every call; nothing is cached or retried here, a rejected
// quote aborts the caller's whole operation.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/venue"
)

const priceDecimals = 18

var (
	ErrStalePrice    = errors.New("price quote is stale")
	ErrLowConfidence = errors.New("price confidence interval too wide")
	ErrInvalidQuote  = errors.New("price quote is invalid")
)

// Adapter fetches and validates prices from a feed provider.
type Adapter struct {
	feed   venue.PriceFeed
	maxAge time.Duration
	logger *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewAdapter builds an Adapter over feed. maxAge is the staleness threshold;
// quotes older than it are rejected.
func NewAdapter(feed venue.PriceFeed, maxAge time.Duration, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		feed:   feed,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Price returns the current 18-decimal price for feedID.
//
// It fails with ErrStalePrice when the quote's age exceeds the staleness
// threshold and with ErrLowConfidence when the stated uncertainty is at least
// 1% of the price magnitude.
func (a *Adapter) Price(ctx context.Context, feedID string) (*big.Int, error) {
	quote, err := a.feed.GetPriceNoOlderThan(ctx, feedID, a.maxAge)
	if err != nil {
		return nil, fmt.Errorf("fetch price %s: %w", feedID, err)
	}

	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: feed %s has non-positive price", ErrInvalidQuote, feedID)
	}

	age := a.now().Sub(quote.PublishTime)
	if age > a.maxAge {
		a.logger.Warn("stale price quote",
			zap.String("feed_id", feedID),
			zap.Duration("age", age),
			zap.Duration("max_age", a.maxAge),
		)
		return nil, fmt.Errorf("%w: feed %s age %s", ErrStalePrice, feedID, age)
	}

	if quote.Conf != nil {
		// Reject when conf >= price/100, i.e. relative uncertainty >= 1%.
		scaled := new(big.Int).Mul(quote.Conf, big.NewInt(100))
		if scaled.Cmp(quote.Price) >= 0 {
			a.logger.Warn("low confidence price quote",
				zap.String("feed_id", feedID),
				zap.String("price", quote.Price.String()),
				zap.String("conf", quote.Conf.String()),
			)
			return nil, fmt.Errorf("%w: feed %s", ErrLowConfidence, feedID)
		}
	}

	return normalize(quote.Price, quote.Expo), nil
}

// normalize scales a raw (price, expo) pair so the result carries exactly 18
// decimals: the true price is price * 10^expo.
func normalize(price *big.Int, expo int32) *big.Int {
	out := new(big.Int).Set(price)
	switch {
	case expo >= 0:
		out.Mul(out, pow10(int64(expo)))
		out.Mul(out, pow10(priceDecimals))
	case expo >= -priceDecimals:
		out.Mul(out, pow10(int64(priceDecimals)+int64(expo)))
	default:
		out.Div(out, pow10(-int64(expo)-priceDecimals))
	}
	return out
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
