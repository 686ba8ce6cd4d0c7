package tickmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func sqrtAt(t *testing.T, tick int32) *big.Int {
	t.Helper()
	ratio, err := SqrtRatioAtTick(tick)
	require.NoError(t, err)
	return ratio
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// closeTo asserts got is within tolBps basis points of want.
func closeTo(t *testing.T, want, got *big.Int, tolBps int64) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10000))
	bound := new(big.Int).Mul(want, big.NewInt(tolBps))
	require.True(t, diff.Cmp(bound) <= 0, "want %s got %s (tolerance %d bps)", want, got, tolBps)
}

func TestLiquidityForAmountsInsideRange(t *testing.T) {
	sqrtP := sqrtAt(t, 0)
	sqrtA := sqrtAt(t, -1824)
	sqrtB := sqrtAt(t, 1824)

	liq, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, wad(5), wad(5))
	require.NoError(t, err)
	require.Positive(t, liq.Sign())

	amount0, amount1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liq)
	require.NoError(t, err)

	// The range is symmetric around the current price, so both legs are
	// consumed almost equally and neither exceeds its input.
	require.True(t, amount0.Cmp(wad(5)) <= 0)
	require.True(t, amount1.Cmp(wad(5)) <= 0)
	closeTo(t, wad(5), amount0, 10)
	closeTo(t, wad(5), amount1, 10)
}

func TestLiquidityForAmountsBelowRange(t *testing.T) {
	sqrtP := sqrtAt(t, -5000)
	sqrtA := sqrtAt(t, -1824)
	sqrtB := sqrtAt(t, 1824)

	liq, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, wad(5), big.NewInt(0))
	require.NoError(t, err)
	require.Positive(t, liq.Sign())

	amount0, amount1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liq)
	require.NoError(t, err)
	require.Zero(t, amount1.Sign(), "below range the position holds only token0")
	closeTo(t, wad(5), amount0, 10)
}

func TestLiquidityForAmountsAboveRange(t *testing.T) {
	sqrtP := sqrtAt(t, 5000)
	sqrtA := sqrtAt(t, -1824)
	sqrtB := sqrtAt(t, 1824)

	liq, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, big.NewInt(0), wad(5))
	require.NoError(t, err)
	require.Positive(t, liq.Sign())

	amount0, amount1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liq)
	require.NoError(t, err)
	require.Zero(t, amount0.Sign(), "above range the position holds only token1")
	closeTo(t, wad(5), amount1, 10)
}

func TestLiquidityForAmountsBindingConstraint(t *testing.T) {
	sqrtP := sqrtAt(t, 0)
	sqrtA := sqrtAt(t, -1824)
	sqrtB := sqrtAt(t, 1824)

	balanced, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, wad(5), wad(5))
	require.NoError(t, err)

	// Doubling only one side must not increase usable liquidity: the other
	// side is the binding constraint.
	lopsided, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, wad(10), wad(5))
	require.NoError(t, err)
	closeTo(t, balanced, lopsided, 10)
}

func TestAmountsForLiquidityScalesLinearly(t *testing.T) {
	sqrtP := sqrtAt(t, 0)
	sqrtA := sqrtAt(t, -1824)
	sqrtB := sqrtAt(t, 1824)

	liq, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, wad(10), wad(10))
	require.NoError(t, err)

	full0, full1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liq)
	require.NoError(t, err)

	half := new(big.Int).Rsh(liq, 1)
	half0, half1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, half)
	require.NoError(t, err)

	closeTo(t, full0, new(big.Int).Lsh(half0, 1), 1)
	closeTo(t, full1, new(big.Int).Lsh(half1, 1), 1)
}

func TestLiquidityForAmountsEmptyRange(t *testing.T) {
	sqrtP := sqrtAt(t, 0)
	if _, err := LiquidityForAmounts(sqrtP, sqrtP, sqrtP, wad(1), wad(1)); err == nil {
		t.Fatalf("expected error for empty range")
	}
	if _, _, err := AmountsForLiquidity(sqrtP, sqrtP, sqrtP, big.NewInt(1)); err == nil {
		t.Fatalf("expected error for empty range")
	}
}
