package tickmath

import (
	"errors"
	"math/big"
)

// Q96 is the fixed-point scale of sqrt prices (2^96).
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

var ErrInvalidSqrtRange = errors.New("sqrt price range is empty")

// mulDiv returns floor(a * b / denom). The product is carried at full
// precision, so 160-bit operands cannot overflow before the division.
func mulDiv(a, b, denom *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, denom)
}

func sortSqrtRange(sqrtA, sqrtB *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		return sqrtB, sqrtA
	}
	return sqrtA, sqrtB
}

// liquidityForAmount0 computes liquidity from amount0 over [sqrtA, sqrtB]:
// L = amount0 * (sqrtA * sqrtB / Q96) / (sqrtB - sqrtA)
func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	intermediate := mulDiv(sqrtA, sqrtB, Q96)
	return mulDiv(amount0, intermediate, new(big.Int).Sub(sqrtB, sqrtA))
}

// liquidityForAmount1 computes liquidity from amount1 over [sqrtA, sqrtB]:
// L = amount1 * Q96 / (sqrtB - sqrtA)
func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	return mulDiv(amount1, Q96, new(big.Int).Sub(sqrtB, sqrtA))
}

// LiquidityForAmounts returns the maximum liquidity the given token amounts
// can provide over [sqrtA, sqrtB] at the current sqrt price sqrtP.
//
// Below the range only token0 contributes, above the range only token1; inside
// the range the binding constraint is whichever single-sided computation is
// smaller. Ported from Uniswap V3 LiquidityAmounts.sol.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = sortSqrtRange(sqrtA, sqrtB)
	if sqrtA.Cmp(sqrtB) == 0 || sqrtA.Sign() <= 0 {
		return nil, ErrInvalidSqrtRange
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0), nil
	case sqrtP.Cmp(sqrtB) < 0:
		liq0 := liquidityForAmount0(sqrtP, sqrtB, amount0)
		liq1 := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if liq0.Cmp(liq1) < 0 {
			return liq0, nil
		}
		return liq1, nil
	default:
		return liquidityForAmount1(sqrtA, sqrtB, amount1), nil
	}
}

// amount0ForLiquidity computes the token0 amount covered by liquidity over
// [sqrtA, sqrtB]: amount0 = L << 96 * (sqrtB - sqrtA) / sqrtB / sqrtA
func amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	numerator := new(big.Int).Lsh(liquidity, 96)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	return new(big.Int).Div(mulDiv(numerator, diff, sqrtB), sqrtA)
}

// amount1ForLiquidity computes the token1 amount covered by liquidity over
// [sqrtA, sqrtB]: amount1 = L * (sqrtB - sqrtA) / Q96
func amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	return mulDiv(liquidity, new(big.Int).Sub(sqrtB, sqrtA), Q96)
}

// AmountsForLiquidity returns the token amounts represented by liquidity over
// [sqrtA, sqrtB] at the current sqrt price sqrtP.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (amount0, amount1 *big.Int, err error) {
	sqrtA, sqrtB = sortSqrtRange(sqrtA, sqrtB)
	if sqrtA.Cmp(sqrtB) == 0 || sqrtA.Sign() <= 0 {
		return nil, nil, ErrInvalidSqrtRange
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return amount0ForLiquidity(sqrtA, sqrtB, liquidity), big.NewInt(0), nil
	case sqrtP.Cmp(sqrtB) < 0:
		amount0 = amount0ForLiquidity(sqrtP, sqrtB, liquidity)
		amount1 = amount1ForLiquidity(sqrtA, sqrtP, liquidity)
		return amount0, amount1, nil
	default:
		return big.NewInt(0), amount1ForLiquidity(sqrtA, sqrtB, liquidity), nil
	}
}
