package tickmath

import (
	"errors"
	"math/big"
)

// Tick bounds from Uniswap V3 TickMath.sol.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is the sqrt price at MinTick.
	MinSqrtRatio = big.NewInt(4295128739)

	// MaxSqrtRatio is the sqrt price at MaxTick.
	MaxSqrtRatio = mustParseBig("1461446703485210103287273052203988822378723970342")

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtRatioOutOfBounds = errors.New("sqrt ratio out of bounds")
	ErrInvalidTickSpacing   = errors.New("tick spacing must be positive")

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	one32 = new(big.Int).Lsh(big.NewInt(1), 32)

	// Ladder of sqrt(1.0001^-(2^i)) * 2^128 for i = 0..19, hex encoded.
	tickRatios = [20]*big.Int{
		mustParseBig("0xfffcb933bd6fad37aa2d162d1a594001"),
		mustParseBig("0xfff97272373d413259a46990580e213a"),
		mustParseBig("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		mustParseBig("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		mustParseBig("0xffcb9843d60f6159c9db58835c926644"),
		mustParseBig("0xff973b41fa98c081472e6896dfb254c0"),
		mustParseBig("0xff2ea16466c96a3843ec78b326b52861"),
		mustParseBig("0xfe5dee046a99a2a811c461f1969c3053"),
		mustParseBig("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		mustParseBig("0xf987a7253ac413176f2b074cf7815e54"),
		mustParseBig("0xf3392b0822b70005940c7a398e4b70f3"),
		mustParseBig("0xe7159475a2c29b7443b29c7fa6e889d9"),
		mustParseBig("0xd097f3bdfd2022b8845ad8f792aa5825"),
		mustParseBig("0xa9f746462d870fdf8a65dc1f90e061e5"),
		mustParseBig("0x70d869a156d2a1b890bb3df62baf32f7"),
		mustParseBig("0x31be135f97d08fd981231505542fcfa6"),
		mustParseBig("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		mustParseBig("0x5d6af8dedb81196699c329225ee604"),
		mustParseBig("0x2216e584f5fa1ea926041bedfe98"),
		mustParseBig("0x48a170391f7dc42444e8fa2"),
	}
)

func mustParseBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		panic("tickmath: invalid big int literal " + s)
	}
	return n
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 as a Q64.96 value.
// Ported from Uniswap V3 TickMath.sol.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfBounds
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	// The ladder multiplies down from 1.0 in Q128, yielding the ratio for
	// -absTick; positive ticks take the reciprocal below.
	var ratio *big.Int
	if absTick&1 != 0 {
		ratio = new(big.Int).Set(tickRatios[0])
	} else {
		ratio = new(big.Int).Lsh(big.NewInt(1), 128)
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio = new(big.Int).Div(maxUint256, ratio)
	}

	// Q128 -> Q96, rounding up so the result round-trips through
	// TickAtSqrtRatio.
	rem := new(big.Int).Mod(ratio, one32)
	ratio.Rsh(ratio, 32)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}

	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is at most
// sqrtPriceX96. The input must lie in [MinSqrtRatio, MaxSqrtRatio).
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtRatioOutOfBounds
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		// Bias the midpoint up so the loop converges onto the greatest
		// tick not exceeding the target.
		mid := int32((int64(lo) + int64(hi) + 1) / 2)
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	return lo, nil
}

// NearestUsableTick rounds tick to the nearest multiple of spacing and clamps
// the result into the usable tick range.
func NearestUsableTick(tick, spacing int32) (int32, error) {
	if spacing <= 0 {
		return 0, ErrInvalidTickSpacing
	}

	quot := tick / spacing
	rem := tick % spacing
	if rem*2 >= spacing {
		quot++
	} else if rem*2 < -spacing {
		quot--
	}
	rounded := quot * spacing

	minUsable := (MinTick / spacing) * spacing
	if minUsable < MinTick {
		minUsable += spacing
	}
	maxUsable := (MaxTick / spacing) * spacing
	if maxUsable > MaxTick {
		maxUsable -= spacing
	}

	if rounded < minUsable {
		rounded = minUsable
	}
	if rounded > maxUsable {
		rounded = maxUsable
	}
	return rounded, nil
}
