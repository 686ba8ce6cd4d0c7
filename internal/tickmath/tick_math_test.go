package tickmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSqrtRatioAtTickKnownValues(t *testing.T) {
	got, err := SqrtRatioAtTick(0)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(Q96), "tick 0 must map to 2^96, got %s", got)

	got, err = SqrtRatioAtTick(MinTick)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(MinSqrtRatio), "min tick ratio mismatch: %s", got)

	got, err = SqrtRatioAtTick(MaxTick)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(MaxSqrtRatio), "max tick ratio mismatch: %s", got)
}

func TestSqrtRatioAtTickBounds(t *testing.T) {
	if _, err := SqrtRatioAtTick(MinTick - 1); err == nil {
		t.Fatalf("expected error below min tick")
	}
	if _, err := SqrtRatioAtTick(MaxTick + 1); err == nil {
		t.Fatalf("expected error above max tick")
	}
}

func TestSqrtRatioAtTickMonotonic(t *testing.T) {
	ticks := []int32{MinTick, -887000, -100000, -1824, -60, -1, 0, 1, 60, 1824, 100000, 887000, MaxTick}
	prev, err := SqrtRatioAtTick(ticks[0])
	require.NoError(t, err)
	for _, tick := range ticks[1:] {
		cur, err := SqrtRatioAtTick(tick)
		require.NoError(t, err)
		require.True(t, cur.Cmp(prev) > 0, "ratio not increasing at tick %d", tick)
		prev = cur
	}
}

func TestTickAtSqrtRatioRoundTrip(t *testing.T) {
	for _, tick := range []int32{MinTick, -123456, -1824, -1, 0, 1, 1824, 123456, 500000} {
		ratio, err := SqrtRatioAtTick(tick)
		require.NoError(t, err)
		got, err := TickAtSqrtRatio(ratio)
		require.NoError(t, err)
		require.Equal(t, tick, got)
	}
}

func TestTickAtSqrtRatioBetweenTicks(t *testing.T) {
	lower, err := SqrtRatioAtTick(100)
	require.NoError(t, err)
	upper, err := SqrtRatioAtTick(101)
	require.NoError(t, err)

	mid := new(big.Int).Add(lower, upper)
	mid.Rsh(mid, 1)

	got, err := TickAtSqrtRatio(mid)
	require.NoError(t, err)
	require.Equal(t, int32(100), got, "ratio between ticks must floor to the lower tick")
}

func TestTickAtSqrtRatioOutOfBounds(t *testing.T) {
	if _, err := TickAtSqrtRatio(big.NewInt(1)); err == nil {
		t.Fatalf("expected error below min sqrt ratio")
	}
	if _, err := TickAtSqrtRatio(MaxSqrtRatio); err == nil {
		t.Fatalf("expected error at max sqrt ratio")
	}
}

func TestNearestUsableTick(t *testing.T) {
	cases := []struct {
		tick    int32
		spacing int32
		want    int32
	}{
		{0, 60, 0},
		{29, 60, 0},
		{30, 60, 60},
		{-29, 60, 0},
		{-31, 60, -60},
		{1824, 60, 1800},
		{-1824, 60, -1800},
		{1824, 1, 1824},
		{MaxTick, 60, 887220},
		{MinTick, 60, -887220},
	}
	for _, tc := range cases {
		got, err := NearestUsableTick(tc.tick, tc.spacing)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "tick=%d spacing=%d", tc.tick, tc.spacing)
	}
}

func TestNearestUsableTickInvariants(t *testing.T) {
	spacings := []int32{1, 10, 60, 200}
	ticks := []int32{MinTick, -887271, -500000, -1824, -1, 0, 1, 1824, 500000, 887271, MaxTick}
	for _, spacing := range spacings {
		for _, tick := range ticks {
			got, err := NearestUsableTick(tick, spacing)
			require.NoError(t, err)
			require.Zero(t, got%spacing, "tick=%d spacing=%d", tick, spacing)
			require.GreaterOrEqual(t, got, MinTick)
			require.LessOrEqual(t, got, MaxTick)
		}
	}
}

func TestNearestUsableTickInvalidSpacing(t *testing.T) {
	if _, err := NearestUsableTick(0, 0); err == nil {
		t.Fatalf("expected error for zero spacing")
	}
}
