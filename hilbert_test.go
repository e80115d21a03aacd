package tdcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAxesToLineUCurve pins down the classical order-1 "U-curve" from §8 S3:
// (0,0),(0,1),(1,1),(1,0) must map to the Hilbert indices 0,1,2,3 in that
// order on a 1-bit-per-axis curve (the domain is [0,1]).
func TestAxesToLineUCurve(t *testing.T) {
	cases := []struct {
		axes []int64
		want int64
	}{
		{[]int64{0, 0}, 0},
		{[]int64{0, 1}, 1},
		{[]int64{1, 1}, 2},
		{[]int64{1, 0}, 3},
	}
	for _, c := range cases {
		got := AxesToLine(c.axes, 1, 2)
		require.Equal(t, c.want, got, "axes=%v", c.axes)
	}
}

// TestAxesToLineDistinctInRange is a weak sanity property: all 256 points
// of a 4-bit-per-axis 2-D curve produce distinct indices in
// [0, 2^(2*bits)).
func TestAxesToLineDistinctInRange(t *testing.T) {
	const bits = 4
	seen := make(map[int64]bool)
	for x := int64(0); x < 1<<bits; x++ {
		for y := int64(0); y < 1<<bits; y++ {
			id := AxesToLine([]int64{x, y}, bits, 2)
			require.False(t, seen[id], "duplicate hilbert id %d for (%d,%d)", id, x, y)
			seen[id] = true
			require.GreaterOrEqual(t, id, int64(0))
			require.Less(t, id, int64(1)<<(2*bits))
		}
	}
	require.Len(t, seen, 1<<(2*bits))
}
