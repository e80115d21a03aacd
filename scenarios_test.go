package tdcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScenarioConsolidationTreeState reproduces the three-single-cell-write
// consolidation scenario: consolidation_step=2, three single-cell writes,
// each producing its own fragment. After the second write the two
// level-0 fragments merge into one level-1 fragment; after the third the
// tree holds exactly one fragment at level 0 and one at level 1.
func TestScenarioConsolidationTreeState(t *testing.T) {
	root := t.TempDir()
	s, err := NewArraySchema(
		"trigger",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}, {Name: "y", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 2,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "trigger", ModeWrite)
	require.NoError(t, err)
	defer Close(ad)

	for i := int32(0); i < 3; i++ {
		require.NoError(t, CellWrite(ad, []int32{i, i}, []int{0}, encodeI32(i)))
		require.NoError(t, Flush(ad))
	}

	info, err := DescribeArray(ad)
	require.NoError(t, err)

	byLevel := map[int]int{}
	for _, lv := range info.Levels {
		byLevel[lv.Level] = lv.Count
	}
	require.Equal(t, 1, byLevel[0])
	require.Equal(t, 1, byLevel[1])
}

// TestScenarioSubarrayQuery reproduces the subarray-restricted scan
// scenario: cells at (10,10),(20,20),(30,30) over a [0,99]x[0,99] domain,
// queried with subarray [15,25]x[0,99], expecting only (20,20) back.
func TestScenarioSubarrayQuery(t *testing.T) {
	root := t.TempDir()
	s, err := NewArraySchema(
		"subq",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}, {Name: "y", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 100,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "subq", ModeWrite)
	require.NoError(t, err)
	for _, c := range [][2]int32{{10, 10}, {20, 20}, {30, 30}} {
		require.NoError(t, CellWrite(ad, []int32{c[0], c[1]}, []int{0}, encodeI32(c[0])))
	}
	require.NoError(t, Flush(ad))
	require.NoError(t, Close(ad))

	rd, err := Open(root, "", "subq", ModeRead)
	require.NoError(t, err)
	defer Close(rd)

	sub := &Range{Lo: []float64{15, 0}, Hi: []float64{25, 99}}
	it, err := BeginSparse(rd, sub)
	require.NoError(t, err)
	defer it.Close()

	var coords [][]float64
	for {
		c, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		coords = append(coords, append([]float64(nil), c.Coords...))
	}
	require.Equal(t, [][]float64{{20, 20}}, coords)
}
