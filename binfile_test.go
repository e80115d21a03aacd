package tdcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellWriterReaderRoundTripFixed(t *testing.T) {
	s, err := NewArraySchema(
		"s1",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}, {Name: "y", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewCellWriter(&buf, s, []int{0})

	c1, err := ParseCSVLine(s, "3,4,7", ",", []int{0, 1}, []int{0})
	require.NoError(t, err)
	c2, err := ParseCSVLine(s, "1,2,5", ",", []int{0, 1}, []int{0})
	require.NoError(t, err)
	require.NoError(t, w.WriteCell(c1))
	require.NoError(t, w.WriteCell(c2))

	r := NewCellReader(&buf, s, []int{0})
	var out Cell
	ok, err := r.Next(&out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{3, 4}, out.Coords)

	ok, err = r.Next(&out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2}, out.Coords)

	ok, err = r.Next(&out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCellWriterReaderRoundTripVar(t *testing.T) {
	s, err := NewArraySchema(
		"s2",
		[]Attribute{{Name: "name", Type: Char, ValNum: VarSize}},
		[]Dimension{{Name: "t", Lo: 0, Hi: 1000}},
		CoordsInt64, RowMajor, TileOrderNone,
		nil, 16, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewCellWriter(&buf, s, []int{0})
	c1, err := ParseCSVLine(s, "10,abc", ",", []int{0}, []int{0})
	require.NoError(t, err)
	require.NoError(t, w.WriteCell(c1))

	r := NewCellReader(&buf, s, []int{0})
	var out Cell
	ok, err := r.Next(&out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{10}, out.Coords)

	line, err := out.CSVLine([]int{0}, []int{0}, ",", 0)
	require.NoError(t, err)
	require.Equal(t, "10,abc", line)
}
