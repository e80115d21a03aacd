package tdcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCSVRoundTripS2 reproduces §8 S2: one i64 dimension, one var-length
// char attribute, forward order and CSV export with precision 6.
func TestCSVRoundTripS2(t *testing.T) {
	s, err := NewArraySchema(
		"s2",
		[]Attribute{{Name: "name", Type: Char, ValNum: VarSize}},
		[]Dimension{{Name: "t", Lo: 0, Hi: 1000}},
		CoordsInt64, RowMajor, TileOrderNone,
		nil, 16, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	c1, err := ParseCSVLine(s, "10,abc", ",", []int{0}, []int{0})
	require.NoError(t, err)
	require.Equal(t, []float64{10}, c1.Coords)

	line, err := c1.CSVLine([]int{0}, []int{0}, ",", 6)
	require.NoError(t, err)
	require.Equal(t, "10,abc", line)

	c2, err := ParseCSVLine(s, "5,zz", ",", []int{0}, []int{0})
	require.NoError(t, err)

	ok, err := c2.Precedes(c1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCSVRoundTripFixedNumeric(t *testing.T) {
	s, err := NewArraySchema(
		"s1",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}, {Name: "y", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	c, err := ParseCSVLine(s, "3,4,7", ",", []int{0, 1}, []int{0})
	require.NoError(t, err)
	line, err := c.CSVLine([]int{0, 1}, []int{0}, ",", 0)
	require.NoError(t, err)
	require.Equal(t, "3,4,7", line)
}

func TestCSVNullAndDelSentinels(t *testing.T) {
	s, err := NewArraySchema(
		"s1",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	cNull, err := ParseCSVLine(s, "3,", ",", []int{0}, []int{0})
	require.NoError(t, err)
	line, err := cNull.CSVLine([]int{0}, []int{0}, ",", 0)
	require.NoError(t, err)
	require.Equal(t, "3,*", line)

	cDel, err := ParseCSVLine(s, "3,$", ",", []int{0}, []int{0})
	require.NoError(t, err)
	line, err = cDel.CSVLine([]int{0}, []int{0}, ",", 0)
	require.NoError(t, err)
	require.Equal(t, "3,$", line)
}

func TestAttrIterTruncatedBuffer(t *testing.T) {
	s, err := NewArraySchema(
		"s1",
		[]Attribute{{Name: "val", Type: Int64, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	c := &Cell{Schema: s, AttrIDs: []int{0}, Coords: []float64{1}, Payload: []byte{1, 2, 3}}
	it := c.AttrBegin()
	_, ok := it.Next()
	require.False(t, ok)
	require.Error(t, it.Err())
	require.True(t, IsKind(it.Err(), ErrCodec))
}
