package tdcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func s1Schema(t *testing.T) *ArraySchema {
	t.Helper()
	s, err := NewArraySchema(
		"s1",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}, {Name: "y", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	return s
}

func TestSchemaBinaryRoundTrip(t *testing.T) {
	s := s1Schema(t)
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalSchemaBinary(data)
	require.NoError(t, err)
	require.Equal(t, s.ArrayName, got.ArrayName)
	require.Equal(t, s.Attributes, got.Attributes)
	require.Equal(t, s.Dimensions, got.Dimensions)
	require.Equal(t, s.CoordsType, got.CoordsType)
	require.Equal(t, s.CellOrderVal, got.CellOrderVal)
	require.Equal(t, s.TileOrderVal, got.TileOrderVal)
	require.Equal(t, s.Capacity, got.Capacity)
	require.Equal(t, s.ConsolidationStep, got.ConsolidationStep)
}

func TestSchemaCSVRoundTrip(t *testing.T) {
	s := s1Schema(t)
	line := s.CSV()

	got, err := ParseSchemaCSV(line)
	require.NoError(t, err)
	require.Equal(t, s.ArrayName, got.ArrayName)
	require.Equal(t, s.Attributes, got.Attributes)
	require.Equal(t, s.Dimensions, got.Dimensions)
	require.Equal(t, s.CoordsType, got.CoordsType)
	require.Equal(t, s.CellOrderVal, got.CellOrderVal)
	require.Equal(t, got.CSV(), line)
}

func TestSchemaVarAttributeCSVRoundTrip(t *testing.T) {
	s, err := NewArraySchema(
		"s2",
		[]Attribute{{Name: "name", Type: Char, ValNum: VarSize}},
		[]Dimension{{Name: "t", Lo: 0, Hi: 1000}},
		CoordsInt64, RowMajor, TileOrderNone,
		nil, 16, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	got, err := ParseSchemaCSV(s.CSV())
	require.NoError(t, err)
	require.True(t, got.Attributes[0].IsVar())
	require.Equal(t, int32(VarSize), got.CellSize(0))
}

func TestSchemaInvariantViolations(t *testing.T) {
	_, err := NewArraySchema(
		"bad",
		[]Attribute{{Name: "x", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 10}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrSchema))

	_, err = NewArraySchema(
		"bad-hilbert-float",
		[]Attribute{{Name: "v", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 10}},
		CoordsFloat64, Hilbert, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrSchema))
}

func TestCloneSubsetAndCompatibleWith(t *testing.T) {
	s, err := NewArraySchema(
		"multi",
		[]Attribute{
			{Name: "a", Type: Int32, ValNum: 1},
			{Name: "b", Type: Float64, ValNum: 1},
		},
		[]Dimension{{Name: "x", Lo: 0, Hi: 9}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	sub, err := s.CloneSubset("multi-a", []int{0})
	require.NoError(t, err)
	require.Len(t, sub.Attributes, 1)
	require.Equal(t, "a", sub.Attributes[0].Name)

	ok, reason := s.CompatibleWith(s.Clone("multi-2"))
	require.True(t, ok, reason)

	ok, _ = s.CompatibleWith(sub)
	require.False(t, ok)
}

func TestTranspose(t *testing.T) {
	s, err := NewArraySchema(
		"2d",
		[]Attribute{{Name: "v", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 9}, {Name: "y", Lo: 0, Hi: 19}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 10, 1,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)

	tr, err := s.Transpose("2d-t")
	require.NoError(t, err)
	require.Equal(t, s.Dimensions[1], tr.Dimensions[0])
	require.Equal(t, s.Dimensions[0], tr.Dimensions[1])
}
