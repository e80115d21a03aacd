package tdcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func iterSchema(t *testing.T) *ArraySchema {
	t.Helper()
	s, err := NewArraySchema(
		"iter",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 3}, {Name: "y", Lo: 0, Hi: 3}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 4, 100,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	return s
}

func openWriteFlush(t *testing.T, root, name string, s *ArraySchema, coords [][2]int32, vals []int32) {
	t.Helper()
	require.NoError(t, CreateArray(root, "", s))
	ad, err := Open(root, "", name, ModeWrite)
	require.NoError(t, err)
	for i, c := range coords {
		require.NoError(t, CellWrite(ad, []int32{c[0], c[1]}, []int{0}, encodeI32(vals[i])))
	}
	require.NoError(t, Flush(ad))
	require.NoError(t, Close(ad))
}

func TestBeginSparseSubarrayFilter(t *testing.T) {
	root := t.TempDir()
	s := iterSchema(t)
	openWriteFlush(t, root, "sp", s,
		[][2]int32{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
		[]int32{10, 11, 12, 13})

	rd, err := Open(root, "", "sp", ModeRead)
	require.NoError(t, err)
	defer Close(rd)

	sub := &Range{Lo: []float64{1, 1}, Hi: []float64{2, 2}}
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
	require.Equal(t, [][]float64{{1, 1}, {2, 2}}, coords)
}

func TestRBeginSparseReversesOrder(t *testing.T) {
	root := t.TempDir()
	s := iterSchema(t)
	openWriteFlush(t, root, "rsp", s,
		[][2]int32{{0, 0}, {1, 1}, {2, 2}},
		[]int32{1, 2, 3})

	rd, err := Open(root, "", "rsp", ModeRead)
	require.NoError(t, err)
	defer Close(rd)

	it, err := RBeginSparse(rd, nil)
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
	require.Equal(t, [][]float64{{2, 2}, {1, 1}, {0, 0}}, coords)
}

func TestBeginDenseFillsNullCells(t *testing.T) {
	root := t.TempDir()
	s := iterSchema(t)
	openWriteFlush(t, root, "dn", s,
		[][2]int32{{0, 0}, {0, 2}},
		[]int32{7, 9})

	rd, err := Open(root, "", "dn", ModeRead)
	require.NoError(t, err)
	defer Close(rd)

	sub := &Range{Lo: []float64{0, 0}, Hi: []float64{0, 3}}
	it, err := BeginDense(rd, []int{0}, sub)
	require.NoError(t, err)
	defer it.Close()

	var got []*Cell
	for {
		c, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, c)
	}
	require.Len(t, got, 4)
	require.Equal(t, []float64{0, 0}, got[0].Coords)
	require.Equal(t, encodeI32(7), got[0].Payload)
	require.Equal(t, []float64{0, 1}, got[1].Coords)
	require.Equal(t, encodeNullField(s.Attributes[0]), got[1].Payload)
	require.Equal(t, []float64{0, 2}, got[2].Coords)
	require.Equal(t, encodeI32(9), got[2].Payload)
	require.Equal(t, []float64{0, 3}, got[3].Coords)
	require.Equal(t, encodeNullField(s.Attributes[0]), got[3].Payload)
}

func TestBeginDenseRejectsHilbertOrder(t *testing.T) {
	root := t.TempDir()
	s, err := NewArraySchema(
		"hil",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 3}, {Name: "y", Lo: 0, Hi: 3}},
		CoordsInt32, Hilbert, TileOrderNone,
		nil, 4, 100,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "hil", ModeRead)
	require.NoError(t, err)
	defer Close(ad)

	_, err = BeginDense(ad, []int{0}, nil)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrInvalidArgument))
}

func TestRBeginDenseUnsupported(t *testing.T) {
	root := t.TempDir()
	s := iterSchema(t)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "rdn", ModeRead)
	require.NoError(t, err)
	defer Close(ad)

	_, err = RBeginDense(ad, []int{0}, nil)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrState))
}
