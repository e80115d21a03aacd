package tdcore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fragSchema(t *testing.T) *ArraySchema {
	t.Helper()
	s, err := NewArraySchema(
		"frag",
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 9}, {Name: "y", Lo: 0, Hi: 9}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 4, 2,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	return s
}

func mustParseCell(t *testing.T, s *ArraySchema, line string) *Cell {
	t.Helper()
	c, err := ParseCSVLine(s, line, ",", []int{0, 1}, []int{0})
	require.NoError(t, err)
	return c
}

func TestWriteFragmentAndReadBack(t *testing.T) {
	s := fragSchema(t)
	cells := []*Cell{
		mustParseCell(t, s, "0,0,1"),
		mustParseCell(t, s, "0,1,2"),
		mustParseCell(t, s, "1,0,3"),
		mustParseCell(t, s, "1,1,4"),
		mustParseCell(t, s, "2,0,5"),
	}

	dir := filepath.Join(t.TempDir(), "fragment_0000000000")
	meta, err := WriteFragment(dir, s, []int{0}, cells)
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.CellCount)
	require.Len(t, meta.TileIDs, 2) // capacity 4: [4 cells][1 cell]

	gotMeta, err := OpenFragmentMeta(dir)
	require.NoError(t, err)
	require.Equal(t, meta.TileIDs, gotMeta.TileIDs)
	require.Equal(t, meta.CellOffsets, gotMeta.CellOffsets)

	src, err := openFragmentCellSource(dir, s, []int{0})
	require.NoError(t, err)
	defer src.Close()

	var got []*Cell
	for {
		c := &Cell{}
		ok, err := src.Next(c)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, c)
	}
	require.Len(t, got, 5)
	for i, c := range got {
		require.Equal(t, cells[i].Coords, c.Coords)
		require.Equal(t, cells[i].Payload, c.Payload)
	}
}

func TestOpenFragmentMetaMissingBookkeeping(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenFragmentMeta(dir)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrIO))
}

func TestNextFragmentNameMonotonic(t *testing.T) {
	dir := t.TempDir()
	name, err := nextFragmentName(dir)
	require.NoError(t, err)
	require.Equal(t, "fragment_0000000000", name)

	s := fragSchema(t)
	_, err = WriteFragment(filepath.Join(dir, name), s, []int{0}, []*Cell{mustParseCell(t, s, "0,0,1")})
	require.NoError(t, err)

	next, err := nextFragmentName(dir)
	require.NoError(t, err)
	require.Equal(t, "fragment_0000000001", next)
}
