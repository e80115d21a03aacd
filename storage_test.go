package tdcore

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func storageSchema(t *testing.T, name string, consolidationStep int64) *ArraySchema {
	t.Helper()
	s, err := NewArraySchema(
		name,
		[]Attribute{{Name: "val", Type: Int32, ValNum: 1}},
		[]Dimension{{Name: "x", Lo: 0, Hi: 99}, {Name: "y", Lo: 0, Hi: 99}},
		CoordsInt32, RowMajor, TileOrderNone,
		nil, 8, consolidationStep,
		[]Compression{CompressionNone, CompressionNone},
	)
	require.NoError(t, err)
	return s
}

func TestOpenRequiresExistingSchema(t *testing.T) {
	root := t.TempDir()
	_, err := Open(root, "", "nosuch", ModeRead)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrSchema))
}

func TestCreateOpenWriteFlushScan(t *testing.T) {
	root := t.TempDir()
	s := storageSchema(t, "sA", 100) // high step: no auto-consolidation in this test
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "sA", ModeWrite)
	require.NoError(t, err)

	require.NoError(t, CellWrite(ad, []int32{5, 5}, []int{0}, encodeI32(42)))
	require.NoError(t, CellWrite(ad, []int32{1, 1}, []int{0}, encodeI32(7)))
	require.NoError(t, Flush(ad))
	require.NoError(t, Close(ad))

	rd, err := Open(root, "", "sA", ModeRead)
	require.NoError(t, err)
	defer Close(rd)

	it, err := BeginSparse(rd, nil)
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
	require.Len(t, coords, 2)
	require.Equal(t, []float64{1, 1}, coords[0]) // row-major ascending
	require.Equal(t, []float64{5, 5}, coords[1])
}

func TestWrongCoordsTypeRejected(t *testing.T) {
	root := t.TempDir()
	s := storageSchema(t, "sB", 100)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "sB", ModeWrite)
	require.NoError(t, err)
	defer Close(ad)

	err = CellWrite(ad, []int64{1, 1}, []int{0}, encodeI32(1))
	require.Error(t, err)
	require.True(t, IsKind(err, ErrInvalidArgument))
}

func TestReadModeRejectsWrite(t *testing.T) {
	root := t.TempDir()
	s := storageSchema(t, "sC", 100)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "sC", ModeRead)
	require.NoError(t, err)
	defer Close(ad)

	err = CellWrite(ad, []int32{0, 0}, []int{0}, encodeI32(1))
	require.Error(t, err)
	require.True(t, IsKind(err, ErrState))
}

func TestConsolidationCascade(t *testing.T) {
	root := t.TempDir()
	s := storageSchema(t, "sD", 2)
	require.NoError(t, CreateArray(root, "", s))

	ad, err := Open(root, "", "sD", ModeWrite)
	require.NoError(t, err)

	for i := int32(0); i < 2; i++ {
		require.NoError(t, CellWrite(ad, []int32{i, i}, []int{0}, encodeI32(i)))
		require.NoError(t, Flush(ad))
	}
	names, err := FragmentNames(ad)
	require.NoError(t, err)
	require.Len(t, names, 1) // two level-0 fragments merged into one level-1 fragment

	require.NoError(t, Close(ad))

	rd, err := Open(root, "", "sD", ModeRead)
	require.NoError(t, err)
	defer Close(rd)

	it, err := BeginSparse(rd, nil)
	require.NoError(t, err)
	defer it.Close()

	count := 0
	for {
		_, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}

func TestTooManyOpenArrays(t *testing.T) {
	root := t.TempDir()
	var ads []int
	for i := 0; i < MaxOpenArrays; i++ {
		name := "many" + strconv.Itoa(i)
		require.NoError(t, CreateArray(root, "", storageSchema(t, name, 100)))
		ad, err := Open(root, "", name, ModeRead)
		require.NoError(t, err)
		ads = append(ads, ad)
	}
	defer func() {
		for _, ad := range ads {
			Close(ad)
		}
	}()

	_ = CreateArray(root, "", storageSchema(t, "sOverflow", 100))
	_, err := Open(root, "", "sOverflow", ModeRead)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrState))
}

func encodeI32(v int32) []byte {
	b := make([]byte, 4)
	nativeEndian.PutUint32(b, uint32(v))
	return b
}
