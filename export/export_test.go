package export

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellgrid/tdcore"
)

// TestCSVExportVarAttribute reproduces the variable-attribute scenario: a
// single i64 dimension on [0,1000] with one char:var attribute, written
// out of order and exported in ascending scan order.
func TestCSVExportVarAttribute(t *testing.T) {
	root := t.TempDir()
	schema, err := tdcore.NewArraySchema(
		"notes",
		[]tdcore.Attribute{{Name: "text", Type: tdcore.Char, ValNum: tdcore.VarSize}},
		[]tdcore.Dimension{{Name: "d", Lo: 0, Hi: 1000}},
		tdcore.CoordsInt64, tdcore.RowMajor, tdcore.TileOrderNone,
		nil, 10, 100,
		[]tdcore.Compression{tdcore.CompressionNone, tdcore.CompressionNone},
	)
	require.NoError(t, err)
	require.NoError(t, tdcore.CreateArray(root, "", schema))

	ad, err := tdcore.Open(root, "", "notes", tdcore.ModeWrite)
	require.NoError(t, err)

	abc, err := tdcore.ParseCSVLine(schema, "10,abc", ",", []int{0}, []int{0})
	require.NoError(t, err)
	require.NoError(t, tdcore.CellWrite(ad, []int64{10}, []int{0}, abc.Payload))

	zz, err := tdcore.ParseCSVLine(schema, "5,zz", ",", []int{0}, []int{0})
	require.NoError(t, err)
	require.NoError(t, tdcore.CellWrite(ad, []int64{5}, []int{0}, zz.Payload))

	require.NoError(t, tdcore.Flush(ad))
	require.NoError(t, tdcore.Close(ad))

	rd, err := tdcore.Open(root, "", "notes", tdcore.ModeRead)
	require.NoError(t, err)
	defer tdcore.Close(rd)

	out := filepath.Join(root, "notes.csv")
	n, err := CSV(rd, []int{0}, []int{0}, nil, out, ",", 6)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Equal(t, []string{"d,text", "5,zz", "10,abc"}, lines)
}
