// Package export drains a read iterator into a CSV file, the
// plain-filesystem counterpart of the teacher's encode/json.go metadata
// dump: marshal once, write the whole buffer out, just over a streaming
// row source instead of a single in-memory JSON document.
package export

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cellgrid/tdcore"
)

// CSV drains a sparse forward iterator over an open array descriptor and
// writes one CSV line per cell to path, with a header row naming the
// requested dimensions and attributes (§4.1/§4.2 CSV wire format, reused
// here as an export format). Returns the number of data rows written.
func CSV(ad int, dimIDs, attrIDs []int, subarray *tdcore.Range, path, delimiter string, precision int) (int64, error) {
	schema, err := tdcore.Schema(ad)
	if err != nil {
		return 0, err
	}

	it, err := tdcore.BeginSparse(ad, subarray)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	if _, err := w.WriteString(header(schema, dimIDs, attrIDs, delimiter) + "\n"); err != nil {
		return 0, fmt.Errorf("export: writing header: %w", err)
	}

	var n int64
	for {
		c, ok, err := it.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		line, err := c.CSVLine(dimIDs, attrIDs, delimiter, precision)
		if err != nil {
			return n, err
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			return n, fmt.Errorf("export: writing row: %w", err)
		}
		n++
	}
}

func header(schema *tdcore.ArraySchema, dimIDs, attrIDs []int, delimiter string) string {
	names := make([]string, 0, len(dimIDs)+len(attrIDs))
	for _, d := range dimIDs {
		names = append(names, schema.Dimensions[d].Name)
	}
	for _, a := range attrIDs {
		names = append(names, schema.Attributes[a].Name)
	}
	return strings.Join(names, delimiter)
}
