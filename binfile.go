package tdcore

import (
	"bufio"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// ioSegmentSize is the fixed I/O segment the binary cell stream reads and
// writes in, §5 "Memory bounds": "I/O segment size = 10 MiB per open file."
const ioSegmentSize = 10 * 1024 * 1024

// OpenBinFileReader opens path for reading a binary cell stream, sniffing
// a `.gz` suffix to transparently wrap it in a parallel-gzip reader
// (§6 "Compression... the reader sniffs the suffix").
func OpenBinFileReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, "opening bin file for read", err)
	}
	buffered := bufio.NewReaderSize(f, ioSegmentSize)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, newErr(ErrIO, "opening gzip bin file for read", err)
		}
		return &gzipReadCloser{gz: gz, f: f}, nil
	}
	return &plainReadCloser{r: buffered, f: f}, nil
}

type gzipReadCloser struct {
	gz *pgzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	g.gz.Close()
	return g.f.Close()
}

type plainReadCloser struct {
	r io.Reader
	f *os.File
}

func (p *plainReadCloser) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *plainReadCloser) Close() error                { return p.f.Close() }

// OpenBinFileWriter opens path for writing a binary cell stream, gzip
// wrapping it when the path ends in `.gz`.
func OpenBinFileWriter(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, newErr(ErrIO, "creating bin file for write", err)
	}
	buffered := bufio.NewWriterSize(f, ioSegmentSize)
	if strings.HasSuffix(path, ".gz") {
		gz := pgzip.NewWriter(buffered)
		return &gzipWriteCloser{gz: gz, buf: buffered, f: f}, nil
	}
	return &plainWriteCloser{w: buffered, f: f}, nil
}

type gzipWriteCloser struct {
	gz  *pgzip.Writer
	buf *bufio.Writer
	f   *os.File
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.gz.Write(p) }
func (g *gzipWriteCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		return err
	}
	if err := g.buf.Flush(); err != nil {
		return err
	}
	return g.f.Close()
}

type plainWriteCloser struct {
	w *bufio.Writer
	f *os.File
}

func (p *plainWriteCloser) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *plainWriteCloser) Close() error {
	if err := p.w.Flush(); err != nil {
		return err
	}
	return p.f.Close()
}

// CellWriter frames and writes cells in the canonical on-disk layout of
// §4.2: coordinates first, then (for a var-sized schema projection) an
// 8-byte cell_size, then the attribute payload.
type CellWriter struct {
	w       io.Writer
	schema  *ArraySchema
	attrIDs []int
}

// NewCellWriter returns a writer framing cells over the given attrIDs
// projection.
func NewCellWriter(w io.Writer, schema *ArraySchema, attrIDs []int) *CellWriter {
	return &CellWriter{w: w, schema: schema, attrIDs: attrIDs}
}

// WriteCell encodes and writes one cell.
func (cw *CellWriter) WriteCell(c *Cell) error {
	if err := writeCoords(cw.w, cw.schema, c.Coords); err != nil {
		return err
	}
	if cw.schema.CellSizeTotal(cw.attrIDs) == VarSize {
		var sizeBuf [8]byte
		nativeEndian.PutUint64(sizeBuf[:], uint64(len(c.Payload)))
		if _, err := cw.w.Write(sizeBuf[:]); err != nil {
			return newErr(ErrIO, "writing cell_size", err)
		}
	}
	if _, err := cw.w.Write(c.Payload); err != nil {
		return newErr(ErrIO, "writing cell payload", err)
	}
	return nil
}

func writeCoords(w io.Writer, schema *ArraySchema, coords []float64) error {
	buf := make([]byte, schema.CoordsSize())
	size := schema.CoordsType.Size()
	for i, c := range coords {
		off := i * size
		switch schema.CoordsType {
		case CoordsInt32:
			nativeEndian.PutUint32(buf[off:], uint32(int32(c)))
		case CoordsInt64:
			nativeEndian.PutUint64(buf[off:], uint64(int64(c)))
		case CoordsFloat32:
			nativeEndian.PutUint32(buf[off:], math.Float32bits(float32(c)))
		case CoordsFloat64:
			nativeEndian.PutUint64(buf[off:], math.Float64bits(c))
		}
	}
	if _, err := w.Write(buf); err != nil {
		return newErr(ErrIO, "writing coordinates", err)
	}
	return nil
}

func readCoords(r io.Reader, schema *ArraySchema) ([]float64, error) {
	buf := make([]byte, schema.CoordsSize())
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, newErr(ErrIO, "reading coordinates", err)
	}
	size := schema.CoordsType.Size()
	coords := make([]float64, schema.DimNum())
	for i := range coords {
		off := i * size
		switch schema.CoordsType {
		case CoordsInt32:
			coords[i] = float64(int32(nativeEndian.Uint32(buf[off:])))
		case CoordsInt64:
			coords[i] = float64(int64(nativeEndian.Uint64(buf[off:])))
		case CoordsFloat32:
			coords[i] = float64(math.Float32frombits(nativeEndian.Uint32(buf[off:])))
		case CoordsFloat64:
			coords[i] = math.Float64frombits(nativeEndian.Uint64(buf[off:]))
		}
	}
	return coords, nil
}

// CellReader reads cells framed in the §4.2 canonical layout from a
// stream, reusing its destination cell buffer on successive reads
// (§4.3 "the reader exposes read(dest, n)... preserving layout so the
// consumer sees the canonical in-memory form").
type CellReader struct {
	r       io.Reader
	schema  *ArraySchema
	attrIDs []int
	varSize bool
	fixedN  int
}

// NewCellReader returns a reader framing cells over the given attrIDs
// projection.
func NewCellReader(r io.Reader, schema *ArraySchema, attrIDs []int) *CellReader {
	total := schema.CellSizeTotal(attrIDs)
	cr := &CellReader{r: r, schema: schema, attrIDs: attrIDs}
	if total == VarSize {
		cr.varSize = true
	} else {
		cr.fixedN = int(total) - int(schema.CoordsSize())
	}
	return cr
}

// Next reads the next cell into dst, reusing its Payload backing array
// when it is large enough. Returns (true, nil) on success, (false, nil)
// on a clean end of stream, and (false, err) on any read error or
// truncation mid-cell.
func (cr *CellReader) Next(dst *Cell) (bool, error) {
	coords, err := readCoords(cr.r, cr.schema)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	n := cr.fixedN
	if cr.varSize {
		var sizeBuf [8]byte
		if _, err := io.ReadFull(cr.r, sizeBuf[:]); err != nil {
			return false, newErr(ErrIO, "reading cell_size: truncated stream", err)
		}
		n = int(nativeEndian.Uint64(sizeBuf[:]))
		if n < 0 {
			return false, newErr(ErrCodec, "negative cell_size", nil)
		}
	}

	payload := dst.Payload
	if cap(payload) < n {
		payload = make([]byte, n)
	} else {
		payload = payload[:n]
	}
	if _, err := io.ReadFull(cr.r, payload); err != nil {
		return false, newErr(ErrIO, "reading cell payload: truncated stream", err)
	}

	dst.Schema = cr.schema
	dst.AttrIDs = cr.attrIDs
	dst.Coords = coords
	dst.Payload = payload
	return true, nil
}
