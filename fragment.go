package tdcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/alitto/pond"
	"github.com/klauspost/pgzip"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// FragmentMeta holds the on-disk bookkeeping for one fragment directory
// (§4.5 "Workspace layout" / "Write path" step 2): one entry per tile
// giving its cell-count boundary, bounding (first/last) coordinates, and
// axis-aligned MBR, plus the tile id sequence.
type FragmentMeta struct {
	Name        string
	CellCount   int64
	TileIDs     []int64   // one per tile
	CellOffsets []int64   // len(tiles)+1, cumulative cell-count prefix sums
	BoundingLo  [][]float64 // per tile: first cell's coords
	BoundingHi  [][]float64 // per tile: last cell's coords
	MBRLo       [][]float64 // per tile: per-dimension min
	MBRHi       [][]float64 // per tile: per-dimension max
}

func coordsFileName() string              { return "coords.tdt" }
func attrFileName(attrID int) string      { return fmt.Sprintf("attr_%d.tdt", attrID) }
func attrGzFileName(attrID int) string     { return attrFileName(attrID) + ".gz" }
func coordsGzFileName() string            { return coordsFileName() + ".gz" }

// partitionTiles groups a sorted cell slice into tile-sized runs: by the
// schema's tile id for regular tiling, or every `capacity` cells for
// irregular tiling (§4.5, §3 "capacity ... meaningful only for irregular
// tiles"). Cells are assumed already sorted in the schema's cell order,
// which orders the whole domain without regard to tile boundaries; for
// regular tiling a new run starts whenever the tile id changes, so a tile
// whose cells are not contiguous in that order is recorded as several
// runs with the same tile id (DESIGN.md records this limitation).
func partitionTiles(schema *ArraySchema, cells []*Cell) ([][]*Cell, []int64, error) {
	if len(cells) == 0 {
		return nil, nil, nil
	}
	if !schema.HasRegularTiles() {
		capacity := schema.Capacity
		if capacity <= 0 {
			capacity = 1
		}
		var tiles [][]*Cell
		var ids []int64
		for i := 0; i < len(cells); i += int(capacity) {
			end := i + int(capacity)
			if end > len(cells) {
				end = len(cells)
			}
			tiles = append(tiles, cells[i:end])
			ids = append(ids, int64(len(tiles)-1))
		}
		return tiles, ids, nil
	}

	var tiles [][]*Cell
	var ids []int64
	start := 0
	curID, err := schema.TileID(cells[0].Coords)
	if err != nil {
		return nil, nil, err
	}
	for i := 1; i <= len(cells); i++ {
		var id int64
		if i < len(cells) {
			id, err = schema.TileID(cells[i].Coords)
			if err != nil {
				return nil, nil, err
			}
		}
		if i == len(cells) || id != curID {
			tiles = append(tiles, cells[start:i])
			ids = append(ids, curID)
			if i < len(cells) {
				start = i
				curID = id
			}
		}
	}
	return tiles, ids, nil
}

// WriteFragment persists a sorted cell batch into a new fragment
// directory, writing one .tdt per attribute plus one for coordinates,
// and the tile_ids/offsets/bounding_coordinates/mbrs bookkeeping files
// (§4.5 "Write path" step 2). Per-attribute file writes run concurrently
// on a bounded pond.Pool, mirroring the teacher's worker-pool fan-out in
// cmd/main.go (SPEC_FULL.md DOMAIN STACK).
func WriteFragment(dir string, schema *ArraySchema, attrIDs []int, cells []*Cell) (*FragmentMeta, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newErr(ErrIO, "creating fragment directory", err)
	}

	tiles, tileIDs, err := partitionTiles(schema, cells)
	if err != nil {
		return nil, err
	}

	meta := &FragmentMeta{
		Name:        filepath.Base(dir),
		CellCount:   int64(len(cells)),
		TileIDs:     tileIDs,
		CellOffsets: make([]int64, len(tiles)+1),
		BoundingLo:  make([][]float64, len(tiles)),
		BoundingHi:  make([][]float64, len(tiles)),
		MBRLo:       make([][]float64, len(tiles)),
		MBRHi:       make([][]float64, len(tiles)),
	}
	offset := int64(0)
	for i, tile := range tiles {
		meta.CellOffsets[i] = offset
		offset += int64(len(tile))
		meta.BoundingLo[i] = append([]float64(nil), tile[0].Coords...)
		meta.BoundingHi[i] = append([]float64(nil), tile[len(tile)-1].Coords...)
		lo, hi := tileMBR(tile)
		meta.MBRLo[i] = lo
		meta.MBRHi[i] = hi
	}
	meta.CellOffsets[len(tiles)] = offset

	writers := make([]func() error, 0, len(attrIDs)+1)
	writers = append(writers, func() error {
		return writeCoordsColumn(dir, schema, cells, schema.Compression[schema.AttributeNum()])
	})
	for idx, attrID := range attrIDs {
		idx, attrID := idx, attrID
		writers = append(writers, func() error {
			return writeAttrColumn(dir, schema, attrID, idx, attrIDs, cells)
		})
	}

	pool := pond.New(lo.Min([]int{8, len(writers)}), len(writers))
	errs := make([]error, len(writers))
	for i, w := range writers {
		i, w := i, w
		pool.Submit(func() { errs[i] = w() })
	}
	pool.StopAndWait()
	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}

	if err := writeFragmentBookkeeping(dir, meta); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{"fragment": meta.Name, "cells": meta.CellCount, "tiles": len(tiles)}).
		Info("fragment flushed")

	return meta, nil
}

func tileMBR(tile []*Cell) ([]float64, []float64) {
	n := len(tile[0].Coords)
	lo := append([]float64(nil), tile[0].Coords...)
	hi := append([]float64(nil), tile[0].Coords...)
	for _, c := range tile[1:] {
		for i := 0; i < n; i++ {
			if c.Coords[i] < lo[i] {
				lo[i] = c.Coords[i]
			}
			if c.Coords[i] > hi[i] {
				hi[i] = c.Coords[i]
			}
		}
	}
	return lo, hi
}

func writeCoordsColumn(dir string, schema *ArraySchema, cells []*Cell, compression Compression) error {
	name := coordsFileName()
	if compression == CompressionGzip {
		name = coordsGzFileName()
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return newErr(ErrIO, "creating coords.tdt", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *pgzip.Writer
	if compression == CompressionGzip {
		gz = pgzip.NewWriter(f)
		w = gz
	}
	for _, c := range cells {
		if err := writeCoords(w, schema, c.Coords); err != nil {
			return err
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return newErr(ErrIO, "closing gzip coords.tdt", err)
		}
	}
	return nil
}

func writeAttrColumn(dir string, schema *ArraySchema, attrID, idx int, attrIDs []int, cells []*Cell) error {
	compression := schema.Compression[attrID]
	name := attrFileName(attrID)
	if compression == CompressionGzip {
		name = attrGzFileName(attrID)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return newErr(ErrIO, fmt.Sprintf("creating %s", name), err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *pgzip.Writer
	if compression == CompressionGzip {
		gz = pgzip.NewWriter(f)
		w = gz
	}
	for _, c := range cells {
		fields, err := splitCellFields(schema, attrIDs, c.Payload)
		if err != nil {
			return err
		}
		if _, err := w.Write(fields[idx]); err != nil {
			return newErr(ErrIO, fmt.Sprintf("writing %s", name), err)
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return newErr(ErrIO, fmt.Sprintf("closing gzip %s", name), err)
		}
	}
	return nil
}

func writeInt64Slice(buf *bytes.Buffer, v []int64) {
	binary.Write(buf, binary.LittleEndian, int32(len(v)))
	for _, x := range v {
		binary.Write(buf, binary.LittleEndian, x)
	}
}

func readInt64Slice(r *bytes.Reader) ([]int64, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, newErr(ErrIO, "reading int64 slice length", err)
	}
	out := make([]int64, n)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, newErr(ErrIO, "reading int64 slice element", err)
		}
	}
	return out, nil
}

func writeFloatMatrix(buf *bytes.Buffer, m [][]float64) {
	binary.Write(buf, binary.LittleEndian, int32(len(m)))
	for _, row := range m {
		binary.Write(buf, binary.LittleEndian, int32(len(row)))
		for _, v := range row {
			binary.Write(buf, binary.LittleEndian, v)
		}
	}
}

func readFloatMatrix(r *bytes.Reader) ([][]float64, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, newErr(ErrIO, "reading float matrix length", err)
	}
	out := make([][]float64, n)
	for i := range out {
		var rowLen int32
		if err := binary.Read(r, binary.LittleEndian, &rowLen); err != nil {
			return nil, newErr(ErrIO, "reading float matrix row length", err)
		}
		row := make([]float64, rowLen)
		for j := range row {
			if err := binary.Read(r, binary.LittleEndian, &row[j]); err != nil {
				return nil, newErr(ErrIO, "reading float matrix element", err)
			}
		}
		out[i] = row
	}
	return out, nil
}

func writeFragmentBookkeeping(dir string, meta *FragmentMeta) error {
	writeFile := func(name string, data []byte) error {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return newErr(ErrIO, fmt.Sprintf("writing %s", name), err)
		}
		return nil
	}

	var tileIDsBuf bytes.Buffer
	writeInt64Slice(&tileIDsBuf, meta.TileIDs)
	if err := writeFile("tile_ids.bkp", tileIDsBuf.Bytes()); err != nil {
		return err
	}

	var offsetsBuf bytes.Buffer
	writeInt64Slice(&offsetsBuf, meta.CellOffsets)
	if err := writeFile("offsets.bkp", offsetsBuf.Bytes()); err != nil {
		return err
	}

	var boundingBuf bytes.Buffer
	writeFloatMatrix(&boundingBuf, meta.BoundingLo)
	writeFloatMatrix(&boundingBuf, meta.BoundingHi)
	if err := writeFile("bounding_coordinates.bkp", boundingBuf.Bytes()); err != nil {
		return err
	}

	var mbrsBuf bytes.Buffer
	writeFloatMatrix(&mbrsBuf, meta.MBRLo)
	writeFloatMatrix(&mbrsBuf, meta.MBRHi)
	if err := writeFile("mbrs.bkp", mbrsBuf.Bytes()); err != nil {
		return err
	}

	return nil
}

// OpenFragmentMeta reads back a fragment's bookkeeping files. A missing
// tile_ids.bkp means the fragment was left half-written by a crashed
// flush; the caller (storage.go's open-time scan) treats that as
// "ignore this fragment" per §4.5 "Failure semantics".
func OpenFragmentMeta(dir string) (*FragmentMeta, error) {
	tileIDsData, err := os.ReadFile(filepath.Join(dir, "tile_ids.bkp"))
	if err != nil {
		return nil, newErr(ErrIO, "tile_ids.bkp missing or unreadable", err)
	}
	tileIDs, err := readInt64Slice(bytes.NewReader(tileIDsData))
	if err != nil {
		return nil, err
	}

	offsetsData, err := os.ReadFile(filepath.Join(dir, "offsets.bkp"))
	if err != nil {
		return nil, newErr(ErrIO, "reading offsets.bkp", err)
	}
	offsets, err := readInt64Slice(bytes.NewReader(offsetsData))
	if err != nil {
		return nil, err
	}

	boundingData, err := os.ReadFile(filepath.Join(dir, "bounding_coordinates.bkp"))
	if err != nil {
		return nil, newErr(ErrIO, "reading bounding_coordinates.bkp", err)
	}
	br := bytes.NewReader(boundingData)
	boundingLo, err := readFloatMatrix(br)
	if err != nil {
		return nil, err
	}
	boundingHi, err := readFloatMatrix(br)
	if err != nil {
		return nil, err
	}

	mbrsData, err := os.ReadFile(filepath.Join(dir, "mbrs.bkp"))
	if err != nil {
		return nil, newErr(ErrIO, "reading mbrs.bkp", err)
	}
	mr := bytes.NewReader(mbrsData)
	mbrLo, err := readFloatMatrix(mr)
	if err != nil {
		return nil, err
	}
	mbrHi, err := readFloatMatrix(mr)
	if err != nil {
		return nil, err
	}

	cellCount := int64(0)
	if len(offsets) > 0 {
		cellCount = offsets[len(offsets)-1]
	}

	return &FragmentMeta{
		Name:        filepath.Base(dir),
		CellCount:   cellCount,
		TileIDs:     tileIDs,
		CellOffsets: offsets,
		BoundingLo:  boundingLo,
		BoundingHi:  boundingHi,
		MBRLo:       mbrLo,
		MBRHi:       mbrHi,
	}, nil
}

// fragmentCellSource reconstructs cells row-wise from a fragment's
// columnar .tdt files: one read per attribute file per cell, concatenated
// back into the canonical Payload layout (§4.2), plus the coordinates
// column. It implements CellSource so fragment reads compose directly
// with collection.go's sort-merge machinery.
type fragmentCellSource struct {
	schema   *ArraySchema
	attrIDs  []int
	coordsR  io.ReadCloser
	attrRs   []io.ReadCloser
	attrDefs []Attribute
}

// openFragmentCellSource opens a fragment's coords and attribute columns
// for sequential row-wise reconstruction.
func openFragmentCellSource(dir string, schema *ArraySchema, attrIDs []int) (*fragmentCellSource, error) {
	coordsR, err := openColumn(dir, coordsFileName(), coordsGzFileName())
	if err != nil {
		return nil, err
	}
	attrRs := make([]io.ReadCloser, len(attrIDs))
	attrDefs := make([]Attribute, len(attrIDs))
	for i, id := range attrIDs {
		r, err := openColumn(dir, attrFileName(id), attrGzFileName(id))
		if err != nil {
			coordsR.Close()
			for _, opened := range attrRs[:i] {
				if opened != nil {
					opened.Close()
				}
			}
			return nil, err
		}
		attrRs[i] = r
		attrDefs[i] = schema.Attributes[id]
	}
	return &fragmentCellSource{schema: schema, attrIDs: attrIDs, coordsR: coordsR, attrRs: attrRs, attrDefs: attrDefs}, nil
}

func openColumn(dir, plain, gz string) (io.ReadCloser, error) {
	if f, err := os.Open(filepath.Join(dir, plain)); err == nil {
		return f, nil
	}
	f, err := os.Open(filepath.Join(dir, gz))
	if err != nil {
		return nil, newErr(ErrIO, fmt.Sprintf("opening %s/%s(.gz)", dir, plain), err)
	}
	gzr, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, newErr(ErrIO, "opening gzip column", err)
	}
	return &gzipColumnReader{gz: gzr, f: f}, nil
}

type gzipColumnReader struct {
	gz *pgzip.Reader
	f  *os.File
}

func (g *gzipColumnReader) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipColumnReader) Close() error {
	g.gz.Close()
	return g.f.Close()
}

func (fc *fragmentCellSource) Next(dst *Cell) (bool, error) {
	coords, err := readCoords(fc.coordsR, fc.schema)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var payload []byte
	for i, r := range fc.attrRs {
		field, err := readCellField(r, fc.attrDefs[i])
		if err != nil {
			return false, newErr(ErrIO, "fragment column desynchronized", err)
		}
		payload = append(payload, field...)
	}

	dst.Schema = fc.schema
	dst.AttrIDs = fc.attrIDs
	dst.Coords = coords
	dst.Payload = payload
	return true, nil
}

func (fc *fragmentCellSource) Close() error {
	var firstErr error
	if err := fc.coordsR.Close(); err != nil {
		firstErr = err
	}
	for _, r := range fc.attrRs {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// nextFragmentName returns a fresh, strictly-increasing (lexicographically
// and numerically) fragment directory name given the existing entries in
// an array directory (§4.5 "allocate a fresh fragment name (strictly
// increasing lexicographically)").
func nextFragmentName(arrayDir string) (string, error) {
	entries, err := os.ReadDir(arrayDir)
	if err != nil && !os.IsNotExist(err) {
		return "", newErr(ErrIO, "listing array directory", err)
	}
	max := -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(e.Name(), "fragment_%010d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("fragment_%010d", max+1), nil
}

// sortFragmentNames returns names sorted ascending (oldest first), the
// order the fragment tree and consolidation expect them in.
func sortFragmentNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
