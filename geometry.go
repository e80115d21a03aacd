package tdcore

import "math"

// Range is an inclusive, axis-aligned rectangular subarray: one (lo, hi)
// pair per dimension, in domain-coordinate order.
type Range struct {
	Lo []float64
	Hi []float64
}

// normalizedTileCoord returns (c_i - dom_lo_i) mod extent_i, the in-tile
// offset for dimension i of a regular-tile schema (§4.1 "Cell position
// within a tile").
func (s *ArraySchema) normalizedTileCoord(i int, c float64) float64 {
	extent := s.TileExtents[i]
	off := math.Mod(c-s.Dimensions[i].Lo, extent)
	if off < 0 {
		off += extent
	}
	return off
}

// tileCoordOf returns floor((c_i - dom_lo_i)/extent_i), dimension i's
// tile-coordinate for a regular-tile schema.
func (s *ArraySchema) tileCoordOf(i int, c float64) int64 {
	return int64(math.Floor((c - s.Dimensions[i].Lo) / s.TileExtents[i]))
}

// GetCellPos computes the in-tile cell position for coordinates in a
// regular-tile (dense) array, per the schema's cell_order (§4.1 "Cell
// position within a tile"). It fails on irregular-tile (sparse) schemas.
func (s *ArraySchema) GetCellPos(coords []float64) (int64, error) {
	if !s.HasRegularTiles() {
		return 0, newErr(ErrInvalidArgument, "get_cell_pos is undefined for sparse (irregular-tile) arrays", nil)
	}
	n := s.DimNum()
	normalized := make([]float64, n)
	for i := 0; i < n; i++ {
		normalized[i] = s.normalizedTileCoord(i, coords[i])
	}

	var pos int64
	switch s.CellOrderVal {
	case RowMajor, Hilbert:
		// Row-major fallback also covers Hilbert in-tile addressing,
		// since Hilbert cell ids are computed separately via CellIDHilbert.
		var weight int64 = 1
		for i := n - 1; i >= 0; i-- {
			pos += int64(normalized[i]) * weight
			weight *= int64(s.TileExtents[i])
		}
	case ColMajor:
		var weight int64 = 1
		for i := 0; i < n; i++ {
			pos += int64(normalized[i]) * weight
			weight *= int64(s.TileExtents[i])
		}
	}
	return pos, nil
}

// tileCoords returns the per-dimension tile-coordinate vector for coords.
func (s *ArraySchema) tileCoords(coords []float64) []int64 {
	n := s.DimNum()
	tc := make([]int64, n)
	for i := 0; i < n; i++ {
		tc[i] = s.tileCoordOf(i, coords[i])
	}
	return tc
}

// TileID computes the tile id of coords under the schema's tile_order
// (§4.1 "Tile id"). Requires regular tiling.
func (s *ArraySchema) TileID(coords []float64) (int64, error) {
	if !s.HasRegularTiles() {
		return 0, newErr(ErrInvalidArgument, "tile_id is undefined for irregular tiling", nil)
	}
	tc := s.tileCoords(coords)
	switch s.TileOrderVal {
	case TileRowMajor:
		return s.tileIDFromOffsets(tc, s.tileOffsetsRowMajor), nil
	case TileColMajor:
		return s.tileIDFromOffsets(tc, s.tileOffsetsColMajor), nil
	case TileHilbert:
		if s.CoordsType.IsFloat() {
			return 0, newErr(ErrInvalidArgument, "hilbert tile id is undefined for floating-point coordinates", nil)
		}
		return s.tileIDHilbert(tc), nil
	default:
		return 0, newErr(ErrInvalidArgument, "tile_order is None", nil)
	}
}

func (s *ArraySchema) tileIDFromOffsets(tileCoords []int64, offsets []int64) int64 {
	var id int64
	for i, t := range tileCoords {
		id += t * offsets[i]
	}
	return id
}

func (s *ArraySchema) tileIDHilbert(tileCoords []int64) int64 {
	return AxesToLine(tileCoords, s.hilbertTileBits, s.DimNum())
}

// GetTilePos computes the tile id of a raw tile-coordinate vector
// (already divided by extents) under the schema's tile order. Used by
// §8 Property 3 to check tile_id(c) == get_tile_pos(tile_coords_of(c)).
func (s *ArraySchema) GetTilePos(tileCoords []int64) (int64, error) {
	switch s.TileOrderVal {
	case TileRowMajor:
		return s.tileIDFromOffsets(tileCoords, s.tileOffsetsRowMajor), nil
	case TileColMajor:
		return s.tileIDFromOffsets(tileCoords, s.tileOffsetsColMajor), nil
	case TileHilbert:
		return s.tileIDHilbert(tileCoords), nil
	default:
		return 0, newErr(ErrInvalidArgument, "tile_order is None", nil)
	}
}

// CellIDHilbert computes the Hilbert cell id of coords on
// hilbert_cell_bits, reducing into a tile first when tiling is regular
// (§4.1 "Cell id (Hilbert, sparse / irregular)").
func (s *ArraySchema) CellIDHilbert(coords []float64) (int64, error) {
	if s.CoordsType.IsFloat() {
		return 0, newErr(ErrInvalidArgument, "hilbert cell id is undefined for floating-point coordinates", nil)
	}
	n := s.DimNum()
	axes := make([]int64, n)
	if s.HasRegularTiles() {
		for i := 0; i < n; i++ {
			axes[i] = int64(s.normalizedTileCoord(i, coords[i]))
		}
	} else {
		for i := 0; i < n; i++ {
			axes[i] = int64(coords[i])
		}
	}
	return AxesToLine(axes, s.hilbertCellBits, n), nil
}

// Precedes implements the schema's total strict ordering predicate over
// coordinate vectors (§4.1 "Cell ordering predicate").
func (s *ArraySchema) Precedes(a, b []float64) (bool, error) {
	switch s.CellOrderVal {
	case RowMajor:
		return lexLess(a, b, 0, len(a), 1), nil
	case ColMajor:
		return lexLess(a, b, len(a)-1, -1, -1), nil
	case Hilbert:
		idA, err := s.CellIDHilbert(a)
		if err != nil {
			return false, err
		}
		idB, err := s.CellIDHilbert(b)
		if err != nil {
			return false, err
		}
		if idA != idB {
			return idA < idB, nil
		}
		return lexLess(a, b, 0, len(a), 1), nil
	default:
		return false, newErr(ErrInvalidArgument, "unknown cell_order", nil)
	}
}

// Succeeds is the converse of Precedes.
func (s *ArraySchema) Succeeds(a, b []float64) (bool, error) {
	return s.Precedes(b, a)
}

// lexLess performs lexicographic comparison walking dimension indices
// from `start`, stepping by `step`, for `n` steps (used to express both
// row-major, 0..n-1, and column-major, n-1..0, orderings with one routine).
func lexLess(a, b []float64, start, n, step int) bool {
	idx := start
	for i := 0; i < n; i++ {
		if a[idx] != b[idx] {
			return a[idx] < b[idx]
		}
		idx += step
	}
	return false
}

// IsContainedInTileSlabRow reports whether r lies within a single
// row-major tile slab: every dimension but the last has matching tile
// coordinates at lo and hi (§4.1 "Tile-slab containment").
func (s *ArraySchema) IsContainedInTileSlabRow(r Range) bool {
	return s.isContainedInTileSlab(r, s.DimNum()-1)
}

// IsContainedInTileSlabCol is the column-major variant, ignoring the
// first dimension instead of the last.
func (s *ArraySchema) IsContainedInTileSlabCol(r Range) bool {
	return s.isContainedInTileSlab(r, 0)
}

func (s *ArraySchema) isContainedInTileSlab(r Range, skip int) bool {
	if !s.HasRegularTiles() {
		return false
	}
	for i := 0; i < s.DimNum(); i++ {
		if i == skip {
			continue
		}
		if s.tileCoordOf(i, r.Lo[i]) != s.tileCoordOf(i, r.Hi[i]) {
			return false
		}
	}
	return true
}

// SubarrayOverlap classifies range a against range b (typically a tile
// or the array domain), per §4.1 "Subarray overlap classification".
func (s *ArraySchema) SubarrayOverlap(a, b Range) OverlapKind {
	n := s.DimNum()
	for i := 0; i < n; i++ {
		if a.Hi[i] < b.Lo[i] || a.Lo[i] > b.Hi[i] {
			return OverlapNone
		}
	}

	full := true
	for i := 0; i < n; i++ {
		if a.Lo[i] > b.Lo[i] || a.Hi[i] < b.Hi[i] {
			full = false
			break
		}
	}
	if full {
		return OverlapFull
	}

	// contig replaces partial when every dimension but the leading
	// (row-major) or trailing (col-major) one is full.
	skip := 0
	if s.CellOrderVal == ColMajor {
		skip = n - 1
	}
	contig := true
	for i := 0; i < n; i++ {
		if i == skip {
			continue
		}
		if a.Lo[i] > b.Lo[i] || a.Hi[i] < b.Hi[i] {
			contig = false
			break
		}
	}
	if contig {
		return OverlapContig
	}
	return OverlapPartial
}

// ExpandDomain snaps every dimension of d outward to the nearest tile
// edge using the schema's tile extents; a no-op for irregular tiling
// (§4.1 "Expand domain to tile boundaries").
func (s *ArraySchema) ExpandDomain(d Range) Range {
	if !s.HasRegularTiles() {
		return d
	}
	n := s.DimNum()
	out := Range{Lo: make([]float64, n), Hi: make([]float64, n)}
	for i := 0; i < n; i++ {
		extent := s.TileExtents[i]
		domLo := s.Dimensions[i].Lo
		loTile := math.Floor((d.Lo[i] - domLo) / extent)
		hiTile := math.Floor((d.Hi[i] - domLo) / extent)
		out.Lo[i] = domLo + loTile*extent
		out.Hi[i] = domLo + (hiTile+1)*extent - 1
		if out.Hi[i] > s.Dimensions[i].Hi {
			out.Hi[i] = s.Dimensions[i].Hi
		}
	}
	return out
}
