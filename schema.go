package tdcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Dimension is one axis of an array's domain: a name and an inclusive
// [Lo, Hi] range expressed in float64 regardless of the array's coords
// type, matching the schema's own domain representation (§4.1).
type Dimension struct {
	Name string
	Lo   float64
	Hi   float64
}

// Range returns the inclusive domain width, Hi - Lo + 1 for integer
// coordinate types (callers needing the continuous width for float
// coordinates subtract 1 back out).
func (d Dimension) Range() float64 {
	return d.Hi - d.Lo + 1
}

// Attribute is one non-coordinate field of a cell: its name, scalar type,
// and val_num (VarSize for a variable-length attribute, §3 Inv. 4).
type Attribute struct {
	Name   string
	Type   CellType
	ValNum int32
}

// IsVar reports whether the attribute is variable-sized.
func (a Attribute) IsVar() bool {
	return a.ValNum == VarSize
}

// coordsAttrName is the reserved name for the coordinates "attribute",
// mirroring the original engine's AS_COORDINATES_NAME constant
// (SPEC_FULL.md Supplemented Features). No code in this module references
// it; export headers name each dimension individually.
const coordsAttrName = "__coords"

// ArraySchema is the canonical in-memory and on-disk schema: attributes,
// dimensions, coordinate type, cell/tile order, tiling, capacity,
// consolidation step and per-attribute compression, plus a set of
// derived quantities computed once at construction time and cached.
type ArraySchema struct {
	ArrayName         string
	Attributes        []Attribute
	Dimensions        []Dimension
	CoordsType        CoordsType
	CellOrderVal      CellOrder
	TileOrderVal      TileOrder
	TileExtents       []float64
	Capacity          int64
	ConsolidationStep int64
	Compression       []Compression

	cellSizes           []int32
	coordsSize          int32
	hilbertCellBits     int
	hilbertTileBits     int
	tileOffsetsRowMajor []int64
	tileOffsetsColMajor []int64
	tilesPerDim         []int64
}

// NewArraySchema validates the given fields and returns a ready-to-use
// schema with every derived quantity precomputed, or the first invariant
// violation found (§3).
func NewArraySchema(
	name string,
	attrs []Attribute,
	dims []Dimension,
	coordsType CoordsType,
	cellOrder CellOrder,
	tileOrder TileOrder,
	tileExtents []float64,
	capacity int64,
	consolidationStep int64,
	compression []Compression,
) (*ArraySchema, error) {
	s := &ArraySchema{
		ArrayName:         name,
		Attributes:        attrs,
		Dimensions:        dims,
		CoordsType:        coordsType,
		CellOrderVal:      cellOrder,
		TileOrderVal:      tileOrder,
		TileExtents:       tileExtents,
		Capacity:          capacity,
		ConsolidationStep: consolidationStep,
		Compression:       compression,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.derive()
	return s, nil
}

func (s *ArraySchema) DimNum() int {
	return len(s.Dimensions)
}

func (s *ArraySchema) AttributeNum() int {
	return len(s.Attributes)
}

// HasRegularTiles reports whether tiling is regular (non-empty extents),
// §3 Inv. 3.
func (s *ArraySchema) HasRegularTiles() bool {
	return len(s.TileExtents) > 0
}

func (s *ArraySchema) CellOrder() CellOrder {
	return s.CellOrderVal
}

func (s *ArraySchema) TileOrder() TileOrder {
	return s.TileOrderVal
}

// validate checks every invariant of §3, returning a tagged Schema error
// identifying the first violation.
func (s *ArraySchema) validate() error {
	if s.ArrayName == "" {
		return newErr(ErrSchema, "array_name must not be empty", nil)
	}
	if s.DimNum() == 0 {
		return newErr(ErrSchema, "schema must declare at least one dimension", nil)
	}

	// Inv. 1: distinct names across attributes and dimensions.
	seen := make(map[string]bool, len(s.Attributes)+s.DimNum())
	for _, a := range s.Attributes {
		if seen[a.Name] {
			return newErr(ErrSchema, fmt.Sprintf("duplicate name %q", a.Name), nil)
		}
		seen[a.Name] = true
	}
	for _, d := range s.Dimensions {
		if seen[d.Name] {
			return newErr(ErrSchema, fmt.Sprintf("duplicate name %q", d.Name), nil)
		}
		seen[d.Name] = true
		if d.Hi < d.Lo {
			return newErr(ErrSchema, fmt.Sprintf("dimension %q has hi < lo", d.Name), nil)
		}
	}

	// Inv. 2: char forbidden for coordinates; f32/f64 forbid Hilbert.
	if (s.CellOrderVal == Hilbert || s.TileOrderVal == TileHilbert) && s.CoordsType.IsFloat() {
		return newErr(ErrSchema, "hilbert order is not defined for floating-point coordinates", nil)
	}

	// Inv. 3: tile_extents empty <=> tile_order == None.
	if len(s.TileExtents) == 0 {
		if s.TileOrderVal != TileOrderNone {
			return newErr(ErrSchema, "irregular tiling requires tile_order = None", nil)
		}
		if s.Capacity <= 0 {
			return newErr(ErrSchema, "capacity must be positive for irregular tiles", nil)
		}
	} else {
		if s.TileOrderVal == TileOrderNone {
			return newErr(ErrSchema, "regular tiling requires a concrete tile_order", nil)
		}
		if len(s.TileExtents) != s.DimNum() {
			return newErr(ErrSchema, "tile_extents length must equal dim_num", nil)
		}
		for i, e := range s.TileExtents {
			if e <= 0 {
				return newErr(ErrSchema, fmt.Sprintf("tile extent[%d] must be positive", i), nil)
			}
			if e > s.Dimensions[i].Range() {
				return newErr(ErrSchema, fmt.Sprintf("tile extent[%d] exceeds domain range", i), nil)
			}
		}
	}

	// Inv. 5: compression length.
	if len(s.Compression) != len(s.Attributes)+1 {
		return newErr(ErrSchema, "compression must carry one entry per attribute plus one for coordinates", nil)
	}
	for _, c := range s.Compression {
		if c != CompressionNone && c != CompressionGzip && c != CompressionRle && c != CompressionLz {
			return newErr(ErrSchema, "unknown compression tag", nil)
		}
	}

	for _, a := range s.Attributes {
		if a.ValNum != VarSize && a.ValNum <= 0 {
			return newErr(ErrSchema, fmt.Sprintf("attribute %q has invalid val_num", a.Name), nil)
		}
	}

	if s.ConsolidationStep <= 0 {
		return newErr(ErrSchema, "consolidation_step must be positive", nil)
	}

	return nil
}

// derive computes every cached quantity described in §4.1's "Derived
// quantities" once, at construction time.
func (s *ArraySchema) derive() {
	s.cellSizes = make([]int32, len(s.Attributes))
	for i, a := range s.Attributes {
		if a.IsVar() {
			s.cellSizes[i] = VarSize
		} else {
			s.cellSizes[i] = a.ValNum * int32(a.Type.Size())
		}
	}
	s.coordsSize = int32(s.DimNum()) * int32(s.CoordsType.Size())

	s.computeHilbertCellBits()
	if s.HasRegularTiles() {
		s.computeHilbertTileBits()
		s.computeTileOffsets()
	}
}

func (s *ArraySchema) computeHilbertCellBits() {
	maxRange := 0.0
	for i, d := range s.Dimensions {
		var r float64
		if s.HasRegularTiles() {
			r = s.TileExtents[i]
		} else {
			r = d.Range()
		}
		if r > maxRange {
			maxRange = r
		}
	}
	s.hilbertCellBits = int(math.Ceil(math.Log2(math.Floor(maxRange + 0.5))))
	if s.hilbertCellBits <= 0 {
		s.hilbertCellBits = 1
	}
}

func (s *ArraySchema) computeHilbertTileBits() {
	maxRange := 0.0
	s.tilesPerDim = make([]int64, s.DimNum())
	for i, d := range s.Dimensions {
		tiles := d.Range() / s.TileExtents[i]
		s.tilesPerDim[i] = int64(math.Ceil(tiles))
		if tiles > maxRange {
			maxRange = tiles
		}
	}
	s.hilbertTileBits = int(math.Ceil(math.Log2(maxRange + 0.5)))
	if s.hilbertTileBits <= 0 {
		s.hilbertTileBits = 1
	}
}

// computeTileOffsets computes the running products of tile counts per
// dimension, used to collapse a tile-coordinate vector into a single
// row-major or column-major tile id.
func (s *ArraySchema) computeTileOffsets() {
	n := s.DimNum()
	s.tileOffsetsRowMajor = make([]int64, n)
	s.tileOffsetsColMajor = make([]int64, n)

	var offset int64 = 1
	for i := n - 1; i >= 0; i-- {
		s.tileOffsetsRowMajor[i] = offset
		offset *= s.tilesPerDim[i]
	}
	offset = 1
	for i := 0; i < n; i++ {
		s.tileOffsetsColMajor[i] = offset
		offset *= s.tilesPerDim[i]
	}
}

// CellSize returns the byte size of attribute attrID's fixed-size value,
// or VarSize for a variable attribute.
func (s *ArraySchema) CellSize(attrID int) int32 {
	return s.cellSizes[attrID]
}

// CoordsSize returns the byte size of one coordinate tuple.
func (s *ArraySchema) CoordsSize() int32 {
	return s.coordsSize
}

// CellSizeTotal returns the fixed byte size of a whole cell (coordinates
// plus every attribute in attrIDs order), or VarSize if any attribute in
// that list is variable-sized (§3 Inv. 4).
func (s *ArraySchema) CellSizeTotal(attrIDs []int) int32 {
	total := s.coordsSize
	for _, id := range attrIDs {
		if s.cellSizes[id] == VarSize {
			return VarSize
		}
		total += s.cellSizes[id]
	}
	return total
}

// AttributeIDsAll returns 0..AttributeNum()-1: the "all attributes"
// reading documented for a zero-length attribute-id request (§9 Open
// Questions: zero means all, per the documentation rather than the
// source's apparently-inverted checks).
func (s *ArraySchema) AttributeIDsAll() []int {
	return lo.Range(s.AttributeNum())
}

// Clone returns a deep copy of the schema under a new array name
// (original's ArraySchema::clone(name), SPEC_FULL.md Supplemented Features).
func (s *ArraySchema) Clone(newName string) *ArraySchema {
	clone := *s
	clone.ArrayName = newName
	clone.Attributes = append([]Attribute(nil), s.Attributes...)
	clone.Dimensions = append([]Dimension(nil), s.Dimensions...)
	clone.TileExtents = append([]float64(nil), s.TileExtents...)
	clone.Compression = append([]Compression(nil), s.Compression...)
	clone.cellSizes = append([]int32(nil), s.cellSizes...)
	clone.tileOffsetsRowMajor = append([]int64(nil), s.tileOffsetsRowMajor...)
	clone.tileOffsetsColMajor = append([]int64(nil), s.tileOffsetsColMajor...)
	clone.tilesPerDim = append([]int64(nil), s.tilesPerDim...)
	return &clone
}

// CloneSubset returns a deep copy restricted to the given attribute ids,
// renamed, with dimensions, coordinates and derived geometry left
// untouched (original's ArraySchema::clone(name, attribute_ids),
// SPEC_FULL.md Supplemented Features). attrIDs must be sorted and valid.
func (s *ArraySchema) CloneSubset(newName string, attrIDs []int) (*ArraySchema, error) {
	for _, id := range attrIDs {
		if id < 0 || id >= s.AttributeNum() {
			return nil, newErr(ErrInvalidArgument, fmt.Sprintf("attribute id %d out of range", id), nil)
		}
	}
	clone := s.Clone(newName)
	attrs := make([]Attribute, len(attrIDs))
	compression := make([]Compression, len(attrIDs)+1)
	cellSizes := make([]int32, len(attrIDs))
	for i, id := range attrIDs {
		attrs[i] = s.Attributes[id]
		compression[i] = s.Compression[id]
		cellSizes[i] = s.cellSizes[id]
	}
	compression[len(attrIDs)] = s.Compression[s.AttributeNum()]
	clone.Attributes = attrs
	clone.Compression = compression
	clone.cellSizes = cellSizes
	return clone, nil
}

// Transpose swaps the two dimension domains of a 2-D schema, rebuilding
// every derived quantity (original's ArraySchema::transpose, SPEC_FULL.md
// Supplemented Features).
func (s *ArraySchema) Transpose(newName string) (*ArraySchema, error) {
	if s.DimNum() != 2 {
		return nil, newErr(ErrInvalidArgument, "transpose is only defined for 2-D schemas", nil)
	}
	dims := []Dimension{s.Dimensions[1], s.Dimensions[0]}
	extents := s.TileExtents
	if len(extents) == 2 {
		extents = []float64{s.TileExtents[1], s.TileExtents[0]}
	}
	return NewArraySchema(newName, append([]Attribute(nil), s.Attributes...), dims, s.CoordsType,
		s.CellOrderVal, s.TileOrderVal, extents, s.Capacity, s.ConsolidationStep,
		append([]Compression(nil), s.Compression...))
}

// CompatibleWith reports whether two schemas may be merged by
// consolidation: same coordinates type/order and the same attribute set
// in the same order (original's unnamed comparison routine in
// array_schema.cc, SPEC_FULL.md Supplemented Features). Tile extents and
// capacity are not compared. The returned string names the first
// mismatch when false.
func (s *ArraySchema) CompatibleWith(other *ArraySchema) (bool, string) {
	if s.CoordsType != other.CoordsType {
		return false, "coords_type mismatch"
	}
	if s.CellOrderVal != other.CellOrderVal {
		return false, "cell_order mismatch"
	}
	if s.TileOrderVal != other.TileOrderVal {
		return false, "tile_order mismatch"
	}
	if s.DimNum() != other.DimNum() {
		return false, "dim_num mismatch"
	}
	for i := range s.Dimensions {
		if s.Dimensions[i] != other.Dimensions[i] {
			return false, fmt.Sprintf("dimension %d mismatch", i)
		}
	}
	if len(s.Attributes) != len(other.Attributes) {
		return false, "attribute_num mismatch"
	}
	for i := range s.Attributes {
		if s.Attributes[i] != other.Attributes[i] {
			return false, fmt.Sprintf("attribute %d mismatch", i)
		}
	}
	return true, ""
}

// --- CSV wire form (§6) ---

func typeToken(t CellType) string {
	switch t {
	case Char:
		return "char"
	case Int32:
		return "int"
	case Int64:
		return "int64"
	case Float32:
		return "float"
	case Float64:
		return "double"
	default:
		return t.String()
	}
}

func tokenToType(tok string) (CellType, error) {
	switch tok {
	case "char":
		return Char, nil
	case "int":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	default:
		return Char, newErr(ErrParse, fmt.Sprintf("unknown type token %q", tok), nil)
	}
}

func coordsTypeToken(t CoordsType) string {
	return typeToken(t.CellType())
}

func tokenToCoordsType(tok string) (CoordsType, error) {
	ct, err := tokenToType(tok)
	if err != nil {
		return 0, err
	}
	switch ct {
	case Int32:
		return CoordsInt32, nil
	case Int64:
		return CoordsInt64, nil
	case Float32:
		return CoordsFloat32, nil
	case Float64:
		return CoordsFloat64, nil
	default:
		return 0, newErr(ErrSchema, "char is not a valid coords_type", nil)
	}
}

func cellOrderToken(o CellOrder) string {
	switch o {
	case RowMajor:
		return "row-major"
	case ColMajor:
		return "column-major"
	case Hilbert:
		return "hilbert"
	default:
		return "*"
	}
}

func tileOrderToken(o TileOrder) string {
	switch o {
	case TileRowMajor:
		return "row-major"
	case TileColMajor:
		return "column-major"
	case TileHilbert:
		return "hilbert"
	default:
		return "*"
	}
}

// CSV serializes the schema to its single-line textual wire form (§6).
func (s *ArraySchema) CSV() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s,", s.ArrayName)

	fmt.Fprintf(&b, "%d,", len(s.Attributes))
	for _, a := range s.Attributes {
		if a.IsVar() {
			fmt.Fprintf(&b, "%s:var,", a.Name)
		} else {
			fmt.Fprintf(&b, "%s,", a.Name)
		}
	}

	fmt.Fprintf(&b, "%d,", s.DimNum())
	for _, d := range s.Dimensions {
		fmt.Fprintf(&b, "%s,", d.Name)
	}
	for _, d := range s.Dimensions {
		fmt.Fprintf(&b, "%s,%s,", formatFloat(d.Lo), formatFloat(d.Hi))
	}

	for _, a := range s.Attributes {
		if a.IsVar() {
			fmt.Fprintf(&b, "%s:var,", typeToken(a.Type))
		} else if a.ValNum != 1 {
			fmt.Fprintf(&b, "%s:%d,", typeToken(a.Type), a.ValNum)
		} else {
			fmt.Fprintf(&b, "%s,", typeToken(a.Type))
		}
	}

	fmt.Fprintf(&b, "%s,", coordsTypeToken(s.CoordsType))

	if len(s.TileExtents) == 0 {
		b.WriteString("*,")
	} else {
		for _, e := range s.TileExtents {
			fmt.Fprintf(&b, "%s,", formatFloat(e))
		}
	}

	fmt.Fprintf(&b, "%s,", cellOrderToken(s.CellOrderVal))
	fmt.Fprintf(&b, "%s,", tileOrderToken(s.TileOrderVal))

	if len(s.TileExtents) == 0 {
		fmt.Fprintf(&b, "%d,", s.Capacity)
	} else {
		b.WriteString("*,")
	}

	fmt.Fprintf(&b, "%d", s.ConsolidationStep)

	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseSchemaCSV deserializes the single-line schema wire form (§6); it
// is the left inverse of (*ArraySchema).CSV for any schema that round-trips.
func ParseSchemaCSV(line string) (*ArraySchema, error) {
	fields := strings.Split(strings.TrimRight(line, "\n"), ",")
	pop := func() (string, error) {
		if len(fields) == 0 {
			return "", newErr(ErrParse, "unexpected end of schema CSV", nil)
		}
		v := fields[0]
		fields = fields[1:]
		return v, nil
	}
	popInt := func() (int, error) {
		v, err := pop()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, newErr(ErrParse, fmt.Sprintf("expected integer, got %q", v), err)
		}
		return n, nil
	}

	name, err := pop()
	if err != nil {
		return nil, err
	}

	attrNum, err := popInt()
	if err != nil {
		return nil, err
	}
	attrNames := make([]string, attrNum)
	attrVarFlags := make([]bool, attrNum)
	for i := 0; i < attrNum; i++ {
		tok, err := pop()
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(tok, ":", 2)
		attrNames[i] = parts[0]
		attrVarFlags[i] = len(parts) == 2 && parts[1] == "var"
	}

	dimNum, err := popInt()
	if err != nil {
		return nil, err
	}
	dimNames := make([]string, dimNum)
	for i := 0; i < dimNum; i++ {
		if dimNames[i], err = pop(); err != nil {
			return nil, err
		}
	}
	dims := make([]Dimension, dimNum)
	for i := 0; i < dimNum; i++ {
		lo, err := pop()
		if err != nil {
			return nil, err
		}
		hi, err := pop()
		if err != nil {
			return nil, err
		}
		loF, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return nil, newErr(ErrParse, "invalid dimension lo", err)
		}
		hiF, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return nil, newErr(ErrParse, "invalid dimension hi", err)
		}
		dims[i] = Dimension{Name: dimNames[i], Lo: loF, Hi: hiF}
	}

	attrs := make([]Attribute, attrNum)
	for i := 0; i < attrNum; i++ {
		tok, err := pop()
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(tok, ":", 2)
		ct, err := tokenToType(parts[0])
		if err != nil {
			return nil, err
		}
		valNum := int32(1)
		if attrVarFlags[i] {
			valNum = VarSize
		} else if len(parts) == 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, newErr(ErrParse, "invalid val_num", err)
			}
			valNum = int32(n)
		}
		attrs[i] = Attribute{Name: attrNames[i], Type: ct, ValNum: valNum}
	}

	coordsTok, err := pop()
	if err != nil {
		return nil, err
	}
	coordsType, err := tokenToCoordsType(coordsTok)
	if err != nil {
		return nil, err
	}

	var tileExtents []float64
	first, err := pop()
	if err != nil {
		return nil, err
	}
	if first != "*" {
		tileExtents = make([]float64, dimNum)
		v, err := strconv.ParseFloat(first, 64)
		if err != nil {
			return nil, newErr(ErrParse, "invalid tile extent", err)
		}
		tileExtents[0] = v
		for i := 1; i < dimNum; i++ {
			tok, err := pop()
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, newErr(ErrParse, "invalid tile extent", err)
			}
			tileExtents[i] = v
		}
	}

	cellOrderTok, err := pop()
	if err != nil {
		return nil, err
	}
	cellOrder, err := parseCellOrder(cellOrderTok)
	if err != nil {
		return nil, err
	}

	tileOrderTok, err := pop()
	if err != nil {
		return nil, err
	}
	tileOrder, err := parseTileOrder(tileOrderTok)
	if err != nil {
		return nil, err
	}

	capTok, err := pop()
	if err != nil {
		return nil, err
	}
	var capacity int64
	if capTok != "*" {
		n, err := strconv.ParseInt(capTok, 10, 64)
		if err != nil {
			return nil, newErr(ErrParse, "invalid capacity", err)
		}
		capacity = n
	}

	stepTok, err := pop()
	if err != nil {
		return nil, err
	}
	var step int64
	if stepTok == "*" {
		step = 1
	} else {
		n, err := strconv.ParseInt(stepTok, 10, 64)
		if err != nil {
			return nil, newErr(ErrParse, "invalid consolidation_step", err)
		}
		step = n
	}

	compression := make([]Compression, attrNum+1)

	return NewArraySchema(name, attrs, dims, coordsType, cellOrder, tileOrder, tileExtents, capacity, step, compression)
}

func parseCellOrder(tok string) (CellOrder, error) {
	switch tok {
	case "row-major":
		return RowMajor, nil
	case "column-major":
		return ColMajor, nil
	case "hilbert":
		return Hilbert, nil
	default:
		return 0, newErr(ErrParse, fmt.Sprintf("unknown cell_order %q", tok), nil)
	}
}

func parseTileOrder(tok string) (TileOrder, error) {
	switch tok {
	case "row-major":
		return TileRowMajor, nil
	case "column-major":
		return TileColMajor, nil
	case "hilbert":
		return TileHilbert, nil
	case "*":
		return TileOrderNone, nil
	default:
		return 0, newErr(ErrParse, fmt.Sprintf("unknown tile_order %q", tok), nil)
	}
}

// --- binary serialization (§4.1 "Serialization") ---
//
// Tagged lengths, strings and arrays of primitives, in little-endian byte
// order regardless of platform (cell payloads, by contrast, use the
// platform's native order; see cell.go's nativeEndian).

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, int32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", newErr(ErrIO, "reading string length", err)
	}
	if n < 0 || int(n) > r.Len() {
		return "", newErr(ErrCodec, "corrupt string length", nil)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", newErr(ErrIO, "reading string bytes", err)
	}
	return string(b), nil
}

// MarshalBinary serializes the schema to its binary on-disk form, used
// for the array_schema bookkeeping file (§4.5).
func (s *ArraySchema) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, s.ArrayName)

	binary.Write(&buf, binary.LittleEndian, int32(len(s.Attributes)))
	for _, a := range s.Attributes {
		writeString(&buf, a.Name)
		binary.Write(&buf, binary.LittleEndian, int32(a.Type))
		binary.Write(&buf, binary.LittleEndian, a.ValNum)
	}

	binary.Write(&buf, binary.LittleEndian, int32(len(s.Dimensions)))
	for _, d := range s.Dimensions {
		writeString(&buf, d.Name)
		binary.Write(&buf, binary.LittleEndian, d.Lo)
		binary.Write(&buf, binary.LittleEndian, d.Hi)
	}

	binary.Write(&buf, binary.LittleEndian, int32(s.CoordsType))
	binary.Write(&buf, binary.LittleEndian, int32(s.CellOrderVal))
	binary.Write(&buf, binary.LittleEndian, int32(s.TileOrderVal))

	binary.Write(&buf, binary.LittleEndian, int32(len(s.TileExtents)))
	for _, e := range s.TileExtents {
		binary.Write(&buf, binary.LittleEndian, e)
	}

	binary.Write(&buf, binary.LittleEndian, s.Capacity)
	binary.Write(&buf, binary.LittleEndian, s.ConsolidationStep)

	binary.Write(&buf, binary.LittleEndian, int32(len(s.Compression)))
	for _, c := range s.Compression {
		binary.Write(&buf, binary.LittleEndian, int32(c))
	}

	return buf.Bytes(), nil
}

// UnmarshalSchemaBinary is the left inverse of MarshalBinary (§8 Property
// 1, "schema round-trip").
func UnmarshalSchemaBinary(data []byte) (*ArraySchema, error) {
	r := bytes.NewReader(data)

	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var attrNum int32
	if err := binary.Read(r, binary.LittleEndian, &attrNum); err != nil {
		return nil, newErr(ErrIO, "reading attribute_num", err)
	}
	attrs := make([]Attribute, attrNum)
	for i := range attrs {
		n, err := readString(r)
		if err != nil {
			return nil, err
		}
		var ct, valNum int32
		if err := binary.Read(r, binary.LittleEndian, &ct); err != nil {
			return nil, newErr(ErrIO, "reading attribute type", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &valNum); err != nil {
			return nil, newErr(ErrIO, "reading attribute val_num", err)
		}
		attrs[i] = Attribute{Name: n, Type: CellType(ct), ValNum: valNum}
	}

	var dimNum int32
	if err := binary.Read(r, binary.LittleEndian, &dimNum); err != nil {
		return nil, newErr(ErrIO, "reading dim_num", err)
	}
	dims := make([]Dimension, dimNum)
	for i := range dims {
		n, err := readString(r)
		if err != nil {
			return nil, err
		}
		var lo, hi float64
		if err := binary.Read(r, binary.LittleEndian, &lo); err != nil {
			return nil, newErr(ErrIO, "reading dimension lo", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &hi); err != nil {
			return nil, newErr(ErrIO, "reading dimension hi", err)
		}
		dims[i] = Dimension{Name: n, Lo: lo, Hi: hi}
	}

	var coordsType, cellOrder, tileOrder int32
	if err := binary.Read(r, binary.LittleEndian, &coordsType); err != nil {
		return nil, newErr(ErrIO, "reading coords_type", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cellOrder); err != nil {
		return nil, newErr(ErrIO, "reading cell_order", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &tileOrder); err != nil {
		return nil, newErr(ErrIO, "reading tile_order", err)
	}

	var extentNum int32
	if err := binary.Read(r, binary.LittleEndian, &extentNum); err != nil {
		return nil, newErr(ErrIO, "reading tile_extents length", err)
	}
	var extents []float64
	if extentNum > 0 {
		extents = make([]float64, extentNum)
		for i := range extents {
			if err := binary.Read(r, binary.LittleEndian, &extents[i]); err != nil {
				return nil, newErr(ErrIO, "reading tile extent", err)
			}
		}
	}

	var capacity, step int64
	if err := binary.Read(r, binary.LittleEndian, &capacity); err != nil {
		return nil, newErr(ErrIO, "reading capacity", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &step); err != nil {
		return nil, newErr(ErrIO, "reading consolidation_step", err)
	}

	var compNum int32
	if err := binary.Read(r, binary.LittleEndian, &compNum); err != nil {
		return nil, newErr(ErrIO, "reading compression length", err)
	}
	compression := make([]Compression, compNum)
	for i := range compression {
		var c int32
		if err := binary.Read(r, binary.LittleEndian, &c); err != nil {
			return nil, newErr(ErrIO, "reading compression tag", err)
		}
		compression[i] = Compression(c)
	}

	return NewArraySchema(name, attrs, dims, CoordsType(coordsType), CellOrder(cellOrder),
		TileOrder(tileOrder), extents, capacity, step, compression)
}
