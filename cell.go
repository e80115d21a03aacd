package tdcore

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Cell is a logical (coords, attrs...) tuple (§4.2 "Cell object contract").
// Coords is always the decoded coordinate vector; Payload holds the
// encoded attribute bytes, in AttrIDs order, using the wire layout of
// §4.2 (var-length attributes framed as [count:i32][bytes]). Payload
// never includes the leading coords block or the cell_size prefix -
// those are handled by the binary file codec (binfile.go) that frames
// a whole cell.
type Cell struct {
	Schema  *ArraySchema
	AttrIDs []int
	Coords  []float64
	Payload []byte
}

// nativeEndian is the byte order the wire format uses for every
// multi-byte integer; §6 flags this as platform-native and therefore
// non-portable across endianness boundaries by design, matching the
// source's own assumption (see DESIGN.md).
var nativeEndian = binary.NativeEndian

// ValNum returns attribute attrID's val_num (VarSize for variable).
func (c *Cell) ValNum(attrID int) int32 {
	return c.Schema.Attributes[attrID].ValNum
}

// VarSize reports whether attribute attrID is variable-sized.
func (c *Cell) VarSize(attrID int) bool {
	return c.Schema.Attributes[attrID].IsVar()
}

// IsVarSize reports whether the cell as a whole is variable-sized: true
// the moment any attribute in AttrIDs is variable (§3 Inv. 4).
func (c *Cell) IsVarSize() bool {
	for _, id := range c.AttrIDs {
		if c.VarSize(id) {
			return true
		}
	}
	return false
}

// CellPayload returns the raw attribute byte buffer.
func (c *Cell) CellPayload() []byte {
	return c.Payload
}

// SetPayload replaces the coordinates and attribute payload in place,
// letting a caller reuse one Cell across repeated reads (§4.2, "for
// iterator reuse").
func (c *Cell) SetPayload(coords []float64, payload []byte) {
	c.Coords = coords
	c.Payload = payload
}

// Precedes/Succeeds delegate to the schema's ordering predicate over the
// leading coordinates block (§4.2 "Comparator on cells").
func (c *Cell) Precedes(other *Cell) (bool, error) {
	return c.Schema.Precedes(c.Coords, other.Coords)
}

func (c *Cell) Succeeds(other *Cell) (bool, error) {
	return c.Schema.Succeeds(c.Coords, other.Coords)
}

// AttrValue is one (attr_id, offset, typed value) triple yielded by
// AttrIter; Value holds a decoded scalar or, for a fixed val_num > 1 or
// a variable attribute, a slice of the element type.
type AttrValue struct {
	AttrID int
	Offset int
	Value  any
}

// AttrIter walks a Cell's attributes in AttrIDs order, decoding each
// value from Payload (§4.2 "AttrIter"). It is restartable and finite:
// End() is true once every attribute has been consumed.
type AttrIter struct {
	cell   *Cell
	idx    int
	offset int
	err    error
}

// AttrBegin returns a fresh iterator positioned before the first
// attribute.
func (c *Cell) AttrBegin() *AttrIter {
	return &AttrIter{cell: c}
}

// End reports whether every attribute has been consumed.
func (it *AttrIter) End() bool {
	return it.idx >= len(it.cell.AttrIDs)
}

// Err returns the first decode error encountered, if any.
func (it *AttrIter) Err() error {
	return it.err
}

// Next decodes and returns the next attribute triple, advancing the
// cursor by val_num*type_size (fixed) or sizeof(i32)+count*type_size
// (variable), validating the count field against the remaining buffer.
func (it *AttrIter) Next() (AttrValue, bool) {
	if it.err != nil || it.End() {
		return AttrValue{}, false
	}
	attrID := it.cell.AttrIDs[it.idx]
	attr := it.cell.Schema.Attributes[attrID]
	buf := it.cell.Payload
	off := it.offset

	if attr.IsVar() {
		if off+4 > len(buf) {
			it.err = newErr(ErrCodec, "truncated variable attribute count", nil)
			return AttrValue{}, false
		}
		count := int32(nativeEndian.Uint32(buf[off : off+4]))
		if count < 0 {
			it.err = newErr(ErrCodec, "negative variable-length count", nil)
			return AttrValue{}, false
		}
		off += 4
		n := int(count) * attr.Type.Size()
		if off+n > len(buf) {
			it.err = newErr(ErrCodec, "variable attribute payload shorter than declared count", nil)
			return AttrValue{}, false
		}
		val, err := decodeSlice(attr.Type, buf[off:off+n], int(count))
		if err != nil {
			it.err = err
			return AttrValue{}, false
		}
		result := AttrValue{AttrID: attrID, Offset: it.offset, Value: val}
		it.offset = off + n
		it.idx++
		return result, true
	}

	n := int(attr.ValNum) * attr.Type.Size()
	if off+n > len(buf) {
		it.err = newErr(ErrCodec, "attribute payload shorter than declared val_num", nil)
		return AttrValue{}, false
	}
	var val any
	var err error
	if attr.ValNum == 1 {
		val, err = decodeScalar(attr.Type, buf[off:off+n])
	} else {
		val, err = decodeSlice(attr.Type, buf[off:off+n], int(attr.ValNum))
	}
	if err != nil {
		it.err = err
		return AttrValue{}, false
	}
	result := AttrValue{AttrID: attrID, Offset: it.offset, Value: val}
	it.offset = off + n
	it.idx++
	return result, true
}

func decodeScalar(t CellType, b []byte) (any, error) {
	switch t {
	case Char, Int8:
		return int8(b[0]), nil
	case Uint8:
		return uint8(b[0]), nil
	case Int16:
		return int16(nativeEndian.Uint16(b)), nil
	case Uint16:
		return nativeEndian.Uint16(b), nil
	case Int32:
		return int32(nativeEndian.Uint32(b)), nil
	case Uint32:
		return nativeEndian.Uint32(b), nil
	case Int64:
		return int64(nativeEndian.Uint64(b)), nil
	case Uint64:
		return nativeEndian.Uint64(b), nil
	case Float32:
		return math.Float32frombits(nativeEndian.Uint32(b)), nil
	case Float64:
		return math.Float64frombits(nativeEndian.Uint64(b)), nil
	default:
		return nil, newErr(ErrCodec, "unknown cell type", nil)
	}
}

func decodeSlice(t CellType, b []byte, count int) (any, error) {
	size := t.Size()
	switch t {
	case Char:
		return string(b[:count]), nil
	case Int8:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out, nil
	case Uint8:
		return append([]byte(nil), b[:count]...), nil
	case Int16:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(nativeEndian.Uint16(b[i*size:]))
		}
		return out, nil
	case Uint16:
		out := make([]uint16, count)
		for i := range out {
			out[i] = nativeEndian.Uint16(b[i*size:])
		}
		return out, nil
	case Int32:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(nativeEndian.Uint32(b[i*size:]))
		}
		return out, nil
	case Uint32:
		out := make([]uint32, count)
		for i := range out {
			out[i] = nativeEndian.Uint32(b[i*size:])
		}
		return out, nil
	case Int64:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(nativeEndian.Uint64(b[i*size:]))
		}
		return out, nil
	case Uint64:
		out := make([]uint64, count)
		for i := range out {
			out[i] = nativeEndian.Uint64(b[i*size:])
		}
		return out, nil
	case Float32:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(nativeEndian.Uint32(b[i*size:]))
		}
		return out, nil
	case Float64:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(nativeEndian.Uint64(b[i*size:]))
		}
		return out, nil
	default:
		return nil, newErr(ErrCodec, "unknown cell type", nil)
	}
}

// CSVLine renders the cell as one CSV line in the given (dimIDs, attrIDs)
// order, using delimiter and decimal precision, NULL as '*' and DEL as
// '$' (§4.2 "A CSV-line formatter").
func (c *Cell) CSVLine(dimIDs, attrIDs []int, delimiter string, precision int) (string, error) {
	var b strings.Builder
	for i, d := range dimIDs {
		if i > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(formatCoordValue(c.Schema.CoordsType, c.Coords[d], precision))
	}

	it := &AttrIter{cell: c}
	values := make(map[int]AttrValue, len(c.AttrIDs))
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		values[v.AttrID] = v
	}
	if it.Err() != nil {
		return "", it.Err()
	}

	for _, a := range attrIDs {
		b.WriteString(delimiter)
		v, ok := values[a]
		if !ok {
			return "", newErr(ErrInvalidArgument, fmt.Sprintf("attribute id %d not present in cell", a), nil)
		}
		b.WriteString(formatAttrValue(c.Schema.Attributes[a], v.Value, precision))
	}

	return b.String(), nil
}

func formatCoordValue(t CoordsType, v float64, precision int) string {
	switch t {
	case CoordsInt32, CoordsInt64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return strconv.FormatFloat(v, 'f', precision, 64)
	}
}

// splitCellFields splits a cell's Payload into one raw byte slice per
// attribute in attrIDs order - each slice is exactly the wire-format
// field for that attribute, var-length count prefix included where
// applicable. Used by fragment.go to spread a row-wise cell across the
// per-attribute columnar .tdt files of §4.5's fragment layout.
func splitCellFields(schema *ArraySchema, attrIDs []int, payload []byte) ([][]byte, error) {
	fields := make([][]byte, len(attrIDs))
	off := 0
	for i, attrID := range attrIDs {
		attr := schema.Attributes[attrID]
		if attr.IsVar() {
			if off+4 > len(payload) {
				return nil, newErr(ErrCodec, "truncated variable attribute count", nil)
			}
			count := int32(nativeEndian.Uint32(payload[off : off+4]))
			if count < 0 {
				return nil, newErr(ErrCodec, "negative variable-length count", nil)
			}
			n := 4 + int(count)*attr.Type.Size()
			if off+n > len(payload) {
				return nil, newErr(ErrCodec, "variable attribute payload shorter than declared count", nil)
			}
			fields[i] = payload[off : off+n]
			off += n
			continue
		}
		n := int(attr.ValNum) * attr.Type.Size()
		if off+n > len(payload) {
			return nil, newErr(ErrCodec, "attribute payload shorter than declared val_num", nil)
		}
		fields[i] = payload[off : off+n]
		off += n
	}
	return fields, nil
}

// readCellField reads exactly one attribute field from r, var-length
// count prefix included, mirroring splitCellFields' framing so a fragment
// reader can reassemble the same byte layout a writer produced.
func readCellField(r io.Reader, attr Attribute) ([]byte, error) {
	if attr.IsVar() {
		var head [4]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, newErr(ErrIO, "reading variable attribute count", err)
		}
		count := int32(nativeEndian.Uint32(head[:]))
		if count < 0 {
			return nil, newErr(ErrCodec, "negative variable-length count", nil)
		}
		body := make([]byte, count*int32(attr.Type.Size()))
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, newErr(ErrIO, "reading variable attribute payload: truncated stream", err)
		}
		return append(head[:], body...), nil
	}
	n := int(attr.ValNum) * attr.Type.Size()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, newErr(ErrIO, "reading attribute payload: truncated stream", err)
	}
	return buf, nil
}

// encodeNullField builds the wire-format field for one attribute filled
// with its type's NULL sentinel: a zero-count frame for a variable
// attribute, or val_num repetitions of the sentinel for a fixed one.
// Used by the dense iterator (iterator.go) to synthesize cells at
// coordinates no fragment has written (§4.2 NULL semantics, §6).
func encodeNullField(attr Attribute) []byte {
	if attr.IsVar() {
		return []byte{0, 0, 0, 0}
	}
	buf := make([]byte, int(attr.ValNum)*attr.Type.Size())
	for i := 0; i < int(attr.ValNum); i++ {
		encodeNullScalar(attr.Type, buf[i*attr.Type.Size():])
	}
	return buf
}

func encodeNullScalar(t CellType, b []byte) {
	switch t {
	case Char, Int8:
		b[0] = byte(NullI8)
	case Uint8:
		b[0] = NullU8
	case Int16:
		nativeEndian.PutUint16(b, uint16(NullI16))
	case Uint16:
		nativeEndian.PutUint16(b, NullU16)
	case Int32:
		nativeEndian.PutUint32(b, uint32(NullI32))
	case Uint32:
		nativeEndian.PutUint32(b, NullU32)
	case Int64:
		nativeEndian.PutUint64(b, uint64(NullI64))
	case Uint64:
		nativeEndian.PutUint64(b, NullU64)
	case Float32:
		nativeEndian.PutUint32(b, math.Float32bits(NullF32))
	case Float64:
		nativeEndian.PutUint64(b, math.Float64bits(NullF64))
	}
}

func formatAttrValue(attr Attribute, v any, precision int) string {
	if attr.Type == Char {
		if s, ok := v.(string); ok {
			return s
		}
		if b, ok := v.(int8); ok {
			if b == NullChar {
				return string(rune(NullChar))
			}
			return string(rune(b))
		}
	}
	if IsNull(v) {
		return string(rune(NullChar))
	}
	if IsDel(v) {
		return string(rune(DelChar))
	}
	switch x := v.(type) {
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', precision, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', precision, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
