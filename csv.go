package tdcore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCSVLine parses one CSV-text line into a Cell holding the schema's
// canonical binary attribute payload (§4.3 "CSV line ⇄ cell"). dimIDs and
// attrIDs give the field order the line was written in; missing values
// (empty fields) map to the type's NULL sentinel, `$` maps to DEL, and
// char sentinels are `*`/`$` directly.
func ParseCSVLine(schema *ArraySchema, line, delimiter string, dimIDs, attrIDs []int) (*Cell, error) {
	fields := strings.Split(line, delimiter)
	if len(fields) != len(dimIDs)+len(attrIDs) {
		return nil, newErr(ErrParse, fmt.Sprintf("expected %d fields, got %d", len(dimIDs)+len(attrIDs), len(fields)), nil)
	}

	coords := make([]float64, schema.DimNum())
	for i, d := range dimIDs {
		v, err := parseCoordField(schema.CoordsType, fields[i])
		if err != nil {
			return nil, err
		}
		coords[d] = v
	}

	var payload []byte
	for i, a := range attrIDs {
		field := fields[len(dimIDs)+i]
		attr := schema.Attributes[a]
		enc, err := encodeCSVField(attr, field)
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}

	return &Cell{Schema: schema, AttrIDs: attrIDs, Coords: coords, Payload: payload}, nil
}

func parseCoordField(t CoordsType, field string) (float64, error) {
	switch t {
	case CoordsInt32, CoordsInt64:
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return 0, newErr(ErrParse, fmt.Sprintf("invalid coordinate %q", field), err)
		}
		return float64(n), nil
	default:
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, newErr(ErrParse, fmt.Sprintf("invalid coordinate %q", field), err)
		}
		return f, nil
	}
}

// encodeCSVField encodes one CSV field into the attribute's canonical
// binary form: for variable attributes this is [count:i32][bytes]; for
// fixed attributes it is exactly val_num*type_size bytes.
func encodeCSVField(attr Attribute, field string) ([]byte, error) {
	if attr.Type == Char {
		return encodeCharField(attr, field), nil
	}

	null := field == "" || field == string(rune(NullChar))
	del := field == string(rune(DelChar))

	if attr.IsVar() {
		// Variable numeric attribute: comma-free single value per cell,
		// count is always 1 for the scalar CSV form.
		b := make([]byte, 4)
		nativeEndian.PutUint32(b, 1)
		v, err := encodeScalarField(attr.Type, field, null, del)
		if err != nil {
			return nil, err
		}
		return append(b, v...), nil
	}

	out := make([]byte, 0, int(attr.ValNum)*attr.Type.Size())
	for i := int32(0); i < attr.ValNum; i++ {
		v, err := encodeScalarField(attr.Type, field, null, del)
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

func encodeCharField(attr Attribute, field string) []byte {
	if attr.IsVar() {
		b := make([]byte, 4)
		nativeEndian.PutUint32(b, uint32(len(field)))
		return append(b, []byte(field)...)
	}
	out := make([]byte, attr.ValNum)
	copy(out, field)
	for i := len(field); i < int(attr.ValNum); i++ {
		out[i] = NullChar
	}
	return out
}

func encodeScalarField(t CellType, field string, null, del bool) ([]byte, error) {
	b := make([]byte, t.Size())
	if (null || del) && (t == Uint8 || t == Uint16 || t == Uint32 || t == Uint64) {
		// Unsigned NULL (the type's maximum) and DEL (one below it) have
		// the bit patterns of -1 and -2, which the branches below store.
		field = "-1"
		if del {
			field = "-2"
		}
		null, del = false, false
	}
	switch t {
	case Int8, Uint8:
		var v int64
		var err error
		switch {
		case null:
			v = int64(NullI8)
		case del:
			v = int64(DelI8)
		default:
			v, err = strconv.ParseInt(field, 10, 8)
		}
		if err != nil {
			return nil, newErr(ErrParse, fmt.Sprintf("invalid value %q", field), err)
		}
		b[0] = byte(v)
	case Int16, Uint16:
		var v int64
		var err error
		switch {
		case null:
			v = int64(NullI16)
		case del:
			v = int64(DelI16)
		default:
			v, err = strconv.ParseInt(field, 10, 16)
		}
		if err != nil {
			return nil, newErr(ErrParse, fmt.Sprintf("invalid value %q", field), err)
		}
		nativeEndian.PutUint16(b, uint16(v))
	case Int32, Uint32:
		var v int64
		var err error
		switch {
		case null:
			v = int64(NullI32)
		case del:
			v = int64(DelI32)
		default:
			v, err = strconv.ParseInt(field, 10, 32)
		}
		if err != nil {
			return nil, newErr(ErrParse, fmt.Sprintf("invalid value %q", field), err)
		}
		nativeEndian.PutUint32(b, uint32(v))
	case Int64, Uint64:
		var v int64
		var err error
		switch {
		case null:
			v = int64(NullI64)
		case del:
			v = int64(DelI64)
		default:
			v, err = strconv.ParseInt(field, 10, 64)
		}
		if err != nil {
			return nil, newErr(ErrParse, fmt.Sprintf("invalid value %q", field), err)
		}
		nativeEndian.PutUint64(b, uint64(v))
	case Float32:
		var v float64
		var err error
		switch {
		case null:
			v = float64(NullF32)
		case del:
			v = float64(DelF32)
		default:
			v, err = strconv.ParseFloat(field, 32)
		}
		if err != nil {
			return nil, newErr(ErrParse, fmt.Sprintf("invalid value %q", field), err)
		}
		nativeEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		var v float64
		var err error
		switch {
		case null:
			v = NullF64
		case del:
			v = DelF64
		default:
			v, err = strconv.ParseFloat(field, 64)
		}
		if err != nil {
			return nil, newErr(ErrParse, fmt.Sprintf("invalid value %q", field), err)
		}
		nativeEndian.PutUint64(b, math.Float64bits(v))
	default:
		return nil, newErr(ErrCodec, "unknown cell type", nil)
	}
	return b, nil
}
