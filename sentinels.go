package tdcore

import "math"

// VarSize is the sentinel cell_size()/val_num used to mark a variable-sized
// attribute or a variable-sized cell as a whole (§6 VAR_SIZE).
const VarSize int32 = math.MaxInt32

// NullChar/DelChar are the rendered sentinels for missing/deleted char
// attributes in the CSV cell format (§6).
const (
	NullChar = '*'
	DelChar  = '$'
)

// Per-type NULL sentinels: the type's maximum representable value.
const (
	NullI8  int8   = math.MaxInt8
	NullU8  uint8  = math.MaxUint8
	NullI16 int16  = math.MaxInt16
	NullU16 uint16 = math.MaxUint16
	NullI32 int32  = math.MaxInt32
	NullU32 uint32 = math.MaxUint32
	NullI64 int64  = math.MaxInt64
	NullU64 uint64 = math.MaxUint64
)

var (
	NullF32 float32 = math.MaxFloat32
	NullF64 float64 = math.MaxFloat64
)

// Per-type DEL sentinels: the type's maximum representable value minus one,
// matching the original engine's "NULL - 1" convention for tombstones.
const (
	DelI8  int8   = math.MaxInt8 - 1
	DelU8  uint8  = math.MaxUint8 - 1
	DelI16 int16  = math.MaxInt16 - 1
	DelU16 uint16 = math.MaxUint16 - 1
	DelI32 int32  = math.MaxInt32 - 1
	DelU32 uint32 = math.MaxUint32 - 1
	DelI64 int64  = math.MaxInt64 - 1
	DelU64 uint64 = math.MaxUint64 - 1
)

var (
	DelF32 float32 = math.MaxFloat32 * -1 // distinct, finite, never collides with NullF32
	DelF64 float64 = math.MaxFloat64 * -1
)

// IsNull reports whether a decoded value equals its type's NULL sentinel.
// Only the numeric cell types participate; callers handle char separately
// via the '*'/'$' byte sentinels.
func IsNull(v any) bool {
	switch x := v.(type) {
	case int8:
		return x == NullI8
	case uint8:
		return x == NullU8
	case int16:
		return x == NullI16
	case uint16:
		return x == NullU16
	case int32:
		return x == NullI32
	case uint32:
		return x == NullU32
	case int64:
		return x == NullI64
	case uint64:
		return x == NullU64
	case float32:
		return x == NullF32
	case float64:
		return x == NullF64
	default:
		return false
	}
}

// IsDel reports whether a decoded value equals its type's DEL sentinel.
func IsDel(v any) bool {
	switch x := v.(type) {
	case int8:
		return x == DelI8
	case uint8:
		return x == DelU8
	case int16:
		return x == DelI16
	case uint16:
		return x == DelU16
	case int32:
		return x == DelI32
	case uint32:
		return x == DelU32
	case int64:
		return x == DelI64
	case uint64:
		return x == DelU64
	case float32:
		return x == DelF32
	case float64:
		return x == DelF64
	default:
		return false
	}
}
