package tdcore

import (
	"fmt"
	"reflect"
	"strconv"

	stgpsr "github.com/yuin/stagparser"
)

// SchemaFromStruct builds an ArraySchema from a Go struct's `tiledb` and
// `filters` field tags, grounded on the teacher's stagparser-based
// schemaAttrs/CreateAttr (schema.go, tiledb.go): each exported field's
// tiledb tag selects whether it is a dimension or an attribute and its
// scalar type, mirroring the teacher's `field_tdb_defs[v.Name()] = v`
// per-field definition map keyed by tag key, and a `filters` tag
// optionally marks gzip compression the same way the teacher's
// filter_defs drove its zstd filter pipeline.
//
// Tag shape, one struct field per dimension/attribute:
//
//	`tiledb:"ftype=dim,dtype=float64,lo=0,hi=100"`
//	`tiledb:"ftype=attr,dtype=float32,var" filters:"gzip"`
func SchemaFromStruct(name string, t any, coordsType CoordsType, cellOrder CellOrder, tileOrder TileOrder, tileExtents []float64, capacity, consolidationStep int64) (*ArraySchema, error) {
	rt := reflect.TypeOf(t)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, newErr(ErrInvalidArgument, "SchemaFromStruct requires a struct or struct pointer", nil)
	}

	tdbDefs, err := stgpsr.ParseStruct(t, "tiledb")
	if err != nil {
		return nil, newErr(ErrParse, "parsing tiledb struct tags", err)
	}
	filtDefs, err := stgpsr.ParseStruct(t, "filters")
	if err != nil {
		return nil, newErr(ErrParse, "parsing filters struct tags", err)
	}

	var dims []Dimension
	var attrs []Attribute
	var compression []Compression

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldName := field.Name

		byKey := make(map[string]stgpsr.Definition)
		for _, d := range tdbDefs[fieldName] {
			byKey[d.Name()] = d
		}

		ftypeDef, ok := byKey["ftype"]
		if !ok {
			return nil, newErr(ErrParse, fmt.Sprintf("field %s missing ftype tag", fieldName), nil)
		}
		ftype, _ := ftypeDef.Attribute("ftype")

		dtypeDef, ok := byKey["dtype"]
		if !ok {
			return nil, newErr(ErrParse, fmt.Sprintf("field %s missing dtype tag", fieldName), nil)
		}
		dtypeStr, _ := dtypeDef.Attribute("dtype")
		cellType, err := parseCellTypeToken(dtypeStr)
		if err != nil {
			return nil, err
		}

		switch ftype {
		case "dim":
			loDef, hasLo := byKey["lo"]
			hiDef, hasHi := byKey["hi"]
			if !hasLo || !hasHi {
				return nil, newErr(ErrParse, fmt.Sprintf("dimension %s missing lo/hi tag", fieldName), nil)
			}
			loStr, _ := loDef.Attribute("lo")
			hiStr, _ := hiDef.Attribute("hi")
			lo, err := strconv.ParseFloat(loStr, 64)
			if err != nil {
				return nil, newErr(ErrParse, fmt.Sprintf("dimension %s: bad lo %q", fieldName, loStr), err)
			}
			hi, err := strconv.ParseFloat(hiStr, 64)
			if err != nil {
				return nil, newErr(ErrParse, fmt.Sprintf("dimension %s: bad hi %q", fieldName, hiStr), err)
			}
			dims = append(dims, Dimension{Name: fieldName, Lo: lo, Hi: hi})

		case "attr":
			valNum := int32(1)
			if _, isVar := byKey["var"]; isVar {
				valNum = VarSize
			}
			attrs = append(attrs, Attribute{Name: fieldName, Type: cellType, ValNum: valNum})

			comp := CompressionNone
			for _, f := range filtDefs[fieldName] {
				if f.Name() == "gzip" {
					comp = CompressionGzip
				}
			}
			compression = append(compression, comp)

		default:
			return nil, newErr(ErrParse, fmt.Sprintf("field %s: unknown ftype %q", fieldName, ftype), nil)
		}
	}

	compression = append(compression, CompressionNone) // trailing entry for coordinates
	return NewArraySchema(name, attrs, dims, coordsType, cellOrder, tileOrder, tileExtents, capacity, consolidationStep, compression)
}

func parseCellTypeToken(s string) (CellType, error) {
	switch s {
	case "char":
		return Char, nil
	case "int8":
		return Int8, nil
	case "uint8":
		return Uint8, nil
	case "int16":
		return Int16, nil
	case "uint16":
		return Uint16, nil
	case "int32":
		return Int32, nil
	case "uint32":
		return Uint32, nil
	case "int64":
		return Int64, nil
	case "uint64":
		return Uint64, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	default:
		return 0, newErr(ErrParse, fmt.Sprintf("unknown dtype token %q", s), nil)
	}
}
