package tdcore

import (
	"encoding/json"
	"os"
)

// WriteJSON serializes data and writes it to path, the plain-filesystem
// replacement for the teacher's encode/json.go WriteJson (which wrote
// through a *tiledb.VFS handle); every other mechanic - marshal then
// write the whole buffer in one call - stays the same (§4.5 ambient
// "Configuration"/metadata-dump support used by cmd/tdbctl's `info`
// subcommand).
func WriteJSON(path string, data any) (int, error) {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return 0, newErr(ErrCodec, "marshaling JSON", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return 0, newErr(ErrIO, "writing JSON file", err)
	}
	return len(buf), nil
}

// ReadJSON reads path and unmarshals it into dst.
func ReadJSON(path string, dst any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return newErr(ErrIO, "reading JSON file", err)
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return newErr(ErrCodec, "unmarshaling JSON", err)
	}
	return nil
}

// ArrayInfo is the summary dump cmd/tdbctl's `info` subcommand prints or
// writes for an array (§4.5, "info" surface).
type ArrayInfo struct {
	ArrayName         string           `json:"array_name"`
	DimNum            int              `json:"dim_num"`
	AttributeNum      int              `json:"attribute_num"`
	CoordsType        string           `json:"coords_type"`
	CellOrder         string           `json:"cell_order"`
	TileOrder         string           `json:"tile_order"`
	Capacity          int64            `json:"capacity"`
	ConsolidationStep int64            `json:"consolidation_step"`
	Fragments         []string         `json:"fragments"`
	Levels            []FragmentLevel  `json:"levels"`
}

// FragmentLevel is one (level, fragment_count) pair of a fragment tree.
type FragmentLevel struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

// DescribeArray builds an ArrayInfo snapshot for an open descriptor.
func DescribeArray(ad int) (*ArrayInfo, error) {
	oa, err := lookup(ad)
	if err != nil {
		return nil, err
	}
	names, err := FragmentNames(ad)
	if err != nil {
		return nil, err
	}
	var levels []FragmentLevel
	for _, lc := range oa.tree.LevelCounts() {
		levels = append(levels, FragmentLevel{Level: lc.Level, Count: lc.Count})
	}
	return &ArrayInfo{
		ArrayName:         oa.schema.ArrayName,
		DimNum:            oa.schema.DimNum(),
		AttributeNum:      oa.schema.AttributeNum(),
		CoordsType:        oa.schema.CoordsType.String(),
		CellOrder:         oa.schema.CellOrder().String(),
		TileOrder:         oa.schema.TileOrder().String(),
		Capacity:          oa.schema.Capacity,
		ConsolidationStep: oa.schema.ConsolidationStep,
		Fragments:         names,
		Levels:            levels,
	}, nil
}
