package tdcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sensorReading struct {
	X         float64 `tiledb:"ftype=dim,dtype=float64,lo=0,hi=100"`
	Y         float64 `tiledb:"ftype=dim,dtype=float64,lo=0,hi=100"`
	Value     float32 `tiledb:"ftype=attr,dtype=float32" filters:"gzip"`
	TimeSeries []byte `tiledb:"ftype=attr,dtype=uint8,var"`
}

func TestSchemaFromStructBuildsDimsAndAttrs(t *testing.T) {
	s, err := SchemaFromStruct("sensors", sensorReading{}, CoordsFloat64, RowMajor, TileOrderNone, nil, 1000, 4)
	require.NoError(t, err)

	require.Equal(t, 2, s.DimNum())
	require.Equal(t, "X", s.Dimensions[0].Name)
	require.Equal(t, float64(0), s.Dimensions[0].Lo)
	require.Equal(t, float64(100), s.Dimensions[0].Hi)
	require.Equal(t, "Y", s.Dimensions[1].Name)

	require.Equal(t, 2, s.AttributeNum())
	require.Equal(t, "Value", s.Attributes[0].Name)
	require.Equal(t, Float32, s.Attributes[0].Type)
	require.Equal(t, int32(1), s.Attributes[0].ValNum)
	require.Equal(t, CompressionGzip, s.Compression[0])

	require.Equal(t, "TimeSeries", s.Attributes[1].Name)
	require.True(t, s.Attributes[1].IsVar())
	require.Equal(t, CompressionNone, s.Compression[1])
}

type badField struct {
	X float64 `tiledb:"ftype=dim,dtype=float64,lo=0,hi=100"`
	Y float64 `tiledb:"ftype=widget,dtype=float64"`
}

func TestSchemaFromStructUnknownFtype(t *testing.T) {
	_, err := SchemaFromStruct("bad", badField{}, CoordsFloat64, RowMajor, TileOrderNone, nil, 1000, 4)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrParse))
}

func TestSchemaFromStructRequiresStruct(t *testing.T) {
	_, err := SchemaFromStruct("bad", 42, CoordsFloat64, RowMajor, TileOrderNone, nil, 1000, 4)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrInvalidArgument))
}
