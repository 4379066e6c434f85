package schema

import (
	"reflect"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/compress/snappy"
	"github.com/segmentio/parquet-go/compress/zstd"
	"github.com/segmentio/parquet-go/deprecated"
	"github.com/segmentio/parquet-go/format"
)

var ErrUnsupportedType = errors.New("unsupported column type")

type column struct {
	parquet.Node
	name string
}

func newColumn(name string, node parquet.Node, nullable bool) *column {
	if nullable {
		node = parquet.Optional(node)
	}
	return &column{Node: node, name: name}
}

// leafFor returns the parquet leaf node used to store values of type dt.
func leafFor(dt arrow.DataType) (parquet.Node, error) {
	switch dt.ID() {
	case arrow.STRING:
		node := parquet.String()
		node = parquet.Encoded(node, &parquet.RLEDictionary)
		return parquet.Compressed(node, &snappy.Codec{}), nil
	// Integers and binary stay PLAIN: the arrow v10 delta decoders never
	// free their bit width buffers, which leaks from the read allocator.
	case arrow.BINARY:
		return parquet.Compressed(parquet.Leaf(parquet.ByteArrayType), &zstd.Codec{}), nil
	case arrow.INT64:
		return parquet.Compressed(parquet.Leaf(parquet.Int64Type), &zstd.Codec{}), nil
	case arrow.INT32:
		return parquet.Compressed(parquet.Leaf(parquet.Int32Type), &zstd.Codec{}), nil
	case arrow.FLOAT64:
		return parquet.Compressed(parquet.Leaf(parquet.DoubleType), &snappy.Codec{}), nil
	case arrow.FLOAT32:
		return parquet.Compressed(parquet.Leaf(parquet.FloatType), &snappy.Codec{}), nil
	case arrow.BOOL:
		return parquet.Leaf(parquet.BooleanType), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%s", dt)
	}
}

func (l column) Name() string { return l.name }

func (l column) Value(base reflect.Value) reflect.Value { return base }

type groupType struct {
	parquet.Type
}

func (groupType) String() string { return "group" }

func (groupType) Length() int { return 0 }

func (groupType) EstimateSize(int) int { return 0 }

func (groupType) EstimateNumValues(int) int { return 0 }

func (groupType) ColumnOrder() *format.ColumnOrder { return nil }

func (groupType) PhysicalType() *format.Type { return nil }

func (groupType) LogicalType() *format.LogicalType { return nil }

func (groupType) ConvertedType() *deprecated.ConvertedType { return nil }
