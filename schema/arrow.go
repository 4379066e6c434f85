package schema

import (
	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/deprecated"
)

// ArrowType returns the arrow type used to load values of a parquet leaf.
func ArrowType(node parquet.Node) (arrow.DataType, error) {
	typ := node.Type()
	switch typ.Kind() {
	case parquet.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case parquet.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case parquet.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case parquet.Float:
		return arrow.PrimitiveTypes.Float32, nil
	case parquet.Double:
		return arrow.PrimitiveTypes.Float64, nil
	case parquet.ByteArray:
		if isString(typ) {
			return arrow.BinaryTypes.String, nil
		}
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%s", typ)
	}
}

// ArrowField describes a top-level parquet column as an arrow field.
func ArrowField(name string, node parquet.Node) (arrow.Field, error) {
	dt, err := ArrowType(node)
	if err != nil {
		return arrow.Field{}, errors.Wrapf(err, "column %q", name)
	}
	return arrow.Field{Name: name, Type: dt, Nullable: node.Optional()}, nil
}

func isString(typ parquet.Type) bool {
	if lt := typ.LogicalType(); lt != nil && lt.UTF8 != nil {
		return true
	}
	if ct := typ.ConvertedType(); ct != nil && *ct == deprecated.UTF8 {
		return true
	}
	return false
}

// AppendValue appends a parquet value to a builder created for ArrowType.
func AppendValue(b array.Builder, v parquet.Value) error {
	if v.IsNull() {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.StringBuilder:
		b.Append(string(v.ByteArray()))
	case *array.BinaryBuilder:
		b.Append(v.ByteArray())
	case *array.Int64Builder:
		b.Append(v.Int64())
	case *array.Int32Builder:
		b.Append(v.Int32())
	case *array.Float64Builder:
		b.Append(v.Double())
	case *array.Float32Builder:
		b.Append(v.Float())
	case *array.BooleanBuilder:
		b.Append(v.Boolean())
	default:
		return errors.Wrapf(ErrUnsupportedType, "builder %T", b)
	}
	return nil
}
