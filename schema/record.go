package schema

import (
	"fmt"
	"reflect"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/compress"
	"github.com/segmentio/parquet-go/encoding"
)

// recordRow is a group node whose fields keep the order of the arrow schema.
// parquet.Group would sort them by name.
type recordRow struct {
	fields []parquet.Field
}

func (c recordRow) String() string {
	names := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		names = append(names, f.Name())
	}
	return fmt.Sprintf("%v", names)
}

func (c recordRow) Type() parquet.Type { return groupType{} }

func (c recordRow) Optional() bool { return false }

func (c recordRow) Repeated() bool { return false }

func (c recordRow) Required() bool { return true }

func (c recordRow) Leaf() bool { return false }

func (c recordRow) Fields() []parquet.Field { return c.fields }

func (c recordRow) Encoding() encoding.Encoding { return nil }

func (c recordRow) Compression() compress.Codec { return nil }

func (c recordRow) GoType() reflect.Type { return reflect.TypeOf(recordRow{}) }

type valueFunc func(arr arrow.Array, i int) parquet.Value

// RecordSchema maps arrow records onto parquet rows.
type RecordSchema struct {
	schema *parquet.Schema
	arrow  *arrow.Schema
	values []valueFunc
}

func MakeRecordSchema(s *arrow.Schema) (*RecordSchema, error) {
	fields := make([]parquet.Field, 0, len(s.Fields()))
	values := make([]valueFunc, 0, len(s.Fields()))
	for _, f := range s.Fields() {
		leaf, err := leafFor(f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", f.Name)
		}
		fields = append(fields, newColumn(f.Name, leaf, f.Nullable))
		values = append(values, valueFor(f.Type))
	}

	return &RecordSchema{
		schema: parquet.NewSchema("record", recordRow{fields: fields}),
		arrow:  s,
		values: values,
	}, nil
}

func (r *RecordSchema) ParquetSchema() *parquet.Schema {
	return r.schema
}

// AppendRows converts every row of rec and appends it to rows.
func (r *RecordSchema) AppendRows(rows []parquet.Row, rec arrow.Record) []parquet.Row {
	for i := 0; i < int(rec.NumRows()); i++ {
		rows = append(rows, r.MakeRow(rec, i))
	}
	return rows
}

func (r *RecordSchema) MakeRow(rec arrow.Record, i int) parquet.Row {
	row := make(parquet.Row, len(r.values))
	for col, value := range r.values {
		arr := rec.Column(col)
		nullable := r.arrow.Field(col).Nullable
		if arr.IsNull(i) {
			row[col] = parquet.Value{}.Level(0, 0, col)
			continue
		}
		definition := 0
		if nullable {
			definition = 1
		}
		row[col] = value(arr, i).Level(0, definition, col)
	}
	return row
}

func valueFor(dt arrow.DataType) valueFunc {
	switch dt.ID() {
	case arrow.STRING:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.ByteArrayValue([]byte(arr.(*array.String).Value(i)))
		}
	case arrow.BINARY:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.ByteArrayValue(arr.(*array.Binary).Value(i))
		}
	case arrow.INT64:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.Int64Value(arr.(*array.Int64).Value(i))
		}
	case arrow.INT32:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.Int32Value(arr.(*array.Int32).Value(i))
		}
	case arrow.FLOAT64:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.DoubleValue(arr.(*array.Float64).Value(i))
		}
	case arrow.FLOAT32:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.FloatValue(arr.(*array.Float32).Value(i))
		}
	case arrow.BOOL:
		return func(arr arrow.Array, i int) parquet.Value {
			return parquet.BooleanValue(arr.(*array.Boolean).Value(i))
		}
	}
	return nil
}
