package dataset

import (
	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
)

var (
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrUnknownColumn  = errors.New("unknown column")
)

// Dataset is an in-memory table backed by a single arrow record.
type Dataset struct {
	record arrow.Record
}

// New wraps rec. The dataset takes ownership of the caller's reference.
func New(rec arrow.Record) *Dataset {
	return &Dataset{record: rec}
}

func EmptyRecord(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	columns := make([]arrow.Array, len(schema.Fields()))
	for i, field := range schema.Fields() {
		columns[i] = nullArray(mem, field.Type, 0)
	}
	defer releaseAll(columns)

	return array.NewRecord(schema, columns, 0)
}

func (d *Dataset) Record() arrow.Record { return d.record }

func (d *Dataset) Schema() *arrow.Schema { return d.record.Schema() }

func (d *Dataset) NumRows() int64 { return d.record.NumRows() }

func (d *Dataset) NumColumns() int { return int(d.record.NumCols()) }

// NumParams is the number of cells in the dataset.
func (d *Dataset) NumParams() int64 { return d.NumRows() * int64(d.NumColumns()) }

func (d *Dataset) ColumnNames() []string {
	names := make([]string, 0, d.NumColumns())
	for _, f := range d.Schema().Fields() {
		names = append(names, f.Name)
	}
	return names
}

// Slice returns a zero-copy view of the rows in r.
// The caller must release the returned record.
func (d *Dataset) Slice(r Range) arrow.Record {
	return d.record.NewSlice(r.From, r.To)
}

func (d *Dataset) Release() {
	if d.record != nil {
		d.record.Release()
	}
}

// ColumnIndices resolves column names against schema.
// It returns nil when columns is empty.
func ColumnIndices(schema *arrow.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	indices := make([]int, 0, len(columns))
	for _, name := range columns {
		found := schema.FieldIndices(name)
		if len(found) == 0 {
			return nil, errors.Wrapf(ErrUnknownColumn, "column %q", name)
		}
		indices = append(indices, found[0])
	}
	return indices, nil
}

// ProjectRecord returns a new record holding the columns at indices.
// A nil indices slice retains and returns rec.
func ProjectRecord(rec arrow.Record, indices []int) arrow.Record {
	if indices == nil {
		rec.Retain()
		return rec
	}

	fields := make([]arrow.Field, 0, len(indices))
	columns := make([]arrow.Array, 0, len(indices))
	for _, i := range indices {
		fields = append(fields, rec.Schema().Field(i))
		columns = append(columns, rec.Column(i))
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), columns, rec.NumRows())
}

// ProjectSchema returns the schema holding the fields at indices.
func ProjectSchema(schema *arrow.Schema, indices []int) *arrow.Schema {
	if indices == nil {
		return schema
	}
	fields := make([]arrow.Field, 0, len(indices))
	for _, i := range indices {
		fields = append(fields, schema.Field(i))
	}
	return arrow.NewSchema(fields, nil)
}

func nullArray(mem memory.Allocator, dt arrow.DataType, n int) arrow.Array {
	builder := array.NewBuilder(mem, dt)
	defer builder.Release()

	builder.Reserve(n)
	for i := 0; i < n; i++ {
		builder.AppendNull()
	}
	return builder.NewArray()
}

func releaseAll(arrays []arrow.Array) {
	for _, a := range arrays {
		if a != nil {
			a.Release()
		}
	}
}
