package dataset

import (
	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
)

// Concat stacks datasets vertically. Columns are the union of all inputs in
// order of first appearance; rows from inputs lacking a column get nulls.
// A column with conflicting types across inputs is an ErrSchemaMismatch.
func Concat(mem memory.Allocator, parts ...*Dataset) (*Dataset, error) {
	records := make([]arrow.Record, 0, len(parts))
	for _, p := range parts {
		records = append(records, p.Record())
	}
	rec, err := ConcatRecords(mem, nil, records)
	if err != nil {
		return nil, err
	}
	return New(rec), nil
}

// ConcatRecords concatenates records into one. It does not take ownership of
// records. When records is empty, an empty record with the fallback schema
// is returned.
func ConcatRecords(mem memory.Allocator, fallback *arrow.Schema, records []arrow.Record) (arrow.Record, error) {
	if len(records) == 0 {
		if fallback == nil {
			fallback = arrow.NewSchema(nil, nil)
		}
		return EmptyRecord(mem, fallback), nil
	}

	schema, err := unionSchema(records)
	if err != nil {
		return nil, err
	}
	if len(records) == 1 && schema.Equal(records[0].Schema()) {
		records[0].Retain()
		return records[0], nil
	}

	var numRows int64
	for _, rec := range records {
		numRows += rec.NumRows()
	}

	columns := make([]arrow.Array, 0, len(schema.Fields()))
	defer func() { releaseAll(columns) }()
	for _, field := range schema.Fields() {
		column, err := concatColumn(mem, field, records)
		if err != nil {
			return nil, errors.Wrapf(err, "concatenating column %q", field.Name)
		}
		columns = append(columns, column)
	}
	return array.NewRecord(schema, columns, numRows), nil
}

func concatColumn(mem memory.Allocator, field arrow.Field, records []arrow.Record) (arrow.Array, error) {
	chunks := make([]arrow.Array, 0, len(records))
	var fills []arrow.Array
	defer func() { releaseAll(fills) }()

	for _, rec := range records {
		indices := rec.Schema().FieldIndices(field.Name)
		if len(indices) > 0 {
			chunks = append(chunks, rec.Column(indices[0]))
			continue
		}
		fill := nullArray(mem, field.Type, int(rec.NumRows()))
		fills = append(fills, fill)
		chunks = append(chunks, fill)
	}
	return array.Concatenate(chunks, mem)
}

func unionSchema(records []arrow.Record) (*arrow.Schema, error) {
	var (
		fields   []arrow.Field
		position = make(map[string]int)
	)
	for _, rec := range records {
		for _, f := range rec.Schema().Fields() {
			i, ok := position[f.Name]
			if !ok {
				position[f.Name] = len(fields)
				fields = append(fields, arrow.Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable})
				continue
			}
			if !arrow.TypeEqual(fields[i].Type, f.Type) {
				return nil, errors.Wrapf(ErrSchemaMismatch, "column %q is %s and %s", f.Name, fields[i].Type, f.Type)
			}
			fields[i].Nullable = fields[i].Nullable || f.Nullable
		}
	}

	for i := range fields {
		for _, rec := range records {
			if len(rec.Schema().FieldIndices(fields[i].Name)) == 0 {
				fields[i].Nullable = true
				break
			}
		}
	}
	return arrow.NewSchema(fields, nil), nil
}
