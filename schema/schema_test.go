package schema

import (
	"bytes"
	"io"
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/require"
)

func testSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "Region", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "Total Cost", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "Sales", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
}

func testRecord(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, testSchema())
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"Europe", "", "Asia"}, []bool{true, false, true})
	b.Field(1).(*array.Float64Builder).AppendValues([]float64{1.5, 2.5, 0}, []bool{true, true, false})
	b.Field(2).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	return b.NewRecord()
}

func TestRecordSchemaKeepsColumnOrder(t *testing.T) {
	s, err := MakeRecordSchema(testSchema())
	require.NoError(t, err)

	require.Equal(t, [][]string{{"Region"}, {"Total Cost"}, {"Sales"}}, s.ParquetSchema().Columns())
}

func TestRecordSchemaRows(t *testing.T) {
	rec := testRecord(memory.DefaultAllocator)
	defer rec.Release()

	s, err := MakeRecordSchema(rec.Schema())
	require.NoError(t, err)

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[any](&buf, s.ParquetSchema())
	_, err = writer.WriteRows(s.AppendRows(nil, rec))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Equal(t, int64(3), file.NumRows())

	rows := make([]parquet.Row, 3)
	reader := file.RowGroups()[0].Rows()
	defer reader.Close()
	n, err := reader.ReadRows(rows)
	if err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, 3, n)

	require.Equal(t, "Europe", string(rows[0][0].ByteArray()))
	require.True(t, rows[1][0].IsNull())
	require.Equal(t, 2.5, rows[1][1].Double())
	require.True(t, rows[2][1].IsNull())
	require.Equal(t, int64(3), rows[2][2].Int64())

	for i, leaf := range []string{"Region", "Total Cost", "Sales"} {
		col, ok := file.Schema().Lookup(leaf)
		require.True(t, ok)
		field, err := ArrowField(leaf, col.Node)
		require.NoError(t, err)
		require.True(t, arrow.TypeEqual(rec.Schema().Field(i).Type, field.Type))
		require.Equal(t, rec.Schema().Field(i).Nullable, field.Nullable)
	}
}

func TestUnsupportedType(t *testing.T) {
	s := arrow.NewSchema([]arrow.Field{{Name: "ts", Type: arrow.FixedWidthTypes.Date32}}, nil)
	_, err := MakeRecordSchema(s)
	require.ErrorIs(t, err, ErrUnsupportedType)
	_, err = MakeAvroSchema(s)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestAvroName(t *testing.T) {
	cases := map[string]string{
		"Region":     "Region",
		"Total Cost": "Total_Cost",
		"1st":        "_1st",
		"a-b.c":      "a_b_c",
		"":           "_",
	}
	for column, expected := range cases {
		require.Equal(t, expected, AvroName(column), column)
	}
}

func TestAvroSchemaRoundTrip(t *testing.T) {
	s, err := MakeAvroSchema(testSchema())
	require.NoError(t, err)
	require.Equal(t, []string{"Region", "Total_Cost", "Sales"}, s.Names)

	parsed, err := ParseAvroSchema(s.JSON, ParseColumnsMetadata(s.ColumnsMetadata()))
	require.NoError(t, err)
	require.Equal(t, s.Names, parsed.Names)
	require.True(t, testSchema().Equal(parsed.Arrow), parsed.Arrow.String())

	withoutColumns, err := ParseAvroSchema(s.JSON, nil)
	require.NoError(t, err)
	require.Equal(t, "Total_Cost", withoutColumns.Arrow.Field(1).Name)
}

func TestAvroDatum(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	rec := testRecord(mem)
	defer rec.Release()
	s, err := MakeAvroSchema(rec.Schema())
	require.NoError(t, err)

	builders := make([]array.Builder, 0, 3)
	for _, f := range rec.Schema().Fields() {
		builders = append(builders, array.NewBuilder(mem, f.Type))
	}
	for i := 0; i < int(rec.NumRows()); i++ {
		require.NoError(t, s.AppendDatum(builders, []int{0, 1, 2}, s.Datum(rec, i)))
	}

	for i, b := range builders {
		arr := b.NewArray()
		require.True(t, array.Equal(rec.Column(i), arr), "column %d", i)
		arr.Release()
		b.Release()
	}
}
