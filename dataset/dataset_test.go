package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name    string
		ranges  []Range
		numRows int64
		valid   bool
	}{
		{name: "single range", ranges: []Range{Pick(0, 10)}, numRows: 10, valid: true},
		{name: "contiguous", ranges: []Range{Pick(0, 4), Pick(4, 9), Pick(9, 10)}, numRows: 10, valid: true},
		{name: "empty table", ranges: []Range{Pick(0, 0)}, numRows: 0, valid: true},
		{name: "gap", ranges: []Range{Pick(0, 4), Pick(5, 10)}, numRows: 10},
		{name: "overlap", ranges: []Range{Pick(0, 5), Pick(4, 10)}, numRows: 10},
		{name: "short", ranges: []Range{Pick(0, 5)}, numRows: 10},
		{name: "empty range", ranges: []Range{Pick(0, 5), Pick(5, 5), Pick(5, 10)}, numRows: 10},
		{name: "no ranges", numRows: 10},
	}
	for _, tcase := range cases {
		t.Run(tcase.name, func(t *testing.T) {
			err := ValidateRanges(tcase.ranges, tcase.numRows)
			if tcase.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestSliceAndProject(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	ds := NewSample(mem, 30)
	defer ds.Release()
	require.Equal(t, int64(30), ds.NumRows())
	require.Equal(t, int64(150), ds.NumParams())

	slice := ds.Slice(Pick(10, 20))
	require.Equal(t, int64(10), slice.NumRows())
	slice.Release()

	indices, err := ColumnIndices(ds.Schema(), []string{ProfitColumn, RegionColumn})
	require.NoError(t, err)
	projected := New(ProjectRecord(ds.Record(), indices))
	require.Equal(t, []string{ProfitColumn, RegionColumn}, projected.ColumnNames())
	require.Equal(t, int64(30), projected.NumRows())
	projected.Release()

	_, err = ColumnIndices(ds.Schema(), []string{"missing"})
	require.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestConcat(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	t.Run("same schema", func(t *testing.T) {
		a := NewSample(mem, 4)
		defer a.Release()
		b := NewSample(mem, 6)
		defer b.Release()

		ds, err := Concat(mem, a, b)
		require.NoError(t, err)
		defer ds.Release()
		require.Equal(t, int64(10), ds.NumRows())
		require.Equal(t, a.ColumnNames(), ds.ColumnNames())
	})

	t.Run("missing columns are null filled", func(t *testing.T) {
		a := NewSample(mem, 3)
		defer a.Release()
		full := NewSample(mem, 2)
		defer full.Release()
		indices, err := ColumnIndices(full.Schema(), []string{ProfitColumn})
		require.NoError(t, err)
		b := New(ProjectRecord(full.Record(), indices))
		defer b.Release()

		ds, err := Concat(mem, b, a)
		require.NoError(t, err)
		defer ds.Release()

		require.Equal(t, int64(5), ds.NumRows())
		require.Equal(t, []string{ProfitColumn, RegionColumn, CountryColumn, TotalCostColumn, SalesColumn}, ds.ColumnNames())
		region := ds.Record().Column(1).(*array.String)
		require.True(t, region.IsNull(0))
		require.True(t, region.IsNull(1))
		require.Equal(t, "Europe", region.Value(2))
	})

	t.Run("conflicting types", func(t *testing.T) {
		a := NewSample(mem, 2)
		defer a.Release()
		b := int64Column(mem, RegionColumn, 1, 2)
		defer b.Release()

		_, err := Concat(mem, a, b)
		require.True(t, errors.Is(err, ErrSchemaMismatch))
	})

	t.Run("no inputs", func(t *testing.T) {
		ds, err := Concat(mem)
		require.NoError(t, err)
		defer ds.Release()
		require.Equal(t, int64(0), ds.NumRows())
	})
}

func TestCSVRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	path := filepath.Join(t.TempDir(), "source.csv")
	written, err := GenerateSample(mem, path, 1000)
	require.NoError(t, err)
	require.True(t, written)

	ds, err := ReadCSV(mem, path)
	require.NoError(t, err)
	defer ds.Release()

	require.Equal(t, int64(1000), ds.NumRows())
	require.Equal(t, SampleSchema().Fields(), ds.Schema().Fields())
	require.Equal(t, "Germany", ds.Record().Column(1).(*array.String).Value(0))
}

func TestReadCSVEmptyCells(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	path := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1,x,1.5\n,,\n3,z,2.5\n"), 0600))

	ds, err := ReadCSV(mem, path)
	require.NoError(t, err)
	defer ds.Release()

	require.Equal(t, int64(3), ds.NumRows())
	rec := ds.Record()
	for i := 0; i < int(rec.NumCols()); i++ {
		col := rec.Column(i)
		require.Equal(t, 1, col.NullN(), "column %s", rec.ColumnName(i))
		require.True(t, col.IsNull(1))
	}
	require.Equal(t, int64(3), rec.Column(0).(*array.Int64).Value(2))
	require.Equal(t, "z", rec.Column(1).(*array.String).Value(2))
	require.Equal(t, 2.5, rec.Column(2).(*array.Float64).Value(2))
}

func TestGenerateSampleKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0600))

	written, err := GenerateSample(memory.DefaultAllocator, path, 10)
	require.NoError(t, err)
	require.False(t, written)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(content))
}

func TestInferCSVSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.csv")
	content := "ints,floats,strings,blank\n1,1.5,x,\n2,3,y,\n,4,7,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	schema, err := inferCSVSchema(path)
	require.NoError(t, err)

	expected := []arrow.DataType{
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Float64,
		arrow.BinaryTypes.String,
		arrow.BinaryTypes.String,
	}
	for i, f := range schema.Fields() {
		require.True(t, arrow.TypeEqual(expected[i], f.Type), "column %s has type %s", f.Name, f.Type)
	}
}

func int64Column(mem memory.Allocator, name string, values ...int64) *Dataset {
	schema := arrow.NewSchema([]arrow.Field{{Name: name, Type: arrow.PrimitiveTypes.Int64, Nullable: true}}, nil)
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()
	builder.Field(0).(*array.Int64Builder).AppendValues(values, nil)
	return New(builder.NewRecord())
}
