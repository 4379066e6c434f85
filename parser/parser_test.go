package parser

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/stretchr/testify/require"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
	"fpetkovski/io-bench/pqtest"
)

func TestParsersReadAllPartitions(t *testing.T) {
	expected := pqtest.Sample(t, 1000)
	dirs := Dirs(pqtest.WriteAllFormats(t, t.TempDir(), expected, 300))

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
			defer mem.AssertSize(t, 0)

			p, err := New(name, dirs, mem)
			require.NoError(t, err)
			require.Equal(t, name, p.Name())

			files, err := p.ListFiles()
			require.NoError(t, err)
			require.Len(t, files, 4)

			ds, err := p.Read(context.Background(), nil)
			require.NoError(t, err)
			defer ds.Release()

			require.Equal(t, expected.NumRows(), ds.NumRows())
			require.Equal(t, expected.ColumnNames(), ds.ColumnNames())
			for i := 0; i < expected.NumColumns(); i++ {
				require.True(t, array.Equal(expected.Record().Column(i), ds.Record().Column(i)), "column %s", expected.ColumnNames()[i])
			}
		})
	}
}

func TestParsersProjectColumns(t *testing.T) {
	expected := pqtest.Sample(t, 500)
	dirs := Dirs(pqtest.WriteAllFormats(t, t.TempDir(), expected, 200))
	columns := []string{dataset.ProfitColumn, dataset.RegionColumn}

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, err := New(name, dirs, memory.DefaultAllocator)
			require.NoError(t, err)

			ds, err := p.Read(context.Background(), columns)
			require.NoError(t, err)
			defer ds.Release()

			require.Equal(t, columns, ds.ColumnNames())
			require.Equal(t, int64(500), ds.NumRows())
			require.Equal(t, "Europe", ds.Record().Column(1).(*array.String).Value(0))

			_, err = p.Read(context.Background(), []string{"missing"})
			require.ErrorIs(t, err, dataset.ErrUnknownColumn)
		})
	}
}

func TestParsersNoData(t *testing.T) {
	root := t.TempDir()
	dirs := Dirs{
		format.Avro:    filepath.Join(root, "avro"),
		format.Parquet: filepath.Join(root, "parquet"),
		format.Feather: root,
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, err := New(name, dirs, memory.DefaultAllocator)
			require.NoError(t, err)

			_, err = p.Read(context.Background(), nil)
			require.ErrorIs(t, err, ErrNoData)
		})
	}
}

func TestArrowEncodedParquet(t *testing.T) {
	expected := pqtest.Sample(t, 300)
	dir := t.TempDir()
	pqtest.WritePartitions(t, dir, format.NewArrowParquetWriter(), expected, 100)

	for _, name := range []string{ArrowParquetName, SegmentioParquetName, RowParquetName} {
		t.Run(name, func(t *testing.T) {
			p, err := New(name, Dirs{format.Parquet: dir}, memory.DefaultAllocator)
			require.NoError(t, err)

			ds, err := p.Read(context.Background(), nil)
			require.NoError(t, err)
			defer ds.Release()

			require.Equal(t, int64(300), ds.NumRows())
			for i := 0; i < expected.NumColumns(); i++ {
				require.True(t, array.Equal(expected.Record().Column(i), ds.Record().Column(i)))
			}
		})
	}
}

func TestUnknownParser(t *testing.T) {
	_, err := New("csv", Dirs{}, memory.DefaultAllocator)
	require.ErrorIs(t, err, ErrUnknownParser)
}

func TestCanceledRead(t *testing.T) {
	expected := pqtest.Sample(t, 100)
	dirs := Dirs(pqtest.WriteAllFormats(t, t.TempDir(), expected, 50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := New(FeatherName, dirs, memory.DefaultAllocator)
	require.NoError(t, err)
	_, err = p.Read(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}
