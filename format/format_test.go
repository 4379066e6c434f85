package format

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/require"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/schema"
)

func TestWriters(t *testing.T) {
	ds := dataset.NewSample(memory.DefaultAllocator, 100)
	defer ds.Release()

	t.Run("avro", func(t *testing.T) {
		for _, codec := range []string{"", goavro.CompressionDeflateLabel, goavro.CompressionSnappyLabel} {
			buf := writeBytes(t, NewAvroWriter(codec), ds.Record())

			reader, err := goavro.NewOCFReader(bytes.NewReader(buf))
			require.NoError(t, err)
			columns := schema.ParseColumnsMetadata(reader.MetaData()[schema.AvroColumnsKey])
			require.Equal(t, ds.ColumnNames(), columns)

			var n int
			for reader.Scan() {
				_, err := reader.Read()
				require.NoError(t, err)
				n++
			}
			require.NoError(t, reader.Err())
			require.Equal(t, 100, n)
		}
	})

	t.Run("segmentio parquet", func(t *testing.T) {
		buf := writeBytes(t, NewParquetWriter(), ds.Record())

		f, err := parquet.OpenFile(bytes.NewReader(buf), int64(len(buf)))
		require.NoError(t, err)
		require.Equal(t, int64(100), f.NumRows())
		require.Len(t, f.Schema().Columns(), 5)
	})

	t.Run("arrow parquet", func(t *testing.T) {
		buf := writeBytes(t, NewArrowParquetWriter(), ds.Record())

		reader, err := file.NewParquetReader(bytes.NewReader(buf))
		require.NoError(t, err)
		defer reader.Close()
		require.Equal(t, int64(100), reader.NumRows())

		f, err := parquet.OpenFile(bytes.NewReader(buf), int64(len(buf)))
		require.NoError(t, err)
		for _, col := range f.Root().Columns() {
			require.Equal(t, 0, col.MaxRepetitionLevel(), col.Name())
		}

		var n int
		for _, rg := range f.RowGroups() {
			rows := rg.Rows()
			batch := make([]parquet.Row, 16)
			for {
				read, err := rows.ReadRows(batch)
				n += read
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
			}
			require.NoError(t, rows.Close())
		}
		require.Equal(t, 100, n)
	})

	t.Run("feather", func(t *testing.T) {
		for _, compression := range []string{"none", "lz4", "zstd"} {
			writer, err := NewFeatherWriter(compression)
			require.NoError(t, err)

			buf := writeBytes(t, writer, ds.Record())

			reader, err := ipc.NewFileReader(bytes.NewReader(buf))
			require.NoError(t, err)
			require.Equal(t, 1, reader.NumRecords())
			rec, err := reader.Record(0)
			require.NoError(t, err)
			require.Equal(t, int64(100), rec.NumRows())
			require.NoError(t, reader.Close())
		}
	})
}

func TestNewWriter(t *testing.T) {
	w, err := NewWriter(Parquet, WriterOptions{ParquetEncoder: EncoderArrow})
	require.NoError(t, err)
	require.Equal(t, EncoderArrow, w.Encoder())
	require.Equal(t, "arrow_part_3.parquet", FileNameFor(w, 3))

	w, err = NewWriter(Parquet, WriterOptions{})
	require.NoError(t, err)
	require.Equal(t, "part_3.parquet", FileNameFor(w, 3))

	_, err = NewWriter(Parquet, WriterOptions{ParquetEncoder: "pyarrow"})
	require.ErrorIs(t, err, ErrUnknownEncoder)

	_, err = NewWriter("orc", WriterOptions{})
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseFormat("csv")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteFile(t *testing.T) {
	ds := dataset.NewSample(memory.DefaultAllocator, 10)
	defer ds.Release()

	path := filepath.Join(t.TempDir(), "part_0.feather")
	writer, err := NewFeatherWriter("")
	require.NoError(t, err)
	require.NoError(t, WriteFile(writer, ds.Record(), path))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, stat.Size(), int64(0))
}

func TestListPartitionFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"part_10.parquet",
		"part_2.parquet",
		"part_0.parquet",
		"arrow_part_1.parquet",
		"part_0.avro",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.parquet"), 0750))

	files, err := ListPartitionFiles(dir, Parquet)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "part_0.parquet"),
		filepath.Join(dir, "part_2.parquet"),
		filepath.Join(dir, "part_10.parquet"),
		filepath.Join(dir, "arrow_part_1.parquet"),
	}, files)

	files, err = ListPartitionFiles(filepath.Join(dir, "missing"), Avro)
	require.NoError(t, err)
	require.Empty(t, files)
}

func writeBytes(t *testing.T, w Writer, rec arrow.Record) []byte {
	path := filepath.Join(t.TempDir(), "out."+w.Format().Extension())
	require.NoError(t, WriteFile(w, rec, path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return content
}
