package pqtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/stretchr/testify/require"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
)

// Sample returns a sample dataset released when the test ends.
func Sample(tb testing.TB, rows int) *dataset.Dataset {
	ds := dataset.NewSample(memory.DefaultAllocator, rows)
	tb.Cleanup(ds.Release)
	return ds
}

// Writers returns the default writer of every format.
func Writers(tb testing.TB) map[format.Format]format.Writer {
	writers := make(map[format.Format]format.Writer, len(format.Formats()))
	for _, f := range format.Formats() {
		w, err := format.NewWriter(f, format.WriterOptions{})
		require.NoError(tb, err)
		writers[f] = w
	}
	return writers
}

// WritePartitions writes ds into dir as files of rowsPerFile rows.
func WritePartitions(tb testing.TB, dir string, writer format.Writer, ds *dataset.Dataset, rowsPerFile int64) []string {
	require.NoError(tb, os.MkdirAll(dir, 0750))

	var paths []string
	for n, from := 0, int64(0); from < ds.NumRows() || n == 0; n, from = n+1, from+rowsPerFile {
		to := from + rowsPerFile
		if to > ds.NumRows() {
			to = ds.NumRows()
		}
		rec := ds.Slice(dataset.Pick(from, to))
		path := filepath.Join(dir, format.FileNameFor(writer, n))
		err := format.WriteFile(writer, rec, path)
		rec.Release()
		require.NoError(tb, err)
		paths = append(paths, path)
	}
	return paths
}

// WriteAllFormats partitions ds for every format under root and returns
// the directory of each format.
func WriteAllFormats(tb testing.TB, root string, ds *dataset.Dataset, rowsPerFile int64) map[format.Format]string {
	dirs := make(map[format.Format]string)
	for f, w := range Writers(tb) {
		dirs[f] = filepath.Join(root, string(f))
		WritePartitions(tb, dirs[f], w, ds, rowsPerFile)
	}
	return dirs
}
