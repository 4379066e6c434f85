package parser

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
	"fpetkovski/io-bench/generic"
	"fpetkovski/io-bench/schema"
)

const (
	readBufferSize  = 4 * 1024 * 1024
	readBatchValues = 4096
	readBatchRows   = 1024
)

// SegmentioParquet reads parquet files column by column, decoding pages
// of all selected columns in parallel.
type SegmentioParquet struct {
	files
}

func NewSegmentioParquet(dir string, mem memory.Allocator) *SegmentioParquet {
	p := &SegmentioParquet{files: files{name: SegmentioParquetName, dir: dir, format: format.Parquet, mem: mem}}
	p.read = p.readFile
	return p
}

func (p *SegmentioParquet) readFile(ctx context.Context, path string, columns []string) (arrow.Record, error) {
	pqFile, closer, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	projection, err := newProjection(pqFile, columns)
	if err != nil {
		return nil, err
	}

	arrays := make([]arrow.Array, len(projection.leaves))
	defer func() {
		for _, arr := range arrays {
			if arr != nil {
				arr.Release()
			}
		}
	}()
	err = generic.ParallelEach(ctx, runtime.GOMAXPROCS(0), projection.leaves, func(ctx context.Context, i int, leaf parquet.LeafColumn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		arr, err := p.readColumn(pqFile, leaf, projection.schema.Field(i).Type)
		if err != nil {
			return errors.Wrapf(err, "reading column %q", projection.schema.Field(i).Name)
		}
		arrays[i] = arr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return array.NewRecord(projection.schema, arrays, pqFile.NumRows()), nil
}

func (p *SegmentioParquet) readColumn(pqFile *parquet.File, leaf parquet.LeafColumn, dt arrow.DataType) (arrow.Array, error) {
	builder := array.NewBuilder(p.mem, dt)
	defer builder.Release()
	builder.Reserve(int(pqFile.NumRows()))

	values := make([]parquet.Value, readBatchValues)
	for _, rowGroup := range pqFile.RowGroups() {
		pages := rowGroup.ColumnChunks()[leaf.ColumnIndex].Pages()
		if err := readPages(pages, builder, values); err != nil {
			pages.Close()
			return nil, err
		}
		if err := pages.Close(); err != nil {
			return nil, err
		}
	}
	return builder.NewArray(), nil
}

func readPages(pages parquet.Pages, builder array.Builder, values []parquet.Value) error {
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		reader := page.Values()
		for {
			n, err := reader.ReadValues(values)
			for _, v := range values[:n] {
				if err := schema.AppendValue(builder, v); err != nil {
					return err
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
		parquet.Release(page)
	}
}

// RowParquet reads parquet files row by row with the segmentio row reader.
type RowParquet struct {
	files
}

func NewRowParquet(dir string, mem memory.Allocator) *RowParquet {
	p := &RowParquet{files: files{name: RowParquetName, dir: dir, format: format.Parquet, mem: mem}}
	p.read = p.readFile
	return p
}

func (p *RowParquet) readFile(ctx context.Context, path string, columns []string) (arrow.Record, error) {
	pqFile, closer, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	projection, err := newProjection(pqFile, columns)
	if err != nil {
		return nil, err
	}
	positions := make(map[int]int, len(projection.leaves))
	for pos, leaf := range projection.leaves {
		positions[leaf.ColumnIndex] = pos
	}

	builder := array.NewRecordBuilder(p.mem, projection.schema)
	defer builder.Release()
	builder.Reserve(int(pqFile.NumRows()))
	fields := builder.Fields()

	rows := make([]parquet.Row, readBatchRows)
	for _, rowGroup := range pqFile.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reader := rowGroup.Rows()
		err := readRows(reader, rows, func(row parquet.Row) error {
			for _, v := range row {
				pos, ok := positions[v.Column()]
				if !ok {
					continue
				}
				if err := schema.AppendValue(fields[pos], v); err != nil {
					return err
				}
			}
			return nil
		})
		reader.Close()
		if err != nil {
			return nil, err
		}
	}
	return builder.NewRecord(), nil
}

func readRows(reader parquet.Rows, buf []parquet.Row, each func(parquet.Row) error) error {
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			if err := each(row); err != nil {
				return err
			}
		}
		if err == io.EOF || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type projection struct {
	leaves []parquet.LeafColumn
	schema *arrow.Schema
}

// newProjection resolves columns against the top-level leaves of pqFile.
func newProjection(pqFile *parquet.File, columns []string) (projection, error) {
	if len(columns) == 0 {
		for _, path := range pqFile.Schema().Columns() {
			columns = append(columns, path[0])
		}
	}

	result := projection{leaves: make([]parquet.LeafColumn, 0, len(columns))}
	fields := make([]arrow.Field, 0, len(columns))
	for _, name := range columns {
		leaf, ok := pqFile.Schema().Lookup(name)
		if !ok {
			return projection{}, errors.Wrapf(dataset.ErrUnknownColumn, "column %q", name)
		}
		field, err := schema.ArrowField(name, leaf.Node)
		if err != nil {
			return projection{}, err
		}
		result.leaves = append(result.leaves, leaf)
		fields = append(fields, field)
	}
	result.schema = arrow.NewSchema(fields, nil)
	return result, nil
}

func openParquet(path string) (*parquet.File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	pqFile, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(readBufferSize))
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "opening parquet file")
	}
	return pqFile, f, nil
}
