package parser

import (
	"context"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
)

const (
	AvroName             = "avro"
	ArrowParquetName     = "parquet_arrow"
	SegmentioParquetName = "parquet_segmentio"
	RowParquetName       = "parquet_rows"
	FeatherName          = "feather"
	MmapFeatherName      = "feather_mmap"
)

var (
	ErrNoData        = errors.New("no data collected")
	ErrUnknownParser = errors.New("unknown parser")
)

// Parser loads every partition file of one format into a single dataset.
type Parser interface {
	Name() string
	Format() format.Format
	ListFiles() ([]string, error)
	// Read loads the given columns, or every column when columns is empty.
	Read(ctx context.Context, columns []string) (*dataset.Dataset, error)
}

// Dirs holds the partition directory of each format.
type Dirs map[format.Format]string

func Names() []string {
	return []string{AvroName, ArrowParquetName, SegmentioParquetName, RowParquetName, FeatherName, MmapFeatherName}
}

func New(name string, dirs Dirs, mem memory.Allocator) (Parser, error) {
	switch name {
	case AvroName:
		return NewAvro(dirs[format.Avro], mem), nil
	case ArrowParquetName:
		return NewArrowParquet(dirs[format.Parquet], mem), nil
	case SegmentioParquetName:
		return NewSegmentioParquet(dirs[format.Parquet], mem), nil
	case RowParquetName:
		return NewRowParquet(dirs[format.Parquet], mem), nil
	case FeatherName:
		return NewFeather(dirs[format.Feather], mem), nil
	case MmapFeatherName:
		return NewMmapFeather(dirs[format.Feather], mem), nil
	default:
		return nil, errors.Wrapf(ErrUnknownParser, "%q", name)
	}
}

type readFileFunc func(ctx context.Context, path string, columns []string) (arrow.Record, error)

// files implements the parts shared by every parser.
type files struct {
	name   string
	dir    string
	format format.Format
	mem    memory.Allocator
	read   readFileFunc
}

func (f *files) Name() string { return f.name }

func (f *files) Format() format.Format { return f.format }

func (f *files) ListFiles() ([]string, error) {
	return format.ListPartitionFiles(f.dir, f.format)
}

func (f *files) Read(ctx context.Context, columns []string) (*dataset.Dataset, error) {
	paths, err := f.ListFiles()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrNoData, "%s: no %s files in %s", f.name, f.format, f.dir)
	}

	parts := make([]*dataset.Dataset, 0, len(paths))
	defer func() {
		for _, part := range parts {
			part.Release()
		}
	}()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := f.read(ctx, path, columns)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: reading %s", f.name, path)
		}
		parts = append(parts, dataset.New(rec))
	}

	ds, err := dataset.Concat(f.mem, parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: concatenating files", f.name)
	}
	return ds, nil
}
