package parser

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/pkg/errors"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
)

const arrowBatchSize = 64 * 1024

// ArrowParquet reads parquet files with the arrow pqarrow reader.
type ArrowParquet struct {
	files
}

func NewArrowParquet(dir string, mem memory.Allocator) *ArrowParquet {
	p := &ArrowParquet{files: files{name: ArrowParquetName, dir: dir, format: format.Parquet, mem: mem}}
	p.read = p.readFile
	return p
}

func (p *ArrowParquet) readFile(ctx context.Context, path string, columns []string) (arrow.Record, error) {
	pqFile, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "opening parquet file")
	}
	defer pqFile.Close()

	reader, err := pqarrow.NewFileReader(pqFile, pqarrow.ArrowReadProperties{Parallel: true, BatchSize: arrowBatchSize}, p.mem)
	if err != nil {
		return nil, errors.Wrap(err, "creating arrow reader")
	}
	fileSchema, err := reader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, "reading schema")
	}
	indices, err := dataset.ColumnIndices(fileSchema, columns)
	if err != nil {
		return nil, err
	}

	records, err := p.readRecords(ctx, reader, indices)
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	if err != nil {
		return nil, err
	}
	return dataset.ConcatRecords(p.mem, dataset.ProjectSchema(fileSchema, indices), records)
}

func (p *ArrowParquet) readRecords(ctx context.Context, reader *pqarrow.FileReader, indices []int) ([]arrow.Record, error) {
	recordReader, err := reader.GetRecordReader(ctx, indices, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating record reader")
	}
	defer recordReader.Release()

	var records []arrow.Record
	for {
		rec, err := recordReader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, errors.Wrap(err, "reading record batch")
		}
		rec.Retain()
		records = append(records, rec)
	}
}
