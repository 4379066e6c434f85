package parser

import (
	"bufio"
	"context"
	"os"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
	"fpetkovski/io-bench/schema"
)

const avroReadBufferSize = 256 * 1024

// Avro decodes OCF files with goavro.
type Avro struct {
	files
}

func NewAvro(dir string, mem memory.Allocator) *Avro {
	p := &Avro{files: files{name: AvroName, dir: dir, format: format.Avro, mem: mem}}
	p.read = p.readFile
	return p
}

func (p *Avro) readFile(ctx context.Context, path string, columns []string) (arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ocf, err := goavro.NewOCFReader(bufio.NewReaderSize(f, avroReadBufferSize))
	if err != nil {
		return nil, errors.Wrap(err, "opening OCF")
	}
	avroSchema, err := schema.ParseAvroSchema(ocf.Codec().Schema(), schema.ParseColumnsMetadata(ocf.MetaData()[schema.AvroColumnsKey]))
	if err != nil {
		return nil, err
	}
	indices, err := dataset.ColumnIndices(avroSchema.Arrow, columns)
	if err != nil {
		return nil, err
	}
	if indices == nil {
		indices = make([]int, len(avroSchema.Names))
		for i := range indices {
			indices[i] = i
		}
	}

	projected := dataset.ProjectSchema(avroSchema.Arrow, indices)
	builder := array.NewRecordBuilder(p.mem, projected)
	defer builder.Release()

	for ocf.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		datum, err := ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, "decoding record")
		}
		if err := avroSchema.AppendDatum(builder.Fields(), indices, datum); err != nil {
			return nil, err
		}
	}
	if err := ocf.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning OCF")
	}
	return builder.NewRecord(), nil
}
