package parser

import (
	"bytes"
	"context"
	"os"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
)

// Feather reads arrow IPC files through regular file reads.
type Feather struct {
	files
}

func NewFeather(dir string, mem memory.Allocator) *Feather {
	p := &Feather{files: files{name: FeatherName, dir: dir, format: format.Feather, mem: mem}}
	p.read = p.readFile
	return p
}

func (p *Feather) readFile(ctx context.Context, path string, columns []string) (arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readIPC(ctx, p.mem, f, columns)
}

// MmapFeather reads arrow IPC files from a read-only memory mapping.
type MmapFeather struct {
	files
}

func NewMmapFeather(dir string, mem memory.Allocator) *MmapFeather {
	p := &MmapFeather{files: files{name: MmapFeatherName, dir: dir, format: format.Feather, mem: mem}}
	p.read = p.readFile
	return p
}

func (p *MmapFeather) readFile(ctx context.Context, path string, columns []string) (rec arrow.Record, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrap(err, "mapping file")
	}
	defer func() {
		if unmapErr := region.Unmap(); unmapErr != nil && err == nil {
			err = errors.Wrap(unmapErr, "unmapping file")
		}
	}()

	return readIPC(ctx, p.mem, bytes.NewReader(region), columns)
}

func readIPC(ctx context.Context, mem memory.Allocator, r ipc.ReadAtSeeker, columns []string) (arrow.Record, error) {
	reader, err := ipc.NewFileReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, "opening IPC file")
	}
	defer reader.Close()

	indices, err := dataset.ColumnIndices(reader.Schema(), columns)
	if err != nil {
		return nil, err
	}

	records := make([]arrow.Record, 0, reader.NumRecords())
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	for i := 0; i < reader.NumRecords(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Record(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading record batch %d", i)
		}
		records = append(records, dataset.ProjectRecord(rec, indices))
	}
	return dataset.ConcatRecords(mem, dataset.ProjectSchema(reader.Schema(), indices), records)
}
