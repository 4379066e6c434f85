package dataset

import (
	stdcsv "encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/csv"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
)

const csvChunkRows = 64 * 1024

type columnKind int

const (
	kindInt columnKind = iota
	kindFloat
	kindString
)

// ReadCSV loads a CSV file with a header row into memory.
// Column types are inferred as int64, float64 or string; empty cells are null.
func ReadCSV(mem memory.Allocator, path string) (*Dataset, error) {
	schema, err := inferCSVSchema(path)
	if err != nil {
		return nil, errors.Wrapf(err, "inferring schema of %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f, schema,
		csv.WithHeader(true),
		csv.WithChunk(csvChunkRows),
		csv.WithAllocator(mem),
		csv.WithNullReader(true, ""),
	)
	defer reader.Release()

	var records []arrow.Record
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := reader.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	rec, err := ConcatRecords(mem, schema, records)
	if err != nil {
		return nil, err
	}
	return New(rec), nil
}

// WriteCSV writes the dataset with a header row.
func WriteCSV(ds *Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	writer := csv.NewWriter(f, ds.Schema(), csv.WithHeader(true))
	if err := writer.Write(ds.Record()); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := writer.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "flushing %s", path)
	}
	return f.Close()
}

func inferCSVSchema(path string) (*arrow.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := stdcsv.NewReader(f)
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("missing header")
	}
	if err != nil {
		return nil, err
	}
	names := append([]string(nil), header...)

	kinds := make([]columnKind, len(names))
	seen := make([]bool, len(names))
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, cell := range row {
			if i >= len(kinds) || cell == "" {
				continue
			}
			kinds[i] = widen(kinds[i], cell)
			seen[i] = true
		}
	}

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		if !seen[i] {
			kinds[i] = kindString
		}
		fields[i] = arrow.Field{Name: name, Type: kinds[i].arrowType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func widen(kind columnKind, cell string) columnKind {
	if kind == kindInt {
		if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return kindInt
		}
		kind = kindFloat
	}
	if kind == kindFloat {
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			return kindFloat
		}
	}
	return kindString
}

func (k columnKind) arrowType() arrow.DataType {
	switch k {
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}
