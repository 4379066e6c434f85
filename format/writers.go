package format

import (
	"io"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
	pqarrowparquet "github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"

	"fpetkovski/io-bench/schema"
)

const (
	EncoderGoavro    = "goavro"
	EncoderSegmentio = "segmentio"
	EncoderArrow     = "arrow"

	avroBatchRows    = 1024
	parquetBatchRows = 1024
	pageBufferSize   = 256 * 1024
)

var ErrUnknownEncoder = errors.New("unknown encoder")

type WriterOptions struct {
	// ParquetEncoder is either EncoderSegmentio or EncoderArrow.
	ParquetEncoder string
	// AvroCodec is an OCF codec: null, deflate or snappy.
	AvroCodec string
	// FeatherCompression is none, lz4 or zstd.
	FeatherCompression string
}

func NewWriter(f Format, opts WriterOptions) (Writer, error) {
	switch f {
	case Avro:
		return NewAvroWriter(opts.AvroCodec), nil
	case Parquet:
		switch opts.ParquetEncoder {
		case "", EncoderSegmentio:
			return NewParquetWriter(), nil
		case EncoderArrow:
			return NewArrowParquetWriter(), nil
		default:
			return nil, errors.Wrapf(ErrUnknownEncoder, "parquet encoder %q", opts.ParquetEncoder)
		}
	case Feather:
		return NewFeatherWriter(opts.FeatherCompression)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
}

type AvroWriter struct {
	codec string
}

func NewAvroWriter(codec string) *AvroWriter {
	if codec == "" {
		codec = goavro.CompressionNullLabel
	}
	return &AvroWriter{codec: codec}
}

func (w *AvroWriter) Format() Format { return Avro }

func (w *AvroWriter) Encoder() string { return EncoderGoavro }

func (w *AvroWriter) Write(out io.WriteSeeker, rec arrow.Record) error {
	avroSchema, err := schema.MakeAvroSchema(rec.Schema())
	if err != nil {
		return err
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               out,
		Schema:          avroSchema.JSON,
		CompressionName: w.codec,
		MetaData:        map[string][]byte{schema.AvroColumnsKey: avroSchema.ColumnsMetadata()},
	})
	if err != nil {
		return errors.Wrap(err, "creating OCF writer")
	}

	batch := make([]interface{}, 0, avroBatchRows)
	for i := 0; i < int(rec.NumRows()); i++ {
		batch = append(batch, avroSchema.Datum(rec, i))
		if len(batch) == cap(batch) {
			if err := ocf.Append(batch); err != nil {
				return errors.Wrap(err, "appending avro block")
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := ocf.Append(batch); err != nil {
			return errors.Wrap(err, "appending avro block")
		}
	}
	return nil
}

// ParquetWriter encodes records with segmentio/parquet-go.
type ParquetWriter struct{}

func NewParquetWriter() *ParquetWriter { return &ParquetWriter{} }

func (w *ParquetWriter) Format() Format { return Parquet }

func (w *ParquetWriter) Encoder() string { return EncoderSegmentio }

func (w *ParquetWriter) Write(out io.WriteSeeker, rec arrow.Record) error {
	recordSchema, err := schema.MakeRecordSchema(rec.Schema())
	if err != nil {
		return err
	}

	writer := parquet.NewGenericWriter[any](out, recordSchema.ParquetSchema(),
		parquet.PageBufferSize(pageBufferSize),
	)
	rows := make([]parquet.Row, 0, parquetBatchRows)
	for i := 0; i < int(rec.NumRows()); i++ {
		rows = append(rows, recordSchema.MakeRow(rec, i))
		if len(rows) == cap(rows) {
			if _, err := writer.WriteRows(rows); err != nil {
				return errors.Wrap(err, "writing rows")
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			return errors.Wrap(err, "writing rows")
		}
	}
	return errors.Wrap(writer.Close(), "closing parquet writer")
}

// ArrowParquetWriter encodes records with the arrow parquet writer.
type ArrowParquetWriter struct {
	props *pqarrowparquet.WriterProperties
}

func NewArrowParquetWriter() *ArrowParquetWriter {
	return &ArrowParquetWriter{
		props: pqarrowparquet.NewWriterProperties(
			pqarrowparquet.WithCompression(compress.Codecs.Snappy),
			pqarrowparquet.WithDictionaryDefault(true),
			// A repeated root gives every leaf a repetition level in segmentio's reader.
			pqarrowparquet.WithRootRepetition(pqarrowparquet.Repetitions.Required),
		),
	}
}

func (w *ArrowParquetWriter) Format() Format { return Parquet }

func (w *ArrowParquetWriter) Encoder() string { return EncoderArrow }

func (w *ArrowParquetWriter) Write(out io.WriteSeeker, rec arrow.Record) error {
	writer, err := pqarrow.NewFileWriter(rec.Schema(), writeOnly{out}, w.props, pqarrow.DefaultWriterProps())
	if err != nil {
		return errors.Wrap(err, "creating parquet writer")
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return errors.Wrap(err, "writing record")
	}
	return errors.Wrap(writer.Close(), "closing parquet writer")
}

// FeatherWriter writes the arrow IPC file format.
type FeatherWriter struct {
	opts []ipc.Option
}

func NewFeatherWriter(compression string) (*FeatherWriter, error) {
	opts := []ipc.Option{ipc.WithAllocator(memory.DefaultAllocator)}
	switch compression {
	case "", "none", "uncompressed":
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	default:
		return nil, errors.Errorf("unknown feather compression %q", compression)
	}
	return &FeatherWriter{opts: opts}, nil
}

func (w *FeatherWriter) Format() Format { return Feather }

func (w *FeatherWriter) Encoder() string { return EncoderArrow }

func (w *FeatherWriter) Write(out io.WriteSeeker, rec arrow.Record) error {
	opts := append([]ipc.Option{ipc.WithSchema(rec.Schema())}, w.opts...)
	writer, err := ipc.NewFileWriter(out, opts...)
	if err != nil {
		return errors.Wrap(err, "creating feather writer")
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return errors.Wrap(err, "writing record")
	}
	return errors.Wrap(writer.Close(), "closing feather writer")
}
