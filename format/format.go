package format

import (
	"io"
	"os"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/pkg/errors"
)

type Format string

const (
	Avro    Format = "avro"
	Parquet Format = "parquet"
	Feather Format = "feather"
)

var ErrUnknownFormat = errors.New("unknown format")

func Formats() []Format {
	return []Format{Avro, Parquet, Feather}
}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
}

func (f Format) Extension() string { return string(f) }

// Writer serialises a record into a single file of a format.
type Writer interface {
	Format() Format
	// Encoder names the library producing the bytes.
	Encoder() string
	// Write encodes rec into w. Formats with a footer seek within w.
	Write(w io.WriteSeeker, rec arrow.Record) error
}

// WriteFile writes rec to path, replacing any existing file.
func WriteFile(writer Writer, rec arrow.Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := writer.Write(f, rec); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// writeOnly hides Close from encoders that would otherwise close the sink.
type writeOnly struct {
	io.Writer
}
