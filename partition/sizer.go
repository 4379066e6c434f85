package partition

import (
	"context"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
)

var ErrInvalidTarget = errors.New("target size and probe chunk must be positive")

type SizerOption func(*Sizer)

// WithTempDir sets the directory for probe files.
func WithTempDir(dir string) SizerOption {
	return func(s *Sizer) { s.tempDir = dir }
}

// WithRefine enables a binary search inside the last probe step so that
// partitions overshoot the target by less than one probe chunk.
func WithRefine(refine bool) SizerOption {
	return func(s *Sizer) { s.refine = refine }
}

func withSizerMetrics(m *metrics) SizerOption {
	return func(s *Sizer) { s.metrics = m }
}

// Sizer splits a dataset into row ranges whose serialised size just
// exceeds a target, by writing growing candidates to a temporary file.
type Sizer struct {
	logger  log.Logger
	tempDir string
	refine  bool
	metrics *metrics
}

func NewSizer(logger log.Logger, opts ...SizerOption) *Sizer {
	s := &Sizer{logger: logger, metrics: newMetrics(nil)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sizer) refined() *Sizer {
	c := *s
	c.refine = true
	return &c
}

// FindRanges returns contiguous ranges covering every row of ds. Every range
// but the last serialises to more than targetBytes with writer.
func (s *Sizer) FindRanges(ctx context.Context, ds *dataset.Dataset, targetBytes, probeChunkRows int64, writer format.Writer) ([]dataset.Range, error) {
	if targetBytes <= 0 || probeChunkRows <= 0 {
		return nil, errors.Wrapf(ErrInvalidTarget, "target %d bytes, chunk %d rows", targetBytes, probeChunkRows)
	}

	numRows := ds.NumRows()
	if numRows < probeChunkRows {
		return []dataset.Range{dataset.Pick(0, numRows)}, nil
	}

	var ranges []dataset.Range
	for start := int64(0); start < numRows; {
		end, err := s.grow(ctx, ds, start, targetBytes, probeChunkRows, writer)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, dataset.Pick(start, end))
		start = end
	}

	level.Debug(s.logger).Log("msg", "found partition ranges", "format", writer.Format(), "encoder", writer.Encoder(), "ranges", len(ranges))
	return ranges, nil
}

func (s *Sizer) grow(ctx context.Context, ds *dataset.Dataset, start, target, chunk int64, writer format.Writer) (int64, error) {
	numRows := ds.NumRows()
	end := start
	for end < numRows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		prev := end
		end += chunk
		if end > numRows {
			end = numRows
		}
		size, err := s.probe(ds, dataset.Pick(start, end), writer)
		if err != nil {
			return 0, err
		}
		if size > target {
			if s.refine && end-prev > 1 {
				return s.refineEnd(ctx, ds, start, prev, end, target, writer)
			}
			return end, nil
		}
	}
	return end, nil
}

// refineEnd finds the smallest end in (lo, hi] whose range exceeds target.
// The range ending at hi is known to exceed it.
func (s *Sizer) refineEnd(ctx context.Context, ds *dataset.Dataset, start, lo, hi, target int64, writer format.Writer) (int64, error) {
	for hi-lo > 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := lo + (hi-lo)/2
		size, err := s.probe(ds, dataset.Pick(start, mid), writer)
		if err != nil {
			return 0, err
		}
		if size > target {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

func (s *Sizer) probe(ds *dataset.Dataset, r dataset.Range, writer format.Writer) (size int64, err error) {
	f, err := os.CreateTemp(s.tempDir, "probe-*."+writer.Format().Extension())
	if err != nil {
		return 0, errors.Wrap(err, "creating probe file")
	}
	defer func() {
		f.Close()
		if rmErr := os.Remove(f.Name()); rmErr != nil && err == nil {
			err = errors.Wrap(rmErr, "removing probe file")
		}
	}()

	rec := ds.Slice(r)
	defer rec.Release()
	if err := writer.Write(f, rec); err != nil {
		return 0, errors.Wrapf(err, "probing %s", r)
	}
	stat, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat probe file")
	}

	s.metrics.probeWrites.WithLabelValues(string(writer.Format())).Inc()
	return stat.Size(), nil
}

// FixedRanges splits numRows into ranges of chunk rows. The last range
// ends at numRows. A non-positive chunk or an empty table yields [0, numRows).
func FixedRanges(numRows, chunk int64) []dataset.Range {
	if numRows <= 0 || chunk <= 0 {
		return []dataset.Range{dataset.Pick(0, numRows)}
	}

	ranges := make([]dataset.Range, 0, (numRows+chunk-1)/chunk)
	for start := int64(0); start < numRows; start += chunk {
		end := start + chunk
		if end > numRows {
			end = numRows
		}
		ranges = append(ranges, dataset.Pick(start, end))
	}
	return ranges
}
