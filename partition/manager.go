package partition

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
)

// DefaultRowChunk is the number of rows added per probe when sizing partitions.
const DefaultRowChunk = 10_000

// FormatSpec describes how one format is partitioned.
type FormatSpec struct {
	Writer format.Writer
	Dir    string
	// Rows, when positive, splits the dataset into fixed row counts and
	// skips size probing.
	Rows           int64
	TargetBytes    int64
	ProbeChunkRows int64
	// Refine narrows partitions down to the row where they exceed TargetBytes.
	Refine bool
}

func (s FormatSpec) probeChunk() int64 {
	if s.ProbeChunkRows > 0 {
		return s.ProbeChunkRows
	}
	return DefaultRowChunk
}

type ManagerOption func(*Manager)

func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) { m.concurrency = n }
}

func WithSizerOptions(opts ...SizerOption) ManagerOption {
	return func(m *Manager) { m.sizerOpts = append(m.sizerOpts, opts...) }
}

// WithRemover replaces the function used to delete partition files.
func WithRemover(remove func(path string) error) ManagerOption {
	return func(m *Manager) { m.remove = remove }
}

// Manager computes partition ranges for each format and writes them to disk.
type Manager struct {
	logger      log.Logger
	sizer       *Sizer
	sizerOpts   []SizerOption
	concurrency int
	remove      func(string) error
	metrics     *metrics
}

func NewManager(logger log.Logger, reg prometheus.Registerer, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:      logger,
		concurrency: runtime.GOMAXPROCS(0),
		remove:      os.RemoveAll,
		metrics:     newMetrics(reg),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sizer = NewSizer(logger, append(m.sizerOpts, withSizerMetrics(m.metrics))...)
	return m
}

type plan struct {
	spec   FormatSpec
	ranges []dataset.Range
}

// Partition clears every spec's directory and writes ds into partition files.
// A failure writing one file does not stop the others; the first error is returned.
func (m *Manager) Partition(ctx context.Context, ds *dataset.Dataset, specs []FormatSpec) error {
	plans := make([]plan, 0, len(specs))
	for _, spec := range specs {
		ranges, err := m.Ranges(ctx, ds, spec)
		if err != nil {
			return errors.Wrapf(err, "computing %s partitions", spec.Writer.Format())
		}
		level.Info(m.logger).Log("msg", "computed partitions", "format", spec.Writer.Format(), "encoder", spec.Writer.Encoder(), "partitions", len(ranges))
		plans = append(plans, plan{spec: spec, ranges: ranges})
	}

	for _, p := range plans {
		if err := os.MkdirAll(p.spec.Dir, 0750); err != nil {
			return errors.Wrapf(err, "creating %s", p.spec.Dir)
		}
		if err := m.Clear(p.spec.Dir); err != nil {
			level.Warn(m.logger).Log("msg", "failed to clear partitions", "dir", p.spec.Dir, "err", err)
		}
	}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, p := range plans {
		for n, r := range p.ranges {
			p, n, r := p, n, r
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return m.writePartition(ds, p.spec, n, r)
			})
		}
	}
	return g.Wait()
}

// Ranges returns the row ranges spec splits ds into.
func (m *Manager) Ranges(ctx context.Context, ds *dataset.Dataset, spec FormatSpec) ([]dataset.Range, error) {
	if spec.Rows > 0 {
		return FixedRanges(ds.NumRows(), spec.Rows), nil
	}
	sizer := m.sizer
	if spec.Refine {
		sizer = sizer.refined()
	}
	return sizer.FindRanges(ctx, ds, spec.TargetBytes, spec.probeChunk(), spec.Writer)
}

func (m *Manager) writePartition(ds *dataset.Dataset, spec FormatSpec, n int, r dataset.Range) error {
	path := filepath.Join(spec.Dir, format.FileNameFor(spec.Writer, n))
	start := time.Now()

	rec := ds.Slice(r)
	defer rec.Release()
	if err := format.WriteFile(spec.Writer, rec, path); err != nil {
		level.Error(m.logger).Log("msg", "failed to write partition", "path", path, "rows", r, "err", err)
		return err
	}

	m.metrics.partitionsWritten.WithLabelValues(string(spec.Writer.Format())).Inc()
	level.Debug(m.logger).Log("msg", "wrote partition", "path", path, "rows", r, "duration", time.Since(start))
	return nil
}

// Clear removes every file and sub-directory in dirs. Deletion failures are
// logged and collected while the remaining entries are still removed.
// Missing directories are skipped.
func (m *Manager) Clear(dirs ...string) error {
	var errs []error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			level.Error(m.logger).Log("msg", "failed to list partitions", "dir", dir, "err", err)
			errs = append(errs, errors.Wrapf(err, "listing %s", dir))
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if err := m.remove(path); err != nil {
				level.Error(m.logger).Log("msg", "failed to delete partition", "path", path, "err", err)
				errs = append(errs, errors.Wrapf(err, "deleting %s", path))
			}
		}
	}
	return stderrors.Join(errs...)
}
