package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"

	"fpetkovski/io-bench/config"
	"fpetkovski/io-bench/dataset"
	"fpetkovski/io-bench/format"
	"fpetkovski/io-bench/monitor"
	"fpetkovski/io-bench/parser"
	"fpetkovski/io-bench/partition"
	"fpetkovski/io-bench/report"
)

type SessionOption func(*Session)

func WithAllocator(mem memory.Allocator) SessionOption {
	return func(s *Session) { s.mem = mem }
}

func WithRunnerOptions(opts ...RunnerOption) SessionOption {
	return func(s *Session) { s.runnerOpts = append(s.runnerOpts, opts...) }
}

func WithManagerOptions(opts ...partition.ManagerOption) SessionOption {
	return func(s *Session) { s.managerOpts = append(s.managerOpts, opts...) }
}

// WithProbe replaces the probe used by run monitors.
func WithProbe(probe monitor.Probe) SessionOption {
	return func(s *Session) { s.probe = probe }
}

// WithExistingPartitions skips partitioning before the first run and
// benchmarks the files already in the output directory.
func WithExistingPartitions() SessionOption {
	return func(s *Session) { s.partitioned = true }
}

// Session partitions a source file and benchmarks the configured parsers.
type Session struct {
	logger      log.Logger
	cfg         config.Config
	mem         memory.Allocator
	probe       monitor.Probe
	runnerOpts  []RunnerOption
	managerOpts []partition.ManagerOption

	manager *partition.Manager
	runner  *Runner
	parsers []parser.Parser

	partitioned bool
	counter     int
}

func NewSession(logger log.Logger, cfg config.Config, reg prometheus.Registerer, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		logger: logger,
		cfg:    cfg,
		mem:    memory.DefaultAllocator,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.probe == nil {
		probe, err := monitor.NewProcessProbe(cfg.Monitor.ProcessPattern)
		if err != nil {
			return nil, err
		}
		s.probe = probe
	}

	s.manager = partition.NewManager(logger, reg, s.managerOpts...)
	monitorMetrics := monitor.NewMetrics(reg)
	s.runner = NewRunner(logger, reg, func() *monitor.Monitor {
		return monitor.New(logger, s.probe, monitor.WithInterval(cfg.Monitor.Interval), monitor.WithMetrics(monitorMetrics))
	}, s.runnerOpts...)

	dirs := parser.Dirs{}
	for _, f := range format.Formats() {
		dirs[f] = cfg.FormatDir(f)
	}
	for _, name := range cfg.Parsers {
		p, err := parser.New(name, dirs, s.mem)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping parser", "parser", name, "err", err)
			continue
		}
		s.parsers = append(s.parsers, p)
	}
	if len(s.parsers) == 0 {
		for _, name := range parser.Names() {
			p, _ := parser.New(name, dirs, s.mem)
			s.parsers = append(s.parsers, p)
		}
	}
	return s, nil
}

func (s *Session) Parsers() []parser.Parser { return s.parsers }

func (s *Session) Partitioned() bool { return s.partitioned }

// GenerateSample writes n sample records to the source file unless it exists.
func (s *Session) GenerateSample(n int) error {
	written, err := dataset.GenerateSample(s.mem, s.cfg.SourceFile, n)
	if err != nil {
		return err
	}
	if written {
		level.Info(s.logger).Log("msg", "generated sample", "path", s.cfg.SourceFile, "records", n)
	} else {
		level.Info(s.logger).Log("msg", "sample already exists", "path", s.cfg.SourceFile)
	}
	return nil
}

// Partition loads the source file and writes partitions of every configured
// format. rows overrides the configured layout with fixed row counts per format.
func (s *Session) Partition(ctx context.Context, rows map[format.Format]int64) error {
	start := time.Now()
	ds, err := dataset.ReadCSV(s.mem, s.cfg.SourceFile)
	if err != nil {
		return errors.Wrap(err, "loading source")
	}
	defer ds.Release()
	level.Info(s.logger).Log("msg", "loaded source", "path", s.cfg.SourceFile, "rows", ds.NumRows(), "columns", ds.NumColumns())

	specs, err := s.formatSpecs(rows)
	if err != nil {
		return err
	}
	if err := s.manager.Partition(ctx, ds, specs); err != nil {
		return errors.Wrap(err, "partitioning")
	}

	s.partitioned = true
	level.Info(s.logger).Log("msg", "partitioned source", "formats", len(specs), "duration", time.Since(start))
	return nil
}

func (s *Session) formatSpecs(rows map[format.Format]int64) ([]partition.FormatSpec, error) {
	opts := s.cfg.WriterOptions()
	specs := make([]partition.FormatSpec, 0, len(format.Formats()))
	for _, f := range format.Formats() {
		writer, err := format.NewWriter(f, opts)
		if err != nil {
			return nil, err
		}
		fc := s.cfg.Formats[f]
		spec := partition.FormatSpec{
			Writer:         writer,
			Dir:            s.cfg.FormatDir(f),
			Rows:           fc.Rows,
			TargetBytes:    int64(fc.TargetSize),
			ProbeChunkRows: fc.ProbeRows,
			Refine:         fc.Refine,
		}
		if n, ok := rows[f]; ok {
			spec.Rows = n
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Run benchmarks every parser, partitioning first if needed. Run ids are
// the parser name followed by suffix; an empty suffix becomes _<n> where n
// counts calls to Run. A failing parser does not stop the others.
func (s *Session) Run(ctx context.Context, columns []string, suffix string) ([]Result, error) {
	if !s.partitioned {
		if err := s.Partition(ctx, nil); err != nil {
			return nil, err
		}
	}
	if suffix == "" {
		suffix = fmt.Sprintf("_%d", s.counter)
		s.counter++
	}

	results := make([]Result, 0, len(s.parsers))
	for _, p := range s.parsers {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, s.runner.Run(ctx, p, columns, s.cfg.Runs, p.Name()+suffix))
	}
	return results, nil
}

// Report writes summary and polling reports for results to bkt.
func (s *Session) Report(ctx context.Context, bkt objstore.Bucket, results []Result) error {
	runs := make([]report.Run, 0, len(results))
	for _, r := range results {
		runs = append(runs, r.ReportRun())
	}
	return report.Generate(ctx, bkt, runs, s.cfg.Monitor.Interval)
}

// ReportRun converts r into the report's representation.
func (r Result) ReportRun() report.Run {
	return report.Run{
		ID:      r.ID,
		Err:     r.Err,
		Metrics: r.Summary.Metrics(),
		Samples: r.Samples,
	}
}

func (s Summary) Metrics() []report.Metric {
	return []report.Metric{
		{Name: "total_time", Value: s.TotalTime.Seconds()},
		{Name: "iterations", Value: float64(s.Iterations)},
		{Name: "total_rows", Value: float64(s.TotalRows)},
		{Name: "total_params", Value: float64(s.TotalParams)},
		{Name: "total_bytes", Value: float64(s.TotalBytes)},
		{Name: "rows_per_sec", Value: s.RowsPerSec},
		{Name: "params_per_sec", Value: s.ParamsPerSec},
		{Name: "params_per_mb", Value: s.ParamsPerMB},
		{Name: "mean_cpu_usage", Value: s.MeanCPUUsage},
		{Name: "max_cpu_usage", Value: s.MaxCPUUsage},
		{Name: "mean_thread_count", Value: s.MeanThreadCount},
		{Name: "max_thread_count", Value: s.MaxThreadCount},
	}
}
