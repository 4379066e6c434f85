package bench

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fpetkovski/io-bench/monitor"
	"fpetkovski/io-bench/parser"
)

// Result is the outcome of benchmarking one parser.
type Result struct {
	ID      string
	Parser  string
	Columns []string
	Summary Summary
	Samples []monitor.Sample
	// Err is set when an iteration failed; Summary covers the iterations before it.
	Err error
}

func (r Result) Failed() bool { return r.Err != nil }

type MonitorFactory func() *monitor.Monitor

type RunnerOption func(*Runner)

func WithProgress(factory ProgressFactory) RunnerOption {
	return func(r *Runner) { r.progress = factory }
}

// Runner times repeated reads of a parser while a monitor samples usage.
type Runner struct {
	logger       log.Logger
	newMonitor   MonitorFactory
	progress     ProgressFactory
	readDuration *prometheus.HistogramVec
}

func NewRunner(logger log.Logger, reg prometheus.Registerer, newMonitor MonitorFactory, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:     logger,
		newMonitor: newMonitor,
		progress:   NopProgress,
		readDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iobench_read_duration_seconds",
			Help:    "Time taken by a parser to read every partition file once.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"parser"}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads every partition of p iterations times. The first failing
// iteration stops the run and is reported in Result.Err.
func (r *Runner) Run(ctx context.Context, p parser.Parser, columns []string, iterations int, id string) Result {
	result := Result{ID: id, Parser: p.Name(), Columns: columns}

	mon := r.newMonitor()
	bar := r.progress(iterations, id)
	mon.Start()

	completed := make([]Iteration, 0, iterations)
	for i := 0; i < iterations; i++ {
		bar.Describe(fmt.Sprintf("(%d/%d) %s: reading files", i+1, iterations, id))
		it, err := r.iterate(ctx, p, columns)
		if err != nil {
			result.Err = errors.Wrapf(err, "iteration %d", i)
			break
		}
		completed = append(completed, it)
		_ = bar.Add(1)
	}

	mon.Stop()
	_ = bar.Finish()

	result.Samples = mon.Samples()
	result.Summary = Summarize(completed, result.Samples)
	if result.Failed() {
		level.Error(r.logger).Log("msg", "benchmark failed", "id", id, "parser", p.Name(), "err", result.Err)
	} else {
		level.Info(r.logger).Log("msg", "benchmark finished", "id", id, "parser", p.Name(),
			"iterations", result.Summary.Iterations,
			"total_time", result.Summary.TotalTime,
			"rows_per_sec", fmt.Sprintf("%.0f", result.Summary.RowsPerSec))
	}
	return result
}

func (r *Runner) iterate(ctx context.Context, p parser.Parser, columns []string) (Iteration, error) {
	start := time.Now()
	ds, err := p.Read(ctx, columns)
	elapsed := time.Since(start)
	if err != nil {
		return Iteration{}, err
	}
	defer ds.Release()
	r.readDuration.WithLabelValues(p.Name()).Observe(elapsed.Seconds())

	files, err := p.ListFiles()
	if err != nil {
		return Iteration{}, err
	}
	var size int64
	for _, f := range files {
		stat, err := os.Stat(f)
		if err != nil {
			return Iteration{}, errors.Wrapf(err, "stat %s", f)
		}
		size += stat.Size()
	}

	return Iteration{
		Elapsed: elapsed,
		Rows:    ds.NumRows(),
		Params:  ds.NumParams(),
		Bytes:   size,
	}, nil
}
