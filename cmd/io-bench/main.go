package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/alecthomas/kingpin.v2"

	"fpetkovski/io-bench/bench"
	"fpetkovski/io-bench/config"
	"fpetkovski/io-bench/report"
)

type Options struct {
	// Path to the YAML config file.
	ConfigFile string
	// Overrides of the config file.
	SourceFile string
	OutputDir  string
	ReportDir  string
	GCSBucket  string
	Runs       int
	Parsers    []string
	Columns    []string

	// Number of records written by the sample command.
	Records int
	// Benchmark the partitions already on disk.
	ReusePartitions bool
	// Skip writing reports after a run.
	NoReport bool

	// Address to expose metrics on. Empty disables the endpoint.
	MetricsAddr string
	Debug       bool
	Progress    bool

	command string
	columns string
}

func (o *Options) BindFlags(app *kingpin.Application) error {
	app.Flag("config.file", "Path to the YAML config file.").
		Default("").StringVar(&o.ConfigFile)
	app.Flag("source", "CSV source file. Overrides source_file.").
		Default("").StringVar(&o.SourceFile)
	app.Flag("output-dir", "Directory for partition files. Overrides output_dir.").
		Default("").StringVar(&o.OutputDir)
	app.Flag("report-dir", "Directory for reports. Overrides report_dir.").
		Default("").StringVar(&o.ReportDir)
	app.Flag("gcs-bucket", "Upload reports to this GCS bucket. Overrides gcs_bucket.").
		Default("").StringVar(&o.GCSBucket)
	app.Flag("metrics-addr", "Address to expose metrics on.").
		Default("").StringVar(&o.MetricsAddr)
	app.Flag("debug", "Enable debug logging.").BoolVar(&o.Debug)
	app.Flag("progress", "Show progress bars.").Default("true").BoolVar(&o.Progress)

	sample := app.Command("sample", "Generate a sample source file.")
	sample.Flag("records", "Number of records to generate.").
		Default("0").IntVar(&o.Records)

	app.Command("partition", "Partition the source file into every format.")

	run := app.Command("run", "Benchmark the configured parsers.")
	run.Flag("runs", "Iterations per parser. Overrides runs.").
		Default("-1").IntVar(&o.Runs)
	run.Flag("parser", "Parser to benchmark. Repeatable; overrides parsers.").
		StringsVar(&o.Parsers)
	run.Flag("columns", "Comma separated columns to read. Overrides columns.").
		Default("").StringVar(&o.columns)
	run.Flag("reuse-partitions", "Benchmark partitions already on disk.").BoolVar(&o.ReusePartitions)
	run.Flag("no-report", "Do not write reports.").BoolVar(&o.NoReport)

	command, err := app.Parse(os.Args[1:])
	if err != nil {
		return err
	}
	o.command = command
	if o.columns != "" {
		o.Columns = strings.Split(o.columns, ",")
	}
	return nil
}

func (o *Options) apply(cfg config.Config) config.Config {
	if o.SourceFile != "" {
		cfg.SourceFile = o.SourceFile
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.ReportDir != "" {
		cfg.ReportDir = o.ReportDir
	}
	if o.GCSBucket != "" {
		cfg.GCSBucket = o.GCSBucket
	}
	if o.Runs >= 0 {
		cfg.Runs = o.Runs
	}
	if len(o.Parsers) > 0 {
		cfg.Parsers = o.Parsers
	}
	if len(o.Columns) > 0 {
		cfg.Columns = o.Columns
	}
	if o.Records > 0 {
		cfg.SampleRecords = o.Records
	}
	return cfg
}

func main() {
	app := kingpin.New("io-bench", "Benchmark reading columnar file formats.")
	opts := Options{}
	if err := (&opts).BindFlags(app); err != nil {
		kingpin.Fatalf("%s", err)
	}

	logger := newLogger(opts.Debug)
	if err := run(logger, opts); err != nil {
		level.Error(logger).Log("msg", "command failed", "command", opts.command, "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, opts Options) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	cfg = opts.apply(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if opts.MetricsAddr != "" {
		go serveMetrics(logger, reg, opts.MetricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sessionOpts []bench.SessionOption
	if opts.Progress {
		sessionOpts = append(sessionOpts, bench.WithRunnerOptions(bench.WithProgress(bench.NewProgressBar)))
	}
	if opts.ReusePartitions {
		sessionOpts = append(sessionOpts, bench.WithExistingPartitions())
	}
	session, err := bench.NewSession(logger, cfg, reg, sessionOpts...)
	if err != nil {
		return err
	}

	switch opts.command {
	case "sample":
		return session.GenerateSample(cfg.SampleRecords)
	case "partition":
		return session.Partition(ctx, nil)
	case "run":
		results, err := session.Run(ctx, nil, "")
		if err != nil {
			return err
		}
		if len(cfg.Columns) > 0 {
			selected, err := session.Run(ctx, cfg.Columns, "_select")
			if err != nil {
				return err
			}
			results = append(results, selected...)
		}
		if opts.NoReport {
			return nil
		}
		bkt, err := report.NewBucket(ctx, logger, cfg.ReportDir, cfg.GCSBucket)
		if err != nil {
			return err
		}
		defer bkt.Close()
		if err := session.Report(ctx, bkt, results); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "wrote reports", "dir", cfg.ReportDir, "gcs_bucket", cfg.GCSBucket)
		return nil
	}
	return nil
}

func serveMetrics(logger log.Logger, reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		level.Error(logger).Log("msg", "metrics server stopped", "err", err)
	}
}

func newLogger(debug bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	if debug {
		return level.NewFilter(logger, level.AllowDebug())
	}
	return level.NewFilter(logger, level.AllowInfo())
}
