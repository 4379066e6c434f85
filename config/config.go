package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"fpetkovski/io-bench/format"
	"fpetkovski/io-bench/monitor"
	"fpetkovski/io-bench/parser"
)

const (
	DefaultRuns          = 10
	DefaultTargetSize    = 10 * humanize.MiByte
	DefaultProbeRows     = 10_000
	DefaultSampleRecords = 1_000_000
)

// ByteSize is a size in bytes that unmarshals from strings like "10MiB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "parsing size %q", s)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return humanize.IBytes(uint64(b)), nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

type FormatConfig struct {
	// TargetSize is the size each partition file should just exceed.
	TargetSize ByteSize `yaml:"target_size"`
	// Rows, when positive, partitions by a fixed number of rows instead.
	Rows      int64 `yaml:"rows"`
	ProbeRows int64 `yaml:"probe_rows"`
	// Refine narrows the last probe step down to a single row.
	Refine bool `yaml:"refine"`
	// Encoder picks the parquet writer: segmentio or arrow.
	Encoder string `yaml:"encoder"`
	// Compression is the avro codec or the feather compression.
	Compression string `yaml:"compression"`
}

type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ProcessPattern string        `yaml:"process_pattern"`
}

type Config struct {
	SourceFile    string `yaml:"source_file"`
	SampleRecords int    `yaml:"sample_records"`
	OutputDir     string `yaml:"output_dir"`
	ReportDir     string `yaml:"report_dir"`
	// GCSBucket, when set, uploads reports to GCS instead of ReportDir.
	GCSBucket string `yaml:"gcs_bucket"`

	Runs    int      `yaml:"runs"`
	Parsers []string `yaml:"parsers"`
	Columns []string `yaml:"columns"`

	Formats map[format.Format]FormatConfig `yaml:"formats"`
	Monitor MonitorConfig                  `yaml:"monitor"`
}

func Default() Config {
	formats := make(map[format.Format]FormatConfig, len(format.Formats()))
	for _, f := range format.Formats() {
		formats[f] = FormatConfig{TargetSize: DefaultTargetSize, ProbeRows: DefaultProbeRows}
	}
	return Config{
		SourceFile:    filepath.Join("data", "source.csv"),
		SampleRecords: DefaultSampleRecords,
		OutputDir:     "data",
		ReportDir:     "result",
		Runs:          DefaultRuns,
		Parsers:       parser.Names(),
		Formats:       formats,
		Monitor:       MonitorConfig{Interval: monitor.DefaultInterval},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(content)
}

func Parse(content []byte) (Config, error) {
	cfg := Default()
	defaults := cfg.Formats
	cfg.Formats = nil
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	cfg.Formats = mergeFormats(defaults, cfg.Formats)
	return cfg, cfg.Validate()
}

// mergeFormats fills formats missing from the file with defaults and
// unset numeric fields of configured formats.
func mergeFormats(defaults, configured map[format.Format]FormatConfig) map[format.Format]FormatConfig {
	merged := make(map[format.Format]FormatConfig, len(defaults))
	for f, def := range defaults {
		c, ok := configured[f]
		if !ok {
			merged[f] = def
			continue
		}
		if c.TargetSize == 0 {
			c.TargetSize = def.TargetSize
		}
		if c.ProbeRows == 0 {
			c.ProbeRows = def.ProbeRows
		}
		merged[f] = c
	}
	for f, c := range configured {
		if _, ok := merged[f]; !ok {
			merged[f] = c
		}
	}
	return merged
}

func (c Config) Validate() error {
	if c.Runs < 0 {
		return errors.Errorf("runs must not be negative, got %d", c.Runs)
	}
	if c.Monitor.Interval <= 0 {
		return errors.Errorf("monitor interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	for f, fc := range c.Formats {
		if _, err := format.ParseFormat(string(f)); err != nil {
			return err
		}
		if fc.Rows < 0 || fc.TargetSize < 0 || fc.ProbeRows < 0 {
			return errors.Errorf("format %s: sizes must not be negative", f)
		}
	}
	return nil
}

// FormatDir is the directory holding the partitions of f.
func (c Config) FormatDir(f format.Format) string {
	return filepath.Join(c.OutputDir, string(f))
}

func (c Config) WriterOptions() format.WriterOptions {
	return format.WriterOptions{
		ParquetEncoder:     c.Formats[format.Parquet].Encoder,
		AvroCodec:          c.Formats[format.Avro].Compression,
		FeatherCompression: c.Formats[format.Feather].Compression,
	}
}
