package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/require"

	"fpetkovski/io-bench/format"
	"fpetkovski/io-bench/parser"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, DefaultRuns, cfg.Runs)
	require.Equal(t, parser.Names(), cfg.Parsers)
	require.Equal(t, 100*time.Millisecond, cfg.Monitor.Interval)
	for _, f := range format.Formats() {
		require.Equal(t, ByteSize(10*humanize.MiByte), cfg.Formats[f].TargetSize)
	}
	require.Equal(t, filepath.Join("data", "parquet"), cfg.FormatDir(format.Parquet))
}

func TestLoad(t *testing.T) {
	content := `
output_dir: /tmp/bench
runs: 3
parsers: [avro, feather_mmap]
columns: [Region, Profit]
formats:
  avro:
    rows: 250
    compression: deflate
  parquet:
    target_size: 5MiB
    encoder: arrow
    refine: true
monitor:
  interval: 250ms
  process_pattern: python
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/tmp/bench", cfg.OutputDir)
	require.Equal(t, 3, cfg.Runs)
	require.Equal(t, []string{"avro", "feather_mmap"}, cfg.Parsers)
	require.Equal(t, []string{"Region", "Profit"}, cfg.Columns)
	require.Equal(t, 250*time.Millisecond, cfg.Monitor.Interval)
	require.Equal(t, "python", cfg.Monitor.ProcessPattern)

	require.Equal(t, int64(250), cfg.Formats[format.Avro].Rows)
	require.Equal(t, ByteSize(DefaultTargetSize), cfg.Formats[format.Avro].TargetSize)
	require.Equal(t, ByteSize(5*humanize.MiByte), cfg.Formats[format.Parquet].TargetSize)
	require.True(t, cfg.Formats[format.Parquet].Refine)
	require.Equal(t, ByteSize(DefaultTargetSize), cfg.Formats[format.Feather].TargetSize)

	opts := cfg.WriterOptions()
	require.Equal(t, format.EncoderArrow, opts.ParquetEncoder)
	require.Equal(t, "deflate", opts.AvroCodec)
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"negative runs":    "runs: -1",
		"bad size":         "formats: {avro: {target_size: lots}}",
		"unknown format":   "formats: {orc: {rows: 10}}",
		"zero interval":    "monitor: {interval: 0s}",
		"negative rows":    "formats: {feather: {rows: -5}}",
		"malformed yaml":   "runs: [",
		"empty output dir": "output_dir: ''",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			require.Error(t, err)
		})
	}
}
