package bench

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"

	"fpetkovski/io-bench/monitor"
)

// Iteration is one full read of every partition file.
type Iteration struct {
	Elapsed time.Duration
	Rows    int64
	Params  int64
	Bytes   int64
}

type Summary struct {
	TotalTime   time.Duration
	Iterations  int
	TotalRows   int64
	TotalParams int64
	TotalBytes  int64

	RowsPerSec   float64
	ParamsPerSec float64
	// ParamsPerMB is the number of cells per MiB of partition files.
	ParamsPerMB float64

	MeanCPUUsage    float64
	MaxCPUUsage     float64
	MeanThreadCount float64
	MaxThreadCount  float64
}

// Summarize aggregates iterations and monitor samples.
// Throughput is zero when no time elapsed.
func Summarize(iterations []Iteration, samples []monitor.Sample) Summary {
	s := Summary{Iterations: len(iterations)}
	for _, it := range iterations {
		s.TotalTime += it.Elapsed
		s.TotalRows += it.Rows
		s.TotalParams += it.Params
		s.TotalBytes += it.Bytes
	}
	if seconds := s.TotalTime.Seconds(); seconds > 0 {
		s.RowsPerSec = float64(s.TotalRows) / seconds
		s.ParamsPerSec = float64(s.TotalParams) / seconds
	}
	if s.TotalBytes > 0 {
		s.ParamsPerMB = float64(s.TotalParams) / (float64(s.TotalBytes) / humanize.MiByte)
	}

	cpu := make(stats.Float64Data, 0, len(samples))
	threads := make(stats.Float64Data, 0, len(samples))
	for _, sample := range samples {
		cpu = append(cpu, sample.CPUUsage)
		threads = append(threads, float64(sample.TotalThreads))
	}
	s.MeanCPUUsage = orZero(cpu.Mean())
	s.MaxCPUUsage = orZero(cpu.Max())
	s.MeanThreadCount = orZero(threads.Mean())
	s.MaxThreadCount = orZero(threads.Max())
	return s
}

func orZero(v float64, err error) float64 {
	if err != nil {
		return 0
	}
	return v
}
