package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the gauges updated on every sample. One instance can be
// shared by successive monitors.
type Metrics struct {
	cpuUsage prometheus.Gauge
	threads  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		cpuUsage: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "iobench_cpu_usage_percent",
			Help: "System-wide CPU usage at the last sample.",
		}),
		threads: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "iobench_threads",
			Help: "Threads of the monitored processes at the last sample.",
		}),
	}
}
