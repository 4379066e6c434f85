package partition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	partitionsWritten *prometheus.CounterVec
	probeWrites       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		partitionsWritten: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "iobench_partitions_written_total",
			Help: "Number of partition files written.",
		}, []string{"format"}),
		probeWrites: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "iobench_probe_writes_total",
			Help: "Number of temporary files written while sizing partitions.",
		}, []string{"format"}),
	}
}
