package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

const DefaultInterval = 100 * time.Millisecond

// Sample is one observation of CPU and thread usage.
type Sample struct {
	// Time is the offset from the start of monitoring.
	Time         time.Duration
	CPUUsage     float64
	TotalThreads int
	ThreadsByPID map[int32]int32
}

// Probe reads the current CPU usage in percent and thread count per process.
type Probe interface {
	Sample() (cpuUsage float64, threads map[int32]int32, err error)
}

type Option func(*Monitor)

func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) { m.interval = interval }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// Monitor samples a Probe on a fixed interval in a background goroutine.
type Monitor struct {
	logger   log.Logger
	probe    Probe
	interval time.Duration
	metrics  *Metrics

	// lifecycle serializes Start and Stop until the sampler has exited.
	lifecycle sync.Mutex

	mu      sync.Mutex
	samples []Sample
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(logger log.Logger, probe Probe, opts ...Option) *Monitor {
	m := &Monitor{
		logger:   logger,
		probe:    probe,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m
}

// Start discards previous samples and begins sampling. The first sample
// is taken immediately. Calling Start on a running monitor has no effect.
func (m *Monitor) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.samples = nil
	go m.run(ctx, m.done)
}

// Stop ends sampling and waits for the sampling goroutine to exit.
// No sample is recorded after Stop returns.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	m.mu.Lock()
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Samples returns a copy of the samples recorded so far.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := time.Now()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.sample(start)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (m *Monitor) sample(start time.Time) {
	cpuUsage, threads, err := m.probe.Sample()
	if err != nil {
		level.Warn(m.logger).Log("msg", "failed to sample usage", "err", err)
		return
	}

	s := Sample{
		Time:         time.Since(start),
		CPUUsage:     cpuUsage,
		ThreadsByPID: threads,
	}
	for _, n := range threads {
		s.TotalThreads += int(n)
	}

	m.metrics.cpuUsage.Set(s.CPUUsage)
	m.metrics.threads.Set(float64(s.TotalThreads))

	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
}
