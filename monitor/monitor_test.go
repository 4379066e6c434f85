package monitor

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProbe struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeProbe) Sample() (float64, map[int32]int32, error) {
	n := f.calls.Add(1)
	if f.fail {
		return 0, nil, errors.New("probe failed")
	}
	return float64(n), map[int32]int32{1: 2, 2: 3}, nil
}

func TestMonitorSamples(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(log.NewNopLogger(), &fakeProbe{}, WithInterval(100*time.Millisecond), WithMetrics(NewMetrics(reg)))

	m.Start()
	require.True(t, m.Running())
	time.Sleep(300 * time.Millisecond)
	m.Stop()
	require.False(t, m.Running())

	samples := m.Samples()
	require.GreaterOrEqual(t, len(samples), 2)
	require.LessOrEqual(t, len(samples), 4)
	for i, s := range samples {
		require.Equal(t, 5, s.TotalThreads)
		require.Equal(t, float64(i+1), s.CPUUsage)
		if i > 0 {
			require.Greater(t, s.Time, samples[i-1].Time)
		}
	}
	require.Equal(t, float64(5), testutil.ToFloat64(m.metrics.threads))

	time.Sleep(150 * time.Millisecond)
	require.Len(t, m.Samples(), len(samples))
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	probe := &fakeProbe{}
	m := New(log.NewNopLogger(), probe, WithInterval(time.Hour))

	m.Stop()
	m.Start()
	m.Start()
	m.Stop()
	m.Stop()

	require.Len(t, m.Samples(), 1)
	require.Equal(t, int32(1), probe.calls.Load())
}

func TestMonitorRestartResetsSamples(t *testing.T) {
	m := New(log.NewNopLogger(), &fakeProbe{}, WithInterval(time.Hour))
	m.Start()
	m.Stop()
	m.Start()
	m.Stop()
	require.Len(t, m.Samples(), 1)
}

// gatedSampler blocks its first sample until release is closed.
type gatedSampler struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSampler) Sample() (float64, map[int32]int32, error) {
	n := g.calls.Add(1)
	if n == 1 {
		close(g.entered)
		<-g.release
	}
	return float64(n), map[int32]int32{1: 1}, nil
}

func TestMonitorStartWaitsForStop(t *testing.T) {
	sampler := &gatedSampler{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(log.NewNopLogger(), sampler, WithInterval(time.Hour))

	m.Start()
	<-sampler.entered

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	go func() {
		m.Start()
		close(started)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while the sampler was running")
	case <-started:
		t.Fatal("start returned before the previous sampler exited")
	case <-time.After(50 * time.Millisecond):
	}

	close(sampler.release)
	<-stopped
	<-started
	m.Stop()

	samples := m.Samples()
	require.Len(t, samples, 1)
	require.Equal(t, float64(2), samples[0].CPUUsage)
}

func TestMonitorSkipsFailedSamples(t *testing.T) {
	probe := &fakeProbe{fail: true}
	m := New(log.NewNopLogger(), probe, WithInterval(10*time.Millisecond))
	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	require.Empty(t, m.Samples())
	require.Greater(t, probe.calls.Load(), int32(0))
}

func TestProcessProbe(t *testing.T) {
	probe, err := NewProcessProbe("")
	require.NoError(t, err)

	_, threads, err := probe.Sample()
	require.NoError(t, err)
	require.Contains(t, threads, int32(os.Getpid()))
	require.Greater(t, threads[int32(os.Getpid())], int32(0))

	_, err = NewProcessProbe("(")
	require.Error(t, err)
}
