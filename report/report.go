package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"fpetkovski/io-bench/monitor"
)

const (
	SummaryCSV    = "summary.csv"
	SummaryReport = "summary_report.txt"
	PollingCSV    = "polling.csv"
	PollingReport = "polling_report.txt"

	barWidth    = 40
	chartHeight = 10
)

type Metric struct {
	Name  string
	Value float64
}

// Run is one benchmark run as shown in reports.
type Run struct {
	ID      string
	Err     error
	Metrics []Metric
	Samples []monitor.Sample
}

func (r Run) Status() string {
	if r.Err != nil {
		return "failed: " + r.Err.Error()
	}
	return "ok"
}

// Generate renders summary and polling reports for runs and uploads them to bkt.
// interval is the sampling interval shown in chart captions.
func Generate(ctx context.Context, bkt objstore.Bucket, runs []Run, interval time.Duration) error {
	files := []struct {
		name   string
		render func([]Run, time.Duration) ([]byte, error)
	}{
		{name: SummaryCSV, render: summaryCSV},
		{name: SummaryReport, render: summaryReport},
		{name: PollingCSV, render: pollingCSV},
		{name: PollingReport, render: pollingReport},
	}
	for _, f := range files {
		content, err := f.render(runs, interval)
		if err != nil {
			return errors.Wrapf(err, "rendering %s", f.name)
		}
		if err := bkt.Upload(ctx, f.name, bytes.NewReader(content)); err != nil {
			return errors.Wrapf(err, "uploading %s", f.name)
		}
	}
	return nil
}

func metricNames(runs []Run) []string {
	for _, r := range runs {
		names := make([]string, 0, len(r.Metrics))
		for _, m := range r.Metrics {
			names = append(names, m.Name)
		}
		return names
	}
	return nil
}

func summaryCSV(runs []Run, _ time.Duration) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"id", "status"}, metricNames(runs)...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range runs {
		record := []string{r.ID, r.Status()}
		for _, m := range r.Metrics {
			record = append(record, strconv.FormatFloat(m.Value, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func pollingCSV(runs []Run, _ time.Duration) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "sample", "time_s", "cpu_usage", "thread_count"}); err != nil {
		return nil, err
	}
	for _, r := range runs {
		for i, s := range r.Samples {
			record := []string{
				r.ID,
				strconv.Itoa(i),
				strconv.FormatFloat(s.Time.Seconds(), 'f', 3, 64),
				strconv.FormatFloat(s.CPUUsage, 'f', 2, 64),
				strconv.Itoa(s.TotalThreads),
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func summaryReport(runs []Run, _ time.Duration) ([]byte, error) {
	var buf bytes.Buffer
	names := metricNames(runs)

	table := tablewriter.NewWriter(&buf)
	table.SetHeader(append([]string{"id", "status"}, names...))
	table.SetAutoFormatHeaders(false)
	for _, r := range runs {
		row := []string{r.ID, r.Status()}
		for _, m := range r.Metrics {
			row = append(row, formatMetric(m))
		}
		table.Append(row)
	}
	table.Render()

	for i, name := range names {
		fmt.Fprintf(&buf, "\n%s\n", name)
		var max float64
		for _, r := range runs {
			if i < len(r.Metrics) && r.Metrics[i].Value > max {
				max = r.Metrics[i].Value
			}
		}
		bars := tablewriter.NewWriter(&buf)
		bars.SetBorder(false)
		bars.SetColumnSeparator("")
		for _, r := range runs {
			if i >= len(r.Metrics) {
				continue
			}
			m := r.Metrics[i]
			bars.Append([]string{r.ID, bar(m.Value, max), formatMetric(m)})
		}
		bars.Render()
	}
	return buf.Bytes(), nil
}

func pollingReport(runs []Run, interval time.Duration) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range runs {
		fmt.Fprintf(&buf, "%s (%d samples every %s)\n\n", r.ID, len(r.Samples), interval)
		if len(r.Samples) < 2 {
			buf.WriteString("not enough samples to plot\n\n")
			continue
		}

		cpu := make([]float64, 0, len(r.Samples))
		threads := make([]float64, 0, len(r.Samples))
		for _, s := range r.Samples {
			cpu = append(cpu, s.CPUUsage)
			threads = append(threads, float64(s.TotalThreads))
		}
		buf.WriteString(asciigraph.Plot(cpu, asciigraph.Height(chartHeight), asciigraph.Caption("cpu usage %")))
		buf.WriteString("\n\n")
		buf.WriteString(asciigraph.Plot(threads, asciigraph.Height(chartHeight), asciigraph.Caption("thread count")))
		buf.WriteString("\n\n")
	}
	return buf.Bytes(), nil
}

func bar(value, max float64) string {
	if max <= 0 || value <= 0 {
		return ""
	}
	return strings.Repeat("#", int(value/max*barWidth+0.5))
}

func formatMetric(m Metric) string {
	switch {
	case m.Name == "total_bytes":
		return humanize.IBytes(uint64(m.Value))
	case m.Name == "total_time":
		return time.Duration(m.Value * float64(time.Second)).Round(time.Millisecond).String()
	default:
		return humanize.CommafWithDigits(m.Value, 2)
	}
}
