// Package metrics exposes this runtime's scheduler lifecycle stats, plus
// backend metrics folded in through RecordBackendMetrics, as Prometheus
// metric families. The install pipeline reports no metrics here.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/modelrt/corerun/pkg/scheduler"
)

// SchedulerStats is the subset of *scheduler.Scheduler this package reads.
// Defined as an interface so tests can supply a fixed snapshot without a
// live Scheduler.
type SchedulerStats interface {
	Stats() scheduler.Stats
}

// Collector gathers this runtime's counters into Prometheus MetricFamily
// values on demand. Unlike a registry-based prometheus/client collector, it
// has no global state: every Gather call reads directly from the live
// scheduler.
type Collector struct {
	scheduler SchedulerStats

	mu          sync.Mutex
	backendText string
}

// NewCollector returns a Collector reading counters from s.
func NewCollector(s SchedulerStats) *Collector {
	return &Collector{scheduler: s}
}

// RecordBackendMetrics folds a backend's own scraped Prometheus metrics
// (ms, freshly parsed by PrometheusParser) into what WriteText serves next,
// labelling every metric with its originating backend. A backend exposing
// no metrics endpoint simply never calls this; Gather's scheduler counters
// are served regardless.
func (c *Collector) RecordBackendMetrics(backendName string, ms []PrometheusMetric) {
	var buf []byte
	for i := range ms {
		ms[i].AddLabels(map[string]string{"backend": backendName})
		buf = append(buf, []byte(ms[i].FormatMetric()+"\n")...)
	}
	c.mu.Lock()
	c.backendText = string(buf)
	c.mu.Unlock()
}

// Gather returns the current counters as Prometheus metric families.
func (c *Collector) Gather() []*dto.MetricFamily {
	stats := c.scheduler.Stats()
	return []*dto.MetricFamily{
		counterFamily("modelrt_scheduler_tasks_submitted_total", "Total tasks submitted to the scheduler.", float64(stats.TotalSubmitted)),
		counterFamily("modelrt_scheduler_tasks_completed_total", "Total tasks that completed successfully.", float64(stats.TotalCompleted)),
		counterFamily("modelrt_scheduler_tasks_failed_total", "Total tasks that failed.", float64(stats.TotalFailed)),
		counterFamily("modelrt_scheduler_tasks_cancelled_total", "Total tasks that were cancelled.", float64(stats.TotalCancelled)),
		counterFamily("modelrt_scheduler_tasks_timeout_total", "Total tasks that exceeded their timeout.", float64(stats.TotalTimeout)),
	}
}

// WriteText writes every gathered family to w in Prometheus text exposition
// format.
func (c *Collector) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range c.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	c.mu.Lock()
	backendText := c.backendText
	c.mu.Unlock()
	if backendText != "" {
		if _, err := fmt.Fprint(w, backendText); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an http.Handler serving the collector's output in
// Prometheus text exposition format, in the same shape the teacher's
// backend processes expose on "/metrics".
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.FmtText))
		if err := c.WriteText(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func counterFamily(name, help string, value float64) *dto.MetricFamily {
	metricType := dto.MetricType_COUNTER
	return &dto.MetricFamily{
		Name: strPtr(name),
		Help: strPtr(help),
		Type: &metricType,
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: f64Ptr(value)}},
		},
	}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
