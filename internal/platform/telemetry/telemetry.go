// Package telemetry provides metrics for the extraction query service:
// counters, gauges, and latency histograms, with a Prometheus text
// exposition endpoint. It follows OTel naming semantics without importing
// the go.opentelemetry.io SDK.
package telemetry

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// defaultDurationBuckets are the histogram bucket boundaries (in seconds)
// for HTTP request duration.
var defaultDurationBuckets = []float64{
	0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5,
}

// histogram is a mutex-guarded histogram with fixed bucket boundaries.
// Cumulative counts are computed at export time.
type histogram struct {
	mu           sync.Mutex
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          float64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
	// Beyond all boundaries; counted in +Inf at export.
}

// Count returns the total number of observations.
func (h *histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total sum of all observations.
func (h *histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

// Provider holds all metric state for one process.
type Provider struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64

	httpDuration *histogram
}

// NewProvider creates an empty metrics provider.
func NewProvider() *Provider {
	return &Provider{
		counters:     make(map[string]int64),
		gauges:       make(map[string]int64),
		httpDuration: newHistogram(defaultDurationBuckets),
	}
}

// IncCounter adds one to a labeled counter. Labels are joined into the
// storage key; exporters split them back out.
func (p *Provider) IncCounter(name string, labels ...string) {
	p.AddCounter(name, 1, labels...)
}

// AddCounter adds delta to a labeled counter.
func (p *Provider) AddCounter(name string, delta int64, labels ...string) {
	key := strings.Join(append([]string{name}, labels...), "|")
	p.mu.Lock()
	p.counters[key] += delta
	p.mu.Unlock()
}

// Counter returns the current value of a labeled counter.
func (p *Provider) Counter(name string, labels ...string) int64 {
	key := strings.Join(append([]string{name}, labels...), "|")
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters[key]
}

// SetGauge sets a gauge to an absolute value.
func (p *Provider) SetGauge(name string, v int64) {
	p.mu.Lock()
	p.gauges[name] = v
	p.mu.Unlock()
}

// AddGauge adjusts a gauge by delta.
func (p *Provider) AddGauge(name string, delta int64) {
	p.mu.Lock()
	p.gauges[name] += delta
	p.mu.Unlock()
}

// Gauge returns the current value of a gauge.
func (p *Provider) Gauge(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gauges[name]
}

// ObserveHTTPDuration records one request duration in seconds.
func (p *Provider) ObserveHTTPDuration(seconds float64) {
	p.httpDuration.Observe(seconds)
}

// RecordRun publishes the outcome of one extraction run: episode and code
// totals as gauges, dropped-row counts as per-table counters.
func (p *Provider) RecordRun(kind string, episodes, episodesWithCodes, totalCodes, patients int, dropped map[string]int) {
	p.IncCounter("extraction.runs", kind)
	p.SetGauge("extraction.episodes", int64(episodes))
	p.SetGauge("extraction.episodes_with_codes", int64(episodesWithCodes))
	p.SetGauge("extraction.codes_total", int64(totalCodes))
	p.SetGauge("extraction.patients", int64(patients))
	for table, n := range dropped {
		p.AddCounter("extraction.rows_dropped", int64(n), table)
	}
}

// Middleware returns Echo middleware recording request metrics.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.AddGauge("http.server.active_requests", 1)
			start := time.Now()

			err := next(c)

			p.AddGauge("http.server.active_requests", -1)
			p.ObserveHTTPDuration(time.Since(start).Seconds())
			p.IncCounter("http.server.requests", c.Request().Method, fmt.Sprintf("%d", c.Response().Status))
			return err
		}
	}
}

// PrometheusHandler serves all metrics in Prometheus text exposition
// format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeHistogram(&b, "http_server_request_duration_seconds",
			"Duration of HTTP requests in seconds.", p.httpDuration)

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.Gauge("http.server.active_requests"))

		p.mu.RLock()
		counters := make(map[string]int64, len(p.counters))
		for k, v := range p.counters {
			counters[k] = v
		}
		gauges := make(map[string]int64, len(p.gauges))
		for k, v := range p.gauges {
			gauges[k] = v
		}
		p.mu.RUnlock()

		b.WriteString("# HELP http_server_requests_total Total HTTP requests by method and status.\n")
		b.WriteString("# TYPE http_server_requests_total counter\n")
		for key, val := range counters {
			parts := strings.SplitN(key, "|", 3)
			if len(parts) == 3 && parts[0] == "http.server.requests" {
				fmt.Fprintf(&b, "http_server_requests_total{method=%q,status=%q} %d\n", parts[1], parts[2], val)
			}
		}
		b.WriteByte('\n')

		b.WriteString("# HELP extraction_runs_total Completed extraction runs by kind.\n")
		b.WriteString("# TYPE extraction_runs_total counter\n")
		for key, val := range counters {
			parts := strings.SplitN(key, "|", 2)
			if len(parts) == 2 && parts[0] == "extraction.runs" {
				fmt.Fprintf(&b, "extraction_runs_total{kind=%q} %d\n", parts[1], val)
			}
		}
		b.WriteByte('\n')

		b.WriteString("# HELP extraction_rows_dropped_total Source rows dropped for unparseable dates, by table.\n")
		b.WriteString("# TYPE extraction_rows_dropped_total counter\n")
		for key, val := range counters {
			parts := strings.SplitN(key, "|", 2)
			if len(parts) == 2 && parts[0] == "extraction.rows_dropped" {
				fmt.Fprintf(&b, "extraction_rows_dropped_total{table=%q} %d\n", parts[1], val)
			}
		}
		b.WriteByte('\n')

		runGauges := []struct {
			promName string
			name     string
			help     string
		}{
			{"extraction_episodes", "extraction.episodes", "Episodes processed by the last extraction run."},
			{"extraction_episodes_with_codes", "extraction.episodes_with_codes", "Episodes with at least one code in the last run."},
			{"extraction_codes_total", "extraction.codes_total", "Codes collected in the last run."},
			{"extraction_patients", "extraction.patients", "Distinct patients in the last run's index."},
		}
		for _, g := range runGauges {
			fmt.Fprintf(&b, "# HELP %s %s\n", g.promName, g.help)
			fmt.Fprintf(&b, "# TYPE %s gauge\n", g.promName)
			fmt.Fprintf(&b, "%s %d\n\n", g.promName, gauges[g.name])
		}

		return c.String(http.StatusOK, b.String())
	}
}

func writeHistogram(b *strings.Builder, name, help string, h *histogram) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)

	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"} %d\n", name, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"} %d\n", name, h.Count())
	fmt.Fprintf(b, "%s_sum %g\n", name, h.Sum())
	fmt.Fprintf(b, "%s_count %d\n\n", name, h.Count())
}
