package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCounters(t *testing.T) {
	p := NewProvider()

	p.IncCounter("extraction.runs", "dx")
	p.IncCounter("extraction.runs", "dx")
	p.IncCounter("extraction.runs", "proc")

	if got := p.Counter("extraction.runs", "dx"); got != 2 {
		t.Errorf("dx counter = %d, want 2", got)
	}
	if got := p.Counter("extraction.runs", "proc"); got != 1 {
		t.Errorf("proc counter = %d, want 1", got)
	}
	if got := p.Counter("extraction.runs", "unknown"); got != 0 {
		t.Errorf("unknown counter = %d, want 0", got)
	}
}

func TestGauges(t *testing.T) {
	p := NewProvider()

	p.SetGauge("extraction.episodes", 42)
	if got := p.Gauge("extraction.episodes"); got != 42 {
		t.Errorf("gauge = %d, want 42", got)
	}

	p.AddGauge("extraction.episodes", -2)
	if got := p.Gauge("extraction.episodes"); got != 40 {
		t.Errorf("gauge after add = %d, want 40", got)
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := newHistogram([]float64{0.1, 1.0})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5.0) // beyond all boundaries, +Inf only

	if got := h.Count(); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	cum := h.cumulativeBuckets()
	if cum[0] != 1 || cum[1] != 2 {
		t.Errorf("cumulative buckets = %v, want [1 2]", cum)
	}
	if got := h.Sum(); got != 5.55 {
		t.Errorf("sum = %g, want 5.55", got)
	}
}

func TestRecordRun(t *testing.T) {
	p := NewProvider()

	p.RecordRun("dx", 100, 60, 450, 80, map[string]int{"dad": 3, "ed": 1})

	if got := p.Counter("extraction.runs", "dx"); got != 1 {
		t.Errorf("runs counter = %d, want 1", got)
	}
	if got := p.Gauge("extraction.episodes"); got != 100 {
		t.Errorf("episodes gauge = %d, want 100", got)
	}
	if got := p.Counter("extraction.rows_dropped", "dad"); got != 3 {
		t.Errorf("dropped counter = %d, want 3", got)
	}
}

func TestMiddlewareRecordsRequest(t *testing.T) {
	p := NewProvider()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := p.Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := p.Counter("http.server.requests", "GET", "200"); got != 1 {
		t.Errorf("request counter = %d, want 1", got)
	}
	if got := p.Gauge("http.server.active_requests"); got != 0 {
		t.Errorf("active requests = %d, want 0", got)
	}
	if got := p.httpDuration.Count(); got != 1 {
		t.Errorf("duration observations = %d, want 1", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	p := NewProvider()
	p.RecordRun("proc", 10, 4, 9, 8, map[string]int{"dad": 2})
	p.ObserveHTTPDuration(0.02)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := p.PrometheusHandler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"http_server_request_duration_seconds_count 1",
		`extraction_runs_total{kind="proc"} 1`,
		`extraction_rows_dropped_total{table="dad"} 2`,
		"extraction_episodes 10",
		"extraction_codes_total 9",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
