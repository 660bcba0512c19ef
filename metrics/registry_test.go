package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestCounterAccumulates(t *testing.T) {
	r := NewRegistry()
	r.IncrCounter("bridge", "calls_total", 1, nil)
	r.IncrCounter("bridge", "calls_total", 2, nil)

	body := scrape(t, r)
	assert.Contains(t, body, "bridge_calls_total 3")
}

func TestCounterWithDimensions(t *testing.T) {
	r := NewRegistry()
	r.IncrCounter("bridge", "calls_total", 1, Dimension{"method": "echo"})
	r.IncrCounter("bridge", "calls_total", 1, Dimension{"method": "echo"})
	r.IncrCounter("bridge", "calls_total", 1, Dimension{"method": "stall"})

	body := scrape(t, r)
	assert.Contains(t, body, `bridge_calls_total{method="echo"} 2`)
	assert.Contains(t, body, `bridge_calls_total{method="stall"} 1`)
}

func TestGaugeLastValueWins(t *testing.T) {
	r := NewRegistry()
	r.UpdateGauge("bridge", "sessions", 5, nil)
	r.UpdateGauge("bridge", "sessions", 2, nil)

	body := scrape(t, r)
	assert.Contains(t, body, "bridge_sessions 2")
}

func TestHistogramObserves(t *testing.T) {
	r := NewRegistry()
	r.ObserveHistogram("bridge", "call_seconds", 0.25, nil)
	r.ObserveHistogram("bridge", "call_seconds", 0.75, nil)

	body := scrape(t, r)
	assert.Contains(t, body, "bridge_call_seconds_count 2")
	assert.Contains(t, body, "bridge_call_seconds_sum 1")
}

func TestMetricNameSanitized(t *testing.T) {
	r := NewRegistry()
	r.IncrCounter("bridge", "doc.open-count", 1, nil)

	body := scrape(t, r)
	require.Contains(t, body, "bridge_doc_open_count 1")
}

func TestLabelMismatchDropped(t *testing.T) {
	r := NewRegistry()
	r.IncrCounter("bridge", "mixed", 1, Dimension{"a": "1"})
	// Different label set for the same metric must not panic.
	r.IncrCounter("bridge", "mixed", 1, Dimension{"b": "2"})

	body := scrape(t, r)
	assert.Contains(t, body, `bridge_mixed{a="1"} 1`)
}
