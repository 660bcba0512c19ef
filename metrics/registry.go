package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry maps group/name metric reports onto prometheus collectors.
// Collectors are registered lazily on first use; the label set of a metric
// is fixed by its first report and later reports with a different set are
// dropped with a warning, matching prometheus' own consistency rule.
type Registry struct {
	mu         sync.Mutex
	reg        *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

var _defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return _defaultRegistry
}

// Handler returns the HTTP handler serving the prometheus exposition of
// the default registry.
func Handler() http.Handler {
	return _defaultRegistry.Handler()
}

// Handler returns the HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func metricName(group, name string) string {
	s := group + "_" + name
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(s)
}

func labelKeysValues(dims Dimension) ([]string, prometheus.Labels) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, prometheus.Labels(dims)
}

// IncrCounter adds value to the counter identified by group and name.
func (r *Registry) IncrCounter(group, name string, value Value, dims Dimension) {
	fq := metricName(group, name)
	keys, labels := labelKeysValues(dims)

	r.mu.Lock()
	vec, ok := r.counters[fq]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: fq}, keys)
		if err := r.reg.Register(vec); err != nil {
			r.mu.Unlock()
			fmt.Printf("metrics: register counter %s: %v\n", fq, err)
			return
		}
		r.counters[fq] = vec
	}
	r.mu.Unlock()

	c, err := vec.GetMetricWith(labels)
	if err != nil {
		fmt.Printf("metrics: counter %s labels mismatch: %v\n", fq, err)
		return
	}
	c.Add(float64(value))
}

// UpdateGauge sets the gauge identified by group and name to value.
func (r *Registry) UpdateGauge(group, name string, value Value, dims Dimension) {
	fq := metricName(group, name)
	keys, labels := labelKeysValues(dims)

	r.mu.Lock()
	vec, ok := r.gauges[fq]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: fq}, keys)
		if err := r.reg.Register(vec); err != nil {
			r.mu.Unlock()
			fmt.Printf("metrics: register gauge %s: %v\n", fq, err)
			return
		}
		r.gauges[fq] = vec
	}
	r.mu.Unlock()

	g, err := vec.GetMetricWith(labels)
	if err != nil {
		fmt.Printf("metrics: gauge %s labels mismatch: %v\n", fq, err)
		return
	}
	g.Set(float64(value))
}

// ObserveHistogram records an observation in the histogram identified by
// group and name. Buckets follow prometheus defaults, which suit
// second-scale durations.
func (r *Registry) ObserveHistogram(group, name string, value Value, dims Dimension) {
	fq := metricName(group, name)
	keys, labels := labelKeysValues(dims)

	r.mu.Lock()
	vec, ok := r.histograms[fq]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: fq}, keys)
		if err := r.reg.Register(vec); err != nil {
			r.mu.Unlock()
			fmt.Printf("metrics: register histogram %s: %v\n", fq, err)
			return
		}
		r.histograms[fq] = vec
	}
	r.mu.Unlock()

	h, err := vec.GetMetricWith(labels)
	if err != nil {
		fmt.Printf("metrics: histogram %s labels mismatch: %v\n", fq, err)
		return
	}
	h.Observe(float64(value))
}

// IncrCounterWithGroup adds value to a counter without dimensions.
func IncrCounterWithGroup(group, name string, value Value) {
	_defaultRegistry.IncrCounter(group, name, value, nil)
}

// IncrCounterWithDimGroup adds value to a counter with dimensions.
func IncrCounterWithDimGroup(group, name string, value Value, dims Dimension) {
	_defaultRegistry.IncrCounter(group, name, value, dims)
}

// UpdateGaugeWithGroup sets a gauge without dimensions.
func UpdateGaugeWithGroup(group, name string, value Value) {
	_defaultRegistry.UpdateGauge(group, name, value, nil)
}

// UpdateGaugeWithDimGroup sets a gauge with dimensions.
func UpdateGaugeWithDimGroup(group, name string, value Value, dims Dimension) {
	_defaultRegistry.UpdateGauge(group, name, value, dims)
}

// ObserveHistogramWithGroup records a histogram observation without
// dimensions.
func ObserveHistogramWithGroup(group, name string, value Value) {
	_defaultRegistry.ObserveHistogram(group, name, value, nil)
}

// ObserveHistogramWithDimGroup records a histogram observation with
// dimensions.
func ObserveHistogramWithDimGroup(group, name string, value Value, dims Dimension) {
	_defaultRegistry.ObserveHistogram(group, name, value, dims)
}
