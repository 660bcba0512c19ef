// Package metrics provides the process-wide metric helpers used across the
// bridge. Callers report counters, gauges and histograms keyed by a group
// and a metric name, optionally with dimensions; the package maps them onto
// a prometheus registry exposed through the observability endpoint.
package metrics

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs.
// Dimensions add contextual information to metrics, such as session id,
// method name, or error type.
type Dimension map[string]string
