package bridge

import (
	"sync"
	"time"

	"github.com/lcx/pixelbridge/metrics"
)

// MethodStats aggregates call timings for one method name.
type MethodStats struct {
	Count uint64        `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Avg returns the mean call duration.
func (s MethodStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// CommandStats accumulates per-method call statistics. Completed calls
// (success or remote error) are recorded; calls that time out locally
// before any response are not, since no duration was observed. The
// aggregator is purely observational and never drives control flow.
type CommandStats struct {
	mu      sync.Mutex
	methods map[string]*MethodStats
}

// NewCommandStats creates an empty accumulator.
func NewCommandStats() *CommandStats {
	return &CommandStats{methods: make(map[string]*MethodStats)}
}

// Record accumulates one completed call of the given method.
func (c *CommandStats) Record(method string, d time.Duration) {
	c.mu.Lock()
	s, ok := c.methods[method]
	if !ok {
		s = &MethodStats{Min: d, Max: d}
		c.methods[method] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	c.mu.Unlock()

	metrics.IncrCounterWithDimGroup("bridge", "calls_completed_total", 1,
		metrics.Dimension{"method": method})
	metrics.ObserveHistogramWithDimGroup("bridge", "call_duration_seconds",
		metrics.Value(d.Seconds()), metrics.Dimension{"method": method})
}

// Snapshot returns a copy of the aggregates keyed by method name.
func (c *CommandStats) Snapshot() map[string]MethodStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]MethodStats, len(c.methods))
	for m, s := range c.methods {
		out[m] = *s
	}
	return out
}

// Reset clears all aggregates. Subsequent calls start a fresh aggregate.
// Resetting an already empty accumulator is a no-op.
func (c *CommandStats) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods = make(map[string]*MethodStats)
}
