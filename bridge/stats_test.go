package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandStatsAggregation(t *testing.T) {
	c := NewCommandStats()
	c.Record("echo", 10*time.Millisecond)
	c.Record("echo", 30*time.Millisecond)
	c.Record("echo", 20*time.Millisecond)
	c.Record("save", 100*time.Millisecond)

	snap := c.Snapshot()
	require.Len(t, snap, 2)

	echo := snap["echo"]
	assert.Equal(t, uint64(3), echo.Count)
	assert.Equal(t, 60*time.Millisecond, echo.Total)
	assert.Equal(t, 10*time.Millisecond, echo.Min)
	assert.Equal(t, 30*time.Millisecond, echo.Max)
	assert.Equal(t, 20*time.Millisecond, echo.Avg())

	save := snap["save"]
	assert.Equal(t, uint64(1), save.Count)
	assert.Equal(t, 100*time.Millisecond, save.Min)
	assert.Equal(t, 100*time.Millisecond, save.Max)
}

func TestCommandStatsSnapshotIsCopy(t *testing.T) {
	c := NewCommandStats()
	c.Record("echo", 10*time.Millisecond)

	snap := c.Snapshot()
	c.Record("echo", 90*time.Millisecond)

	assert.Equal(t, uint64(1), snap["echo"].Count)
	assert.Equal(t, uint64(2), c.Snapshot()["echo"].Count)
}

func TestCommandStatsReset(t *testing.T) {
	c := NewCommandStats()
	c.Record("echo", time.Millisecond)
	c.Reset()
	assert.Empty(t, c.Snapshot())

	// Reset on empty is a no-op, and recording afterwards starts fresh.
	c.Reset()
	c.Record("echo", 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, c.Snapshot()["echo"].Min)
}

func TestCommandStatsZeroAvg(t *testing.T) {
	var s MethodStats
	assert.Equal(t, time.Duration(0), s.Avg())
}

func TestCommandStatsConcurrentRecord(t *testing.T) {
	c := NewCommandStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record("echo", time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), c.Snapshot()["echo"].Count)
}
