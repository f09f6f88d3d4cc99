package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMemoryStats(t *testing.T) {
	stats := ReadMemoryStats()
	assert.Positive(t, stats.HeapAlloc)
	assert.Positive(t, stats.TotalAlloc)
	assert.Contains(t, stats.String(), "heap:")
}

func TestResult_Statistics(t *testing.T) {
	ms := time.Millisecond
	r := Result{
		Name:    "scene",
		Samples: []time.Duration{9 * ms, 1 * ms, 5 * ms, 3 * ms, 7 * ms},
		Before:  MemoryStats{TotalAlloc: 1000},
		After:   MemoryStats{TotalAlloc: 1000 + 5*4096},
	}

	assert.Equal(t, 5, r.Iterations())
	assert.Equal(t, 25*ms, r.Total())
	assert.Equal(t, 5*ms, r.Mean())
	assert.Equal(t, 1*ms, r.Percentile(0))
	assert.Equal(t, 5*ms, r.Percentile(50))
	assert.Equal(t, 9*ms, r.Percentile(100))
	assert.Equal(t, uint64(4096), r.BytesPerRun())
	assert.Equal(t, []time.Duration{9 * ms, 1 * ms, 5 * ms, 3 * ms, 7 * ms}, r.Samples, "samples keep run order")

	s := r.String()
	assert.Contains(t, s, "scene: 5 runs")
	assert.Contains(t, s, "mean 5ms")
	assert.Contains(t, s, "p50 5ms")
	assert.Contains(t, s, "4 KB/run")
}

func TestResult_Empty(t *testing.T) {
	var r Result
	assert.Zero(t, r.Mean())
	assert.Zero(t, r.Percentile(50))
	assert.Zero(t, r.BytesPerRun())

	failed := Result{Name: "broken", Error: errors.New("test error")}
	assert.Equal(t, "broken: ERROR - test error", failed.String())
}

func TestMeasure(t *testing.T) {
	calls := 0
	res := Measure("sleep", 3, func() error {
		calls++
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, res.Error)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Iterations())
	assert.GreaterOrEqual(t, res.Percentile(0), time.Millisecond)
	assert.GreaterOrEqual(t, res.Total(), 3*time.Millisecond)
}

func TestMeasure_StopsOnError(t *testing.T) {
	calls := 0
	res := Measure("fail", 5, func() error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return nil
	})
	require.Error(t, res.Error)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, res.Iterations())

	assert.Error(t, Measure("none", 0, func() error { return nil }).Error)
}

func TestPhaseTimes(t *testing.T) {
	pt := NewPhaseTimes()
	pt.Add("seed", 4*time.Millisecond)
	pt.Add("merge", 10*time.Millisecond)
	pt.Add("seed", 2*time.Millisecond)

	assert.Equal(t, []string{"seed", "merge"}, pt.Phases())
	assert.Equal(t, 3*time.Millisecond, pt.Mean("seed"))
	assert.Equal(t, 6*time.Millisecond, pt.Total("seed"))
	assert.Equal(t, 10*time.Millisecond, pt.Mean("merge"))
	assert.Zero(t, pt.Mean("trace"))
}

func BenchmarkReadMemoryStats(b *testing.B) {
	for range b.N {
		ReadMemoryStats()
	}
}
