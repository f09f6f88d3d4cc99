// Package common provides the timing and allocation measurements behind the
// bench command.
package common

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"
)

// MemoryStats is the subset of runtime.MemStats a benchmark reports.
type MemoryStats struct {
	HeapAlloc  uint64
	TotalAlloc uint64
	Mallocs    uint64
	NumGC      uint32
}

// ReadMemoryStats snapshots the runtime allocator counters.
func ReadMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{HeapAlloc: m.HeapAlloc, TotalAlloc: m.TotalAlloc, Mallocs: m.Mallocs, NumGC: m.NumGC}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("heap: %d KB, total: %d KB, mallocs: %d, gc: %d",
		m.HeapAlloc/1024, m.TotalAlloc/1024, m.Mallocs, m.NumGC)
}

// Result is the outcome of Measure. Samples holds one duration per
// successful iteration, in run order.
type Result struct {
	Name    string
	Samples []time.Duration
	Before  MemoryStats
	After   MemoryStats
	Error   error
}

// Iterations is the number of successful runs.
func (r Result) Iterations() int { return len(r.Samples) }

// Total sums all samples.
func (r Result) Total() time.Duration {
	var sum time.Duration
	for _, d := range r.Samples {
		sum += d
	}
	return sum
}

// Mean is the average sample, 0 without samples.
func (r Result) Mean() time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}
	return r.Total() / time.Duration(len(r.Samples))
}

// Percentile returns the nearest-rank p-th percentile, p in [0,100].
func (r Result) Percentile(p float64) time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}
	sorted := slices.Clone(r.Samples)
	slices.Sort(sorted)
	rank := int(p / 100 * float64(len(sorted)-1))
	return sorted[min(max(rank, 0), len(sorted)-1)]
}

// BytesPerRun is the heap allocation per successful iteration.
func (r Result) BytesPerRun() uint64 {
	n := uint64(len(r.Samples))
	if n == 0 || r.After.TotalAlloc < r.Before.TotalAlloc {
		return 0
	}
	return (r.After.TotalAlloc - r.Before.TotalAlloc) / n
}

func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d runs, mean %v, p50 %v, min %v, max %v, %d KB/run",
		r.Name, r.Iterations(), r.Mean(), r.Percentile(50),
		r.Percentile(0), r.Percentile(100), r.BytesPerRun()/1024)
}

// Measure calls fn up to iterations times after a forced GC. The first error
// stops the run and is kept in Result.Error.
func Measure(name string, iterations int, fn func() error) Result {
	res := Result{Name: name}
	if iterations <= 0 {
		res.Error = errors.New("iterations must be positive")
		return res
	}

	runtime.GC()
	res.Before = ReadMemoryStats()
	for range iterations {
		start := time.Now()
		if err := fn(); err != nil {
			res.Error = err
			break
		}
		res.Samples = append(res.Samples, time.Since(start))
	}
	res.After = ReadMemoryStats()
	return res
}

// PhaseTimes accumulates durations per phase name over repeated runs.
type PhaseTimes struct {
	order  []string
	totals map[string]time.Duration
	counts map[string]int
}

func NewPhaseTimes() *PhaseTimes {
	return &PhaseTimes{totals: make(map[string]time.Duration), counts: make(map[string]int)}
}

// Add records one completion of phase.
func (p *PhaseTimes) Add(phase string, d time.Duration) {
	if _, ok := p.totals[phase]; !ok {
		p.order = append(p.order, phase)
	}
	p.totals[phase] += d
	p.counts[phase]++
}

// Phases returns phase names in first-seen order.
func (p *PhaseTimes) Phases() []string { return p.order }

// Mean returns the average duration of phase, or 0 if it never ran.
func (p *PhaseTimes) Mean(phase string) time.Duration {
	n := p.counts[phase]
	if n == 0 {
		return 0
	}
	return p.totals[phase] / time.Duration(n)
}

// Total returns the summed duration of phase.
func (p *PhaseTimes) Total(phase string) time.Duration { return p.totals[phase] }
