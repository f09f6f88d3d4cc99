// Package mempool provides grow-only buffers that are reused across
// consecutive segmentation calls to amortize allocation cost.
package mempool

import (
	"errors"
	"fmt"
)

// ErrCapacity is returned when a buffer request exceeds the pool limit.
var ErrCapacity = errors.New("buffer request exceeds pool capacity")

// Pool hands out named, typed buffers. A buffer only ever grows: a request
// for a smaller length reslices the retained backing array. A Pool is not
// safe for concurrent use; give every worker its own.
type Pool struct {
	limit   int
	slots   map[string]any
	caps    map[string]int
	highMax int
}

// New creates a pool that refuses single buffers longer than limit elements.
// A limit <= 0 disables the check.
func New(limit int) *Pool {
	return &Pool{limit: limit, slots: make(map[string]any), caps: make(map[string]int)}
}

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

func (p *Pool) check(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %s: negative length %d", ErrCapacity, name, n)
	}
	if p.limit > 0 && n > p.limit {
		return fmt.Errorf("%w: %s: %d > %d", ErrCapacity, name, n, p.limit)
	}
	if n > p.highMax {
		p.highMax = n
	}
	return nil
}

// grow returns buf resliced to n, reallocating into the next size class
// when the capacity is too small. Retained contents are not cleared.
func grow[T any](buf []T, n int) []T {
	if cap(buf) >= n {
		return buf[:n]
	}
	nb := make([]T, n, sizeClass(n))
	copy(nb, buf)
	return nb
}

func slot[T any](p *Pool, name string) []T {
	if v, ok := p.slots[name]; ok {
		if buf, ok := v.([]T); ok {
			return buf
		}
	}
	return nil
}

// Get returns a zeroed buffer of n elements registered under name.
func Get[T any](p *Pool, name string, n int) ([]T, error) {
	if err := p.check(name, n); err != nil {
		return nil, err
	}
	buf := grow(slot[T](p, name), n)
	clear(buf)
	p.slots[name] = buf
	p.caps[name] = cap(buf)
	return buf, nil
}

// HighWater reports the largest buffer length requested so far.
func (p *Pool) HighWater() int {
	return p.highMax
}

// Retained reports the capacity of every buffer held, in elements.
func (p *Pool) Retained() int {
	total := 0
	for _, c := range p.caps {
		total += c
	}
	return total
}
