// Package pool implements the process-wide tiered buffer allocator
// that backs every tensor in the module. It is adapted from the
// teacher's generic Pool[T] (capacity-tiered sync.Pool wrapper) and
// specialized to float32, since that is the only element type the
// tensor engine needs.
package pool

import (
	"fmt"
	"sync"
)

const (
	defaultTierCount  = 8
	defaultTierStart  = 16
	defaultTierFactor = 2
)

// FloatPool hands out float32 buffers from capacity tiers backed by
// sync.Pool, so goroutine-local caching happens for free. Get and Put
// take only a read lock on the tier configuration.
type FloatPool struct {
	mu        sync.RWMutex
	bounds    []int
	tierPools []sync.Pool
}

// New builds a FloatPool. With no tier lengths given it uses the
// teacher's default progression (8 tiers starting at 16, doubling).
func New(tierLengths ...int) *FloatPool {
	p := &FloatPool{}
	if err := p.configure(tierLengths...); err != nil {
		panic(err)
	}
	return p
}

func (p *FloatPool) configure(lengths ...int) error {
	if len(lengths) == 0 {
		lengths = defaultTiers()
	}
	bounds := make([]int, len(lengths))
	prev := 0
	for i, maxLen := range lengths {
		if maxLen <= 0 {
			return fmt.Errorf("pool: tier %d has non-positive length %d", i, maxLen)
		}
		if i > 0 && maxLen <= prev {
			return fmt.Errorf("pool: tier %d length %d must exceed previous tier %d", i, maxLen, prev)
		}
		bounds[i] = maxLen
		prev = maxLen
	}
	tierPools := make([]sync.Pool, len(bounds)+1)
	for i := range bounds {
		maxLen := bounds[i]
		tierPools[i].New = func() any { return make([]float32, 0, maxLen) }
	}
	p.mu.Lock()
	p.bounds = bounds
	p.tierPools = tierPools
	p.mu.Unlock()
	return nil
}

func defaultTiers() []int {
	lengths := make([]int, defaultTierCount)
	v := defaultTierStart
	for i := range lengths {
		lengths[i] = v
		v *= defaultTierFactor
	}
	return lengths
}

// Get returns a buffer of length n; its contents are not zeroed.
func (p *FloatPool) Get(n int) []float32 {
	if n < 0 {
		panic("pool: negative length")
	}
	p.mu.RLock()
	idx := tierIndex(p.bounds, n)
	tp := &p.tierPools[idx]
	capacity := capacityFor(p.bounds, idx, n)
	p.mu.RUnlock()

	raw := tp.Get()
	var buf []float32
	if raw != nil {
		buf = raw.([]float32)
	}
	if cap(buf) < n {
		buf = make([]float32, 0, capacity)
	}
	return buf[:n]
}

// GetZeroed returns a buffer of length n with every element set to 0.
func (p *FloatPool) GetZeroed(n int) []float32 {
	buf := p.Get(n)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Put returns buf to its tier. buf must not be used afterward.
func (p *FloatPool) Put(buf []float32) {
	if buf == nil || cap(buf) == 0 {
		return
	}
	p.mu.RLock()
	idx := tierIndex(p.bounds, cap(buf))
	tp := &p.tierPools[idx]
	p.mu.RUnlock()
	tp.Put(buf[:0])
}

func tierIndex(bounds []int, length int) int {
	for i, b := range bounds {
		if length <= b {
			return i
		}
	}
	return len(bounds)
}

func capacityFor(bounds []int, idx, n int) int {
	if idx < len(bounds) {
		if n > bounds[idx] {
			return n
		}
		return bounds[idx]
	}
	return n
}

// Default is the process-wide pool used by the tensor package unless
// overridden.
var Default = New()
