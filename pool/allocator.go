// File: pool/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"math/bits"

	"go.uber.org/atomic"

	"github.com/momentics/allio/api"
)

const (
	// DefaultMinClass is the smallest size class.
	DefaultMinClass = 64
	// DefaultMaxClass is the largest pooled size class.
	DefaultMaxClass = 64 << 10
	// DefaultSlabDepth bounds the free buffers kept per class.
	DefaultSlabDepth = 256
)

// Config shapes an Allocator. Class bounds are rounded up to powers of two.
type Config struct {
	MinClass  int `json:"min_class"`
	MaxClass  int `json:"max_class"`
	SlabDepth int `json:"slab_depth"`
}

// ClassStats describes one size class.
type ClassStats struct {
	Size      int   `json:"size"`
	Allocated int64 `json:"allocated"`
	Reused    int64 `json:"reused"`
	Released  int64 `json:"released"`
	Dropped   int64 `json:"dropped"`
	Free      int   `json:"free"`
}

// Stats describes the whole allocator.
type Stats struct {
	Classes []ClassStats `json:"classes"`
	// Oversized counts requests served from the heap.
	Oversized int64 `json:"oversized"`
}

// Allocator is a size class api.Allocator safe for concurrent use.
type Allocator struct {
	minShift  int
	slabs     []*slab
	oversized atomic.Int64
}

var _ api.Allocator = (*Allocator)(nil)

// New builds an allocator; zero Config fields take the defaults.
func New(cfg Config) *Allocator {
	if cfg.MinClass <= 0 {
		cfg.MinClass = DefaultMinClass
	}
	if cfg.MaxClass < cfg.MinClass {
		cfg.MaxClass = max(DefaultMaxClass, cfg.MinClass)
	}
	if cfg.SlabDepth <= 0 {
		cfg.SlabDepth = DefaultSlabDepth
	}
	minShift := shiftFor(cfg.MinClass)
	maxShift := shiftFor(cfg.MaxClass)
	a := &Allocator{minShift: minShift}
	for s := minShift; s <= maxShift; s++ {
		a.slabs = append(a.slabs, newSlab(1<<s, cfg.SlabDepth))
	}
	return a
}

// shiftFor returns the exponent of the smallest power of two >= n.
func shiftFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func (a *Allocator) class(size int) *slab {
	i := shiftFor(size) - a.minShift
	if i < 0 {
		i = 0
	}
	if i >= len(a.slabs) {
		return nil
	}
	return a.slabs[i]
}

// Acquire returns a zeroed buffer of exactly size bytes.
func (a *Allocator) Acquire(size int) ([]byte, error) {
	if size < 0 {
		return nil, api.ErrInvalidArgument
	}
	s := a.class(size)
	if s == nil {
		a.oversized.Inc()
		return make([]byte, size), nil
	}
	buf := s.get()[:size]
	clear(buf)
	return buf, nil
}

// Release recycles buf when its capacity matches a class exactly. Other
// buffers are left to the GC.
func (a *Allocator) Release(buf []byte) {
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	if s := a.class(c); s != nil && s.size == c {
		s.put(buf[:c])
	}
}

// Stats snapshots every class.
func (a *Allocator) Stats() Stats {
	st := Stats{Oversized: a.oversized.Load()}
	for _, s := range a.slabs {
		st.Classes = append(st.Classes, s.stats())
	}
	return st
}
