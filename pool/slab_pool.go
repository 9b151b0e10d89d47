// File: pool/slab_pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"

	"go.uber.org/atomic"
)

// slab recycles buffers of one size class. The free list is bounded; a
// release into a full slab leaves the buffer to the GC.
type slab struct {
	size int

	mu   sync.Mutex
	free [][]byte
	max  int

	allocated atomic.Int64
	reused    atomic.Int64
	released  atomic.Int64
	dropped   atomic.Int64
}

func newSlab(size, max int) *slab {
	return &slab{size: size, max: max}
}

func (s *slab) get() []byte {
	s.mu.Lock()
	if n := len(s.free); n > 0 {
		buf := s.free[n-1]
		s.free[n-1] = nil
		s.free = s.free[:n-1]
		s.mu.Unlock()
		s.reused.Inc()
		return buf
	}
	s.mu.Unlock()
	s.allocated.Inc()
	return make([]byte, s.size)
}

func (s *slab) put(buf []byte) {
	s.mu.Lock()
	if len(s.free) >= s.max {
		s.mu.Unlock()
		s.dropped.Inc()
		return
	}
	s.free = append(s.free, buf[:s.size])
	s.mu.Unlock()
	s.released.Inc()
}

func (s *slab) stats() ClassStats {
	s.mu.Lock()
	free := len(s.free)
	s.mu.Unlock()
	return ClassStats{
		Size:      s.size,
		Allocated: s.allocated.Load(),
		Reused:    s.reused.Load(),
		Released:  s.released.Load(),
		Dropped:   s.dropped.Load(),
		Free:      free,
	}
}
