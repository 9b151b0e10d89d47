// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Size class buffer allocation for the api.Allocator hook. Buffers are
// recycled per power-of-two class through bounded slabs; requests above the
// largest class go to the heap.
package pool
