// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration snapshots and debug introspection for
// multiplexers and the loops driving them.
//
// Provides concurrent-safe primitives:
//   - Operation counters updated from submission and completion paths
//   - A metrics registry receiving published counter snapshots
//   - A configuration store with reload listeners
//   - Named debug probes, including platform probes
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
