// Package resource enforces per-execution resource limits: memory, CPU time,
// operation counts, file sizes and concurrent operations. Acquisition is
// guard-based so releases happen on every exit path, including panics, and a
// violated limit always surfaces as a typed error, never a process abort.
package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexlapax/go-llmspell/core"
)

// Limits caps resource usage for a tracker. Zero values mean unlimited.
type Limits struct {
	MaxMemoryBytes     int64 `json:"max_memory_bytes,omitempty"`
	MaxCPUTimeMS       int64 `json:"max_cpu_time_ms,omitempty"`
	MaxFileSizeBytes   int64 `json:"max_file_size_bytes,omitempty"`
	MaxOperations      int64 `json:"max_operations,omitempty"`
	MaxConcurrentOps   int64 `json:"max_concurrent_ops,omitempty"`
	OperationTimeoutMS int64 `json:"operation_timeout_ms,omitempty"`
}

// StrictLimits is the tight preset for untrusted scripts.
func StrictLimits() Limits {
	return Limits{
		MaxMemoryBytes:     16 << 20, // 16 MiB
		MaxCPUTimeMS:       5_000,
		MaxFileSizeBytes:   1 << 20, // 1 MiB
		MaxOperations:      10_000,
		MaxConcurrentOps:   4,
		OperationTimeoutMS: 10_000,
	}
}

// DefaultLimits is the balanced preset.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryBytes:     256 << 20, // 256 MiB
		MaxCPUTimeMS:       60_000,
		MaxFileSizeBytes:   64 << 20, // 64 MiB
		MaxOperations:      1_000_000,
		MaxConcurrentOps:   16,
		OperationTimeoutMS: 60_000,
	}
}

// RelaxedLimits is the loose preset for trusted workloads.
func RelaxedLimits() Limits {
	return Limits{
		MaxMemoryBytes:     2 << 30, // 2 GiB
		MaxCPUTimeMS:       600_000,
		MaxFileSizeBytes:   1 << 30, // 1 GiB
		MaxOperations:      100_000_000,
		MaxConcurrentOps:   128,
		OperationTimeoutMS: 600_000,
	}
}

// UnlimitedLimits disables all caps.
func UnlimitedLimits() Limits { return Limits{} }

// Tracker accounts resource usage against its Limits. All methods are safe
// for concurrent use.
type Tracker struct {
	limits Limits

	memoryUsed atomic.Int64
	cpuTimeMS  atomic.Int64
	operations atomic.Int64
	concurrent atomic.Int64
}

// NewTracker creates a tracker with the given limits.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{limits: limits}
}

// Limits returns the configured limits.
func (t *Tracker) Limits() Limits { return t.limits }

// MemoryGuard is a scoped memory acquisition. Release is idempotent and must
// run on all exit paths; defer it immediately after acquisition.
type MemoryGuard struct {
	tracker *Tracker
	bytes   int64
	once    sync.Once
}

// Release returns the acquired bytes to the tracker.
func (g *MemoryGuard) Release() {
	g.once.Do(func() { g.tracker.memoryUsed.Add(-g.bytes) })
}

// AcquireMemory reserves bytes against the memory limit.
func (t *Tracker) AcquireMemory(bytes int64) (*MemoryGuard, error) {
	used := t.memoryUsed.Add(bytes)
	if t.limits.MaxMemoryBytes > 0 && used > t.limits.MaxMemoryBytes {
		t.memoryUsed.Add(-bytes)
		return nil, core.NewResourceError("max_memory_bytes",
			fmt.Sprintf("memory limit exceeded: %d + %d > %d", used-bytes, bytes, t.limits.MaxMemoryBytes))
	}
	return &MemoryGuard{tracker: t, bytes: bytes}, nil
}

// MemoryUsed returns the currently reserved bytes.
func (t *Tracker) MemoryUsed() int64 { return t.memoryUsed.Load() }

// OpGuard is a scoped concurrent-operation slot. Release is idempotent.
type OpGuard struct {
	tracker *Tracker
	once    sync.Once
}

// Release frees the concurrent-operation slot.
func (g *OpGuard) Release() {
	g.once.Do(func() { g.tracker.concurrent.Add(-1) })
}

// BeginOperation counts one operation and claims a concurrency slot.
func (t *Tracker) BeginOperation() (*OpGuard, error) {
	ops := t.operations.Add(1)
	if t.limits.MaxOperations > 0 && ops > t.limits.MaxOperations {
		return nil, core.NewResourceError("max_operations",
			fmt.Sprintf("operation limit exceeded: %d > %d", ops, t.limits.MaxOperations))
	}
	inFlight := t.concurrent.Add(1)
	if t.limits.MaxConcurrentOps > 0 && inFlight > t.limits.MaxConcurrentOps {
		t.concurrent.Add(-1)
		return nil, core.NewResourceError("max_concurrent_ops",
			fmt.Sprintf("concurrent operation limit exceeded: %d > %d", inFlight, t.limits.MaxConcurrentOps))
	}
	return &OpGuard{tracker: t}, nil
}

// OperationCount returns the total operations started.
func (t *Tracker) OperationCount() int64 { return t.operations.Load() }

// ConcurrentOps returns the operations currently in flight.
func (t *Tracker) ConcurrentOps() int64 { return t.concurrent.Load() }

// CheckFileSize validates a file operation against the file-size limit.
func (t *Tracker) CheckFileSize(bytes int64) error {
	if t.limits.MaxFileSizeBytes > 0 && bytes > t.limits.MaxFileSizeBytes {
		return core.NewResourceError("max_file_size_bytes",
			fmt.Sprintf("file size %d exceeds limit %d", bytes, t.limits.MaxFileSizeBytes))
	}
	return nil
}

// RecordCPUTime accumulates CPU time sampled at suspension points and
// reports a typed error once the budget is exhausted.
func (t *Tracker) RecordCPUTime(elapsed time.Duration) error {
	total := t.cpuTimeMS.Add(elapsed.Milliseconds())
	if t.limits.MaxCPUTimeMS > 0 && total > t.limits.MaxCPUTimeMS {
		return core.NewResourceError("max_cpu_time_ms",
			fmt.Sprintf("cpu time %dms exceeds limit %dms", total, t.limits.MaxCPUTimeMS))
	}
	return nil
}

// OperationTimeout returns the per-operation timeout, or zero when unlimited.
func (t *Tracker) OperationTimeout() time.Duration {
	return time.Duration(t.limits.OperationTimeoutMS) * time.Millisecond
}
