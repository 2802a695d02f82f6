package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// ScriptLocation identifies the current execution position inside a script.
type ScriptLocation struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// PerformanceMetrics accumulates execution counters for a script run. It is
// mutated only by the execution core; tracers and the debug bridge read it.
type PerformanceMetrics struct {
	ExecutionCount  uint64 `json:"execution_count"`
	FunctionTimeUS  uint64 `json:"function_time_us"`
	MemoryAllocated uint64 `json:"memory_allocated"`
}

// SharedExecutionContext is the execution state shared between the script
// engine, the debug core and protocol bridges. All methods are safe for
// concurrent use; the cancellation flag is cooperative and observed at
// suspension points.
type SharedExecutionContext struct {
	mu            sync.RWMutex
	location      *ScriptLocation
	correlationID string
	variables     map[string]any
	metrics       PerformanceMetrics

	cancelled    atomic.Bool
	cancelReason atomic.Value // string
}

// NewSharedExecutionContext creates an empty context with a fresh correlation ID.
func NewSharedExecutionContext() *SharedExecutionContext {
	return &SharedExecutionContext{
		correlationID: NewID(),
		variables:     map[string]any{},
	}
}

// CorrelationID returns the correlation identifier for this execution.
func (c *SharedExecutionContext) CorrelationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.correlationID
}

// SetCorrelationID replaces the correlation identifier.
func (c *SharedExecutionContext) SetCorrelationID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlationID = id
}

// Location returns the current script location, or nil if execution has not
// reported one yet.
func (c *SharedExecutionContext) Location() *ScriptLocation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.location == nil {
		return nil
	}
	loc := *c.location
	return &loc
}

// SetLocation updates the current script location.
func (c *SharedExecutionContext) SetLocation(source string, line, column int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = &ScriptLocation{Source: source, Line: line, Column: column}
}

// GetVariable returns a context variable and its existence flag.
func (c *SharedExecutionContext) GetVariable(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[name]
	return v, ok
}

// SetVariable stores a context variable.
func (c *SharedExecutionContext) SetVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = value
}

// Variables returns a defensive copy of all context variables.
func (c *SharedExecutionContext) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// RecordExecution increments the execution counter and accumulates elapsed
// function time.
func (c *SharedExecutionContext) RecordExecution(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ExecutionCount++
	c.metrics.FunctionTimeUS += uint64(elapsed.Microseconds())
}

// RecordAllocation adds to the tracked allocated byte count.
func (c *SharedExecutionContext) RecordAllocation(bytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MemoryAllocated += bytes
}

// Metrics returns a snapshot of the performance metrics.
func (c *SharedExecutionContext) Metrics() PerformanceMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// Cancel sets the cooperative cancellation flag with a reason. The next
// suspension point observes it and unwinds.
func (c *SharedExecutionContext) Cancel(reason string) {
	c.cancelReason.Store(reason)
	c.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (c *SharedExecutionContext) Cancelled() bool { return c.cancelled.Load() }

// CancelReason returns the reason passed to Cancel, or "" if not cancelled.
func (c *SharedExecutionContext) CancelReason() string {
	if r, ok := c.cancelReason.Load().(string); ok {
		return r
	}
	return ""
}
