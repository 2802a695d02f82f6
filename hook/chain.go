package hook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// Hook observes an operation at a Point and returns a Result deciding how the
// operation proceeds.
//
// Implementations must:
//   - Be safe for concurrent registration (execution itself is serialized)
//   - Return quickly; long work belongs in the operation, not the hook
//   - Never panic (panics are recovered and downgraded to warnings)
type Hook interface {
	// Name returns the unique identifier for this hook.
	Name() string

	// Priority orders execution; lower values run first.
	Priority() int

	// Points returns the hook points this hook wants to observe.
	Points() []Point

	// Execute runs the hook against the given context.
	Execute(hctx *Context) (Result, error)
}

// Outcome summarizes a completed chain run for one hook point.
type Outcome struct {
	// Cancelled is set when a hook returned Cancel; Reason carries its payload.
	Cancelled bool
	Reason    string
	// Replaced is set when a hook returned Replace; Value carries the
	// substitute result.
	Replaced bool
	Value    any
	// Data is the final context data after any Modified results.
	Data map[string]any
	// Executed lists the hooks that ran, in order.
	Executed []string
	// Warnings collects handler errors and recovered panics.
	Warnings []string
}

// FuncHook adapts a plain function into a Hook.
type FuncHook struct {
	HookName     string
	HookPriority int
	HookPoints   []Point
	Fn           func(hctx *Context) (Result, error)
}

// Name implements Hook.
func (f *FuncHook) Name() string { return f.HookName }

// Priority implements Hook.
func (f *FuncHook) Priority() int { return f.HookPriority }

// Points implements Hook.
func (f *FuncHook) Points() []Point { return f.HookPoints }

// Execute implements Hook.
func (f *FuncHook) Execute(hctx *Context) (Result, error) { return f.Fn(hctx) }

// Chain owns the registered hooks and executes them serially per point under
// its own lock so handler order is deterministic: ascending priority, then
// registration order for equal priorities.
type Chain struct {
	mu     sync.Mutex
	hooks  []Hook
	seq    map[string]int // registration order for stable sort
	nextID int

	*core.LoggerAdapter
}

// NewChain creates an empty hook chain.
func NewChain(logger logging.Logger) *Chain {
	return &Chain{
		seq:           map[string]int{},
		LoggerAdapter: core.NewLoggerAdapter(logger),
	}
}

// Register adds a hook. Re-registering a name replaces the previous hook.
func (c *Chain) Register(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.hooks {
		if existing.Name() == h.Name() {
			c.hooks[i] = h
			return
		}
	}
	c.seq[h.Name()] = c.nextID
	c.nextID++
	c.hooks = append(c.hooks, h)
}

// Unregister removes a hook by name. Returns false if it was not registered.
func (c *Chain) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.hooks {
		if h.Name() == name {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			delete(c.seq, name)
			return true
		}
	}
	return false
}

// Hooks returns the registered hooks for a point in execution order.
func (c *Chain) Hooks(point Point) []Hook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hooksForLocked(point)
}

func (c *Chain) hooksForLocked(point Point) []Hook {
	var out []Hook
	for _, h := range c.hooks {
		for _, p := range h.Points() {
			if p == point {
				out = append(out, h)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return c.seq[out[i].Name()] < c.seq[out[j].Name()]
	})
	return out
}

// Execute runs all hooks registered for hctx.Point. A Cancel result stops the
// chain immediately; Modified results replace the context data seen by later
// hooks; handler errors and panics are downgraded to warnings and the chain
// continues.
func (c *Chain) Execute(hctx *Context) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := Outcome{Data: hctx.Data}
	for _, h := range c.hooksForLocked(hctx.Point) {
		res, err := c.runHook(h, hctx)
		outcome.Executed = append(outcome.Executed, h.Name())
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("hook %s: %v", h.Name(), err))
			c.LogWarn("hook failed", "hook", h.Name(), "point", hctx.Point, "error", err)
			continue
		}

		switch r := res.(type) {
		case Continue, nil:
		case Modified:
			hctx.Data = r.Value
			outcome.Data = r.Value
		case Cancel:
			outcome.Cancelled = true
			outcome.Reason = r.Reason
			return outcome
		case Replace:
			outcome.Replaced = true
			outcome.Value = r.Value
		case Skipped:
			c.LogDebug("hook skipped", "hook", h.Name(), "reason", r.Reason)
		default:
			// Retry, Redirect, Fork and Cache are directives for the caller;
			// the chain records them in the data map under a reserved key.
			if outcome.Data == nil {
				outcome.Data = map[string]any{}
				hctx.Data = outcome.Data
			}
			outcome.Data["hook.directive"] = res
		}
	}
	return outcome
}

// runHook isolates a single hook call, converting panics into errors.
func (c *Chain) runHook(h Hook, hctx *Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Execute(hctx)
}
