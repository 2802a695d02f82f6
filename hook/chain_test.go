package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

func newTestContext(point Point) *Context {
	return NewContext(point, core.NewComponentID(core.ComponentTypeTool, "calculator"))
}

func funcHook(name string, priority int, point Point, fn func(*Context) (Result, error)) *FuncHook {
	return &FuncHook{HookName: name, HookPriority: priority, HookPoints: []Point{point}, Fn: fn}
}

func TestChainPriorityOrdering(t *testing.T) {
	chain := NewChain(nil)
	var order []string
	record := func(name string) func(*Context) (Result, error) {
		return func(*Context) (Result, error) {
			order = append(order, name)
			return Continue{}, nil
		}
	}

	chain.Register(funcHook("monitor", PriorityMonitor, PointBeforeToolExecution, record("monitor")))
	chain.Register(funcHook("builtin", PriorityDefault, PointBeforeToolExecution, record("builtin")))
	chain.Register(funcHook("profiler", PriorityProfiler, PointBeforeToolExecution, record("profiler")))

	outcome := chain.Execute(newTestContext(PointBeforeToolExecution))

	assert.Equal(t, []string{"profiler", "builtin", "monitor"}, order)
	assert.Equal(t, []string{"profiler", "builtin", "monitor"}, outcome.Executed)
}

func TestChainCancelShortCircuits(t *testing.T) {
	chain := NewChain(nil)
	ran := false

	chain.Register(funcHook("guard", -10, PointBeforeToolExecution, func(*Context) (Result, error) {
		return Cancel{Reason: "policy denied"}, nil
	}))
	chain.Register(funcHook("late", 10, PointBeforeToolExecution, func(*Context) (Result, error) {
		ran = true
		return Continue{}, nil
	}))

	outcome := chain.Execute(newTestContext(PointBeforeToolExecution))

	require.True(t, outcome.Cancelled)
	assert.Equal(t, "policy denied", outcome.Reason)
	assert.False(t, ran, "hooks after Cancel must not execute")
	assert.Equal(t, []string{"guard"}, outcome.Executed)
}

func TestChainModifiedPropagates(t *testing.T) {
	chain := NewChain(nil)

	chain.Register(funcHook("rewrite", 0, PointBeforeStateChange, func(hctx *Context) (Result, error) {
		return Modified{Value: map[string]any{"value": "redacted"}}, nil
	}))

	var seen any
	chain.Register(funcHook("observe", 10, PointBeforeStateChange, func(hctx *Context) (Result, error) {
		seen = hctx.Data["value"]
		return Continue{}, nil
	}))

	hctx := newTestContext(PointBeforeStateChange)
	hctx.Data["value"] = "secret"
	outcome := chain.Execute(hctx)

	assert.Equal(t, "redacted", seen)
	assert.Equal(t, "redacted", outcome.Data["value"])
}

func TestChainHandlerErrorBecomesWarning(t *testing.T) {
	chain := NewChain(nil)

	chain.Register(funcHook("broken", 0, PointAfterToolExecution, func(*Context) (Result, error) {
		panic("nil map write")
	}))
	chain.Register(funcHook("healthy", 10, PointAfterToolExecution, func(*Context) (Result, error) {
		return Continue{}, nil
	}))

	outcome := chain.Execute(newTestContext(PointAfterToolExecution))

	assert.False(t, outcome.Cancelled)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "broken")
	assert.Equal(t, []string{"broken", "healthy"}, outcome.Executed)
}

func TestChainReplace(t *testing.T) {
	chain := NewChain(nil)
	chain.Register(funcHook("cacheHit", 0, PointBeforeAgentExecution, func(*Context) (Result, error) {
		return Replace{Value: "cached answer"}, nil
	}))

	outcome := chain.Execute(newTestContext(PointBeforeAgentExecution))
	require.True(t, outcome.Replaced)
	assert.Equal(t, "cached answer", outcome.Value)
}

func TestChainUnregisterIdempotent(t *testing.T) {
	chain := NewChain(nil)
	chain.Register(funcHook("h", 0, PointBeforeToolExecution, func(*Context) (Result, error) {
		return Continue{}, nil
	}))

	assert.True(t, chain.Unregister("h"))
	assert.False(t, chain.Unregister("h"))
}
