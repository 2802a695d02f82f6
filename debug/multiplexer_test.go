package debug

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	name     string
	priority int
	interest InterestSet
	events   atomic.Int64
	order    *[]string
}

func (h *countingHandler) Name() string                  { return h.name }
func (h *countingHandler) Priority() int                 { return h.priority }
func (h *countingHandler) InterestedEvents() InterestSet { return h.interest }
func (h *countingHandler) OnEvent(HookEvent) {
	h.events.Add(1)
	if h.order != nil {
		*h.order = append(*h.order, h.name)
	}
}

func TestMultiplexerPriorityOrdering(t *testing.T) {
	mux := NewMultiplexer(nil)
	var order []string

	mux.Register(&countingHandler{name: "monitor", priority: 1000, interest: InterestSet{EveryLine: true}, order: &order})
	mux.Register(&countingHandler{name: "profiler", priority: -1000, interest: InterestSet{EveryLine: true}, order: &order})
	mux.Register(&countingHandler{name: "default", priority: 0, interest: InterestSet{EveryLine: true}, order: &order})

	assert.Equal(t, []string{"profiler", "default", "monitor"}, mux.HandlerNames())

	mux.Dispatch(HookEvent{Kind: EventLine, Source: "x.lua", Line: 1})
	assert.Equal(t, []string{"profiler", "default", "monitor"}, order)
}

func TestMultiplexerInterestFiltering(t *testing.T) {
	mux := NewMultiplexer(nil)
	calls := &countingHandler{name: "calls", interest: InterestSet{OnCalls: true}}
	returns := &countingHandler{name: "returns", interest: InterestSet{OnReturns: true}}
	lines := &countingHandler{name: "lines", interest: InterestSet{EveryLine: true}}
	mux.Register(calls)
	mux.Register(returns)
	mux.Register(lines)

	mux.Dispatch(HookEvent{Kind: EventCall})
	mux.Dispatch(HookEvent{Kind: EventLine, Line: 1})
	mux.Dispatch(HookEvent{Kind: EventLine, Line: 2})
	mux.Dispatch(HookEvent{Kind: EventReturn})

	assert.Equal(t, int64(1), calls.events.Load())
	assert.Equal(t, int64(2), lines.events.Load())
	assert.Equal(t, int64(1), returns.events.Load())
}

func TestMultiplexerUnion(t *testing.T) {
	mux := NewMultiplexer(nil)
	assert.True(t, mux.Union().Empty(), "no handlers, no hook")

	mux.Register(&countingHandler{name: "a", interest: InterestSet{EveryNthInstruction: 100}})
	mux.Register(&countingHandler{name: "b", interest: InterestSet{OnCalls: true, EveryNthInstruction: 10}})

	union := mux.Union()
	assert.True(t, union.OnCalls)
	assert.Equal(t, 10, union.EveryNthInstruction, "smallest interval wins")
	assert.False(t, union.EveryLine)

	assert.True(t, mux.Unregister("b"))
	assert.False(t, mux.Unregister("b"))
	assert.Equal(t, 100, mux.Union().EveryNthInstruction)
}

// The change callback lets the owning adapter reinstall or remove its
// interpreter hook whenever the handler set changes.
func TestMultiplexerOnChange(t *testing.T) {
	mux := NewMultiplexer(nil)
	var fired int
	mux.SetOnChange(func() { fired++ })

	mux.Register(&countingHandler{name: "a", interest: InterestSet{OnCalls: true}})
	assert.Equal(t, 1, fired)

	assert.True(t, mux.Unregister("a"))
	assert.Equal(t, 2, fired)

	assert.False(t, mux.Unregister("a"), "removing an absent handler is not a change")
	assert.Equal(t, 2, fired)
}

// Hook coexistence scenario: a profiler handler and the debug manager share
// the hook slot; with the manager Disabled, the profiler samples while no
// debug events are produced.
func TestProfilerCoexistsWithDisabledDebugger(t *testing.T) {
	mux := NewMultiplexer(nil)

	profiler := &countingHandler{name: "profiler", priority: -1000, interest: InterestSet{EveryNthInstruction: 10}}
	mux.Register(profiler)

	var debugStops int
	m := NewManager(func(o *ManagerOptions) {
		o.OnStopped = func(StoppedEvent) { debugStops++ }
	})
	mux.Register(m.Handler(0))
	require.NoError(t, m.Start())

	assert.True(t, m.Handler(0).InterestedEvents().Empty(), "Disabled mode requests no events")

	// Simulate `for i=1,100 do local x=i*2 end`: one line event per iteration.
	for i := 1; i <= 100; i++ {
		mux.Dispatch(HookEvent{Kind: EventLine, Source: "loop.lua", Line: 1, Depth: 1})
	}

	assert.NotZero(t, profiler.events.Load(), "profiler sample count is non-zero")
	assert.Zero(t, debugStops, "no debug events in Disabled mode")
	assert.Equal(t, StateRunning, m.State())
}
