package debug

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

// scriptDriver simulates an engine adapter feeding line events for a script.
type scriptDriver struct {
	m     *Manager
	lines []int

	mu      sync.Mutex
	visited []int
	done    chan struct{}
}

func drive(m *Manager, source string, lines []int) *scriptDriver {
	d := &scriptDriver{m: m, lines: lines, done: make(chan struct{})}
	go func() {
		defer close(d.done)
		for _, line := range lines {
			if !m.OnLine(source, line, 1) {
				return
			}
			d.mu.Lock()
			d.visited = append(d.visited, line)
			d.mu.Unlock()
		}
		m.Finish()
	}()
	return d
}

func (d *scriptDriver) wait(t *testing.T) []int {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("script did not finish")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.visited...)
}

func waitStopped(t *testing.T, ch <-chan StoppedEvent) StoppedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected stopped event")
		return StoppedEvent{}
	}
}

// Breakpoint-then-continue scenario: three-line script, breakpoint on line 2,
// one stop, then run to completion with no further stops.
func TestBreakpointThenContinue(t *testing.T) {
	stopped := make(chan StoppedEvent, 4)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})

	bp := m.AddBreakpoint("test.lua", 2, "")
	require.NoError(t, m.Start())

	d := drive(m, "test.lua", []int{1, 2, 3})

	ev := waitStopped(t, stopped)
	assert.Equal(t, StopBreakpoint, ev.Reason)
	assert.Equal(t, 2, ev.Line)
	assert.Equal(t, bp.ID, ev.BreakpointID)
	assert.Equal(t, StatePaused, m.State())

	require.NoError(t, m.Resume(CommandContinue))
	d.wait(t)

	assert.Equal(t, StateTerminated, m.State())
	select {
	case ev := <-stopped:
		t.Fatalf("unexpected extra stop: %+v", ev)
	default:
	}

	got, ok := m.Breakpoint(bp.ID)
	require.True(t, ok)
	assert.Equal(t, 1, got.HitCount, "one pause, one hit")
}

func TestConditionalBreakpointHitCount(t *testing.T) {
	stopped := make(chan StoppedEvent, 8)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})

	// The condition matches on every second evaluation.
	matches := 0
	m.SetEvaluator(func(string) (bool, error) {
		matches++
		return matches%2 == 0, nil
	})

	bp := m.AddBreakpoint("test.lua", 5, "i % 2 == 0")
	require.NoError(t, m.Start())

	d := drive(m, "test.lua", []int{5, 5, 5, 5})

	// Matches on the 2nd and 4th visit; hit count tracks pauses exactly.
	for i := 0; i < 2; i++ {
		ev := waitStopped(t, stopped)
		assert.Equal(t, StopBreakpoint, ev.Reason)
		require.NoError(t, m.Resume(CommandContinue))
	}
	d.wait(t)

	got, _ := m.Breakpoint(bp.ID)
	assert.Equal(t, 2, got.HitCount, "hit count increments only on satisfied condition")
}

func TestConditionErrorIsWarningNotPause(t *testing.T) {
	stopped := make(chan StoppedEvent, 4)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
		o.Evaluator = func(string) (bool, error) { return false, errors.New("syntax error") }
	})

	bp := m.AddBreakpoint("test.lua", 1, "bad(")
	require.NoError(t, m.Start())
	d := drive(m, "test.lua", []int{1, 2})
	d.wait(t)

	assert.Empty(t, stopped)
	got, _ := m.Breakpoint(bp.ID)
	assert.Zero(t, got.HitCount)
}

func TestRemoveBreakpointIdempotence(t *testing.T) {
	m := NewManager()
	bp := m.AddBreakpoint("a.lua", 1, "")

	assert.True(t, m.RemoveBreakpoint(bp.ID))
	assert.False(t, m.RemoveBreakpoint(bp.ID), "second removal returns false")
	assert.False(t, m.RemoveBreakpoint("missing"))
}

func TestModeAutoEscalation(t *testing.T) {
	var transitions []ModeKind
	m := NewManager(func(o *ManagerOptions) {
		o.OnModeChange = func(mode Mode) { transitions = append(transitions, mode.Kind) }
	})
	assert.Equal(t, ModeDisabled, m.Mode().Kind)

	// Adding a breakpoint escalates Disabled -> Minimal.
	m.AddBreakpoint("a.lua", 1, "")
	assert.Equal(t, ModeMinimal, m.Mode().Kind)
	assert.Equal(t, DefaultCheckInterval, m.Mode().CheckInterval)
	assert.Equal(t, []ModeKind{ModeMinimal}, transitions)
}

func TestSteppingEscalatesToFull(t *testing.T) {
	stopped := make(chan StoppedEvent, 8)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeMinimal, CheckInterval: 1}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})
	m.AddBreakpoint("s.lua", 1, "")
	require.NoError(t, m.Start())

	d := drive(m, "s.lua", []int{1, 2, 3})
	waitStopped(t, stopped)

	require.NoError(t, m.Resume(CommandStepInto))
	assert.Equal(t, ModeFull, m.Mode().Kind, "stepping requires Full")

	ev := waitStopped(t, stopped)
	assert.Equal(t, StopStep, ev.Reason)
	assert.Equal(t, 2, ev.Line)

	require.NoError(t, m.Resume(CommandContinue))
	d.wait(t)
}

func TestStepOverAndOutDepthSemantics(t *testing.T) {
	stopped := make(chan StoppedEvent, 8)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})
	m.AddBreakpoint("s.lua", 1, "")
	require.NoError(t, m.Start())

	// Simulated shape: line 1 depth 1, lines 10-11 inside a call (depth 2),
	// line 2 back at depth 1.
	trace := []struct{ line, depth int }{{1, 1}, {10, 2}, {11, 2}, {2, 1}}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tr := range trace {
			if !m.OnLine("s.lua", tr.line, tr.depth) {
				return
			}
		}
		m.Finish()
	}()

	waitStopped(t, stopped) // breakpoint at line 1, depth 1

	// StepOver skips the deeper frames and stops at line 2.
	require.NoError(t, m.Resume(CommandStepOver))
	ev := waitStopped(t, stopped)
	assert.Equal(t, StopStep, ev.Reason)
	assert.Equal(t, 2, ev.Line)

	require.NoError(t, m.Resume(CommandContinue))
	<-done
}

func TestPauseRequest(t *testing.T) {
	stopped := make(chan StoppedEvent, 4)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})
	require.NoError(t, m.Start())
	m.RequestPause()

	d := drive(m, "p.lua", []int{1, 2})
	ev := waitStopped(t, stopped)
	assert.Equal(t, StopPause, ev.Reason)

	require.NoError(t, m.Resume(CommandContinue))
	d.wait(t)
}

func TestTerminateUnwindsScript(t *testing.T) {
	stopped := make(chan StoppedEvent, 4)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})
	m.AddBreakpoint("t.lua", 1, "")
	require.NoError(t, m.Start())

	d := drive(m, "t.lua", []int{1, 2, 3})
	waitStopped(t, stopped)

	require.NoError(t, m.Resume(CommandTerminate))
	visited := d.wait(t)
	assert.Empty(t, visited, "no line completes after terminate")
	assert.Equal(t, StateTerminated, m.State())
}

func TestVariableReferencesResetAcrossPauses(t *testing.T) {
	stopped := make(chan StoppedEvent, 4)
	m := NewManager(func(o *ManagerOptions) {
		o.Mode = Mode{Kind: ModeFull}
		o.OnStopped = func(ev StoppedEvent) { stopped <- ev }
	})
	m.AddBreakpoint("v.lua", 1, "")
	m.AddBreakpoint("v.lua", 2, "")
	require.NoError(t, m.Start())

	d := drive(m, "v.lua", []int{1, 2})
	waitStopped(t, stopped)

	ref := m.CacheVariables([]Variable{{Name: "x", Value: "1", Type: "number"}})
	vars, err := m.Variables(ref)
	require.NoError(t, err)
	assert.Equal(t, "x", vars[0].Name)

	require.NoError(t, m.Resume(CommandContinue))
	waitStopped(t, stopped)

	// The old reference is invalid in the new pause.
	_, err = m.Variables(ref)
	assert.True(t, core.IsKind(err, core.ErrNotFound))

	require.NoError(t, m.Resume(CommandContinue))
	d.wait(t)
}

func TestStackTracePriming(t *testing.T) {
	m := NewManager()
	m.SetStack([]StackFrame{{ID: 0, Name: "test_function", Source: "test.lua", Line: 15, Column: 5}})

	frames := m.StackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, "test_function", frames[0].Name)
	assert.Equal(t, 15, frames[0].Line)
	assert.Equal(t, 5, frames[0].Column)
}

func TestScriptErrorStops(t *testing.T) {
	var events []StoppedEvent
	m := NewManager(func(o *ManagerOptions) {
		o.OnStopped = func(ev StoppedEvent) { events = append(events, ev) }
	})
	require.NoError(t, m.Start())

	m.OnScriptError("e.lua", 7, errors.New("attempt to index a nil value"))

	require.Len(t, events, 1)
	assert.Equal(t, StopError, events[0].Reason)
	assert.Equal(t, 7, events[0].Line)
	assert.Equal(t, StateTerminated, m.State())
}

func TestStartTwiceRejected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start())
	assert.True(t, core.IsKind(m.Start(), core.ErrValidation))
}

func TestNewManagerNormalizesZeroMode(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) { o.Mode = Mode{} })
	assert.Equal(t, ModeDisabled, m.Mode().Kind)
}

// Bridges attach after construction; the setter replaces any callback from
// the options.
func TestSetOnStoppedInstallsCallback(t *testing.T) {
	var events []StoppedEvent
	m := NewManager()
	m.SetOnStopped(func(ev StoppedEvent) { events = append(events, ev) })
	require.NoError(t, m.Start())

	m.OnScriptError("e.lua", 3, errors.New("boom"))

	require.Len(t, events, 1)
	assert.Equal(t, StopError, events[0].Reason)
}
