// Package lua adapts the script engine bridge to gopher-lua. The adapter owns
// one interpreter state, serializes access to it, and binds the fixed API
// surface as Lua global tables.
package lua

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	glua "github.com/yuin/gopher-lua"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/hook"
)

func init() {
	// Resolvable through the default factory registry as a built-in.
	_ = engine.RegisterBuiltin("lua", func(config map[string]any) (engine.ScriptEngine, error) {
		return New(config)
	})
}

// Engine is the Lua implementation of the script engine bridge. The
// underlying LState is not goroutine-safe; every entry point takes the
// engine mutex.
type Engine struct {
	mu       sync.Mutex
	state    *glua.LState
	globals  *engine.Globals
	injected bool

	// mux shares the single debug hook slot between the execution manager
	// and other handlers; hookActive caches whether any handler wants events.
	mux        *debug.Multiplexer
	hookActive atomic.Bool

	streams *engine.StreamHandles
	subs    *engine.SubHandles
}

var _ engine.ScriptEngine = (*Engine)(nil)

// New creates a Lua engine. Recognized config keys: "registry_size" (int),
// "call_stack_size" (int).
func New(config map[string]any) (*Engine, error) {
	opts := glua.Options{}
	if v, ok := asInt(config["registry_size"]); ok {
		if v <= 0 {
			return nil, engine.NewConfigurationError("lua", "registry_size must be positive")
		}
		opts.RegistrySize = v
	}
	if v, ok := asInt(config["call_stack_size"]); ok {
		if v <= 0 {
			return nil, engine.NewConfigurationError("lua", "call_stack_size must be positive")
		}
		opts.CallStackSize = v
	}
	return &Engine{
		state:   glua.NewState(opts),
		streams: engine.NewStreamHandles(),
		subs:    engine.NewSubHandles(),
	}, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Name implements engine.ScriptEngine.
func (e *Engine) Name() string { return "lua" }

// HookMultiplexer exposes the debug hook multiplexer so profilers and other
// handlers can share the hook slot with the execution manager. Nil until the
// APIs are injected with a debug manager.
func (e *Engine) HookMultiplexer() *debug.Multiplexer { return e.mux }

// refreshHookInterest recomputes the union of handler interests. gopher-lua
// exposes no per-line debug hook API, so an installed hook means event
// dispatch at the observable boundaries: script entry and exit, plus a line
// checkpoint at every blocking host call.
func (e *Engine) refreshHookInterest() {
	e.hookActive.Store(!e.mux.Union().Empty())
}

// dispatchHook fans one raw event through the multiplexer when any handler
// asked for events.
func (e *Engine) dispatchHook(ev debug.HookEvent) {
	if e.mux == nil || !e.hookActive.Load() {
		return
	}
	e.mux.Dispatch(ev)
}

// lineCheckpoint dispatches a line event for the current host call site. Host
// calls are the only safe pause points the interpreter exposes, so
// breakpoints and pause requests take effect there.
func (e *Engine) lineCheckpoint(L *glua.LState) {
	if e.mux == nil || !e.hookActive.Load() {
		return
	}
	depth := 0
	for {
		if _, ok := L.GetStack(depth + 1); !ok {
			break
		}
		depth++
	}
	source, line := "script", 0
	if dbg, ok := L.GetStack(1); ok {
		if _, err := L.GetInfo("Sl", dbg, glua.LNil); err == nil {
			source = dbg.Source
			line = dbg.CurrentLine
		}
	}
	e.mux.Dispatch(debug.HookEvent{Kind: debug.EventLine, Source: source, Line: line, Depth: depth})
}

// SupportsStreaming implements engine.ScriptEngine.
func (e *Engine) SupportsStreaming() bool { return true }

// SupportsMultimodal implements engine.ScriptEngine. Media payloads do not
// survive the Lua value conversion.
func (e *Engine) SupportsMultimodal() bool { return false }

// Close releases the interpreter.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs.CloseAll()
	e.state.Close()
	return nil
}

// Execute runs a script to completion. The script's return values become the
// output value: none is nil, one is itself, several collapse into a slice.
func (e *Engine) Execute(ctx context.Context, source string) (core.ScriptOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeLocked(ctx, source)
}

func (e *Engine) executeLocked(ctx context.Context, source string) (core.ScriptOutput, error) {
	if outcome, done, err := e.runScriptHook(hook.PointBeforeScriptExecution, source); err != nil {
		return core.ScriptOutput{}, err
	} else if done {
		return core.ScriptOutput{Value: outcome, Metadata: map[string]any{"replaced_by_hook": true}}, nil
	}

	L := e.state
	L.SetContext(ctx)
	defer L.RemoveContext()

	// Script execution drives the execution manager's state machine; a run
	// that overlaps an externally started debug session leaves it alone.
	if e.globals != nil && e.globals.Debug != nil {
		if err := e.globals.Debug.Start(); err == nil {
			defer e.globals.Debug.Finish()
		}
	}
	e.dispatchHook(debug.HookEvent{Kind: debug.EventCall, Source: "script", Depth: 1})
	defer e.dispatchHook(debug.HookEvent{Kind: debug.EventReturn, Source: "script", Depth: 1})

	base := L.GetTop()
	fn, err := L.LoadString(source)
	if err != nil {
		return core.ScriptOutput{}, core.NewValidationError("source", "lua compile failed: "+err.Error())
	}

	start := time.Now()
	L.Push(fn)
	if err := L.PCall(0, glua.MultRet, nil); err != nil {
		L.SetTop(base)
		if ctx.Err() == context.DeadlineExceeded {
			return core.ScriptOutput{}, core.NewTimeoutError("engine:lua", "script exceeded deadline")
		}
		if ctx.Err() != nil {
			return core.ScriptOutput{}, core.NewCancelledError("script cancelled")
		}
		if e.globals != nil && e.globals.Debug != nil {
			e.globals.Debug.OnScriptError("script", 0, err)
		}
		return core.ScriptOutput{}, core.NewComponentError("engine:lua", "script failed", err)
	}

	top := L.GetTop()
	var value any
	switch top - base {
	case 0:
	case 1:
		value = luaToGo(L.Get(top))
	default:
		values := make([]any, 0, top-base)
		for i := base + 1; i <= top; i++ {
			values = append(values, luaToGo(L.Get(i)))
		}
		value = values
	}
	L.SetTop(base)

	out := core.ScriptOutput{
		Value:    value,
		Metadata: map[string]any{"engine": "lua", "duration_ms": time.Since(start).Milliseconds()},
	}
	if _, _, err := e.runScriptHook(hook.PointAfterScriptExecution, source); err != nil {
		return out, err
	}
	return out, nil
}

// executeStreamLocked runs a nested script from inside a host call, where the
// engine mutex is already held by the outer Execute, and buffers the result
// into a pre-closed chunk stream. The nested run inherits the outer context
// and skips the script lifecycle hooks.
func (e *Engine) executeStreamLocked(ctx context.Context, source string) (<-chan core.AgentChunk, error) {
	_ = ctx
	L := e.state
	base := L.GetTop()
	fn, err := L.LoadString(source)
	if err != nil {
		return nil, core.NewValidationError("source", "lua compile failed: "+err.Error())
	}

	ch := make(chan core.AgentChunk, 4)
	streamID := core.NewID()
	ch <- core.NewControlChunk(streamID, 0, core.ControlStart, "")

	L.Push(fn)
	if perr := L.PCall(0, 1, nil); perr != nil {
		L.SetTop(base)
		ch <- core.NewControlChunk(streamID, 1, core.ControlError, perr.Error())
		close(ch)
		return ch, nil
	}
	index := 1
	if top := L.GetTop(); top > base {
		if value := luaToGo(L.Get(top)); value != nil {
			ch <- core.NewTextChunk(streamID, index, stringifyValue(value))
			index++
		}
	}
	L.SetTop(base)
	ch <- core.NewControlChunk(streamID, index, core.ControlDone, "")
	close(ch)
	return ch, nil
}

// runScriptHook executes the script lifecycle hook chain. Returns the
// replacement value and true when a hook replaced execution.
func (e *Engine) runScriptHook(point hook.Point, source string) (any, bool, error) {
	if e.globals == nil || e.globals.Hooks == nil {
		return nil, false, nil
	}
	hctx := hook.NewContext(point, core.NewComponentID(core.ComponentTypeSystem, "lua-engine"))
	hctx.Language = "lua"
	hctx.Data["source_len"] = len(source)
	outcome := e.globals.Hooks.Execute(hctx)
	switch {
	case outcome.Cancelled:
		return nil, false, core.NewCancelledError(outcome.Reason)
	case outcome.Replaced:
		return outcome.Value, true, nil
	}
	return nil, false, nil
}

// ExecuteStream runs the script and emits its result as a chunk stream: a
// start control chunk, one text chunk per returned value, and a done control
// chunk.
func (e *Engine) ExecuteStream(ctx context.Context, source string) (<-chan core.AgentChunk, error) {
	ch := make(chan core.AgentChunk, 8)
	go func() {
		defer close(ch)
		streamID := core.NewID()
		index := 0
		emit := func(chunk core.AgentChunk) {
			select {
			case ch <- chunk:
			case <-ctx.Done():
			}
			index++
		}

		emit(core.NewControlChunk(streamID, index, core.ControlStart, ""))
		out, err := e.Execute(ctx, source)
		if err != nil {
			emit(core.NewControlChunk(streamID, index, core.ControlError, err.Error()))
			return
		}
		if out.Value != nil {
			emit(core.NewTextChunk(streamID, index, stringifyValue(out.Value)))
		}
		emit(core.NewControlChunk(streamID, index, core.ControlDone, ""))
	}()
	return ch, nil
}

// CompletionCandidates completes against the declared API surface.
func (e *Engine) CompletionCandidates(line string, cursor int) []engine.Completion {
	return engine.SurfaceCompletions(line, cursor)
}
