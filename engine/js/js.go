// Package js adapts the script engine bridge to goja. The adapter owns one
// runtime, serializes access to it, and binds the fixed API surface as
// JavaScript global objects.
package js

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/hook"
)

func init() {
	_ = engine.RegisterBuiltin("javascript", func(config map[string]any) (engine.ScriptEngine, error) {
		return New(config)
	})
}

// Engine is the JavaScript implementation of the script engine bridge. The
// underlying goja runtime is not goroutine-safe; every entry point takes the
// engine mutex.
type Engine struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	globals  *engine.Globals
	injected bool
	execCtx  context.Context

	// mux shares the single debug hook slot between the execution manager
	// and other handlers; hookActive caches whether any handler wants events.
	mux        *debug.Multiplexer
	hookActive atomic.Bool

	streams *engine.StreamHandles
	subs    *engine.SubHandles
}

var _ engine.ScriptEngine = (*Engine)(nil)

// New creates a JavaScript engine. The config map is accepted for registry
// compatibility; no keys are currently recognized.
func New(config map[string]any) (*Engine, error) {
	_ = config
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &Engine{
		vm:      vm,
		streams: engine.NewStreamHandles(),
		subs:    engine.NewSubHandles(),
	}, nil
}

// Name implements engine.ScriptEngine.
func (e *Engine) Name() string { return "javascript" }

// HookMultiplexer exposes the debug hook multiplexer so profilers and other
// handlers can share the hook slot with the execution manager. Nil until the
// APIs are injected with a debug manager.
func (e *Engine) HookMultiplexer() *debug.Multiplexer { return e.mux }

// refreshHookInterest recomputes the union of handler interests. goja exposes
// no per-line debug hook API, so an installed hook means event dispatch at
// the observable boundaries: script entry and exit, plus a line checkpoint at
// every blocking host call.
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
// calls are the only safe pause points the runtime exposes, so breakpoints
// and pause requests take effect there.
func (e *Engine) lineCheckpoint() {
	if e.mux == nil || !e.hookActive.Load() {
		return
	}
	source, line := "script", 0
	stack := e.vm.CaptureCallStack(0, nil)
	if len(stack) > 0 {
		pos := stack[0].Position()
		if name := stack[0].SrcName(); name != "" {
			source = name
		}
		line = pos.Line
	}
	e.mux.Dispatch(debug.HookEvent{Kind: debug.EventLine, Source: source, Line: line, Depth: len(stack)})
}

// SupportsStreaming implements engine.ScriptEngine.
func (e *Engine) SupportsStreaming() bool { return true }

// SupportsMultimodal implements engine.ScriptEngine. Media payloads do not
// survive the JavaScript value conversion.
func (e *Engine) SupportsMultimodal() bool { return false }

// Close releases the runtime.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs.CloseAll()
	e.vm.Interrupt("engine closed")
	return nil
}

// Execute runs a script to completion. The script's final expression value
// becomes the output value.
func (e *Engine) Execute(ctx context.Context, source string) (core.ScriptOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execCtx = ctx
	defer func() { e.execCtx = nil }()

	if outcome, done, err := e.runScriptHook(hook.PointBeforeScriptExecution, source); err != nil {
		return core.ScriptOutput{}, err
	} else if done {
		return core.ScriptOutput{Value: outcome, Metadata: map[string]any{"replaced_by_hook": true}}, nil
	}

	// Script execution drives the execution manager's state machine; a run
	// that overlaps an externally started debug session leaves it alone.
	if e.globals != nil && e.globals.Debug != nil {
		if serr := e.globals.Debug.Start(); serr == nil {
			defer e.globals.Debug.Finish()
		}
	}
	e.dispatchHook(debug.HookEvent{Kind: debug.EventCall, Source: "script", Depth: 1})
	defer e.dispatchHook(debug.HookEvent{Kind: debug.EventReturn, Source: "script", Depth: 1})

	// A watchdog interrupts the runtime when the context expires; goja has no
	// native context support.
	watch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-watch:
		}
	}()

	start := time.Now()
	result, err := e.vm.RunString(source)
	close(watch)
	e.vm.ClearInterrupt()
	if err != nil {
		return core.ScriptOutput{}, e.classifyError(ctx, err)
	}

	out := core.ScriptOutput{
		Value:    exportValue(result),
		Metadata: map[string]any{"engine": "javascript", "duration_ms": time.Since(start).Milliseconds()},
	}
	if _, _, err := e.runScriptHook(hook.PointAfterScriptExecution, source); err != nil {
		return out, err
	}
	return out, nil
}

// classifyError maps a goja failure onto the error taxonomy.
func (e *Engine) classifyError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctx.Err() == context.DeadlineExceeded {
			return core.NewTimeoutError("engine:javascript", "script exceeded deadline")
		}
		return core.NewCancelledError("script cancelled")
	}
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return core.NewValidationError("source", "javascript compile failed: "+err.Error())
	}
	if e.globals != nil && e.globals.Debug != nil {
		e.globals.Debug.OnScriptError("script", 0, err)
	}
	return core.NewComponentError("engine:javascript", "script failed", err)
}

// runScriptHook executes the script lifecycle hook chain. Returns the
// replacement value and true when a hook replaced execution.
func (e *Engine) runScriptHook(point hook.Point, source string) (any, bool, error) {
	if e.globals == nil || e.globals.Hooks == nil {
		return nil, false, nil
	}
	hctx := hook.NewContext(point, core.NewComponentID(core.ComponentTypeSystem, "js-engine"))
	hctx.Language = "javascript"
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

// ExecuteStream runs the script and emits its result as a chunk stream.
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

// evalCondition evaluates a breakpoint condition against current globals. It
// runs on the interpreter goroutine while the script is paused inside a host
// call and therefore takes no lock.
func (e *Engine) evalCondition(condition string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("condition evaluation failed")
		}
	}()
	v, rerr := e.vm.RunString("(" + condition + ")")
	if rerr != nil {
		return false, rerr
	}
	return v.ToBoolean(), nil
}
