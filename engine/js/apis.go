package js

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/lexlapax/go-llmspell/agent"
	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/internal/util"
	"github.com/lexlapax/go-llmspell/state"
	"github.com/lexlapax/go-llmspell/workflow"
)

// InjectAPIs installs the fixed global surface into the runtime. A second
// call is a no-op. The JSON surface is not installed because goja's native
// JSON object already provides parse and stringify.
//
// Script callbacks (agents created with Agent.create, hooks registered with
// Hook.register) run on the interpreter goroutine inside a host call made by
// the executing script. They must never be invoked from another goroutine.
func (e *Engine) InjectAPIs(globals *engine.Globals) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.injected {
		return nil
	}
	if globals == nil {
		return engine.NewAPIInjectionError("javascript", "globals", fmt.Errorf("nil globals"))
	}
	e.globals = globals

	e.installState()
	e.installTool()
	e.installAgent()
	e.installWorkflow()
	e.installStreaming()
	e.installMemory()
	e.installSession()
	e.installEvent()
	e.installHook()
	e.installDebug()

	if globals.Debug != nil {
		globals.Debug.SetEvaluator(e.evalCondition)
		if globals.DebugHooks == nil {
			globals.DebugHooks = debug.NewMultiplexer(globals.Logger)
		}
		e.mux = globals.DebugHooks
		e.mux.Register(globals.Debug.Handler(0))
		e.mux.SetOnChange(e.refreshHookInterest)
		globals.Debug.SetOnModeChange(func(debug.Mode) { e.refreshHookInterest() })
		e.refreshHookInterest()
	}
	e.injected = true
	return nil
}

// curCtx returns the context of the Execute call currently driving the
// runtime. Host calls double as the debug hook checkpoint.
func (e *Engine) curCtx() context.Context {
	e.lineCheckpoint()
	if e.execCtx != nil {
		return e.execCtx
	}
	return context.Background()
}

func (e *Engine) installState() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.States == nil {
			return core.NewComponentError("engine:javascript", "State is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("get", func(key string) (any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		value, err := e.globals.States.Get(state.GlobalScope(), key)
		if err != nil {
			if core.IsKind(err, core.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return hostToJS(value), nil
	})
	_ = obj.Set("set", func(key string, value goja.Value) error {
		if err := need(); err != nil {
			return err
		}
		return e.globals.States.SetWithHooks(state.GlobalScope(), key, exportValue(value))
	})
	_ = obj.Set("delete", func(key string) (bool, error) {
		if err := need(); err != nil {
			return false, err
		}
		return e.globals.States.Delete(state.GlobalScope(), key)
	})
	_ = obj.Set("list", func() ([]string, error) {
		if err := need(); err != nil {
			return nil, err
		}
		return e.globals.States.ListKeys(state.GlobalScope())
	})
	_ = vm.Set("State", obj)
}

func (e *Engine) installTool() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.Tools == nil {
			return core.NewComponentError("engine:javascript", "Tool is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("get", func(name string) any {
		if e.globals.Tools == nil {
			return nil
		}
		t, err := e.globals.Tools.Get(name)
		if err != nil {
			return nil
		}
		return map[string]any{"name": t.Name(), "description": t.Description()}
	})
	_ = obj.Set("list", func() ([]string, error) {
		if err := need(); err != nil {
			return nil, err
		}
		return e.globals.Tools.List(), nil
	})
	_ = obj.Set("execute", func(name string, args goja.Value) (any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		params, _ := exportValue(args).(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		out, err := e.globals.Tools.Execute(e.curCtx(), core.ToolInput{Name: name, Parameters: params})
		if err != nil {
			return nil, err
		}
		if out.Error != "" {
			return nil, fmt.Errorf("%s", out.Error)
		}
		return hostToJS(out.Value), nil
	})
	_ = obj.Set("getSchema", func(name string) any {
		if e.globals.Tools == nil {
			return nil
		}
		t, err := e.globals.Tools.Get(name)
		if err != nil {
			return nil
		}
		return t.Parameters()
	})
	_ = obj.Set("validateInput", func(name string, args goja.Value) map[string]any {
		if e.globals.Tools == nil {
			return map[string]any{"valid": false, "error": "Tool is not configured"}
		}
		t, err := e.globals.Tools.Get(name)
		if err != nil {
			return map[string]any{"valid": false, "error": err.Error()}
		}
		params, _ := exportValue(args).(map[string]any)
		if err := util.ValidateParameters(params, t.Parameters()); err != nil {
			return map[string]any{"valid": false, "error": err.Error()}
		}
		return map[string]any{"valid": true}
	})
	_ = vm.Set("Tool", obj)
}

func (e *Engine) installAgent() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.Agents == nil {
			return core.NewComponentError("engine:javascript", "Agent is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("create", func(name string, fn goja.Value) (string, error) {
		if err := need(); err != nil {
			return "", err
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return "", core.NewValidationError("fn", "Agent.create requires a function")
		}
		a := agent.NewFuncAgent(name, func(ctx context.Context, input core.AgentInput) (core.AgentOutput, error) {
			inObj := map[string]any{"text": input.Text}
			if len(input.Parameters) > 0 {
				inObj["parameters"] = input.Parameters
			}
			if len(input.Context) > 0 {
				inObj["context"] = input.Context
			}
			ret, err := callable(goja.Undefined(), vm.ToValue(inObj))
			if err != nil {
				return core.AgentOutput{}, core.NewComponentError("agent:"+name, "script agent failed", err)
			}
			out := core.AgentOutput{}
			switch v := exportValue(ret).(type) {
			case string:
				out.Text = v
			case map[string]any:
				if t, ok := v["text"].(string); ok {
					out.Text = t
				}
				if val, ok := v["value"]; ok {
					out.Value = val
				}
				if md, ok := v["metadata"].(map[string]any); ok {
					out.Metadata = md
				}
			default:
				out.Value = v
			}
			return out, nil
		})
		if err := e.globals.Agents.Register(a); err != nil {
			return "", err
		}
		return name, nil
	})
	_ = obj.Set("execute", func(name string, input goja.Value) (map[string]any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		a, err := e.globals.Agents.GetByName(name)
		if err != nil {
			return nil, err
		}
		out, err := e.globals.Agents.Execute(e.curCtx(), a.ID(), engine.ToAgentInput(exportValue(input)))
		if err != nil {
			return nil, err
		}
		result := map[string]any{"text": out.Text}
		if out.Value != nil {
			result["value"] = hostToJS(out.Value)
		}
		if len(out.Metadata) > 0 {
			result["metadata"] = out.Metadata
		}
		return result, nil
	})
	_ = obj.Set("streamExecute", func(name string, input goja.Value) (string, error) {
		if err := need(); err != nil {
			return "", err
		}
		a, err := e.globals.Agents.GetByName(name)
		if err != nil {
			return "", err
		}
		in := engine.ToAgentInput(exportValue(input))
		ctx := e.curCtx()
		if sa, ok := a.(agent.StreamingAgent); ok {
			ch, err := sa.ExecuteStream(ctx, in)
			if err != nil {
				return "", err
			}
			return e.streams.Add(ch), nil
		}
		// Non-streaming agents run eagerly; the handle replays the final
		// result as a two chunk stream.
		out, err := e.globals.Agents.Execute(ctx, a.ID(), in)
		ch := make(chan core.AgentChunk, 2)
		streamID := core.NewID()
		if err != nil {
			ch <- core.NewControlChunk(streamID, 0, core.ControlError, err.Error())
		} else {
			text := out.Text
			if text == "" && out.Value != nil {
				text = stringifyValue(out.Value)
			}
			ch <- core.NewTextChunk(streamID, 0, text)
			ch <- core.NewControlChunk(streamID, 1, core.ControlDone, "")
		}
		close(ch)
		return e.streams.Add(ch), nil
	})
	_ = obj.Set("getConfig", func(name string) any {
		if e.globals.Agents == nil {
			return nil
		}
		a, err := e.globals.Agents.GetByName(name)
		if err != nil {
			return nil
		}
		return map[string]any{
			"id":          a.ID().String(),
			"name":        a.ID().Name,
			"description": a.Description(),
		}
	})
	_ = obj.Set("getState", func(name, key string) (any, error) {
		if e.globals.States == nil {
			return nil, core.NewComponentError("engine:javascript", "State is not configured", nil)
		}
		value, err := e.globals.States.Get(state.AgentScope(name), key)
		if err != nil {
			if core.IsKind(err, core.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return hostToJS(value), nil
	})
	_ = obj.Set("setState", func(name, key string, value goja.Value) error {
		if e.globals.States == nil {
			return core.NewComponentError("engine:javascript", "State is not configured", nil)
		}
		return e.globals.States.Set(state.AgentScope(name), key, exportValue(value))
	})
	_ = vm.Set("Agent", obj)
}

func (e *Engine) installWorkflow() {
	vm := e.vm
	obj := vm.NewObject()
	for _, kind := range []string{"sequential", "parallel", "conditional", "loop"} {
		kind := kind
		_ = obj.Set(kind, func(def goja.Value) (*goja.Object, error) {
			doc, _ := exportValue(def).(map[string]any)
			if doc == nil {
				return nil, core.NewValidationError("definition", "workflow definition must be an object")
			}
			wf, err := workflow.FromDefinition(kind, doc, e.globals.WorkflowOptions())
			if err != nil {
				return nil, err
			}
			return e.workflowHandle(wf), nil
		})
	}
	_ = vm.Set("Workflow", obj)
}

// workflowHandle projects a built workflow as an object with a run function.
func (e *Engine) workflowHandle(wf *workflow.Workflow) *goja.Object {
	vm := e.vm
	h := vm.NewObject()
	_ = h.Set("name", wf.ID().Name)
	_ = h.Set("kind", wf.Kind())
	_ = h.Set("run", func(arg goja.Value) (any, error) {
		var in workflow.Input
		switch v := exportValue(arg).(type) {
		case map[string]any:
			in.Input = v["input"]
			if c, ok := v["context"].(map[string]any); ok {
				in.Context = c
			}
		default:
			in.Input = v
		}
		out, err := wf.Run(e.curCtx(), in)
		if err != nil {
			return nil, err
		}
		return hostToJS(out), nil
	})
	return h
}

func (e *Engine) installStreaming() {
	vm := e.vm
	obj := vm.NewObject()
	_ = obj.Set("create", func(source string) (string, error) {
		ch, err := e.executeStreamLocked(source)
		if err != nil {
			return "", err
		}
		return e.streams.Add(ch), nil
	})
	_ = obj.Set("next", func(id string) any {
		chunk, ok := e.streams.Next(id)
		if !ok {
			return nil
		}
		return engine.ChunkToMap(chunk)
	})
	_ = obj.Set("isDone", func(id string) bool {
		return e.streams.IsDone(id)
	})
	_ = obj.Set("collect", func(id string) []any {
		chunks := e.streams.Collect(id)
		out := make([]any, 0, len(chunks))
		for _, chunk := range chunks {
			out = append(out, engine.ChunkToMap(chunk))
		}
		return out
	})
	_ = vm.Set("Streaming", obj)
}

// executeStreamLocked runs a nested script from inside a host call, where the
// engine mutex is already held by the outer Execute, and buffers the result
// into a pre-closed chunk stream.
func (e *Engine) executeStreamLocked(source string) (<-chan core.AgentChunk, error) {
	result, err := e.vm.RunString(source)

	ch := make(chan core.AgentChunk, 4)
	streamID := core.NewID()
	ch <- core.NewControlChunk(streamID, 0, core.ControlStart, "")
	if err != nil {
		ch <- core.NewControlChunk(streamID, 1, core.ControlError, err.Error())
		close(ch)
		return ch, nil
	}
	index := 1
	if value := exportValue(result); value != nil {
		ch <- core.NewTextChunk(streamID, index, stringifyValue(value))
		index++
	}
	ch <- core.NewControlChunk(streamID, index, core.ControlDone, "")
	close(ch)
	return ch, nil
}

func (e *Engine) installMemory() {
	vm := e.vm
	obj := vm.NewObject()
	_ = obj.Set("store", func(sessionID, content string, metadata goja.Value) error {
		if e.globals.Episodic == nil {
			return core.NewComponentError("engine:javascript", "Memory is not configured", nil)
		}
		md, _ := exportValue(metadata).(map[string]any)
		return e.globals.Episodic.Store(sessionID, content, md)
	})
	_ = obj.Set("search", func(sessionID, query string, limit int) (any, error) {
		if e.globals.Episodic == nil {
			return nil, core.NewComponentError("engine:javascript", "Memory is not configured", nil)
		}
		if limit <= 0 {
			limit = 10
		}
		results, err := e.globals.Episodic.Search(sessionID, query, limit)
		if err != nil {
			return nil, err
		}
		return hostToJS(results), nil
	})
	_ = obj.Set("frequency", func(key string, value goja.Value) (int, error) {
		if e.globals.Procedural == nil {
			return 0, core.NewComponentError("engine:javascript", "Memory is not configured", nil)
		}
		return e.globals.Procedural.Frequency(state.GlobalScope(), key, exportValue(value)), nil
	})
	_ = obj.Set("patterns", func(threshold int) (any, error) {
		if e.globals.Procedural == nil {
			return nil, core.NewComponentError("engine:javascript", "Memory is not configured", nil)
		}
		if threshold <= 0 {
			threshold = 2
		}
		return hostToJS(e.globals.Procedural.LearnedPatterns(threshold)), nil
	})
	_ = vm.Set("Memory", obj)
}

func (e *Engine) installSession() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.Sessions == nil {
			return core.NewComponentError("engine:javascript", "Session is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("create", func(payload goja.Value) (any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		return hostToJS(e.globals.Sessions.Create(exportValue(payload))), nil
	})
	_ = obj.Set("get", func(id string) (any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		data, err := e.globals.Sessions.Get(id)
		if err != nil {
			return nil, err
		}
		return hostToJS(data), nil
	})
	_ = obj.Set("complete", func(id string) error {
		if err := need(); err != nil {
			return err
		}
		return e.globals.Sessions.Complete(id)
	})
	_ = vm.Set("Session", obj)
}

func (e *Engine) installEvent() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.Events == nil {
			return core.NewComponentError("engine:javascript", "Event is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("publish", func(topic string, data goja.Value) error {
		if err := need(); err != nil {
			return err
		}
		payload, _ := exportValue(data).(map[string]any)
		return e.globals.Events.PublishTopic(topic, payload)
	})
	_ = obj.Set("subscribe", func(pattern string, bufferSize int) (string, error) {
		if err := need(); err != nil {
			return "", err
		}
		ch, cancel := e.globals.Events.Subscribe(pattern, bufferSize)
		return e.subs.Add(ch, cancel), nil
	})
	_ = obj.Set("poll", func(id string) any {
		ev, ok := e.subs.Poll(id)
		if !ok {
			return nil
		}
		return hostToJS(ev)
	})
	_ = obj.Set("unsubscribe", func(id string) {
		e.subs.Remove(id)
	})
	_ = vm.Set("Event", obj)
}

func (e *Engine) installHook() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.Hooks == nil {
			return core.NewComponentError("engine:javascript", "Hook is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("register", func(name, point string, priority int, fn goja.Value) error {
		if err := need(); err != nil {
			return err
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return core.NewValidationError("fn", "Hook.register requires a function")
		}
		e.globals.Hooks.Register(&hook.FuncHook{
			HookName:     name,
			HookPriority: priority,
			HookPoints:   []hook.Point{hook.Point(point)},
			Fn: func(hctx *hook.Context) (hook.Result, error) {
				ret, err := callable(goja.Undefined(), vm.ToValue(hctx.Data))
				if err != nil {
					return nil, err
				}
				return decodeHookResult(exportValue(ret))
			},
		})
		return nil
	})
	_ = obj.Set("unregister", func(name string) (bool, error) {
		if err := need(); err != nil {
			return false, err
		}
		return e.globals.Hooks.Unregister(name), nil
	})
	_ = obj.Set("list", func(point string) ([]string, error) {
		if err := need(); err != nil {
			return nil, err
		}
		hooks := e.globals.Hooks.Hooks(hook.Point(point))
		names := make([]string, 0, len(hooks))
		for _, h := range hooks {
			names = append(names, h.Name())
		}
		return names, nil
	})
	_ = vm.Set("Hook", obj)
}

// decodeHookResult maps the script return shape to a hook result. null or
// undefined means continue; an object selects the variant through its action
// field.
func decodeHookResult(ret any) (hook.Result, error) {
	m, ok := ret.(map[string]any)
	if !ok {
		return hook.Continue{}, nil
	}
	action, _ := m["action"].(string)
	switch action {
	case "", "continue":
		return hook.Continue{}, nil
	case "cancel":
		reason, _ := m["reason"].(string)
		return hook.Cancel{Reason: reason}, nil
	case "replace":
		return hook.Replace{Value: m["value"]}, nil
	case "modify", "modified":
		if data, ok := m["data"].(map[string]any); ok {
			return hook.Modified{Value: data}, nil
		}
		return hook.Continue{}, nil
	case "skip", "skipped":
		reason, _ := m["reason"].(string)
		return hook.Skipped{Reason: reason}, nil
	default:
		return nil, fmt.Errorf("unknown hook action %q", action)
	}
}

func (e *Engine) installDebug() {
	vm := e.vm
	obj := vm.NewObject()
	need := func() error {
		if e.globals.Debug == nil {
			return core.NewComponentError("engine:javascript", "Debug is not configured", nil)
		}
		return nil
	}
	_ = obj.Set("addBreakpoint", func(source string, line int, condition string) (any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		return hostToJS(e.globals.Debug.AddBreakpoint(source, line, condition)), nil
	})
	_ = obj.Set("removeBreakpoint", func(id string) (bool, error) {
		if err := need(); err != nil {
			return false, err
		}
		return e.globals.Debug.RemoveBreakpoint(id), nil
	})
	_ = obj.Set("breakpoints", func() (any, error) {
		if err := need(); err != nil {
			return nil, err
		}
		return hostToJS(e.globals.Debug.Breakpoints()), nil
	})
	_ = obj.Set("state", func() (string, error) {
		if err := need(); err != nil {
			return "", err
		}
		return string(e.globals.Debug.State()), nil
	})
	_ = vm.Set("Debug", obj)
}
