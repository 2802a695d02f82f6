package lua

import (
	"context"
	"encoding/json"
	"fmt"

	glua "github.com/yuin/gopher-lua"

	"github.com/lexlapax/go-llmspell/agent"
	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/internal/util"
	"github.com/lexlapax/go-llmspell/state"
	"github.com/lexlapax/go-llmspell/workflow"
)

// InjectAPIs installs the fixed global surface into the interpreter. A second
// call is a no-op, so re-running setup never double-binds globals.
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
		return engine.NewAPIInjectionError("lua", "globals", fmt.Errorf("nil globals"))
	}
	e.globals = globals

	L := e.state
	e.installJSON(L)
	e.installState(L)
	e.installTool(L)
	e.installAgent(L)
	e.installWorkflow(L)
	e.installStreaming(L)
	e.installMemory(L)
	e.installSession(L)
	e.installEvent(L)
	e.installHook(L)
	e.installDebug(L)

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

// ctx returns the context driving the current host call. Host calls double as
// the debug hook checkpoint.
func (e *Engine) ctx(L *glua.LState) context.Context {
	e.lineCheckpoint(L)
	if c := L.Context(); c != nil {
		return c
	}
	return context.Background()
}

func (e *Engine) installJSON(L *glua.LState) {
	tbl := L.NewTable()
	L.SetField(tbl, "parse", L.NewFunction(func(L *glua.LState) int {
		raw := L.CheckString(1)
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			L.RaiseError("JSON.parse: %v", err)
			return 0
		}
		L.Push(goToLua(L, decoded))
		return 1
	}))
	L.SetField(tbl, "stringify", L.NewFunction(func(L *glua.LState) int {
		raw, err := json.Marshal(luaToGo(L.CheckAny(1)))
		if err != nil {
			L.RaiseError("JSON.stringify: %v", err)
			return 0
		}
		L.Push(glua.LString(raw))
		return 1
	}))
	L.SetGlobal("JSON", tbl)
}

func (e *Engine) installState(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.States == nil {
			L.RaiseError("State is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "get", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		value, err := e.globals.States.Get(state.GlobalScope(), L.CheckString(1))
		if err != nil {
			if core.IsKind(err, core.ErrNotFound) {
				L.Push(glua.LNil)
				return 1
			}
			L.RaiseError("State.get: %v", err)
			return 0
		}
		L.Push(goToLua(L, value))
		return 1
	}))
	L.SetField(tbl, "set", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		key := L.CheckString(1)
		if err := e.globals.States.SetWithHooks(state.GlobalScope(), key, luaToGo(L.CheckAny(2))); err != nil {
			L.RaiseError("State.set: %v", err)
		}
		return 0
	}))
	L.SetField(tbl, "delete", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		removed, err := e.globals.States.Delete(state.GlobalScope(), L.CheckString(1))
		if err != nil {
			L.RaiseError("State.delete: %v", err)
			return 0
		}
		L.Push(glua.LBool(removed))
		return 1
	}))
	L.SetField(tbl, "list", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		keys, err := e.globals.States.ListKeys(state.GlobalScope())
		if err != nil {
			L.RaiseError("State.list: %v", err)
			return 0
		}
		L.Push(goToLua(L, keys))
		return 1
	}))
	L.SetGlobal("State", tbl)
}

func (e *Engine) installTool(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.Tools == nil {
			L.RaiseError("Tool is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "get", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		t, err := e.globals.Tools.Get(L.CheckString(1))
		if err != nil {
			L.Push(glua.LNil)
			return 1
		}
		info := L.NewTable()
		L.SetField(info, "name", glua.LString(t.Name()))
		L.SetField(info, "description", glua.LString(t.Description()))
		L.Push(info)
		return 1
	}))
	L.SetField(tbl, "list", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		L.Push(goToLua(L, e.globals.Tools.List()))
		return 1
	}))
	L.SetField(tbl, "execute", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		name := L.CheckString(1)
		args := map[string]any{}
		if L.GetTop() >= 2 {
			args = luaToMap(L.Get(2))
		}
		out, err := e.globals.Tools.Execute(e.ctx(L), core.ToolInput{Name: name, Parameters: args})
		if err != nil {
			L.RaiseError("Tool.execute %s: %v", name, err)
			return 0
		}
		if out.Error != "" {
			L.Push(glua.LNil)
			L.Push(glua.LString(out.Error))
			return 2
		}
		L.Push(goToLua(L, out.Value))
		return 1
	}))
	L.SetField(tbl, "getSchema", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		t, err := e.globals.Tools.Get(L.CheckString(1))
		if err != nil {
			L.Push(glua.LNil)
			return 1
		}
		L.Push(goToLua(L, t.Parameters()))
		return 1
	}))
	L.SetField(tbl, "validateInput", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		t, err := e.globals.Tools.Get(L.CheckString(1))
		if err != nil {
			L.Push(glua.LFalse)
			L.Push(glua.LString(err.Error()))
			return 2
		}
		if err := util.ValidateParameters(luaToMap(L.Get(2)), t.Parameters()); err != nil {
			L.Push(glua.LFalse)
			L.Push(glua.LString(err.Error()))
			return 2
		}
		L.Push(glua.LTrue)
		return 1
	}))
	L.SetGlobal("Tool", tbl)
}

func (e *Engine) installAgent(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.Agents == nil {
			L.RaiseError("Agent is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "create", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		name := L.CheckString(1)
		fnRef := L.CheckFunction(2)
		a := agent.NewFuncAgent(name, func(ctx context.Context, input core.AgentInput) (core.AgentOutput, error) {
			inTbl := map[string]any{"text": input.Text}
			if len(input.Parameters) > 0 {
				inTbl["parameters"] = input.Parameters
			}
			if len(input.Context) > 0 {
				inTbl["context"] = input.Context
			}
			if err := L.CallByParam(glua.P{Fn: fnRef, NRet: 1, Protect: true}, goToLua(L, inTbl)); err != nil {
				return core.AgentOutput{}, core.NewComponentError("agent:"+name, "script agent failed", err)
			}
			ret := luaToGo(L.Get(-1))
			L.Pop(1)
			out := core.AgentOutput{}
			switch v := ret.(type) {
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
			L.RaiseError("Agent.create: %v", err)
			return 0
		}
		L.Push(glua.LString(name))
		return 1
	}))
	L.SetField(tbl, "execute", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		name := L.CheckString(1)
		a, err := e.globals.Agents.GetByName(name)
		if err != nil {
			L.RaiseError("Agent.execute: %v", err)
			return 0
		}
		var in core.AgentInput
		if L.GetTop() >= 2 {
			in = engine.ToAgentInput(luaToGo(L.Get(2)))
		}
		out, err := e.globals.Agents.Execute(e.ctx(L), a.ID(), in)
		if err != nil {
			L.RaiseError("Agent.execute %s: %v", name, err)
			return 0
		}
		result := L.NewTable()
		L.SetField(result, "text", glua.LString(out.Text))
		if out.Value != nil {
			L.SetField(result, "value", goToLua(L, out.Value))
		}
		if len(out.Metadata) > 0 {
			L.SetField(result, "metadata", goToLua(L, out.Metadata))
		}
		L.Push(result)
		return 1
	}))
	L.SetField(tbl, "streamExecute", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		name := L.CheckString(1)
		a, err := e.globals.Agents.GetByName(name)
		if err != nil {
			L.RaiseError("Agent.streamExecute: %v", err)
			return 0
		}
		var in core.AgentInput
		if L.GetTop() >= 2 {
			in = engine.ToAgentInput(luaToGo(L.Get(2)))
		}
		ctx := e.ctx(L)
		if sa, ok := a.(agent.StreamingAgent); ok {
			ch, err := sa.ExecuteStream(ctx, in)
			if err != nil {
				L.RaiseError("Agent.streamExecute %s: %v", name, err)
				return 0
			}
			L.Push(glua.LString(e.streams.Add(ch)))
			return 1
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
		L.Push(glua.LString(e.streams.Add(ch)))
		return 1
	}))
	L.SetField(tbl, "getConfig", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		a, err := e.globals.Agents.GetByName(L.CheckString(1))
		if err != nil {
			L.Push(glua.LNil)
			return 1
		}
		cfg := L.NewTable()
		L.SetField(cfg, "id", glua.LString(a.ID().String()))
		L.SetField(cfg, "name", glua.LString(a.ID().Name))
		L.SetField(cfg, "description", glua.LString(a.Description()))
		L.Push(cfg)
		return 1
	}))
	L.SetField(tbl, "getState", L.NewFunction(func(L *glua.LState) int {
		if e.globals.States == nil {
			L.RaiseError("State is not configured")
			return 0
		}
		value, err := e.globals.States.Get(state.AgentScope(L.CheckString(1)), L.CheckString(2))
		if err != nil {
			if core.IsKind(err, core.ErrNotFound) {
				L.Push(glua.LNil)
				return 1
			}
			L.RaiseError("Agent.getState: %v", err)
			return 0
		}
		L.Push(goToLua(L, value))
		return 1
	}))
	L.SetField(tbl, "setState", L.NewFunction(func(L *glua.LState) int {
		if e.globals.States == nil {
			L.RaiseError("State is not configured")
			return 0
		}
		scope := state.AgentScope(L.CheckString(1))
		if err := e.globals.States.Set(scope, L.CheckString(2), luaToGo(L.CheckAny(3))); err != nil {
			L.RaiseError("Agent.setState: %v", err)
		}
		return 0
	}))
	L.SetGlobal("Agent", tbl)
}

func (e *Engine) installWorkflow(L *glua.LState) {
	tbl := L.NewTable()
	for _, kind := range []string{"sequential", "parallel", "conditional", "loop"} {
		kind := kind
		L.SetField(tbl, kind, L.NewFunction(func(L *glua.LState) int {
			def := luaToMap(L.CheckTable(1))
			wf, err := workflow.FromDefinition(kind, def, e.globals.WorkflowOptions())
			if err != nil {
				L.RaiseError("Workflow.%s: %v", kind, err)
				return 0
			}
			L.Push(e.workflowHandle(L, wf))
			return 1
		}))
	}
	L.SetGlobal("Workflow", tbl)
}

// workflowHandle projects a built workflow as a table with a run function.
func (e *Engine) workflowHandle(L *glua.LState, wf *workflow.Workflow) *glua.LTable {
	h := L.NewTable()
	L.SetField(h, "name", glua.LString(wf.ID().Name))
	L.SetField(h, "kind", glua.LString(wf.Kind()))
	L.SetField(h, "run", L.NewFunction(func(L *glua.LState) int {
		var in workflow.Input
		if L.GetTop() >= 1 {
			switch arg := luaToGo(L.Get(1)).(type) {
			case map[string]any:
				in.Input = arg["input"]
				if c, ok := arg["context"].(map[string]any); ok {
					in.Context = c
				}
			default:
				in.Input = arg
			}
		}
		out, err := wf.Run(e.ctx(L), in)
		if err != nil {
			L.RaiseError("workflow %s: %v", wf.ID().Name, err)
			return 0
		}
		L.Push(goToLua(L, out))
		return 1
	}))
	return h
}

func (e *Engine) installStreaming(L *glua.LState) {
	tbl := L.NewTable()
	L.SetField(tbl, "create", L.NewFunction(func(L *glua.LState) int {
		ch, err := e.executeStreamLocked(e.ctx(L), L.CheckString(1))
		if err != nil {
			L.RaiseError("Streaming.create: %v", err)
			return 0
		}
		L.Push(glua.LString(e.streams.Add(ch)))
		return 1
	}))
	L.SetField(tbl, "next", L.NewFunction(func(L *glua.LState) int {
		chunk, ok := e.streams.Next(L.CheckString(1))
		if !ok {
			L.Push(glua.LNil)
			return 1
		}
		L.Push(goToLua(L, engine.ChunkToMap(chunk)))
		return 1
	}))
	L.SetField(tbl, "isDone", L.NewFunction(func(L *glua.LState) int {
		L.Push(glua.LBool(e.streams.IsDone(L.CheckString(1))))
		return 1
	}))
	L.SetField(tbl, "collect", L.NewFunction(func(L *glua.LState) int {
		chunks := e.streams.Collect(L.CheckString(1))
		out := make([]any, 0, len(chunks))
		for _, chunk := range chunks {
			out = append(out, engine.ChunkToMap(chunk))
		}
		L.Push(goToLua(L, out))
		return 1
	}))
	L.SetGlobal("Streaming", tbl)
}

func (e *Engine) installMemory(L *glua.LState) {
	tbl := L.NewTable()
	L.SetField(tbl, "store", L.NewFunction(func(L *glua.LState) int {
		if e.globals.Episodic == nil {
			L.RaiseError("Memory is not configured")
			return 0
		}
		var metadata map[string]any
		if L.GetTop() >= 3 {
			metadata = luaToMap(L.Get(3))
		}
		if err := e.globals.Episodic.Store(L.CheckString(1), L.CheckString(2), metadata); err != nil {
			L.RaiseError("Memory.store: %v", err)
		}
		return 0
	}))
	L.SetField(tbl, "search", L.NewFunction(func(L *glua.LState) int {
		if e.globals.Episodic == nil {
			L.RaiseError("Memory is not configured")
			return 0
		}
		limit := L.OptInt(3, 10)
		results, err := e.globals.Episodic.Search(L.CheckString(1), L.CheckString(2), limit)
		if err != nil {
			L.RaiseError("Memory.search: %v", err)
			return 0
		}
		L.Push(goToLua(L, results))
		return 1
	}))
	L.SetField(tbl, "frequency", L.NewFunction(func(L *glua.LState) int {
		if e.globals.Procedural == nil {
			L.RaiseError("Memory is not configured")
			return 0
		}
		n := e.globals.Procedural.Frequency(state.GlobalScope(), L.CheckString(1), luaToGo(L.CheckAny(2)))
		L.Push(glua.LNumber(n))
		return 1
	}))
	L.SetField(tbl, "patterns", L.NewFunction(func(L *glua.LState) int {
		if e.globals.Procedural == nil {
			L.RaiseError("Memory is not configured")
			return 0
		}
		L.Push(goToLua(L, e.globals.Procedural.LearnedPatterns(L.OptInt(1, 2))))
		return 1
	}))
	L.SetGlobal("Memory", tbl)
}

func (e *Engine) installSession(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.Sessions == nil {
			L.RaiseError("Session is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "create", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		var payload any
		if L.GetTop() >= 1 {
			payload = luaToGo(L.Get(1))
		}
		L.Push(goToLua(L, e.globals.Sessions.Create(payload)))
		return 1
	}))
	L.SetField(tbl, "get", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		data, err := e.globals.Sessions.Get(L.CheckString(1))
		if err != nil {
			L.Push(glua.LNil)
			L.Push(glua.LString(err.Error()))
			return 2
		}
		L.Push(goToLua(L, data))
		return 1
	}))
	L.SetField(tbl, "complete", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		if err := e.globals.Sessions.Complete(L.CheckString(1)); err != nil {
			L.Push(glua.LFalse)
			L.Push(glua.LString(err.Error()))
			return 2
		}
		L.Push(glua.LTrue)
		return 1
	}))
	L.SetGlobal("Session", tbl)
}

func (e *Engine) installEvent(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.Events == nil {
			L.RaiseError("Event is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "publish", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		var data map[string]any
		if L.GetTop() >= 2 {
			data = luaToMap(L.Get(2))
		}
		if err := e.globals.Events.PublishTopic(L.CheckString(1), data); err != nil {
			L.RaiseError("Event.publish: %v", err)
		}
		return 0
	}))
	L.SetField(tbl, "subscribe", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		ch, cancel := e.globals.Events.Subscribe(L.CheckString(1), L.OptInt(2, 0))
		L.Push(glua.LString(e.subs.Add(ch, cancel)))
		return 1
	}))
	L.SetField(tbl, "poll", L.NewFunction(func(L *glua.LState) int {
		ev, ok := e.subs.Poll(L.CheckString(1))
		if !ok {
			L.Push(glua.LNil)
			return 1
		}
		L.Push(goToLua(L, ev))
		return 1
	}))
	L.SetField(tbl, "unsubscribe", L.NewFunction(func(L *glua.LState) int {
		e.subs.Remove(L.CheckString(1))
		return 0
	}))
	L.SetGlobal("Event", tbl)
}

func (e *Engine) installHook(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.Hooks == nil {
			L.RaiseError("Hook is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "register", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		name := L.CheckString(1)
		point := hook.Point(L.CheckString(2))
		priority := L.OptInt(3, 100)
		fnRef := L.CheckFunction(4)
		e.globals.Hooks.Register(&hook.FuncHook{
			HookName:     name,
			HookPriority: priority,
			HookPoints:   []hook.Point{point},
			Fn: func(hctx *hook.Context) (hook.Result, error) {
				if err := L.CallByParam(glua.P{Fn: fnRef, NRet: 1, Protect: true}, goToLua(L, hctx.Data)); err != nil {
					return nil, err
				}
				ret := luaToGo(L.Get(-1))
				L.Pop(1)
				return decodeHookResult(ret)
			},
		})
		return 0
	}))
	L.SetField(tbl, "unregister", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		L.Push(glua.LBool(e.globals.Hooks.Unregister(L.CheckString(1))))
		return 1
	}))
	L.SetField(tbl, "list", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		hooks := e.globals.Hooks.Hooks(hook.Point(L.CheckString(1)))
		names := make([]any, 0, len(hooks))
		for _, h := range hooks {
			names = append(names, h.Name())
		}
		L.Push(goToLua(L, names))
		return 1
	}))
	L.SetGlobal("Hook", tbl)
}

// decodeHookResult maps the script return shape to a hook result. nil means
// continue; a table selects the variant through its action field.
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

func (e *Engine) installDebug(L *glua.LState) {
	tbl := L.NewTable()
	need := func(L *glua.LState) bool {
		if e.globals.Debug == nil {
			L.RaiseError("Debug is not configured")
			return false
		}
		return true
	}
	L.SetField(tbl, "addBreakpoint", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		bp := e.globals.Debug.AddBreakpoint(L.CheckString(1), L.CheckInt(2), L.OptString(3, ""))
		L.Push(goToLua(L, bp))
		return 1
	}))
	L.SetField(tbl, "removeBreakpoint", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		L.Push(glua.LBool(e.globals.Debug.RemoveBreakpoint(L.CheckString(1))))
		return 1
	}))
	L.SetField(tbl, "breakpoints", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		L.Push(goToLua(L, e.globals.Debug.Breakpoints()))
		return 1
	}))
	L.SetField(tbl, "state", L.NewFunction(func(L *glua.LState) int {
		if !need(L) {
			return 0
		}
		L.Push(glua.LString(string(e.globals.Debug.State())))
		return 1
	}))
	L.SetGlobal("Debug", tbl)
}

// evalCondition evaluates a breakpoint condition against current globals. It
// runs on the interpreter goroutine while the script is paused inside a host
// call and therefore takes no lock.
func (e *Engine) evalCondition(condition string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("condition panic: %v", r)
		}
	}()
	L := e.state
	fn, cerr := L.LoadString("return (" + condition + ")")
	if cerr != nil {
		return false, cerr
	}
	base := L.GetTop()
	L.Push(fn)
	if perr := L.PCall(0, 1, nil); perr != nil {
		return false, perr
	}
	v := L.Get(-1)
	L.SetTop(base)
	return glua.LVAsBool(v), nil
}
