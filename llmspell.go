// Package llmspell provides a high-level façade over the script engine
// bridge and the runtime services (state, sessions, memory, events, hooks &
// logging) for running scriptable LLM agent spells. Most applications
// interact with this package by:
//  1. Creating a Spell via New() (optionally overriding default in-memory services)
//  2. Registering agents and tools the scripts will call
//  3. Executing scripts (ExecuteScript / ExecuteScriptStream) or serving a
//     kernel (ServeKernel) for interactive clients
//
// The façade delegates script execution to the resolved engine adapter while
// keeping setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// persistent state backend and a structured logger.
package llmspell

import (
	"context"

	"github.com/lexlapax/go-llmspell/agent"
	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/kernel"
	"github.com/lexlapax/go-llmspell/logging"
	"github.com/lexlapax/go-llmspell/memory"
	"github.com/lexlapax/go-llmspell/resource"
	"github.com/lexlapax/go-llmspell/session"
	"github.com/lexlapax/go-llmspell/state"
	"github.com/lexlapax/go-llmspell/tool"

	// Built-in engine adapters register themselves with the engine registry.
	_ "github.com/lexlapax/go-llmspell/engine/js"
	_ "github.com/lexlapax/go-llmspell/engine/lua"
)

// Options configures a Spell instance.
type Options struct {
	// Engine names the script engine to resolve ("lua", "javascript").
	Engine string
	// EngineConfig is passed to the engine factory.
	EngineConfig map[string]any

	// StateBackend stores serialized state; defaults to in-memory. Use
	// state.NewSQLiteBackend for persistence across restarts.
	StateBackend state.Backend
	// Limits bounds script resource consumption.
	Limits resource.Limits
	// DebugMode is the initial execution debug mode.
	DebugMode debug.Mode

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Spell is the high-level façade aggregating the script engine and the
// runtime services it projects into script space.
type Spell struct {
	opts       Options
	engine     engine.ScriptEngine
	globals    *engine.Globals
	hooks      *hook.Chain
	bus        *event.Bus
	states     *state.Manager
	sessions   *session.Manager
	agents     *agent.Registry
	tools      *tool.Registry
	debugger   *debug.Manager
	debugHooks *debug.Multiplexer
}

// New creates a Spell with optional overrides. Any unset service is
// initialized with an in-memory implementation and the fixed API surface is
// injected into the resolved engine.
func New(optFns ...func(o *Options)) (*Spell, error) {
	opts := Options{
		Engine: "lua",
		Limits: resource.DefaultLimits(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	hooks := hook.NewChain(opts.Logger)
	bus := event.NewBus(func(o *event.Options) { o.Logger = opts.Logger })
	tracker := resource.NewTracker(opts.Limits)
	procedural := memory.NewProceduralStore()
	episodic := memory.NewEpisodicStore()

	states := state.NewManager(func(o *state.Options) {
		o.Backend = opts.StateBackend
		o.Hooks = hooks
		o.Bus = bus
		o.Recorder = procedural
		o.Logger = opts.Logger
	})
	sessions := session.NewManager(func(o *session.Options) {
		o.Persistent = opts.StateBackend
		o.Logger = opts.Logger
	})
	tools := tool.NewRegistry(func(o *tool.Options) {
		o.Hooks = hooks
		o.Tracker = tracker
		o.Bus = bus
		o.Logger = opts.Logger
	})
	agents := agent.NewRegistry(func(o *agent.RegistryOptions) {
		o.Hooks = hooks
		o.Bus = bus
		o.Logger = opts.Logger
	})
	debugger := debug.NewManager(func(o *debug.ManagerOptions) {
		o.Mode = opts.DebugMode
		o.Logger = opts.Logger
	})
	debugHooks := debug.NewMultiplexer(opts.Logger)

	eng, err := engine.New(opts.Engine, opts.EngineConfig)
	if err != nil {
		return nil, err
	}

	globals := &engine.Globals{
		Agents:     agents,
		Tools:      tools,
		States:     states,
		Sessions:   sessions,
		Events:     bus,
		Hooks:      hooks,
		Procedural: procedural,
		Episodic:   episodic,
		Debug:      debugger,
		DebugHooks: debugHooks,
		Tracker:    tracker,
		Logger:     opts.Logger,
	}
	if err := eng.InjectAPIs(globals); err != nil {
		_ = eng.Close()
		return nil, err
	}

	return &Spell{
		opts:       opts,
		engine:     eng,
		globals:    globals,
		hooks:      hooks,
		bus:        bus,
		states:     states,
		sessions:   sessions,
		agents:     agents,
		tools:      tools,
		debugger:   debugger,
		debugHooks: debugHooks,
	}, nil
}

// RegisterAgent adds an agent to the underlying registry.
func (s *Spell) RegisterAgent(a agent.Agent) error { return s.agents.Register(a) }

// RegisterTool adds a tool to the underlying registry.
func (s *Spell) RegisterTool(t tool.Tool) error { return s.tools.Register(t) }

// RegisterHook adds a lifecycle hook.
func (s *Spell) RegisterHook(h hook.Hook) { s.hooks.Register(h) }

// ExecuteScript runs a script to completion on the configured engine.
func (s *Spell) ExecuteScript(ctx context.Context, source string) (core.ScriptOutput, error) {
	return s.engine.Execute(ctx, source)
}

// ExecuteScriptStream runs a script, emitting chunks as they are produced.
func (s *Spell) ExecuteScriptStream(ctx context.Context, source string) (<-chan core.AgentChunk, error) {
	return s.engine.ExecuteStream(ctx, source)
}

// Engine exposes the resolved script engine.
func (s *Spell) Engine() engine.ScriptEngine { return s.engine }

// States exposes the scoped state manager.
func (s *Spell) States() *state.Manager { return s.states }

// Sessions exposes the session manager.
func (s *Spell) Sessions() *session.Manager { return s.sessions }

// Events exposes the event bus.
func (s *Spell) Events() *event.Bus { return s.bus }

// Debugger exposes the execution manager for debug clients.
func (s *Spell) Debugger() *debug.Manager { return s.debugger }

// DebugHooks exposes the hook multiplexer so profilers and other handlers can
// share the interpreter's single debug hook slot with the execution manager.
func (s *Spell) DebugHooks() *debug.Multiplexer { return s.debugHooks }

// ServeKernel binds a kernel server around this spell's engine and debug
// manager and serves it until ctx is cancelled or a shutdown request
// arrives. The connection file is written before serving so clients can
// discover the kernel.
func (s *Spell) ServeKernel(ctx context.Context, optFns ...func(o *kernel.ServerOptions)) error {
	srv, err := kernel.NewServer(s.engine, func(o *kernel.ServerOptions) {
		o.DebugManager = s.debugger
		o.Bus = s.bus
		o.Logger = s.opts.Logger
		for _, fn := range optFns {
			fn(o)
		}
	})
	if err != nil {
		return err
	}
	defer srv.Close()
	if _, err := srv.WriteConnectionFile(); err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Close releases the engine and the event bus.
func (s *Spell) Close() error {
	err := s.engine.Close()
	if busErr := s.bus.Close(); busErr != nil && err == nil {
		err = busErr
	}
	return err
}
