package tool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/internal/util"
	"github.com/lexlapax/go-llmspell/logging"
	"github.com/lexlapax/go-llmspell/resource"
)

// Options configures a Registry.
type Options struct {
	// Hooks, when set, runs the before/after tool execution chain around every
	// call.
	Hooks *hook.Chain
	// Tracker, when set, counts each call as one operation and applies the
	// per-operation timeout.
	Tracker *resource.Tracker
	// Bus, when set, receives a "tool.executed" event after every call.
	Bus *event.Bus
	// Logger used for registry diagnostics.
	Logger logging.Logger
}

// Registry holds the registered tools and dispatches calls with hook,
// resource and event wiring applied uniformly.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	hooks   *hook.Chain
	tracker *resource.Tracker
	bus     *event.Bus

	*core.LoggerAdapter
}

// NewRegistry creates an empty tool registry.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tools:         map[string]Tool{},
		hooks:         opts.Hooks,
		tracker:       opts.Tracker,
		bus:           opts.Bus,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// Register adds a tool. Registering a duplicate name is a validation error.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return core.NewValidationError("name", "tool name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return core.NewValidationError("name", "tool already registered: "+t.Name())
	}
	r.tools[t.Name()] = t
	r.LogDebug("tool registered", "tool", t.Name())
	return nil
}

// Unregister removes a tool by name. Returns false if it was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	return true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, core.NewNotFoundError("tool", "tool not registered: "+name)
	}
	return t, nil
}

// List returns the registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches one tool call.
//
// The before chain may cancel the call, replace its result without running the
// tool, or modify the arguments (data["args"]). Domain failures (*ToolError,
// validation) come back inside ToolOutput.Error so scripted callers can
// branch; infrastructure failures are returned as Go errors.
func (r *Registry) Execute(ctx context.Context, input core.ToolInput) (core.ToolOutput, error) {
	t, err := r.Get(input.Name)
	if err != nil {
		return core.ToolOutput{}, err
	}

	if r.tracker != nil {
		guard, err := r.tracker.BeginOperation()
		if err != nil {
			return core.ToolOutput{}, err
		}
		defer guard.Release()

		if timeout := r.tracker.OperationTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
	}

	args := input.Parameters
	componentID := core.ComponentID{Type: core.ComponentTypeTool, Name: input.Name}
	correlationID := core.NewID()

	if r.hooks != nil {
		hctx := hook.NewContext(hook.PointBeforeToolExecution, componentID)
		hctx.CorrelationID = correlationID
		hctx.Operation = input.Name
		hctx.Data["args"] = args

		outcome := r.hooks.Execute(hctx)
		switch {
		case outcome.Cancelled:
			return core.ToolOutput{}, core.NewCancelledError(outcome.Reason)
		case outcome.Replaced:
			return core.ToolOutput{Value: outcome.Value, Metadata: map[string]any{"replaced_by_hook": true}}, nil
		}
		if modified, ok := outcome.Data["args"].(map[string]any); ok {
			args = modified
		}
	}

	start := time.Now()
	r.LogDebug("tool call start", "tool", input.Name, "correlation_id", correlationID)

	value, execErr := t.Execute(ctx, args)

	duration := time.Since(start)
	out := core.ToolOutput{Value: value, Metadata: map[string]any{"duration_ms": duration.Milliseconds()}}
	if execErr != nil {
		var te *ToolError
		var ve *util.ValidationError
		switch {
		case errors.As(execErr, &te), errors.As(execErr, &ve):
			out = core.ToolOutput{Error: execErr.Error()}
		case ctx.Err() != nil:
			return core.ToolOutput{}, core.NewTimeoutError("tool", input.Name+": "+ctx.Err().Error())
		default:
			return core.ToolOutput{}, core.NewComponentError("tool", input.Name+" failed", execErr)
		}
	}

	if r.hooks != nil {
		hctx := hook.NewContext(hook.PointAfterToolExecution, componentID)
		hctx.CorrelationID = correlationID
		hctx.Operation = input.Name
		hctx.Data["result"] = out.Value
		hctx.Data["error"] = out.Error
		r.hooks.Execute(hctx)
	}

	if r.bus != nil {
		r.bus.Publish(event.Event{
			Topic:         "tool.executed",
			CorrelationID: correlationID,
			Data: map[string]any{
				"tool":        input.Name,
				"duration_ms": duration.Milliseconds(),
				"failed":      out.Error != "",
			},
		})
	}

	r.LogDebug("tool call done", "tool", input.Name, "duration_ms", duration.Milliseconds(), "failed", out.Error != "")
	return out, nil
}
