package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Hooks, when set, runs the before/after agent execution chain around
	// every dispatched call.
	Hooks *hook.Chain
	// Bus, when set, receives an "agent.executed" event after every call.
	Bus *event.Bus
	// Logger used for registry diagnostics.
	Logger logging.Logger
}

// Registry addresses agents by their typed ComponentID and dispatches calls
// with uniform hook and event wiring.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent // keyed by ComponentID.String()

	hooks *hook.Chain
	bus   *event.Bus

	*core.LoggerAdapter
}

// NewRegistry creates an empty agent registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		agents:        map[string]Agent{},
		hooks:         opts.Hooks,
		bus:           opts.Bus,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// Register adds an agent under its own ID. Duplicate identities are a
// validation error.
func (r *Registry) Register(a Agent) error {
	if a == nil || a.ID().Name == "" {
		return core.NewValidationError("id", "agent must have a non-empty name")
	}
	key := a.ID().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[key]; exists {
		return core.NewValidationError("id", "agent already registered: "+key)
	}
	r.agents[key] = a
	r.LogDebug("agent registered", "agent", key)
	return nil
}

// Unregister removes an agent by identity. Returns false if absent.
func (r *Registry) Unregister(id core.ComponentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.String()
	if _, exists := r.agents[key]; !exists {
		return false
	}
	delete(r.agents, key)
	return true
}

// Get returns the agent registered under id.
func (r *Registry) Get(id core.ComponentID) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id.String()]
	if !ok {
		return nil, core.NewNotFoundError("agent", "agent not registered: "+id.String())
	}
	return a, nil
}

// GetByName returns the agent registered under the plain agent type and name.
func (r *Registry) GetByName(name string) (Agent, error) {
	return r.Get(core.ComponentID{Type: core.ComponentTypeAgent, Name: name})
}

// List returns the registered identities, sorted.
func (r *Registry) List() []core.ComponentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]core.ComponentID, 0, len(r.agents))
	for _, a := range r.agents {
		ids = append(ids, a.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Execute dispatches one call to the agent registered under id, running the
// before/after agent hooks around it. The before chain may cancel the call or
// replace its output without executing the agent.
func (r *Registry) Execute(ctx context.Context, id core.ComponentID, input core.AgentInput) (core.AgentOutput, error) {
	a, err := r.Get(id)
	if err != nil {
		return core.AgentOutput{}, err
	}

	correlationID := core.NewID()
	if r.hooks != nil {
		hctx := hook.NewContext(hook.PointBeforeAgentExecution, id)
		hctx.CorrelationID = correlationID
		hctx.Data["input"] = input

		outcome := r.hooks.Execute(hctx)
		switch {
		case outcome.Cancelled:
			return core.AgentOutput{}, core.NewCancelledError(outcome.Reason)
		case outcome.Replaced:
			if out, ok := outcome.Value.(core.AgentOutput); ok {
				return out, nil
			}
			return core.AgentOutput{Value: outcome.Value}, nil
		}
		if modified, ok := outcome.Data["input"].(core.AgentInput); ok {
			input = modified
		}
	}

	start := time.Now()
	out, execErr := a.Execute(ctx, input)
	out.Duration = time.Since(start)

	if r.hooks != nil {
		hctx := hook.NewContext(hook.PointAfterAgentExecution, id)
		hctx.CorrelationID = correlationID
		hctx.Data["output"] = out
		if execErr != nil {
			hctx.Data["error"] = execErr.Error()
		}
		r.hooks.Execute(hctx)
	}

	if r.bus != nil {
		r.bus.Publish(event.Event{
			Topic:         "agent.executed",
			CorrelationID: correlationID,
			Data: map[string]any{
				"agent":       id.String(),
				"duration_ms": out.Duration.Milliseconds(),
				"failed":      execErr != nil,
			},
		})
	}
	return out, execErr
}
