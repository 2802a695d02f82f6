package engine

import (
	"sort"
	"sync"

	"github.com/lexlapax/go-llmspell/core"
)

// Factory builds an engine instance from its configuration map.
type Factory func(config map[string]any) (ScriptEngine, error)

// Plugin extends the built-in engine set with an external implementation.
type Plugin interface {
	// Name returns the engine name the plugin resolves.
	Name() string

	// Description returns a human-readable summary.
	Description() string

	// Version returns the plugin version string.
	Version() string

	// SupportedFeatures lists capability names ("streaming", "debugging").
	SupportedFeatures() []string

	// CreateEngine builds an engine instance.
	CreateEngine(config map[string]any) (ScriptEngine, error)
}

// Registry resolves engine names: built-ins first, then plugins. Writes are
// mutually exclusive; resolution is lock-free reads under RLock.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Factory
	plugins  map[string]Plugin
}

// NewRegistry creates an empty scoped registry. Tests use scoped registries;
// production code usually goes through the process-global default.
func NewRegistry() *Registry {
	return &Registry{builtins: map[string]Factory{}, plugins: map[string]Plugin{}}
}

// RegisterBuiltin adds a built-in engine factory. Duplicate names are a
// validation error.
func (r *Registry) RegisterBuiltin(name string, factory Factory) error {
	if name == "" || factory == nil {
		return core.NewValidationError("name", "builtin registration needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[name]; exists {
		return core.NewValidationError("name", "engine already registered: "+name)
	}
	r.builtins[name] = factory
	return nil
}

// RegisterPlugin adds a plugin engine. A plugin may not shadow a built-in.
func (r *Registry) RegisterPlugin(p Plugin) error {
	if p == nil || p.Name() == "" {
		return core.NewValidationError("name", "plugin registration needs a named plugin")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[p.Name()]; exists {
		return core.NewValidationError("name", "plugin shadows builtin engine: "+p.Name())
	}
	if _, exists := r.plugins[p.Name()]; exists {
		return core.NewValidationError("name", "plugin already registered: "+p.Name())
	}
	r.plugins[p.Name()] = p
	return nil
}

// New resolves a name and builds an engine instance.
func (r *Registry) New(name string, config map[string]any) (ScriptEngine, error) {
	r.mu.RLock()
	factory, builtin := r.builtins[name]
	plugin, plugged := r.plugins[name]
	r.mu.RUnlock()

	switch {
	case builtin:
		return factory(config)
	case plugged:
		return plugin.CreateEngine(config)
	default:
		return nil, NewEngineNotFoundError(name)
	}
}

// Names lists every resolvable engine name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builtins)+len(r.plugins))
	for name := range r.builtins {
		names = append(names, name)
	}
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultRegistry is the process-global registry language adapters register
// into from their init functions.
var defaultRegistry = NewRegistry()

// RegisterBuiltin adds a built-in factory to the default registry.
func RegisterBuiltin(name string, factory Factory) error {
	return defaultRegistry.RegisterBuiltin(name, factory)
}

// RegisterPlugin adds a plugin to the default registry.
func RegisterPlugin(p Plugin) error { return defaultRegistry.RegisterPlugin(p) }

// New builds an engine from the default registry.
func New(name string, config map[string]any) (ScriptEngine, error) {
	return defaultRegistry.New(name, config)
}

// Names lists the default registry's engines.
func Names() []string { return defaultRegistry.Names() }
