package state

import (
	"encoding/json"
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/logging"
)

// Recorder observes committed state writes. The procedural memory subsystem
// implements it to learn usage patterns; a nil recorder is a no-op.
type Recorder interface {
	RecordWrite(scope Scope, key string, value any)
}

// Options configures a Manager.
type Options struct {
	// Backend stores serialized values; defaults to an in-memory backend.
	Backend Backend
	// Hooks runs the before/after state-change chain on SetWithHooks.
	Hooks *hook.Chain
	// Bus receives "state.changed" events on SetWithHooks.
	Bus *event.Bus
	// Recorder observes committed writes for pattern learning.
	Recorder Recorder
	// Logger receives structured diagnostics.
	Logger logging.Logger
}

// Manager is the scoped state store. Reads take a shared lock; writes are
// serialized per scope so concurrent workflows cannot interleave writes
// within one namespace while still writing to different scopes in parallel.
type Manager struct {
	mu         sync.RWMutex
	scopeLocks sync.Map // scope prefix -> *sync.Mutex
	backend    Backend
	hooks      *hook.Chain
	bus        *event.Bus
	recorder   Recorder

	*core.LoggerAdapter
}

// NewManager creates a Manager with optional overrides. Any unset service is
// initialized with a safe default.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Backend == nil {
		opts.Backend = NewMemoryBackend()
	}
	return &Manager{
		backend:       opts.Backend,
		hooks:         opts.Hooks,
		bus:           opts.Bus,
		recorder:      opts.Recorder,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

func (m *Manager) scopeLock(scope Scope) *sync.Mutex {
	actual, _ := m.scopeLocks.LoadOrStore(scope.Prefix(), &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Get returns the value stored under (scope, key). Missing keys surface a
// NotFound error.
func (m *Manager) Get(scope Scope, key string) (any, error) {
	scoped, err := ScopedKey(scope, key)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	raw, ok, err := m.backend.Get(scoped)
	m.mu.RUnlock()
	if err != nil {
		return nil, core.NewComponentError("state", "backend get failed", err)
	}
	if !ok {
		return nil, core.NewNotFoundError("state", "key not found: "+key)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, core.NewComponentError("state", "stored value is not decodable", err)
	}
	return value, nil
}

// Set stores value under (scope, key) without running hooks.
func (m *Manager) Set(scope Scope, key string, value any) error {
	scoped, err := ScopedKey(scope, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return core.NewValidationError("value", "value is not serializable")
	}

	lock := m.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.backend.Set(scoped, raw); err != nil {
		return core.NewComponentError("state", "backend set failed", err)
	}
	return nil
}

// SetWithHooks runs the before-state-change hook chain, applies the write,
// runs the after chain, publishes a "state.changed" event and records the
// write for pattern learning. A Cancel from the before chain aborts the write
// and surfaces the cancel reason.
func (m *Manager) SetWithHooks(scope Scope, key string, value any) error {
	if _, err := ScopedKey(scope, key); err != nil {
		return err
	}

	if m.hooks != nil {
		hctx := hook.NewContext(hook.PointBeforeStateChange, core.NewComponentID(core.ComponentTypeSystem, "state"))
		hctx.Operation = "set"
		hctx.Data = map[string]any{"scope": scope.String(), "key": key, "value": value}
		outcome := m.hooks.Execute(hctx)
		if outcome.Cancelled {
			return core.NewCancelledError(outcome.Reason)
		}
		if v, ok := outcome.Data["value"]; ok {
			value = v
		}
	}

	if err := m.Set(scope, key, value); err != nil {
		return err
	}

	if m.hooks != nil {
		hctx := hook.NewContext(hook.PointAfterStateChange, core.NewComponentID(core.ComponentTypeSystem, "state"))
		hctx.Operation = "set"
		hctx.Data = map[string]any{"scope": scope.String(), "key": key, "value": value}
		m.hooks.Execute(hctx)
	}

	if m.bus != nil {
		if err := m.bus.PublishTopic("state.changed", map[string]any{
			"scope": scope.String(),
			"key":   key,
			"value": value,
		}); err != nil {
			m.LogWarn("state change event publish failed", "key", key, "error", err)
		}
	}

	if m.recorder != nil {
		m.recorder.RecordWrite(scope, key, value)
	}
	return nil
}

// Delete removes (scope, key), reporting whether it existed. A second delete
// of the same key returns false without error.
func (m *Manager) Delete(scope Scope, key string) (bool, error) {
	scoped, err := ScopedKey(scope, key)
	if err != nil {
		return false, err
	}

	lock := m.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	existed, err := m.backend.Delete(scoped)
	if err != nil {
		return false, core.NewComponentError("state", "backend delete failed", err)
	}
	return existed, nil
}

// ListKeys returns the bare (unprefixed) keys stored in the scope.
func (m *Manager) ListKeys(scope Scope) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scoped, err := m.backend.ListKeys(scope.Prefix())
	if err != nil {
		return nil, core.NewComponentError("state", "backend list failed", err)
	}
	keys := make([]string, 0, len(scoped))
	for _, sk := range scoped {
		if bare, ok := ExtractKey(sk, scope); ok {
			keys = append(keys, bare)
		}
	}
	return keys, nil
}

// Close releases the underlying backend.
func (m *Manager) Close() error { return m.backend.Close() }
