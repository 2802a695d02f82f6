// Package engine defines the language-agnostic script engine bridge: a fixed
// API surface injected into any embedded scripting language, a factory
// registry resolving engine names to implementations, and the shared plumbing
// adapters build on. Language adapters live in subpackages (lua, js) and
// register themselves with the default registry.
package engine

import (
	"context"
	"strings"

	"github.com/lexlapax/go-llmspell/core"
)

// ScriptEngine is the neutral contract every language adapter implements.
//
// Implementations must:
//   - Make InjectAPIs idempotent (a second call is a no-op)
//   - Respect context cancellation during Execute
//   - Convert script errors into typed errors at the boundary
type ScriptEngine interface {
	// Name returns the engine identifier ("lua", "javascript", ...).
	Name() string

	// Execute runs a script to completion and returns its result.
	Execute(ctx context.Context, source string) (core.ScriptOutput, error)

	// ExecuteStream runs a script, emitting chunks as they are produced. The
	// stream is lazy, finite and non-restartable; the channel closes after
	// the final control chunk.
	ExecuteStream(ctx context.Context, source string) (<-chan core.AgentChunk, error)

	// InjectAPIs installs the global API surface. Idempotent.
	InjectAPIs(globals *Globals) error

	// SupportsStreaming reports whether ExecuteStream produces incremental
	// chunks rather than one terminal chunk.
	SupportsStreaming() bool

	// SupportsMultimodal reports whether media chunk content survives the
	// engine's value conversion.
	SupportsMultimodal() bool

	// CompletionCandidates returns best-effort completions for a partial
	// line; may return nil.
	CompletionCandidates(line string, cursor int) []Completion

	// Close releases the interpreter.
	Close() error
}

// Completion is one completion candidate.
type Completion struct {
	// Replace is the text to insert.
	Replace string
	// Display is the label shown to the user.
	Display string
}

// APISurface declares the fixed global names and their methods, identical
// across languages. Adapters bind concrete callables for each entry; the
// surface itself is purely declarative.
var APISurface = map[string][]string{
	"Agent":     {"create", "execute", "streamExecute", "getConfig", "getState", "setState"},
	"Tool":      {"get", "list", "execute", "getSchema", "validateInput"},
	"Workflow":  {"sequential", "parallel", "conditional", "loop"},
	"Streaming": {"create", "next", "isDone", "collect"},
	"JSON":      {"parse", "stringify"},
	"State":     {"get", "set", "delete", "list"},
	"Memory":    {"store", "search", "frequency", "patterns"},
	"Session":   {"create", "get", "complete"},
	"Event":     {"publish", "subscribe", "poll", "unsubscribe"},
	"Hook":      {"register", "unregister", "list"},
	"Debug":     {"addBreakpoint", "removeBreakpoint", "breakpoints", "state"},
}

// SurfaceCompletions completes global names and their method names from the
// declared API surface. Adapters with no richer introspection use it directly.
func SurfaceCompletions(line string, cursor int) []Completion {
	if cursor > len(line) {
		cursor = len(line)
	}
	prefix := line[:cursor]
	if i := strings.LastIndexAny(prefix, " \t({,="); i >= 0 {
		prefix = prefix[i+1:]
	}
	if prefix == "" {
		return nil
	}

	var out []Completion
	if dot := strings.Index(prefix, "."); dot >= 0 {
		global, partial := prefix[:dot], prefix[dot+1:]
		for _, method := range APISurface[global] {
			if strings.HasPrefix(method, partial) {
				out = append(out, Completion{Replace: method, Display: global + "." + method})
			}
		}
		return out
	}
	for global := range APISurface {
		if strings.HasPrefix(global, prefix) {
			out = append(out, Completion{Replace: global, Display: global})
		}
	}
	return out
}

// Engine failure helpers; all surface as SpellErrors so callers branch on
// kind, not concrete types.

// NewUnsupportedFeatureError reports a feature the engine cannot provide.
func NewUnsupportedFeatureError(engineName, feature string) *core.SpellError {
	return core.NewComponentError("engine:"+engineName, "unsupported feature: "+feature, nil)
}

// NewConfigurationError reports an invalid engine configuration.
func NewConfigurationError(engineName, details string) *core.SpellError {
	return core.NewValidationError("config", engineName+": "+details)
}

// NewAPIInjectionError reports a global that failed to install.
func NewAPIInjectionError(engineName, apiName string, cause error) *core.SpellError {
	return core.NewComponentError("engine:"+engineName, "api injection failed for "+apiName, cause)
}

// NewEngineNotFoundError reports an unresolvable engine name.
func NewEngineNotFoundError(name string) *core.SpellError {
	return core.NewNotFoundError("engine", "engine not found: "+name)
}
