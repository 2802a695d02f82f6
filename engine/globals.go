package engine

import (
	"fmt"

	"github.com/lexlapax/go-llmspell/agent"
	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/logging"
	"github.com/lexlapax/go-llmspell/memory"
	"github.com/lexlapax/go-llmspell/resource"
	"github.com/lexlapax/go-llmspell/session"
	"github.com/lexlapax/go-llmspell/state"
	"github.com/lexlapax/go-llmspell/tool"
	"github.com/lexlapax/go-llmspell/workflow"
)

// Globals bundles the runtime subsystems an engine projects into script
// space. Every field is a non-owning handle; nil fields disable the
// corresponding global's operations with a typed error instead of a crash.
type Globals struct {
	Agents     *agent.Registry
	Tools      *tool.Registry
	States     *state.Manager
	Sessions   *session.Manager
	Events     *event.Bus
	Hooks      *hook.Chain
	Procedural *memory.ProceduralStore
	Episodic   *memory.EpisodicStore
	Debug      *debug.Manager
	// DebugHooks shares the interpreter's single debug hook slot between the
	// execution manager and other handlers such as profilers. Left nil, the
	// adapter creates one and stores it here during injection.
	DebugHooks *debug.Multiplexer
	Tracker    *resource.Tracker
	Logger     logging.Logger
}

// ToAgentInput converts the script-visible input shape shared by every
// adapter: a plain string is the prompt text, a map may carry text,
// parameters and context.
func ToAgentInput(v any) core.AgentInput {
	switch x := v.(type) {
	case string:
		return core.NewAgentInput(x)
	case map[string]any:
		in := core.AgentInput{Parameters: map[string]any{}, Context: map[string]any{}}
		if t, ok := x["text"].(string); ok {
			in.Text = t
		}
		if p, ok := x["parameters"].(map[string]any); ok {
			in.Parameters = p
		}
		if c, ok := x["context"].(map[string]any); ok {
			in.Context = c
		}
		return in
	case nil:
		return core.AgentInput{}
	default:
		return core.AgentInput{Text: fmt.Sprintf("%v", x)}
	}
}

// WorkflowOptions adapts the bundled handles into workflow wiring so script
// built workflows run against the same registries as everything else.
func (g *Globals) WorkflowOptions() func(o *workflow.Options) {
	return func(o *workflow.Options) {
		o.Tools = g.Tools
		o.Agents = g.Agents
		o.Hooks = g.Hooks
		o.Bus = g.Events
		o.Tracker = g.Tracker
		o.States = g.States
		o.Logger = g.Logger
	}
}
