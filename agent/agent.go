// Package agent defines the agent contract shared by plain agents and
// composed workflows, plus the component registry that addresses them by
// typed identity.
package agent

import (
	"context"

	"github.com/lexlapax/go-llmspell/core"
)

// Agent is the uniform execution contract. Workflows implement it too, so any
// composition nests recursively.
//
// Implementations must:
//   - Respect context cancellation
//   - Return typed errors (core.SpellError) at their boundary
//   - Be safe for concurrent Execute calls
type Agent interface {
	// ID returns the typed identity this agent is registered under.
	ID() core.ComponentID

	// Description returns a human-readable description of the agent's purpose.
	Description() string

	// Execute handles one input and produces one output.
	Execute(ctx context.Context, input core.AgentInput) (core.AgentOutput, error)
}

// StreamingAgent is implemented by agents that can emit incremental chunks.
// The returned channel is closed after the final control chunk.
type StreamingAgent interface {
	Agent

	// ExecuteStream handles one input, emitting chunks as they are produced.
	ExecuteStream(ctx context.Context, input core.AgentInput) (<-chan core.AgentChunk, error)
}

// BaseAgent bundles identity helpers for concrete agent implementations.
// Embed it and supply Execute.
type BaseAgent struct {
	id          core.ComponentID
	description string
}

// NewBaseAgent constructs a BaseAgent with the given name.
func NewBaseAgent(name, description string) BaseAgent {
	if description == "" {
		description = "Agent " + name
	}
	return BaseAgent{
		id:          core.ComponentID{Type: core.ComponentTypeAgent, Name: name},
		description: description,
	}
}

// ID returns the agent's typed identity.
func (b *BaseAgent) ID() core.ComponentID { return b.id }

// Description returns the agent's description.
func (b *BaseAgent) Description() string { return b.description }

// FuncAgent adapts a plain function into an Agent.
type FuncAgent struct {
	BaseAgent
	Fn func(ctx context.Context, input core.AgentInput) (core.AgentOutput, error)
}

// NewFuncAgent constructs a FuncAgent with the given name and handler.
func NewFuncAgent(name string, fn func(ctx context.Context, input core.AgentInput) (core.AgentOutput, error)) *FuncAgent {
	return &FuncAgent{BaseAgent: NewBaseAgent(name, ""), Fn: fn}
}

var _ Agent = (*FuncAgent)(nil)

// Execute implements Agent.
func (f *FuncAgent) Execute(ctx context.Context, input core.AgentInput) (core.AgentOutput, error) {
	return f.Fn(ctx, input)
}
