package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/hook"
)

func echoAgent(name string) *FuncAgent {
	return NewFuncAgent(name, func(_ context.Context, in core.AgentInput) (core.AgentOutput, error) {
		return core.AgentOutput{Text: in.Text}, nil
	})
}

func TestBaseAgentIdentity(t *testing.T) {
	a := echoAgent("echo")
	assert.Equal(t, core.ComponentTypeAgent, a.ID().Type)
	assert.Equal(t, "echo", a.ID().Name)
	assert.Equal(t, "agent:echo", a.ID().String())
	assert.Equal(t, "Agent echo", a.Description())
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoAgent("echo")))

	assert.Error(t, reg.Register(echoAgent("echo")), "duplicate identities rejected")

	got, err := reg.GetByName("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", got.ID().Name)

	_, err = reg.GetByName("missing")
	assert.True(t, core.IsKind(err, core.ErrNotFound))

	ids := reg.List()
	require.Len(t, ids, 1)
	assert.True(t, reg.Unregister(ids[0]))
	assert.False(t, reg.Unregister(ids[0]))
}

func TestRegistryExecuteRunsHooks(t *testing.T) {
	hooks := hook.NewChain(nil)
	reg := NewRegistry(func(o *RegistryOptions) { o.Hooks = hooks })
	require.NoError(t, reg.Register(echoAgent("echo")))

	var observed []hook.Point
	hooks.Register(&hook.FuncHook{
		HookName:   "observer",
		HookPoints: []hook.Point{hook.PointBeforeAgentExecution, hook.PointAfterAgentExecution},
		Fn: func(hctx *hook.Context) (hook.Result, error) {
			observed = append(observed, hctx.Point)
			return hook.Continue{}, nil
		},
	})

	out, err := reg.Execute(context.Background(), core.ComponentID{Type: core.ComponentTypeAgent, Name: "echo"},
		core.NewAgentInput("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, []hook.Point{hook.PointBeforeAgentExecution, hook.PointAfterAgentExecution}, observed)
}

func TestRegistryExecuteHookCancel(t *testing.T) {
	hooks := hook.NewChain(nil)
	reg := NewRegistry(func(o *RegistryOptions) { o.Hooks = hooks })
	require.NoError(t, reg.Register(echoAgent("echo")))

	hooks.Register(&hook.FuncHook{
		HookName:   "guard",
		HookPoints: []hook.Point{hook.PointBeforeAgentExecution},
		Fn: func(*hook.Context) (hook.Result, error) {
			return hook.Cancel{Reason: "not allowed"}, nil
		},
	})

	_, err := reg.Execute(context.Background(), core.ComponentID{Type: core.ComponentTypeAgent, Name: "echo"},
		core.NewAgentInput("hello"))
	assert.True(t, core.IsKind(err, core.ErrCancelled))
}

func TestRegistryExecutePropagatesErrors(t *testing.T) {
	reg := NewRegistry()
	failing := NewFuncAgent("fail", func(context.Context, core.AgentInput) (core.AgentOutput, error) {
		return core.AgentOutput{}, errors.New("agent broke")
	})
	require.NoError(t, reg.Register(failing))

	_, err := reg.Execute(context.Background(), failing.ID(), core.AgentInput{})
	assert.EqualError(t, err, "agent broke")
}
