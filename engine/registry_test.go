package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

type stubEngine struct{ name string }

func (s *stubEngine) Name() string { return s.name }
func (s *stubEngine) Execute(ctx context.Context, source string) (core.ScriptOutput, error) {
	return core.ScriptOutput{Value: source}, nil
}
func (s *stubEngine) ExecuteStream(ctx context.Context, source string) (<-chan core.AgentChunk, error) {
	ch := make(chan core.AgentChunk)
	close(ch)
	return ch, nil
}
func (s *stubEngine) InjectAPIs(globals *Globals) error                { return nil }
func (s *stubEngine) SupportsStreaming() bool                          { return false }
func (s *stubEngine) SupportsMultimodal() bool                         { return false }
func (s *stubEngine) CompletionCandidates(line string, c int) []Completion { return nil }
func (s *stubEngine) Close() error                                     { return nil }

type stubPlugin struct{ name string }

func (p *stubPlugin) Name() string                { return p.name }
func (p *stubPlugin) Description() string         { return "stub plugin" }
func (p *stubPlugin) Version() string             { return "0.1.0" }
func (p *stubPlugin) SupportedFeatures() []string { return []string{"streaming"} }
func (p *stubPlugin) CreateEngine(config map[string]any) (ScriptEngine, error) {
	return &stubEngine{name: p.name}, nil
}

func TestRegistryResolvesBuiltin(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBuiltin("stub", func(config map[string]any) (ScriptEngine, error) {
		return &stubEngine{name: "stub"}, nil
	}))

	eng, err := r.New("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", eng.Name())
}

func TestRegistryDuplicateBuiltinRejected(t *testing.T) {
	r := NewRegistry()
	factory := func(config map[string]any) (ScriptEngine, error) { return &stubEngine{}, nil }
	require.NoError(t, r.RegisterBuiltin("stub", factory))

	err := r.RegisterBuiltin("stub", factory)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrValidation))
}

func TestRegistryPluginCannotShadowBuiltin(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBuiltin("stub", func(config map[string]any) (ScriptEngine, error) {
		return &stubEngine{name: "builtin"}, nil
	}))

	err := r.RegisterPlugin(&stubPlugin{name: "stub"})
	require.Error(t, err)

	// Builtins win resolution even if a plugin slips in under another name.
	require.NoError(t, r.RegisterPlugin(&stubPlugin{name: "exotic"}))
	eng, err := r.New("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "builtin", eng.Name())
}

func TestRegistryUnknownEngine(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("cobol", nil)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrNotFound))
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	factory := func(config map[string]any) (ScriptEngine, error) { return &stubEngine{}, nil }
	require.NoError(t, r.RegisterBuiltin("zeta", factory))
	require.NoError(t, r.RegisterBuiltin("alpha", factory))
	require.NoError(t, r.RegisterPlugin(&stubPlugin{name: "middle"}))

	assert.Equal(t, []string{"alpha", "middle", "zeta"}, r.Names())
}

func TestSurfaceCompletions(t *testing.T) {
	candidates := SurfaceCompletions("Str", 3)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Streaming", candidates[0].Replace)

	candidates = SurfaceCompletions("Debug.add", 9)
	require.Len(t, candidates, 1)
	assert.Equal(t, "addBreakpoint", candidates[0].Replace)
	assert.Equal(t, "Debug.addBreakpoint", candidates[0].Display)

	assert.Nil(t, SurfaceCompletions("", 0))
	assert.Nil(t, SurfaceCompletions("Nope.", 5))
}

func TestToAgentInput(t *testing.T) {
	in := ToAgentInput("hello")
	assert.Equal(t, "hello", in.Text)

	in = ToAgentInput(map[string]any{
		"text":       "prompt",
		"parameters": map[string]any{"k": "v"},
		"context":    map[string]any{"c": 1},
	})
	assert.Equal(t, "prompt", in.Text)
	assert.Equal(t, "v", in.Parameters["k"])
	assert.Equal(t, 1, in.Context["c"])

	assert.Empty(t, ToAgentInput(nil).Text)
}
