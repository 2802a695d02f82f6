package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/state"
)

// Recorder compliance (compile-time assertion).
var _ state.Recorder = (*ProceduralStore)(nil)

// Pattern learning scenario: three hooked writes of theme=dark in Global must
// yield frequency 3 and one learned pattern at threshold 3.
func TestProceduralPatternLearning(t *testing.T) {
	proc := NewProceduralStore()
	mgr := state.NewManager(func(o *state.Options) { o.Recorder = proc })

	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.SetWithHooks(state.GlobalScope(), "theme", "dark"))
	}

	assert.Equal(t, 3, proc.Frequency(state.GlobalScope(), "theme", "dark"))
	assert.Equal(t, 0, proc.Frequency(state.GlobalScope(), "theme", "light"))

	patterns := proc.LearnedPatterns(3)
	require.Len(t, patterns, 1)
	assert.Equal(t, "theme", patterns[0].Key)
	assert.Equal(t, "dark", patterns[0].Value)
	assert.Equal(t, 3, patterns[0].Frequency)
}

func TestProceduralThresholdFilters(t *testing.T) {
	proc := NewProceduralStore()
	scope := state.AgentScope("a1")

	proc.RecordWrite(scope, "mode", "fast")
	proc.RecordWrite(scope, "mode", "fast")
	proc.RecordWrite(scope, "mode", "slow")

	assert.Len(t, proc.LearnedPatterns(2), 1)
	assert.Len(t, proc.LearnedPatterns(1), 2)
	assert.Empty(t, proc.LearnedPatterns(3))
}

func TestProceduralStructuredValues(t *testing.T) {
	proc := NewProceduralStore()
	scope := state.GlobalScope()

	proc.RecordWrite(scope, "config", map[string]any{"retries": 3})
	proc.RecordWrite(scope, "config", map[string]any{"retries": 3})

	assert.Equal(t, 2, proc.Frequency(scope, "config", map[string]any{"retries": 3}))
}

func TestEpisodicStoreSearch(t *testing.T) {
	store := NewEpisodicStore()
	require.NoError(t, store.Store("s1", "the workflow failed on step extract", nil))
	require.NoError(t, store.Store("s1", "the workflow succeeded", map[string]any{"run": 2}))
	require.NoError(t, store.Store("s2", "unrelated session", nil))

	results, err := store.Search("s1", "workflow", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1.0, results[0].Score)

	results, err = store.Search("s1", "failed", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "extract")

	// Limit applies.
	results, err = store.Search("s1", "", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestEpisodicDelete(t *testing.T) {
	store := NewEpisodicStore()
	require.NoError(t, store.Store("s1", "to be removed", nil))

	require.NoError(t, store.Delete("s1", "mem_0"))
	assert.Error(t, store.Delete("s1", "mem_0"))
}
