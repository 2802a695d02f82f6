package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

func TestFromJSONSequential(t *testing.T) {
	env := newTestEnv(t)
	raw := []byte(`{
		"name": "etl",
		"timeout": 60000,
		"max_retry_attempts": 1,
		"steps": [
			{"name": "extract", "type": "tool", "config": {"tool": "extract"}},
			{"name": "load", "type": "tool", "config": {"tool": "load", "parameters": {"echo": "{{step:extract:output}}"}}}
		]
	}`)

	wf, err := FromJSON("sequential", raw, env.options())
	require.NoError(t, err)
	assert.Equal(t, "sequential", wf.Kind())

	out, err := wf.Run(context.Background(), Input{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.StepsExecuted)
	assert.Equal(t, "extract done", out.Output)
}

func TestFromJSONParallelDefaults(t *testing.T) {
	env := newTestEnv(t)
	raw := []byte(`{
		"name": "fanout",
		"branches": [
			{"name": "a", "type": "tool", "config": {"tool": "extract"}},
			{"name": "b", "type": "tool", "config": {"tool": "transform"}}
		]
	}`)

	wf, err := FromJSON("parallel", raw, env.options())
	require.NoError(t, err, "missing max_concurrency takes the default")

	out, err := wf.Run(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.StepsExecuted)

	// An explicit zero is rejected.
	raw = []byte(`{"name": "bad", "max_concurrency": 0, "branches": [{"name": "a", "type": "tool", "config": {"tool": "extract"}}]}`)
	_, err = FromJSON("parallel", raw, env.options())
	assert.True(t, core.IsKind(err, core.ErrValidation))
}

func TestFromJSONConditional(t *testing.T) {
	env := newTestEnv(t)
	raw := []byte(`{
		"name": "ingest",
		"branches": [
			{
				"name": "CSV Processing",
				"condition": {"type": "equals", "path": "data_type", "value": "csv"},
				"steps": [{"name": "process_csv", "type": "tool", "config": {"tool": "process_csv"}}]
			},
			{
				"name": "JSON Processing",
				"condition": {"type": "equals", "path": "data_type", "value": "json"},
				"steps": [{"name": "process_json", "type": "tool", "config": {"tool": "process_json"}}]
			}
		],
		"default_steps": [{"name": "process_unknown", "type": "tool", "config": {"tool": "process_unknown"}}]
	}`)

	wf, err := FromJSON("conditional", raw, env.options())
	require.NoError(t, err)

	out, err := wf.Run(context.Background(), Input{Context: map[string]any{"data_type": "csv"}})
	require.NoError(t, err)
	assert.Equal(t, "CSV Processing", out.MatchedBranch)
	assert.Equal(t, 1, out.StepsExecuted)
}

func TestFromJSONLoop(t *testing.T) {
	env := newTestEnv(t)
	raw := []byte(`{
		"name": "looper",
		"iterator": {"type": "range", "start": 0, "end": 3, "step": 1},
		"body": [{"name": "work", "type": "tool", "config": {"tool": "extract"}}],
		"aggregation": "collect_all",
		"break_conditions": [{"type": "equals", "path": "loop.iterations_completed", "value": 2}]
	}`)

	wf, err := FromJSON("loop", raw, env.options())
	require.NoError(t, err)

	out, err := wf.Run(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.StepsExecuted)
}

func TestFromJSONRejectsUnknownTypes(t *testing.T) {
	_, err := FromJSON("pipeline", []byte(`{"name": "x"}`))
	assert.True(t, core.IsKind(err, core.ErrValidation))

	_, err = FromJSON("sequential", []byte(`not json`))
	assert.True(t, core.IsKind(err, core.ErrValidation))

	_, err = FromJSON("conditional", []byte(`{
		"name": "x",
		"branches": [{"name": "b", "condition": {"type": "sometimes"}, "steps": []}]
	}`))
	assert.True(t, core.IsKind(err, core.ErrValidation))
}

func TestFromYAML(t *testing.T) {
	env := newTestEnv(t)
	raw := []byte(`
name: etl
steps:
  - name: extract
    type: tool
    config:
      tool: extract
  - name: note
    type: basic
    config:
      action: set
      parameters:
        key: status
        value: done
`)

	wf, err := FromYAML("sequential", raw, env.options())
	require.NoError(t, err)

	out, err := wf.Run(context.Background(), Input{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.StepsExecuted)
	assert.Equal(t, "done", out.Output)
}
