package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionEvaluation(t *testing.T) {
	data := map[string]any{
		"data_type": "csv",
		"count":     3,
		"nested":    map[string]any{"flag": true},
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"true", True{}, true},
		{"false", False{}, false},
		{"equals match", Equals{Path: "data_type", Value: "csv"}, true},
		{"equals mismatch", Equals{Path: "data_type", Value: "json"}, false},
		{"equals unknown path", Equals{Path: "missing", Value: "x"}, false},
		{"equals numeric tolerance", Equals{Path: "count", Value: 3.0}, true},
		{"equals nested path", Equals{Path: "nested.flag", Value: true}, true},
		{"exists", Exists{Path: "nested.flag"}, true},
		{"exists unknown", Exists{Path: "nested.other"}, false},
		{"and all match", And{True{}, Exists{Path: "count"}}, true},
		{"and one fails", And{True{}, False{}}, false},
		{"empty and matches", And{}, true},
		{"or one matches", Or{False{}, True{}}, true},
		{"empty or fails", Or{}, false},
		{"not", Not{Condition: False{}}, true},
		{"nested combinators", And{Or{False{}, Equals{Path: "data_type", Value: "csv"}}, Not{Condition: Exists{Path: "missing"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, data))
		})
	}
}

func TestNilConditionMatches(t *testing.T) {
	assert.True(t, Evaluate(nil, nil))
}

func TestStepSubstitution(t *testing.T) {
	outputs := map[string]any{"fetch": "hello", "count": 42}

	assert.Equal(t, "got hello", substituteString("got {{step:fetch:output}}", outputs))
	assert.Equal(t, "42", substituteString("{{step:count:output}}", outputs))
	assert.Equal(t, "{{step:missing:output}}", substituteString("{{step:missing:output}}", outputs),
		"unknown references are left in place")

	nested := substituteValue(map[string]any{
		"msg":  "{{step:fetch:output}}",
		"list": []any{"{{step:count:output}}", 1},
	}, outputs).(map[string]any)
	assert.Equal(t, "hello", nested["msg"])
	assert.Equal(t, "42", nested["list"].([]any)[0])
}
