package workflow

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StepKind selects how a step executes.
type StepKind string

const (
	// StepTool dispatches a tool call through the tool registry.
	StepTool StepKind = "tool"
	// StepAgent dispatches to a registered agent.
	StepAgent StepKind = "agent"
	// StepSubWorkflow dispatches to a registered workflow, composing
	// recursively.
	StepSubWorkflow StepKind = "sub_workflow"
	// StepBasic runs a built-in action (set, delay, log, noop).
	StepBasic StepKind = "basic"
)

// Step is a value-type description of one unit of work. Execution state lives
// in the executor, never in the step.
type Step struct {
	Name string   `json:"name" yaml:"name"`
	Kind StepKind `json:"type" yaml:"type"`

	// Tool steps.
	Tool       string         `json:"tool,omitempty" yaml:"tool,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// Agent and sub-workflow steps.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`

	// Basic steps.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// Optional marks a parallel branch whose failure is non-fatal.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`

	// MaxRetryAttempts overrides the workflow default when > 0.
	MaxRetryAttempts int `json:"max_retry_attempts,omitempty" yaml:"max_retry_attempts,omitempty"`
}

// StepStatus is the terminal state of one executed step instance.
type StepStatus string

const (
	// StepSucceeded marks a step that produced an output.
	StepSucceeded StepStatus = "succeeded"
	// StepFailed marks a step whose final attempt failed.
	StepFailed StepStatus = "failed"
	// StepSkipped marks a step never dispatched (prior failure, unmatched
	// branch).
	StepSkipped StepStatus = "skipped"
)

// StepReport records the outcome of one step instance for the workflow
// report. At-most-once: one report entry per dispatched step instance.
type StepReport struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

var stepRefPattern = regexp.MustCompile(`\{\{step:([^:}]+):output\}\}`)

// substituteString replaces {{step:<name>:output}} references with the
// stringified output of the named prior step. Unknown references are left
// in place so the failure is visible downstream.
func substituteString(s string, outputs map[string]any) string {
	if !strings.Contains(s, "{{step:") {
		return s
	}
	return stepRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := stepRefPattern.FindStringSubmatch(match)[1]
		out, ok := outputs[name]
		if !ok {
			return match
		}
		return stringify(out)
	})
}

// substituteValue applies step-reference substitution recursively through
// strings, maps and slices.
func substituteValue(v any, outputs map[string]any) any {
	switch val := v.(type) {
	case string:
		return substituteString(val, outputs)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = substituteValue(item, outputs)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, outputs)
		}
		return out
	default:
		return v
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
