package workflow

import (
	"context"

	"github.com/lexlapax/go-llmspell/core"
)

// Branch pairs a condition with the steps to run when it matches first.
type Branch struct {
	Name      string
	Condition Condition
	Steps     []Step
}

// conditionalTopology evaluates branches in order against a snapshot of the
// shared data and executes the first match; if none matches, the optional
// default steps run. A run with no matching branch and no default is a
// zero-step success.
type conditionalTopology struct {
	branches     []Branch
	defaultSteps []Step
}

func (t *conditionalTopology) kind() string { return "conditional" }

func (t *conditionalTopology) run(ctx context.Context, ex *execution) error {
	snapshot := ex.snapshot()

	steps := t.defaultSteps
	for _, b := range t.branches {
		if Evaluate(b.Condition, snapshot) {
			steps = b.Steps
			ex.mu.Lock()
			ex.matchedBranch = b.Name
			ex.mu.Unlock()
			break
		}
	}

	seq := sequentialTopology{steps: steps}
	return seq.run(ctx, ex)
}

// NewConditional builds a conditional workflow from ordered branches and
// optional default steps.
func NewConditional(cfg Config, branches []Branch, defaultSteps []Step, optFns ...func(o *Options)) (*Workflow, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	for _, b := range branches {
		if b.Name == "" {
			return nil, core.NewValidationError("branches", "every branch needs a name")
		}
		if err := validateSteps(b.Steps); err != nil {
			return nil, err
		}
	}
	if err := validateSteps(defaultSteps); err != nil {
		return nil, err
	}
	return newWorkflow(cfg, &conditionalTopology{branches: branches, defaultSteps: defaultSteps}, optFns), nil
}
