package workflow

import (
	"context"

	"github.com/lexlapax/go-llmspell/core"
)

// sequentialTopology executes steps in declared order. On step failure with
// continue_on_error=false, the remaining steps are skipped and the run fails
// with the first error.
type sequentialTopology struct {
	steps []Step
}

func (t *sequentialTopology) kind() string { return "sequential" }

func (t *sequentialTopology) run(ctx context.Context, ex *execution) error {
	for i, s := range t.steps {
		out, err := ex.runStep(ctx, s)
		if err != nil {
			if core.IsKind(err, core.ErrCancelled) || core.IsKind(err, core.ErrTimeout) {
				for _, rest := range t.steps[i+1:] {
					ex.skip(rest, "run terminated")
				}
				return err
			}
			if !ex.wf.cfg.ContinueOnError {
				for _, rest := range t.steps[i+1:] {
					ex.skip(rest, "previous step failed")
				}
				return nil
			}
			continue
		}
		ex.setShared("last_output", out)
		ex.setResult(out)
	}
	return nil
}

// NewSequential builds a sequential workflow from the given steps.
func NewSequential(cfg Config, steps []Step, optFns ...func(o *Options)) (*Workflow, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := validateSteps(steps); err != nil {
		return nil, err
	}
	return newWorkflow(cfg, &sequentialTopology{steps: steps}, optFns), nil
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return core.NewValidationError("name", "workflow name must not be empty")
	}
	if cfg.MaxRetryAttempts < 0 {
		return core.NewValidationError("max_retry_attempts", "retry attempts must not be negative")
	}
	return nil
}

func validateSteps(steps []Step) error {
	seen := map[string]bool{}
	for _, s := range steps {
		if s.Name == "" {
			return core.NewValidationError("steps", "every step needs a name")
		}
		if seen[s.Name] {
			return core.NewValidationError("steps", "duplicate step name: "+s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
