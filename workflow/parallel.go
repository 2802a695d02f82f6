package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lexlapax/go-llmspell/core"
)

// ParallelConfig shapes a parallel workflow.
type ParallelConfig struct {
	// Branches are dispatched concurrently; each branch is one step.
	Branches []Step `json:"branches" yaml:"branches"`
	// MaxConcurrency caps in-flight branches. Defaults to 4; zero after
	// explicit assignment is rejected, one behaves sequentially.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
	// FailFast cancels in-flight branches on the first non-optional failure.
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	// ContinueOnOptionalFailure keeps a run successful when only branches
	// marked optional failed.
	ContinueOnOptionalFailure bool `json:"continue_on_optional_failure,omitempty" yaml:"continue_on_optional_failure,omitempty"`
}

// DefaultMaxConcurrency is applied when a parallel config leaves the cap unset.
const DefaultMaxConcurrency = 4

// parallelTopology dispatches branches under a weighted semaphore.
type parallelTopology struct {
	cfg ParallelConfig
}

func (t *parallelTopology) kind() string { return "parallel" }

func (t *parallelTopology) run(ctx context.Context, ex *execution) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(t.cfg.MaxConcurrency))

	for _, branch := range t.cfg.Branches {
		branch := branch
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				ex.skip(branch, "run terminated")
				return nil
			}
			defer sem.Release(1)

			_, err := ex.runStep(gctx, branch)
			if err == nil {
				return nil
			}
			if branch.Optional && t.cfg.ContinueOnOptionalFailure {
				ex.tolerate()
				return nil
			}
			if t.cfg.FailFast {
				// Returning the error cancels gctx and unwinds the
				// remaining branches.
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	branchOutputs := map[string]any{}
	outputs := ex.stepOutputs()
	for _, branch := range t.cfg.Branches {
		if out, ok := outputs[branch.Name]; ok {
			branchOutputs[branch.Name] = out
		}
	}
	ex.setResult(branchOutputs)

	if waitErr != nil && (core.IsKind(waitErr, core.ErrCancelled) || core.IsKind(waitErr, core.ErrTimeout)) {
		return waitErr
	}
	return nil
}

// NewParallel builds a parallel workflow. A MaxConcurrency of exactly zero is
// rejected; leave it negative or unset via the factory to get the default.
func NewParallel(cfg Config, pcfg ParallelConfig, optFns ...func(o *Options)) (*Workflow, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := validateSteps(pcfg.Branches); err != nil {
		return nil, err
	}
	if pcfg.MaxConcurrency == 0 {
		return nil, core.NewValidationError("max_concurrency", "max_concurrency must be at least 1")
	}
	if pcfg.MaxConcurrency < 0 {
		pcfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return newWorkflow(cfg, &parallelTopology{cfg: pcfg}, optFns), nil
}
