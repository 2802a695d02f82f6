package workflow

import (
	"context"
	"strconv"

	"github.com/lexlapax/go-llmspell/core"
)

// Iterator selects what a loop workflow iterates over. Exactly one field set
// is honored, checked in order: Collection, Range, MaxIterations.
type Iterator struct {
	// Collection iterates the given values; an empty collection is a
	// zero-iteration success.
	Collection []any
	// Range iterates integer values from Start to End (exclusive) by Step.
	Range *Range
	// MaxIterations iterates indices 0..n-1.
	MaxIterations int
}

// Range is a half-open integer interval with a stride.
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
	Step  int `json:"step" yaml:"step"`
}

// Aggregation selects how iteration outputs combine into the loop output.
type Aggregation string

const (
	// CollectAll returns every iteration output in order.
	CollectAll Aggregation = "collect_all"
	// LastOnly returns the final iteration output.
	LastOnly Aggregation = "last_only"
	// Reduce merges map-shaped iteration outputs key by key, last writer
	// wins; non-map outputs degrade to LastOnly.
	Reduce Aggregation = "reduce"
)

// LoopConfig shapes a loop workflow.
type LoopConfig struct {
	Iterator Iterator
	// Body runs once per iteration value.
	Body []Step
	// BreakConditions are checked after each iteration body against the
	// shared data snapshot; the first match ends the loop early.
	BreakConditions []Condition
	// Aggregation defaults to CollectAll.
	Aggregation Aggregation
}

type loopTopology struct {
	cfg LoopConfig
}

func (t *loopTopology) kind() string { return "loop" }

func (t *loopTopology) run(ctx context.Context, ex *execution) error {
	values, err := t.cfg.Iterator.values()
	if err != nil {
		return err
	}

	var collected []any
	var last any
	reduced := map[string]any{}
	sawReducedMap := false

iterations:
	for i, value := range values {
		ex.setShared("loop.index", i)
		ex.setShared("loop.value", value)

		var iterOut any
		for _, s := range t.cfg.Body {
			out, stepErr := ex.runStep(ctx, iterationStep(s, i))
			if stepErr != nil {
				if core.IsKind(stepErr, core.ErrCancelled) || core.IsKind(stepErr, core.ErrTimeout) {
					return stepErr
				}
				if !ex.wf.cfg.ContinueOnError {
					return nil
				}
				continue
			}
			// Keep {{step:<name>:output}} references working across the
			// renamed per-iteration instances.
			ex.setOutput(s.Name, out)
			iterOut = out
		}

		last = iterOut
		collected = append(collected, iterOut)
		if m, ok := iterOut.(map[string]any); ok {
			sawReducedMap = true
			for k, v := range m {
				reduced[k] = v
			}
		}
		ex.setShared("loop.iterations_completed", i+1)

		snapshot := ex.snapshot()
		for _, cond := range t.cfg.BreakConditions {
			if Evaluate(cond, snapshot) {
				break iterations
			}
		}
	}

	var result any
	switch t.cfg.Aggregation {
	case LastOnly:
		result = last
	case Reduce:
		if sawReducedMap {
			result = reduced
		} else {
			result = last
		}
	default:
		result = collected
	}
	ex.setShared("loop.result", result)
	ex.setResult(result)
	return nil
}

// iterationStep renames a body step per iteration so every dispatched
// instance gets its own at-most-once report entry.
func iterationStep(s Step, i int) Step {
	s.Name = s.Name + "#" + strconv.Itoa(i)
	return s
}

func (it Iterator) values() ([]any, error) {
	switch {
	case it.Collection != nil:
		return it.Collection, nil
	case it.Range != nil:
		r := *it.Range
		if r.Step == 0 {
			return nil, core.NewValidationError("iterator", "range step must not be zero")
		}
		var out []any
		if r.Step > 0 {
			for v := r.Start; v < r.End; v += r.Step {
				out = append(out, v)
			}
		} else {
			for v := r.Start; v > r.End; v += r.Step {
				out = append(out, v)
			}
		}
		return out, nil
	case it.MaxIterations > 0:
		out := make([]any, it.MaxIterations)
		for i := range out {
			out[i] = i
		}
		return out, nil
	default:
		return nil, nil
	}
}

// NewLoop builds a loop workflow.
func NewLoop(cfg Config, lcfg LoopConfig, optFns ...func(o *Options)) (*Workflow, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := validateSteps(lcfg.Body); err != nil {
		return nil, err
	}
	if lcfg.Aggregation == "" {
		lcfg.Aggregation = CollectAll
	}
	switch lcfg.Aggregation {
	case CollectAll, LastOnly, Reduce:
	default:
		return nil, core.NewValidationError("aggregation", "unknown aggregation mode: "+string(lcfg.Aggregation))
	}
	return newWorkflow(cfg, &loopTopology{cfg: lcfg}, optFns), nil
}
