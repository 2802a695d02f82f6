package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/lexlapax/go-llmspell/core"
)

// FromJSON builds a workflow of the given type from its JSON definition.
//
// Common keys: {name, timeout (milliseconds), continue_on_error,
// max_retry_attempts}. Type-specific keys:
//
//	sequential:  {steps:[Step]}
//	parallel:    {branches:[Step], max_concurrency, fail_fast, continue_on_optional_failure}
//	conditional: {branches:[{name, condition, steps:[Step]}], default_steps?}
//	loop:        {iterator:{type:"collection"|"range"|"max", ...}, body:[Step], break_conditions?, aggregation}
//
// Step JSON: {name, type:"tool"|"agent"|"sub_workflow"|"basic", config:{...}}.
func FromJSON(workflowType string, raw []byte, optFns ...func(o *Options)) (*Workflow, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, core.NewValidationError("json", "invalid workflow definition: "+err.Error())
	}
	return fromDefinition(workflowType, doc, optFns)
}

// FromYAML builds a workflow of the given type from a YAML definition with
// the same schema as FromJSON.
func FromYAML(workflowType string, raw []byte, optFns ...func(o *Options)) (*Workflow, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, core.NewValidationError("yaml", "invalid workflow definition: "+err.Error())
	}
	return fromDefinition(workflowType, doc, optFns)
}

// FromDefinition builds a workflow from an already-decoded definition map,
// for callers (script bridges) that hold structured data rather than raw
// bytes.
func FromDefinition(workflowType string, doc map[string]any, optFns ...func(o *Options)) (*Workflow, error) {
	return fromDefinition(workflowType, doc, optFns)
}

type commonDef struct {
	Name             string `mapstructure:"name"`
	Timeout          int64  `mapstructure:"timeout"`
	ContinueOnError  bool   `mapstructure:"continue_on_error"`
	MaxRetryAttempts int    `mapstructure:"max_retry_attempts"`
}

type stepDef struct {
	Name   string         `mapstructure:"name"`
	Type   string         `mapstructure:"type"`
	Config map[string]any `mapstructure:"config"`
}

type stepConfigDef struct {
	Tool             string         `mapstructure:"tool"`
	Parameters       map[string]any `mapstructure:"parameters"`
	Target           string         `mapstructure:"target"`
	Input            string         `mapstructure:"input"`
	Action           string         `mapstructure:"action"`
	Optional         bool           `mapstructure:"optional"`
	MaxRetryAttempts int            `mapstructure:"max_retry_attempts"`
}

type conditionDef struct {
	Type       string           `mapstructure:"type"`
	Path       string           `mapstructure:"path"`
	Value      any              `mapstructure:"value"`
	Conditions []map[string]any `mapstructure:"conditions"`
	Condition  map[string]any   `mapstructure:"condition"`
}

func fromDefinition(workflowType string, doc map[string]any, optFns []func(o *Options)) (*Workflow, error) {
	var common commonDef
	if err := decode(doc, &common); err != nil {
		return nil, err
	}
	cfg := Config{
		Name:             common.Name,
		Timeout:          time.Duration(common.Timeout) * time.Millisecond,
		ContinueOnError:  common.ContinueOnError,
		MaxRetryAttempts: common.MaxRetryAttempts,
	}

	switch workflowType {
	case "sequential":
		var def struct {
			Steps []stepDef `mapstructure:"steps"`
		}
		if err := decode(doc, &def); err != nil {
			return nil, err
		}
		steps, err := decodeSteps(def.Steps)
		if err != nil {
			return nil, err
		}
		return NewSequential(cfg, steps, optFns...)

	case "parallel":
		var def struct {
			Branches                  []stepDef `mapstructure:"branches"`
			MaxConcurrency            *int      `mapstructure:"max_concurrency"`
			FailFast                  bool      `mapstructure:"fail_fast"`
			ContinueOnOptionalFailure bool      `mapstructure:"continue_on_optional_failure"`
		}
		if err := decode(doc, &def); err != nil {
			return nil, err
		}
		branches, err := decodeSteps(def.Branches)
		if err != nil {
			return nil, err
		}
		maxConcurrency := -1
		if def.MaxConcurrency != nil {
			maxConcurrency = *def.MaxConcurrency
		}
		return NewParallel(cfg, ParallelConfig{
			Branches:                  branches,
			MaxConcurrency:            maxConcurrency,
			FailFast:                  def.FailFast,
			ContinueOnOptionalFailure: def.ContinueOnOptionalFailure,
		}, optFns...)

	case "conditional":
		var def struct {
			Branches []struct {
				Name      string         `mapstructure:"name"`
				Condition map[string]any `mapstructure:"condition"`
				Steps     []stepDef      `mapstructure:"steps"`
			} `mapstructure:"branches"`
			DefaultSteps []stepDef `mapstructure:"default_steps"`
		}
		if err := decode(doc, &def); err != nil {
			return nil, err
		}
		branches := make([]Branch, 0, len(def.Branches))
		for _, b := range def.Branches {
			cond, err := decodeCondition(b.Condition)
			if err != nil {
				return nil, err
			}
			steps, err := decodeSteps(b.Steps)
			if err != nil {
				return nil, err
			}
			branches = append(branches, Branch{Name: b.Name, Condition: cond, Steps: steps})
		}
		defaultSteps, err := decodeSteps(def.DefaultSteps)
		if err != nil {
			return nil, err
		}
		return NewConditional(cfg, branches, defaultSteps, optFns...)

	case "loop":
		var def struct {
			Iterator struct {
				Type          string `mapstructure:"type"`
				Values        []any  `mapstructure:"values"`
				Start         int    `mapstructure:"start"`
				End           int    `mapstructure:"end"`
				Step          int    `mapstructure:"step"`
				MaxIterations int    `mapstructure:"max_iterations"`
			} `mapstructure:"iterator"`
			Body            []stepDef        `mapstructure:"body"`
			BreakConditions []map[string]any `mapstructure:"break_conditions"`
			Aggregation     string           `mapstructure:"aggregation"`
		}
		if err := decode(doc, &def); err != nil {
			return nil, err
		}
		var iterator Iterator
		switch def.Iterator.Type {
		case "collection":
			if def.Iterator.Values == nil {
				iterator.Collection = []any{}
			} else {
				iterator.Collection = def.Iterator.Values
			}
		case "range":
			step := def.Iterator.Step
			if step == 0 {
				step = 1
			}
			iterator.Range = &Range{Start: def.Iterator.Start, End: def.Iterator.End, Step: step}
		case "max":
			iterator.MaxIterations = def.Iterator.MaxIterations
		default:
			return nil, core.NewValidationError("iterator", fmt.Sprintf("unknown iterator type %q", def.Iterator.Type))
		}
		body, err := decodeSteps(def.Body)
		if err != nil {
			return nil, err
		}
		var breaks []Condition
		for _, raw := range def.BreakConditions {
			cond, err := decodeCondition(raw)
			if err != nil {
				return nil, err
			}
			breaks = append(breaks, cond)
		}
		return NewLoop(cfg, LoopConfig{
			Iterator:        iterator,
			Body:            body,
			BreakConditions: breaks,
			Aggregation:     Aggregation(def.Aggregation),
		}, optFns...)

	default:
		return nil, core.NewValidationError("type", fmt.Sprintf("unknown workflow type %q", workflowType))
	}
}

func decodeSteps(defs []stepDef) ([]Step, error) {
	steps := make([]Step, 0, len(defs))
	for _, d := range defs {
		var cfg stepConfigDef
		if err := decode(d.Config, &cfg); err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Name:             d.Name,
			Kind:             StepKind(d.Type),
			Tool:             cfg.Tool,
			Parameters:       cfg.Parameters,
			Target:           cfg.Target,
			Input:            cfg.Input,
			Action:           cfg.Action,
			Optional:         cfg.Optional,
			MaxRetryAttempts: cfg.MaxRetryAttempts,
		})
	}
	return steps, nil
}

// decodeCondition builds the condition tree from its JSON shape:
// {type:"true"|"false"|"equals"|"exists"|"and"|"or"|"not", path?, value?,
// conditions?, condition?}. A nil map decodes to True.
func decodeCondition(raw map[string]any) (Condition, error) {
	if raw == nil {
		return True{}, nil
	}
	var def conditionDef
	if err := decode(raw, &def); err != nil {
		return nil, err
	}
	switch def.Type {
	case "true", "always":
		return True{}, nil
	case "false", "never":
		return False{}, nil
	case "equals":
		return Equals{Path: def.Path, Value: def.Value}, nil
	case "exists":
		return Exists{Path: def.Path}, nil
	case "and", "or":
		children := make([]Condition, 0, len(def.Conditions))
		for _, c := range def.Conditions {
			child, err := decodeCondition(c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if def.Type == "and" {
			return And(children), nil
		}
		return Or(children), nil
	case "not":
		child, err := decodeCondition(def.Condition)
		if err != nil {
			return nil, err
		}
		return Not{Condition: child}, nil
	default:
		return nil, core.NewValidationError("condition", fmt.Sprintf("unknown condition type %q", def.Type))
	}
}

func decode(input any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return core.NewComponentError("workflow", "decoder construction failed", err)
	}
	if err := dec.Decode(input); err != nil {
		return core.NewValidationError("definition", err.Error())
	}
	return nil
}
