// Package workflow composes agents and tools into reusable pipelines with
// four built-in topologies: sequential, parallel, conditional and loop. A
// Workflow itself satisfies the agent contract, so workflows nest recursively
// as sub-workflow steps.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexlapax/go-llmspell/agent"
	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/hook"
	"github.com/lexlapax/go-llmspell/logging"
	"github.com/lexlapax/go-llmspell/resource"
	"github.com/lexlapax/go-llmspell/state"
	"github.com/lexlapax/go-llmspell/tool"
)

// Config carries the settings common to every topology.
type Config struct {
	Name string `json:"name" yaml:"name"`
	// Timeout bounds the whole run; parallel branches share the budget.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// ContinueOnError keeps executing after a step failure.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
	// MaxRetryAttempts is the default per-step retry budget.
	MaxRetryAttempts int `json:"max_retry_attempts,omitempty" yaml:"max_retry_attempts,omitempty"`
}

// Options wires a workflow into the runtime. Every dependency is optional;
// an unset registry simply fails the step kinds that need it.
type Options struct {
	// Tools resolves tool steps.
	Tools *tool.Registry
	// Agents resolves agent and sub-workflow steps.
	Agents *agent.Registry
	// Hooks runs the workflow lifecycle chain.
	Hooks *hook.Chain
	// Bus receives workflow lifecycle events.
	Bus *event.Bus
	// Tracker enforces resource limits on every step attempt.
	Tracker *resource.Tracker
	// States, when set, records each step output under its step scope.
	States *state.Manager
	// Tracer emits one span per run and per step. Defaults to the global
	// tracer provider.
	Tracer trace.Tracer
	// Logger used for workflow diagnostics.
	Logger logging.Logger
}

// Input is one workflow invocation.
type Input struct {
	// Input is the primary payload, exposed to steps as {{step:...}} source
	// and to conditions under the "input" path.
	Input any
	// Context seeds the shared workflow data conditions evaluate over.
	Context map[string]any
	// Timeout overrides the configured workflow timeout when > 0.
	Timeout time.Duration
}

// Output is the workflow run report.
type Output struct {
	Success       bool          `json:"success"`
	Output        any           `json:"output,omitempty"`
	StepsExecuted int           `json:"steps_executed"`
	StepsFailed   int           `json:"steps_failed"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
	// MatchedBranch names the conditional branch that ran, if any.
	MatchedBranch string `json:"matched_branch,omitempty"`
	// Steps lists one report per dispatched step instance, in completion
	// order.
	Steps []StepReport `json:"steps,omitempty"`
}

// StepNames returns the names of steps with the given status, in report order.
func (o Output) StepNames(status StepStatus) []string {
	var names []string
	for _, r := range o.Steps {
		if r.Status == status {
			names = append(names, r.Name)
		}
	}
	return names
}

// topology is the per-shape execution strategy.
type topology interface {
	run(ctx context.Context, ex *execution) error
	kind() string
}

// Workflow is a configured pipeline. It is immutable after construction and
// safe for concurrent runs.
type Workflow struct {
	cfg  Config
	top  topology
	opts Options

	tracer trace.Tracer
	*core.LoggerAdapter
}

var _ agent.Agent = (*Workflow)(nil)

func newWorkflow(cfg Config, top topology, optFns []func(o *Options)) *Workflow {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("llmspell/workflow")
	}
	return &Workflow{
		cfg:           cfg,
		top:           top,
		opts:          opts,
		tracer:        tracer,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// ID returns the workflow's typed identity.
func (w *Workflow) ID() core.ComponentID {
	return core.ComponentID{Type: core.ComponentTypeWorkflow, Name: w.cfg.Name}
}

// Description implements the agent contract.
func (w *Workflow) Description() string {
	return fmt.Sprintf("%s workflow %s", w.top.kind(), w.cfg.Name)
}

// Kind returns the topology name.
func (w *Workflow) Kind() string { return w.top.kind() }

// Execute implements the agent contract by adapting AgentInput/AgentOutput to
// a workflow run, so workflows compose recursively.
func (w *Workflow) Execute(ctx context.Context, input core.AgentInput) (core.AgentOutput, error) {
	shared := map[string]any{}
	for k, v := range input.Context {
		shared[k] = v
	}
	for k, v := range input.Parameters {
		shared[k] = v
	}

	report, err := w.Run(ctx, Input{Input: input.Text, Context: shared})
	if err != nil {
		return core.AgentOutput{}, err
	}
	out := core.AgentOutput{
		Text:     stringify(report.Output),
		Value:    report.Output,
		Duration: report.Duration,
		Metadata: map[string]any{
			"workflow":       w.cfg.Name,
			"success":        report.Success,
			"steps_executed": report.StepsExecuted,
			"steps_failed":   report.StepsFailed,
		},
	}
	if !report.Success {
		return out, core.NewComponentError("workflow", w.cfg.Name+": "+report.Error, nil)
	}
	return out, nil
}

// Run executes the workflow once and returns the full report. The report is
// returned for failed runs too; the error return is reserved for cancellation
// and pre-flight failures.
func (w *Workflow) Run(ctx context.Context, input Input) (Output, error) {
	timeout := w.cfg.Timeout
	if input.Timeout > 0 {
		timeout = input.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ex := &execution{
		wf:            w,
		shared:        map[string]any{},
		outputs:       map[string]any{},
		correlationID: core.NewID(),
	}
	for k, v := range input.Context {
		ex.shared[k] = v
	}
	if input.Input != nil {
		ex.shared["input"] = input.Input
	}

	if w.opts.Hooks != nil {
		hctx := hook.NewContext(hook.PointBeforeWorkflowStart, w.ID())
		hctx.CorrelationID = ex.correlationID
		hctx.Data["shared"] = ex.snapshot()
		outcome := w.opts.Hooks.Execute(hctx)
		if outcome.Cancelled {
			return Output{}, core.NewCancelledError(outcome.Reason)
		}
	}

	ctx, span := w.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", w.cfg.Name),
		attribute.String("workflow.kind", w.top.kind()),
	))
	defer span.End()

	start := time.Now()
	w.LogInfo("workflow started", "workflow", w.cfg.Name, "kind", w.top.kind(), "correlation_id", ex.correlationID)

	runErr := w.top.run(ctx, ex)

	out := ex.report()
	out.Duration = time.Since(start)
	fatalFailures := out.StepsFailed - ex.tolerated
	switch {
	case runErr != nil:
		out.Success = false
		out.Error = runErr.Error()
	case fatalFailures > 0 && !w.cfg.ContinueOnError:
		out.Success = false
		out.Error = firstFailure(out.Steps)
	default:
		out.Success = true
	}
	span.SetAttributes(
		attribute.Int("workflow.steps_executed", out.StepsExecuted),
		attribute.Int("workflow.steps_failed", out.StepsFailed),
		attribute.Bool("workflow.success", out.Success),
	)

	if w.opts.Hooks != nil {
		hctx := hook.NewContext(hook.PointAfterWorkflowComplete, w.ID())
		hctx.CorrelationID = ex.correlationID
		hctx.Data["success"] = out.Success
		hctx.Data["steps_executed"] = out.StepsExecuted
		hctx.Data["steps_failed"] = out.StepsFailed
		w.opts.Hooks.Execute(hctx)
	}
	if w.opts.Bus != nil {
		w.opts.Bus.Publish(event.Event{
			Topic:         "workflow.completed",
			CorrelationID: ex.correlationID,
			Data: map[string]any{
				"workflow":       w.cfg.Name,
				"success":        out.Success,
				"steps_executed": out.StepsExecuted,
				"steps_failed":   out.StepsFailed,
				"duration_ms":    out.Duration.Milliseconds(),
			},
		})
	}

	w.LogInfo("workflow finished", "workflow", w.cfg.Name, "success", out.Success,
		"steps_executed", out.StepsExecuted, "steps_failed", out.StepsFailed)

	if core.IsKind(runErr, core.ErrCancelled) || core.IsKind(runErr, core.ErrTimeout) {
		return out, runErr
	}
	return out, nil
}

// execution is the mutable state of one run. Step descriptions stay value
// types; everything that changes lives here.
type execution struct {
	wf *Workflow

	mu            sync.Mutex
	shared        map[string]any
	outputs       map[string]any
	reports       []StepReport
	matchedBranch string
	tolerated     int
	result        any

	correlationID string
}

// snapshot copies shared data so condition evaluation never reads live state.
func (ex *execution) snapshot() map[string]any {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	snap := make(map[string]any, len(ex.shared))
	for k, v := range ex.shared {
		snap[k] = v
	}
	return snap
}

func (ex *execution) setShared(key string, value any) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.shared[key] = value
}

func (ex *execution) setOutput(name string, value any) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.outputs[name] = value
}

func (ex *execution) stepOutputs() map[string]any {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	snap := make(map[string]any, len(ex.outputs))
	for k, v := range ex.outputs {
		snap[k] = v
	}
	return snap
}

func (ex *execution) record(r StepReport) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.reports = append(ex.reports, r)
}

// setResult records the value the run reports as its overall output.
func (ex *execution) setResult(v any) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.result = v
}

func (ex *execution) report() Output {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	out := Output{Output: ex.result, MatchedBranch: ex.matchedBranch, Steps: append([]StepReport(nil), ex.reports...)}
	for _, r := range ex.reports {
		switch r.Status {
		case StepSucceeded:
			out.StepsExecuted++
		case StepFailed:
			out.StepsFailed++
		}
	}
	return out
}

// tolerate marks one recorded failure as non-fatal (optional branch).
func (ex *execution) tolerate() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.tolerated++
}

// skip records a step instance that was never dispatched.
func (ex *execution) skip(s Step, reason string) {
	ex.record(StepReport{Name: s.Name, Status: StepSkipped, Error: reason})
}

// runStep dispatches one step instance with hooks, resource accounting and
// retries. The returned error is the final attempt's failure; a report entry
// is recorded either way (at most once per instance).
func (ex *execution) runStep(ctx context.Context, s Step) (any, error) {
	w := ex.wf
	stepID := core.ComponentID{Type: core.ComponentTypeWorkflow, Name: w.cfg.Name}

	if w.opts.Hooks != nil {
		hctx := hook.NewContext(hook.PointBeforeWorkflowStep, stepID)
		hctx.CorrelationID = ex.correlationID
		hctx.Operation = s.Name
		hctx.Data["step"] = s.Name
		hctx.Data["kind"] = string(s.Kind)
		outcome := w.opts.Hooks.Execute(hctx)
		switch {
		case outcome.Cancelled:
			err := core.NewCancelledError(outcome.Reason)
			ex.record(StepReport{Name: s.Name, Status: StepFailed, Error: err.Error()})
			return nil, err
		case outcome.Replaced:
			ex.finishStep(ctx, s, outcome.Value, 0, 0)
			return outcome.Value, nil
		}
	}

	attempts := 1 + w.cfg.MaxRetryAttempts
	if s.MaxRetryAttempts > 0 {
		attempts = 1 + s.MaxRetryAttempts
	}

	ctx, span := w.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.name", s.Name),
		attribute.String("step.kind", string(s.Kind)),
	))
	defer span.End()

	start := time.Now()
	var output any
	var err error
	attempt := 0
	for attempt = 1; attempt <= attempts; attempt++ {
		output, err = ex.dispatch(ctx, s)
		if err == nil {
			break
		}
		// Validation, cancellation and resource errors never retry.
		switch core.KindOf(err) {
		case core.ErrValidation, core.ErrCancelled, core.ErrResource, core.ErrTimeout:
			attempts = attempt
		}
		if attempt >= attempts {
			break
		}
		if waitErr := backoff(ctx, attempt); waitErr != nil {
			err = waitErr
			break
		}
		w.LogDebug("step retrying", "workflow", w.cfg.Name, "step", s.Name, "attempt", attempt+1)
	}
	duration := time.Since(start)

	if err != nil {
		ex.record(StepReport{Name: s.Name, Status: StepFailed, Error: err.Error(), Attempts: attempt, Duration: duration})
		ex.afterStep(s, nil, err)
		w.LogWarn("step failed", "workflow", w.cfg.Name, "step", s.Name, "error", err)
		return nil, err
	}

	ex.finishStep(ctx, s, output, attempt, duration)
	return output, nil
}

// finishStep records a successful step and propagates its output to the
// substitution map, the state layer and the after-step hook.
func (ex *execution) finishStep(ctx context.Context, s Step, output any, attempts int, duration time.Duration) {
	w := ex.wf

	ex.mu.Lock()
	ex.outputs[s.Name] = output
	ex.mu.Unlock()
	ex.record(StepReport{Name: s.Name, Status: StepSucceeded, Output: output, Attempts: attempts, Duration: duration})

	if w.opts.States != nil {
		scope := state.StepScope(w.cfg.Name, s.Name)
		if err := w.opts.States.Set(scope, "output", output); err != nil {
			w.LogWarn("step output not persisted", "workflow", w.cfg.Name, "step", s.Name, "error", err)
		}
	}
	ex.afterStep(s, output, nil)

	if w.opts.Bus != nil {
		w.opts.Bus.Publish(event.Event{
			Topic:         "workflow.step.completed",
			CorrelationID: ex.correlationID,
			Data:          map[string]any{"workflow": w.cfg.Name, "step": s.Name},
		})
	}
}

func (ex *execution) afterStep(s Step, output any, err error) {
	w := ex.wf
	if w.opts.Hooks == nil {
		return
	}
	hctx := hook.NewContext(hook.PointAfterWorkflowStep, ex.wf.ID())
	hctx.CorrelationID = ex.correlationID
	hctx.Operation = s.Name
	hctx.Data["step"] = s.Name
	hctx.Data["output"] = output
	if err != nil {
		hctx.Data["error"] = err.Error()
	}
	w.opts.Hooks.Execute(hctx)
}

// dispatch runs one attempt of a step under the resource tracker.
func (ex *execution) dispatch(ctx context.Context, s Step) (any, error) {
	w := ex.wf

	if w.opts.Tracker != nil {
		guard, err := w.opts.Tracker.BeginOperation()
		if err != nil {
			return nil, err
		}
		defer guard.Release()
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(ctx, s.Name)
	}

	outputs := ex.stepOutputs()
	switch s.Kind {
	case StepTool:
		if w.opts.Tools == nil {
			return nil, core.NewValidationError("type", "no tool registry wired for step "+s.Name)
		}
		params, _ := substituteValue(s.Parameters, outputs).(map[string]any)
		out, err := w.opts.Tools.Execute(ctx, core.ToolInput{Name: s.Tool, Parameters: params})
		if err != nil {
			return nil, err
		}
		if out.Error != "" {
			return nil, core.NewComponentError("workflow", "step "+s.Name+": "+out.Error, nil)
		}
		return out.Value, nil

	case StepAgent, StepSubWorkflow:
		if w.opts.Agents == nil {
			return nil, core.NewValidationError("type", "no agent registry wired for step "+s.Name)
		}
		targetType := core.ComponentTypeAgent
		if s.Kind == StepSubWorkflow {
			targetType = core.ComponentTypeWorkflow
		}
		input := core.AgentInput{
			Text:    substituteString(s.Input, outputs),
			Context: ex.snapshot(),
		}
		out, err := w.opts.Agents.Execute(ctx, core.ComponentID{Type: targetType, Name: s.Target}, input)
		if err != nil {
			return nil, err
		}
		if out.Value != nil {
			return out.Value, nil
		}
		return out.Text, nil

	case StepBasic:
		return ex.basicAction(ctx, s, outputs)

	default:
		return nil, core.NewValidationError("type", fmt.Sprintf("unknown step kind %q", s.Kind))
	}
}

// basicAction runs the built-in step actions.
func (ex *execution) basicAction(ctx context.Context, s Step, outputs map[string]any) (any, error) {
	params, _ := substituteValue(s.Parameters, outputs).(map[string]any)
	switch s.Action {
	case "set":
		key, _ := params["key"].(string)
		if key == "" {
			return nil, core.NewValidationError("key", "basic set step requires a key")
		}
		ex.setShared(key, params["value"])
		return params["value"], nil
	case "delay":
		ms, _ := toFloat(params["duration_ms"])
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return nil, nil
		case <-ctx.Done():
			return nil, contextError(ctx, s.Name)
		}
	case "log":
		ex.wf.LogInfo("workflow log step", "workflow", ex.wf.cfg.Name, "step", s.Name,
			"message", stringify(params["message"]))
		return params["message"], nil
	case "", "noop":
		return nil, nil
	default:
		return nil, core.NewValidationError("action", fmt.Sprintf("unknown basic action %q", s.Action))
	}
}

// firstFailure returns the first failed step's error for the run report.
func firstFailure(steps []StepReport) string {
	for _, r := range steps {
		if r.Status == StepFailed {
			return r.Name + ": " + r.Error
		}
	}
	return ""
}

// backoff waits for the exponential delay before the next attempt.
func backoff(ctx context.Context, attempt int) error {
	delay := 100 * time.Millisecond << (attempt - 1)
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return contextError(ctx, "retry backoff")
	}
}

// contextError maps context termination onto the error taxonomy: deadlines
// become timeouts, everything else a cooperative cancellation.
func contextError(ctx context.Context, what string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return core.NewTimeoutError("workflow", what+" exceeded the execution deadline")
	}
	return core.NewCancelledError(what + " cancelled")
}
