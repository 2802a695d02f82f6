package debug

import (
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// ModeKind names the debug mode levels.
type ModeKind string

const (
	// ModeDisabled installs no debug hook at all, leaving the interpreter's
	// single hook slot free for unrelated handlers.
	ModeDisabled ModeKind = "disabled"
	// ModeMinimal checks breakpoints and cancellation at an instruction
	// interval.
	ModeMinimal ModeKind = "minimal"
	// ModeFull observes every line; required for stepping.
	ModeFull ModeKind = "full"
)

// Mode is the active debug level. CheckInterval applies to ModeMinimal.
type Mode struct {
	Kind          ModeKind
	CheckInterval int
}

// DefaultCheckInterval is the Minimal-mode instruction interval when none is
// configured.
const DefaultCheckInterval = 100

// State is the execution state machine:
// Terminated -> Running -> (Paused <-> Running) -> Terminated.
type State string

const (
	StateTerminated State = "terminated"
	StateRunning    State = "running"
	StatePaused     State = "paused"
)

// StopReason classifies a pause.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopStep       StopReason = "step"
	StopPause      StopReason = "pause"
	StopError      StopReason = "error"
)

// StoppedEvent is published on every pause, carrying what a debug adapter
// needs for its stopped notification.
type StoppedEvent struct {
	Reason       StopReason `json:"reason"`
	Source       string     `json:"source"`
	Line         int        `json:"line"`
	ThreadID     int        `json:"thread_id"`
	BreakpointID string     `json:"breakpoint_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	// Warnings carries non-fatal evaluation problems, e.g. a breakpoint
	// condition that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`
}

// StepKind is a resume command.
type StepKind string

const (
	CommandContinue  StepKind = "continue"
	CommandStepInto  StepKind = "step_into"
	CommandStepOver  StepKind = "step_over"
	CommandStepOut   StepKind = "step_out"
	CommandTerminate StepKind = "terminate"
)

// ConditionEvaluator evaluates a breakpoint condition in the paused frame.
// Provided by the script adapter; evaluation errors are downgraded to
// warnings and treated as not matched.
type ConditionEvaluator func(condition string) (bool, error)

// ManagerOptions configures an execution manager.
type ManagerOptions struct {
	// Mode is the initial debug mode. Defaults to Disabled.
	Mode Mode
	// OnStopped is invoked on every pause, before the manager blocks waiting
	// for a resume command.
	OnStopped func(StoppedEvent)
	// OnModeChange is invoked whenever the mode transitions so the engine
	// adapter can reinstall its hook.
	OnModeChange func(Mode)
	// Evaluator evaluates breakpoint conditions. Unset means conditions are
	// reported as not matched with a warning.
	Evaluator ConditionEvaluator
	// Logger used for debug core diagnostics.
	Logger logging.Logger
}

// Manager is the engine-neutral execution/debug core. Script adapters feed it
// line events; debug adapters (DAP bridges, script Debug globals) drive it
// with breakpoint and step commands.
type Manager struct {
	mu    sync.Mutex
	mode  Mode
	state State

	bps  *breakpointStore
	vars *variableCache

	stack []StackFrame

	// resume carries the command that unblocks a paused OnLine call.
	resume chan StepKind

	pauseRequested bool
	stepActive     bool
	stepKind       StepKind
	stepDepth      int

	lineCounter int

	onStopped    func(StoppedEvent)
	onModeChange func(Mode)
	evaluator    ConditionEvaluator

	*core.LoggerAdapter
}

// NewManager creates an execution manager in the Terminated state.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Mode: Mode{Kind: ModeDisabled}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Mode.Kind == "" {
		opts.Mode.Kind = ModeDisabled
	}
	if opts.Mode.Kind == ModeMinimal && opts.Mode.CheckInterval <= 0 {
		opts.Mode.CheckInterval = DefaultCheckInterval
	}
	return &Manager{
		mode:          opts.Mode,
		state:         StateTerminated,
		bps:           newBreakpointStore(),
		vars:          newVariableCache(),
		resume:        make(chan StepKind),
		onStopped:     opts.OnStopped,
		onModeChange:  opts.OnModeChange,
		evaluator:     opts.Evaluator,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// State returns the current execution state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode returns the current debug mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetMode transitions the debug mode and notifies the adapter to reinstall
// its hook.
func (m *Manager) SetMode(mode Mode) {
	if mode.Kind == ModeMinimal && mode.CheckInterval <= 0 {
		mode.CheckInterval = DefaultCheckInterval
	}
	m.mu.Lock()
	changed := m.mode != mode
	m.mode = mode
	cb := m.onModeChange
	m.mu.Unlock()
	if changed && cb != nil {
		cb(mode)
	}
}

// SetEvaluator installs the script adapter's condition evaluator.
func (m *Manager) SetEvaluator(eval ConditionEvaluator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluator = eval
}

// SetOnStopped installs the pause callback. Debug bridges attach here after
// construction, replacing any callback set through ManagerOptions.
func (m *Manager) SetOnStopped(fn func(StoppedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStopped = fn
}

// SetOnModeChange installs the mode transition callback so the engine adapter
// can reinstall its hook when the mode changes after construction.
func (m *Manager) SetOnModeChange(fn func(Mode)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onModeChange = fn
}

// Start transitions Terminated -> Running. Starting a non-terminated manager
// is a validation error.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateTerminated {
		return core.NewValidationError("state", "execution already in progress")
	}
	m.state = StateRunning
	m.pauseRequested = false
	m.stepActive = false
	m.lineCounter = 0
	m.vars.invalidate()
	return nil
}

// Finish transitions to Terminated when the script completes on its own.
func (m *Manager) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateTerminated
	m.stack = nil
	m.vars.invalidate()
}

// AddBreakpoint registers a breakpoint and auto-escalates a Disabled manager
// to Minimal so the hook gets installed.
func (m *Manager) AddBreakpoint(source string, line int, condition string) Breakpoint {
	bp := m.bps.add(source, line, condition)
	if m.Mode().Kind == ModeDisabled {
		m.SetMode(Mode{Kind: ModeMinimal, CheckInterval: DefaultCheckInterval})
	}
	return bp
}

// RemoveBreakpoint removes by ID; the second call for the same ID returns
// false.
func (m *Manager) RemoveBreakpoint(id string) bool { return m.bps.remove(id) }

// Breakpoints lists the registered breakpoints.
func (m *Manager) Breakpoints() []Breakpoint { return m.bps.list() }

// Breakpoint fetches one breakpoint by ID.
func (m *Manager) Breakpoint(id string) (Breakpoint, bool) { return m.bps.get(id) }

// SetBreakpointEnabled toggles a breakpoint.
func (m *Manager) SetBreakpointEnabled(id string, enabled bool) bool {
	return m.bps.setEnabled(id, enabled)
}

// RequestPause asks the running script to pause at its next checked line.
func (m *Manager) RequestPause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseRequested = true
}

// Resume unblocks a paused script with the given command. Stepping escalates
// the mode to Full so every line is observed.
func (m *Manager) Resume(cmd StepKind) error {
	if m.State() != StatePaused {
		return core.NewValidationError("state", "not paused")
	}
	switch cmd {
	case CommandStepInto, CommandStepOver, CommandStepOut:
		if m.Mode().Kind != ModeFull {
			m.SetMode(Mode{Kind: ModeFull})
		}
	case CommandContinue, CommandTerminate:
	default:
		return core.NewValidationError("command", "unknown resume command: "+string(cmd))
	}
	m.resume <- cmd
	return nil
}

// SetStack replaces the cached stack trace. The script adapter keeps it
// monotonically updated; DAP bridges may prime it directly.
func (m *Manager) SetStack(frames []StackFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stack = append([]StackFrame(nil), frames...)
}

// StackTrace returns the cached stack, outermost frame last.
func (m *Manager) StackTrace() []StackFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StackFrame(nil), m.stack...)
}

// CacheVariables stores a variable set for the current pause and returns its
// variablesReference. References are stable within a pause only.
func (m *Manager) CacheVariables(vars []Variable) int { return m.vars.cache(vars) }

// Variables resolves a variablesReference issued during the current pause.
func (m *Manager) Variables(ref int) ([]Variable, error) {
	vars, ok := m.vars.lookup(ref)
	if !ok {
		return nil, core.NewNotFoundError("debug", "unknown variables reference")
	}
	return vars, nil
}

// OnLine is the script adapter's per-line callback. It decides whether to
// pause and, when pausing, publishes the stopped event and blocks until a
// resume command arrives. The return value is false when the script must
// terminate.
func (m *Manager) OnLine(source string, line, depth int) bool {
	m.mu.Lock()
	if m.state != StateRunning {
		terminated := m.state == StateTerminated
		m.mu.Unlock()
		return !terminated
	}
	mode := m.mode
	m.lineCounter++
	counter := m.lineCounter
	m.mu.Unlock()

	switch mode.Kind {
	case ModeDisabled:
		return true
	case ModeMinimal:
		if counter%mode.CheckInterval != 0 && !m.hasWorkAt(source, line) {
			return true
		}
	}

	reason, bpID, warnings, pause := m.shouldPause(source, line, depth)
	if !pause {
		return true
	}
	return m.pause(StoppedEvent{
		Reason:       reason,
		Source:       source,
		Line:         line,
		ThreadID:     1,
		BreakpointID: bpID,
		Warnings:     warnings,
	}, depth)
}

// hasWorkAt lets Minimal mode react to exact breakpoint lines between
// check intervals.
func (m *Manager) hasWorkAt(source string, line int) bool {
	if len(m.bps.at(source, line)) > 0 {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseRequested
}

// shouldPause checks, in order: explicit pause, a satisfied step, a matching
// breakpoint.
func (m *Manager) shouldPause(source string, line, depth int) (StopReason, string, []string, bool) {
	m.mu.Lock()
	if m.pauseRequested {
		m.pauseRequested = false
		m.mu.Unlock()
		return StopPause, "", nil, true
	}
	if m.stepActive {
		satisfied := false
		switch m.stepKind {
		case CommandStepInto:
			satisfied = true
		case CommandStepOver:
			satisfied = depth <= m.stepDepth
		case CommandStepOut:
			satisfied = depth < m.stepDepth
		}
		if satisfied {
			m.stepActive = false
			m.mu.Unlock()
			return StopStep, "", nil, true
		}
	}
	evaluator := m.evaluator
	m.mu.Unlock()

	var warnings []string
	for _, bp := range m.bps.at(source, line) {
		matched := true
		if bp.Condition != "" {
			if evaluator == nil {
				warnings = append(warnings, "no condition evaluator for breakpoint "+bp.ID)
				matched = false
			} else if ok, err := evaluator(bp.Condition); err != nil {
				// Condition errors are warnings, never pauses.
				warnings = append(warnings, "breakpoint condition failed: "+err.Error())
				m.LogWarn("breakpoint condition failed", "breakpoint", bp.ID, "error", err)
				matched = false
			} else {
				matched = ok
			}
		}
		if matched {
			m.bps.recordHit(bp.ID)
			return StopBreakpoint, bp.ID, warnings, true
		}
	}
	if len(warnings) > 0 {
		m.LogDebug("breakpoint not matched", "source", source, "line", line, "warnings", len(warnings))
	}
	return "", "", warnings, false
}

// pause publishes the stopped event and blocks until resumed. Returns false
// when the resume command terminates the script.
func (m *Manager) pause(ev StoppedEvent, depth int) bool {
	m.mu.Lock()
	m.state = StatePaused
	cb := m.onStopped
	m.mu.Unlock()

	if cb != nil {
		cb(ev)
	}

	cmd := <-m.resume

	m.mu.Lock()
	defer m.mu.Unlock()
	// References from the previous pause are invalid after any resume.
	m.vars.invalidate()
	switch cmd {
	case CommandTerminate:
		m.state = StateTerminated
		return false
	case CommandStepInto, CommandStepOver, CommandStepOut:
		m.stepActive = true
		m.stepKind = cmd
		m.stepDepth = depth
	}
	m.state = StateRunning
	return true
}

// OnScriptError recovers an unhandled script error into the stopped
// notification path and terminates.
func (m *Manager) OnScriptError(source string, line int, err error) {
	m.mu.Lock()
	m.state = StateTerminated
	cb := m.onStopped
	m.mu.Unlock()
	if cb != nil {
		cb(StoppedEvent{
			Reason:      StopError,
			Source:      source,
			Line:        line,
			ThreadID:    1,
			Description: err.Error(),
		})
	}
}

// Handler adapts the manager to the hook multiplexer so it can coexist with
// profilers and other handlers on the single hook slot.
func (m *Manager) Handler(priority int) Handler {
	return &managerHandler{m: m, priority: priority}
}

type managerHandler struct {
	m        *Manager
	priority int
}

func (h *managerHandler) Name() string  { return "execution-manager" }
func (h *managerHandler) Priority() int { return h.priority }

// InterestedEvents mirrors the debug mode: Disabled requests nothing, so no
// debug events fire while other handlers keep working.
func (h *managerHandler) InterestedEvents() InterestSet {
	switch h.m.Mode().Kind {
	case ModeFull:
		return InterestSet{EveryLine: true}
	case ModeMinimal:
		return InterestSet{EveryLine: true, EveryNthInstruction: h.m.Mode().CheckInterval}
	default:
		return InterestSet{}
	}
}

func (h *managerHandler) OnEvent(ev HookEvent) {
	if ev.Kind == EventLine {
		h.m.OnLine(ev.Source, ev.Line, ev.Depth)
	}
}
