package kernel

import (
	"context"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/logging"
)

// LDPOptions configures the debug protocol bridge.
type LDPOptions struct {
	// Logger receives bridge diagnostics.
	Logger logging.Logger
}

// LDP bridges debug adapter requests to the execution manager. Commands
// arrive on the Control channel so they stay responsive while the script is
// paused or busy; stopped events broadcast on IOPub.
type LDP struct {
	mgr   *debug.Manager
	iopub *IOPub

	*core.LoggerAdapter
}

// NewLDP creates the debug protocol bridge and wires the manager's stopped
// events to IOPub broadcasts.
func NewLDP(mgr *debug.Manager, iopub *IOPub, optFns ...func(o *LDPOptions)) *LDP {
	opts := LDPOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	l := &LDP{
		mgr:           mgr,
		iopub:         iopub,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
	mgr.SetOnStopped(l.OnStopped)
	return l
}

// OnStopped is the manager's pause callback, installed by NewLDP. It
// broadcasts the stopped event so every attached client sees the pause.
func (l *LDP) OnStopped(ev debug.StoppedEvent) {
	body := map[string]any{
		"reason":   string(ev.Reason),
		"threadId": ev.ThreadID,
		"source":   ev.Source,
		"line":     ev.Line,
	}
	if ev.Description != "" {
		body["text"] = ev.Description
	}
	if err := l.iopub.PublishDebugEvent(WireMessage{}, "stopped", body); err != nil {
		l.LogWarn("stopped event broadcast failed", "error", err)
	}
}

// Register installs the bridge on the Control channel.
func (l *LDP) Register(router *Router) error {
	return router.Register("ldp_control", ProtocolLDP, ChannelControl, l.handle)
}

func (l *LDP) handle(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
	req, ok := msg.Content.(Request)
	if !ok {
		return nil, core.NewValidationError("content", "debug message is not a request")
	}
	switch req.Method {
	case "initialize":
		return l.initialize(msg)
	case "setBreakpoints":
		return l.setBreakpoints(msg, req)
	case "stackTrace":
		return l.stackTrace(msg)
	case "variables":
		return l.variables(msg, req)
	case "continue":
		return l.resume(msg, debug.CommandContinue)
	case "next":
		return l.resume(msg, debug.CommandStepOver)
	case "stepIn":
		return l.resume(msg, debug.CommandStepInto)
	case "stepOut":
		return l.resume(msg, debug.CommandStepOut)
	case "pause":
		return l.pause(msg)
	case "terminate":
		return l.terminate(msg)
	default:
		reply := msg.ReplyTo(nil, &ErrorInfo{
			Code:    "unknown_method",
			Message: "unknown debug method: " + req.Method,
		})
		return &reply, nil
	}
}

func (l *LDP) initialize(msg UniversalMessage) (*UniversalMessage, error) {
	reply := msg.ReplyTo(map[string]any{
		"supportsConfigurationDoneRequest": true,
		"supportsConditionalBreakpoints":   true,
		"supportsTerminateRequest":         true,
		"supportsEvaluateForHovers":        true,
		"supportsStepBack":                 false,
	}, nil)
	return &reply, nil
}

// setBreakpoints replaces every breakpoint in one source with the requested
// set, the replace-not-merge semantics debug adapters expect.
func (l *LDP) setBreakpoints(msg UniversalMessage, req Request) (*UniversalMessage, error) {
	source, _ := req.Params["source"].(map[string]any)
	path, _ := source["path"].(string)
	if path == "" {
		reply := msg.ReplyTo(nil, &ErrorInfo{Code: "invalid_request", Message: "setBreakpoints requires source.path"})
		return &reply, nil
	}

	for _, bp := range l.mgr.Breakpoints() {
		if bp.Source == path {
			l.mgr.RemoveBreakpoint(bp.ID)
		}
	}

	requested, _ := req.Params["breakpoints"].([]any)
	verified := make([]any, 0, len(requested))
	for _, raw := range requested {
		spec, _ := raw.(map[string]any)
		line := 0
		if v, ok := spec["line"].(float64); ok {
			line = int(v)
		}
		condition, _ := spec["condition"].(string)
		bp := l.mgr.AddBreakpoint(path, line, condition)
		verified = append(verified, map[string]any{
			"id":       bp.ID,
			"verified": true,
			"line":     bp.Line,
		})
	}
	reply := msg.ReplyTo(map[string]any{"breakpoints": verified}, nil)
	return &reply, nil
}

func (l *LDP) stackTrace(msg UniversalMessage) (*UniversalMessage, error) {
	frames := l.mgr.StackTrace()
	out := make([]any, 0, len(frames))
	for _, f := range frames {
		out = append(out, map[string]any{
			"id":     f.ID,
			"name":   f.Name,
			"source": map[string]any{"path": f.Source},
			"line":   f.Line,
			"column": f.Column,
		})
	}
	reply := msg.ReplyTo(map[string]any{
		"stackFrames": out,
		"totalFrames": len(frames),
	}, nil)
	return &reply, nil
}

func (l *LDP) variables(msg UniversalMessage, req Request) (*UniversalMessage, error) {
	ref := 0
	if v, ok := req.Params["variablesReference"].(float64); ok {
		ref = int(v)
	}
	vars, err := l.mgr.Variables(ref)
	if err != nil {
		reply := msg.ReplyTo(nil, &ErrorInfo{Code: "unknown_reference", Message: err.Error()})
		return &reply, nil
	}
	out := make([]any, 0, len(vars))
	for _, v := range vars {
		out = append(out, map[string]any{
			"name":               v.Name,
			"value":              v.Value,
			"type":               v.Type,
			"variablesReference": v.Reference,
		})
	}
	reply := msg.ReplyTo(map[string]any{"variables": out}, nil)
	return &reply, nil
}

// resume forwards a step or continue command to the manager. Resuming a
// non-paused script is a protocol error reply, not a handler failure.
func (l *LDP) resume(msg UniversalMessage, cmd debug.StepKind) (*UniversalMessage, error) {
	if err := l.mgr.Resume(cmd); err != nil {
		reply := msg.ReplyTo(nil, &ErrorInfo{Code: "not_paused", Message: err.Error()})
		return &reply, nil
	}
	if err := l.iopub.PublishDebugEvent(WireMessage{}, "continued", map[string]any{"threadId": 1}); err != nil {
		l.LogWarn("continued event broadcast failed", "error", err)
	}
	reply := msg.ReplyTo(map[string]any{"allThreadsContinued": true}, nil)
	return &reply, nil
}

func (l *LDP) pause(msg UniversalMessage) (*UniversalMessage, error) {
	l.mgr.RequestPause()
	reply := msg.ReplyTo(map[string]any{}, nil)
	return &reply, nil
}

// terminate ends the script: a paused script is resumed with the terminate
// command, a running one is asked to stop at its next checked line.
func (l *LDP) terminate(msg UniversalMessage) (*UniversalMessage, error) {
	switch l.mgr.State() {
	case debug.StatePaused:
		if err := l.mgr.Resume(debug.CommandTerminate); err != nil {
			reply := msg.ReplyTo(nil, &ErrorInfo{Code: "terminate_failed", Message: err.Error()})
			return &reply, nil
		}
	case debug.StateRunning:
		l.mgr.RequestPause()
	}
	if err := l.iopub.PublishDebugEvent(WireMessage{}, "terminated", map[string]any{}); err != nil {
		l.LogWarn("terminated event broadcast failed", "error", err)
	}
	reply := msg.ReplyTo(map[string]any{}, nil)
	return &reply, nil
}
