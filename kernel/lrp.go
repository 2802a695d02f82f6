package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/logging"
)

// Metadata keys carrying the wire header through routing, so broadcast
// parenting survives the WireMessage -> UniversalMessage conversion.
const (
	metaWireMsgID   = "wire_msg_id"
	metaWireSession = "wire_session"
	metaWireMsgType = "wire_msg_type"
)

// stampWireHeader records the request's wire header in message metadata.
func stampWireHeader(msg *UniversalMessage, header Header) {
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	msg.Metadata[metaWireMsgID] = header.MsgID
	msg.Metadata[metaWireSession] = header.Session
	msg.Metadata[metaWireMsgType] = header.MsgType
}

// parentFromMetadata rebuilds the broadcast parent from stamped metadata.
func parentFromMetadata(metadata map[string]string) WireMessage {
	return WireMessage{Header: Header{
		MsgID:   metadata[metaWireMsgID],
		Session: metadata[metaWireSession],
		MsgType: metadata[metaWireMsgType],
		Version: ProtocolVersion,
	}}
}

// LRPOptions configures the runtime protocol handlers.
type LRPOptions struct {
	// OnShutdown is invoked after a shutdown reply is produced. The restart
	// flag is passed through from the request.
	OnShutdown func(restart bool)
	// Logger receives handler diagnostics.
	Logger logging.Logger
}

// LRP implements the runtime protocol: script execution, completion and
// lifecycle over the Shell and Control channels, with side output broadcast
// on IOPub.
type LRP struct {
	mu         sync.Mutex
	eng        engine.ScriptEngine
	iopub      *IOPub
	execCount  int
	execCancel context.CancelFunc
	onShutdown func(restart bool)

	*core.LoggerAdapter
}

// NewLRP creates the runtime protocol handler set.
func NewLRP(eng engine.ScriptEngine, iopub *IOPub, optFns ...func(o *LRPOptions)) *LRP {
	opts := LRPOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LRP{
		eng:           eng,
		iopub:         iopub,
		onShutdown:    opts.OnShutdown,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// Register installs the handlers on their channels: requests on Shell,
// lifecycle on Control.
func (l *LRP) Register(router *Router) error {
	if err := router.Register("lrp_shell", ProtocolLRP, ChannelShell, l.handleShell); err != nil {
		return err
	}
	return router.Register("lrp_control", ProtocolLRP, ChannelControl, l.handleControl)
}

// handleShell dispatches Shell-channel requests. Unknown methods produce an
// error reply on the same channel, never a dropped message.
func (l *LRP) handleShell(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
	req, ok := msg.Content.(Request)
	if !ok {
		return nil, core.NewValidationError("content", "shell message is not a request")
	}
	switch req.Method {
	case "kernel_info":
		return l.kernelInfo(msg)
	case "execute":
		return l.execute(ctx, msg, req)
	case "complete":
		return l.complete(msg, req)
	default:
		reply := msg.ReplyTo(nil, &ErrorInfo{
			Code:    "unknown_method",
			Message: "unknown shell method: " + req.Method,
		})
		return &reply, nil
	}
}

// handleControl dispatches Control-channel requests. Control stays responsive
// while Shell is busy executing.
func (l *LRP) handleControl(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
	req, ok := msg.Content.(Request)
	if !ok {
		return nil, core.NewValidationError("content", "control message is not a request")
	}
	switch req.Method {
	case "interrupt":
		return l.interrupt(msg)
	case "shutdown":
		return l.shutdown(msg, req)
	default:
		reply := msg.ReplyTo(nil, &ErrorInfo{
			Code:    "unknown_method",
			Message: "unknown control method: " + req.Method,
		})
		return &reply, nil
	}
}

func (l *LRP) kernelInfo(msg UniversalMessage) (*UniversalMessage, error) {
	reply := msg.ReplyTo(map[string]any{
		"status":                 "ok",
		"implementation":         "llmspell",
		"protocol_version":       ProtocolVersion,
		"language_info":          map[string]any{"name": l.eng.Name()},
		"supports_streaming":     l.eng.SupportsStreaming(),
		"supports_debug_adapter": true,
	}, nil)
	return &reply, nil
}

// execute runs a script. The busy status broadcast precedes any output and
// the idle broadcast follows the result, so every client observes
// busy -> output -> idle around each reply.
func (l *LRP) execute(ctx context.Context, msg UniversalMessage, req Request) (*UniversalMessage, error) {
	code, _ := req.Params["code"].(string)
	if code == "" {
		reply := msg.ReplyTo(nil, &ErrorInfo{Code: "invalid_request", Message: "execute requires code"})
		return &reply, nil
	}
	parent := parentFromMetadata(msg.Metadata)

	l.mu.Lock()
	l.execCount++
	count := l.execCount
	execCtx, cancel := context.WithCancel(ctx)
	l.execCancel = cancel
	l.mu.Unlock()
	defer func() {
		cancel()
		l.mu.Lock()
		l.execCancel = nil
		l.mu.Unlock()
	}()

	var (
		out     core.ScriptOutput
		execErr error
	)
	statusErr := l.iopub.WithStatus(parent, func() error {
		out, execErr = l.eng.Execute(execCtx, code)
		if execErr != nil {
			ename := "ExecutionError"
			if core.IsKind(execErr, core.ErrCancelled) {
				ename = "Interrupted"
			} else if core.IsKind(execErr, core.ErrTimeout) {
				ename = "Timeout"
			}
			if err := l.iopub.PublishError(parent, ename, execErr.Error(), nil); err != nil {
				l.LogWarn("error broadcast failed", "error", err)
			}
			return nil
		}
		if out.Value != nil {
			data := map[string]any{"text/plain": fmt.Sprintf("%v", out.Value)}
			if err := l.iopub.PublishExecuteResult(parent, count, data); err != nil {
				l.LogWarn("result broadcast failed", "error", err)
			}
		}
		return nil
	})
	if statusErr != nil {
		return nil, statusErr
	}

	if execErr != nil {
		reply := msg.ReplyTo(map[string]any{
			"status":          "error",
			"execution_count": count,
		}, &ErrorInfo{Code: "execution_failed", Message: execErr.Error()})
		return &reply, nil
	}
	reply := msg.ReplyTo(map[string]any{
		"status":          "ok",
		"execution_count": count,
		"value":           out.Value,
	}, nil)
	return &reply, nil
}

func (l *LRP) complete(msg UniversalMessage, req Request) (*UniversalMessage, error) {
	code, _ := req.Params["code"].(string)
	cursor := len(code)
	if v, ok := req.Params["cursor_pos"].(float64); ok {
		cursor = int(v)
	}
	candidates := l.eng.CompletionCandidates(code, cursor)
	matches := make([]any, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, c.Replace)
	}
	reply := msg.ReplyTo(map[string]any{
		"status":     "ok",
		"matches":    matches,
		"cursor_pos": cursor,
	}, nil)
	return &reply, nil
}

// interrupt cancels the in-flight execution, if any. Interrupting an idle
// kernel succeeds as a no-op.
func (l *LRP) interrupt(msg UniversalMessage) (*UniversalMessage, error) {
	l.mu.Lock()
	cancel := l.execCancel
	l.mu.Unlock()
	interrupted := cancel != nil
	if interrupted {
		cancel()
	}
	reply := msg.ReplyTo(map[string]any{"status": "ok", "interrupted": interrupted}, nil)
	return &reply, nil
}

func (l *LRP) shutdown(msg UniversalMessage, req Request) (*UniversalMessage, error) {
	restart, _ := req.Params["restart"].(bool)
	reply := msg.ReplyTo(map[string]any{"status": "ok", "restart": restart}, nil)
	if l.onShutdown != nil {
		l.onShutdown(restart)
	}
	return &reply, nil
}

// ExecutionCount reports how many execute requests have run.
func (l *LRP) ExecutionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.execCount
}
