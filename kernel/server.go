package kernel

import (
	"context"
	"strings"
	"time"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/debug"
	"github.com/lexlapax/go-llmspell/engine"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/logging"
)

// ServerOptions configures a kernel server.
type ServerOptions struct {
	// ID identifies the kernel; defaults to a fresh id.
	ID string
	// Transport carries the channels; defaults to ZeroMQ.
	Transport Transport
	// Key signs wire frames; empty generates a random key.
	Key string
	// DebugManager is the execution manager the debug bridge drives. Nil
	// creates one.
	DebugManager *debug.Manager
	// Bus mirrors IOPub broadcasts in-process.
	Bus *event.Bus
	// PollInterval is the serve loop's idle sleep. Defaults to 5ms.
	PollInterval time.Duration
	// ConnectionDir overrides where the connection file is written. Empty
	// uses the default path under the home directory.
	ConnectionDir string
	// Logger receives server diagnostics.
	Logger logging.Logger
}

// Server is a running kernel: a bound transport, the signed wire codec, the
// message router and the LRP/LDP protocol handlers around one script engine.
type Server struct {
	id        string
	session   string
	config    ConnectionFile
	transport Transport
	signer    *Signer
	router    *Router
	iopub     *IOPub
	lrp       *LRP
	ldp       *LDP
	mgr       *debug.Manager
	poll      time.Duration
	shutdown  chan struct{}

	*core.LoggerAdapter
}

// NewServer assembles a kernel around a script engine and binds its
// transport. Bind failure is fatal; a kernel that cannot open its channels
// does not limp along half-connected.
func NewServer(eng engine.ScriptEngine, optFns ...func(o *ServerOptions)) (*Server, error) {
	if eng == nil {
		return nil, core.NewValidationError("engine", "engine must not be nil")
	}
	opts := ServerOptions{PollInterval: 5 * time.Millisecond}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = core.NewID()
	}
	if opts.Key == "" {
		key, err := NewRandomKey()
		if err != nil {
			return nil, err
		}
		opts.Key = key
	}
	if opts.Transport == nil {
		opts.Transport = NewZMQTransport(func(o *ZMQOptions) { o.Logger = opts.Logger })
	}
	if opts.DebugManager == nil {
		opts.DebugManager = debug.NewManager(func(o *debug.ManagerOptions) { o.Logger = opts.Logger })
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Millisecond
	}

	config := NewConnectionFile(opts.Key, "llmspell-"+eng.Name())
	if err := opts.Transport.Bind(&config); err != nil {
		return nil, err
	}

	signer := NewSigner(opts.Key)
	session := core.NewID()
	iopub := NewIOPub(session, opts.Transport, signer, func(o *IOPubOptions) {
		o.Bus = opts.Bus
		o.Logger = opts.Logger
	})

	s := &Server{
		id:            opts.ID,
		session:       session,
		config:        config,
		transport:     opts.Transport,
		signer:        signer,
		router:        NewRouter(opts.Logger),
		iopub:         iopub,
		mgr:           opts.DebugManager,
		poll:          opts.PollInterval,
		shutdown:      make(chan struct{}),
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
	s.lrp = NewLRP(eng, iopub, func(o *LRPOptions) {
		o.OnShutdown = func(bool) { s.Shutdown() }
		o.Logger = opts.Logger
	})
	s.ldp = NewLDP(opts.DebugManager, iopub, func(o *LDPOptions) { o.Logger = opts.Logger })

	if err := s.lrp.Register(s.router); err != nil {
		return nil, err
	}
	if err := s.ldp.Register(s.router); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the kernel id.
func (s *Server) ID() string { return s.id }

// ConnectionInfo returns the bound connection document.
func (s *Server) ConnectionInfo() ConnectionFile { return s.config }

// Router exposes the message router for extra handler registration.
func (s *Server) Router() *Router { return s.router }

// IOPub exposes the broadcaster.
func (s *Server) IOPub() *IOPub { return s.iopub }

// DebugManager exposes the execution manager for engine adapters.
func (s *Server) DebugManager() *debug.Manager { return s.mgr }

// WriteConnectionFile persists the connection document at the predictable
// per-kernel path and returns it.
func (s *Server) WriteConnectionFile() (string, error) {
	path, err := DefaultPath(s.id)
	if err != nil {
		return "", err
	}
	if err := s.config.Write(path); err != nil {
		return "", err
	}
	return path, nil
}

// Shutdown asks the serve loop to stop.
func (s *Server) Shutdown() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}

// Serve runs the kernel loop until the context is cancelled or a shutdown
// request arrives: heartbeat echoes bypass the router entirely, request
// channels drain through parse, verify and route. Malformed or unsigned
// frames are dropped and logged, never fatal.
func (s *Server) Serve(ctx context.Context) error {
	s.LogInfo("kernel serving", "kernel_id", s.id, "transport", s.config.Transport)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return core.NewCancelledError("kernel stopped: " + ctx.Err().Error())
		case <-s.shutdown:
			s.LogInfo("kernel shutdown", "kernel_id", s.id)
			return nil
		case <-ticker.C:
		}

		if _, err := s.transport.Heartbeat(); err != nil {
			s.LogWarn("heartbeat failed", "error", err)
		}
		for _, channel := range []Channel{ChannelShell, ChannelControl} {
			s.drain(ctx, channel)
		}
	}
}

// drain processes every pending frame on one channel.
func (s *Server) drain(ctx context.Context, channel Channel) {
	for {
		parts, ok, err := s.transport.Recv(channel)
		if err != nil {
			s.LogWarn("recv failed", "channel", channel, "error", err)
			return
		}
		if !ok {
			return
		}
		s.dispatch(ctx, channel, parts)
	}
}

// dispatch parses, routes and replies to one frame.
func (s *Server) dispatch(ctx context.Context, channel Channel, parts [][]byte) {
	wire, err := ParseWire(parts, s.signer)
	if err != nil {
		s.LogWarn("frame rejected", "channel", channel, "error", err)
		return
	}

	msg, err := universalFromWire(wire, channel)
	if err != nil {
		s.LogWarn("frame not routable", "channel", channel, "error", err)
		return
	}

	_, replies, err := s.router.Route(ctx, msg)
	if err != nil {
		s.LogError("routing failed", "channel", channel, "message_id", msg.ID, "error", err)
	}
	for _, reply := range replies {
		s.sendReply(channel, wire, reply)
	}
}

// sendReply serializes one routed reply back onto the request's channel.
func (s *Server) sendReply(channel Channel, request WireMessage, reply UniversalMessage) {
	resp, ok := reply.Content.(Response)
	if !ok {
		s.LogWarn("reply content is not a response", "message_id", reply.ID)
		return
	}
	var content map[string]any
	if request.Header.MsgType == "debug_request" {
		content = dapResponse(request.Content, resp)
	} else if resp.Error != nil {
		content = map[string]any{
			"status": "error",
			"ename":  resp.Error.Code,
			"evalue": resp.Error.Message,
		}
	} else {
		content = resp.Result
	}
	frame := request.Reply(replyMsgType(request.Header.MsgType), content)
	out, err := frame.Serialize(s.signer)
	if err != nil {
		s.LogError("reply encode failed", "message_id", reply.ID, "error", err)
		return
	}
	if err := s.transport.Send(channel, out); err != nil {
		s.LogError("reply send failed", "channel", channel, "error", err)
	}
}

// dapResponse wraps a routed reply in the debug adapter response envelope:
// {seq, type, request_seq, success, command, body?, message?}.
func dapResponse(requestContent map[string]any, resp Response) map[string]any {
	command, _ := requestContent["command"].(string)
	out := map[string]any{
		"type":        "response",
		"command":     command,
		"request_seq": requestContent["seq"],
		"success":     resp.Error == nil,
	}
	if resp.Error != nil {
		out["message"] = resp.Error.Message
	} else {
		out["body"] = resp.Result
	}
	return out
}

// universalFromWire lifts a parsed frame into the routed message shape.
// LRP requests use msg_type "<method>_request" with the content as params;
// LDP requests use msg_type "debug_request" with {command, arguments}.
func universalFromWire(wire WireMessage, channel Channel) (UniversalMessage, error) {
	msgType := wire.Header.MsgType
	var msg UniversalMessage

	if msgType == "debug_request" {
		command, _ := wire.Content["command"].(string)
		if command == "" {
			return UniversalMessage{}, core.NewValidationError("content", "debug_request without command")
		}
		arguments, _ := wire.Content["arguments"].(map[string]any)
		msg = NewRequest(ProtocolLDP, channel, command, arguments)
	} else if method, ok := strings.CutSuffix(msgType, "_request"); ok {
		msg = NewRequest(ProtocolLRP, channel, method, wire.Content)
	} else {
		return UniversalMessage{}, core.NewValidationError("msg_type", "not a request: "+msgType)
	}

	msg.ID = wire.Header.MsgID
	stampWireHeader(&msg, wire.Header)
	return msg, nil
}

// replyMsgType maps a request msg_type to its reply msg_type.
func replyMsgType(requestType string) string {
	if requestType == "debug_request" {
		return "debug_reply"
	}
	if method, ok := strings.CutSuffix(requestType, "_request"); ok {
		return method + "_reply"
	}
	return requestType + "_reply"
}

// Close stops the loop and releases the transport.
func (s *Server) Close() error {
	s.Shutdown()
	return s.transport.Close()
}
