package kernel

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// ZMQTransport carries the five channels over ZeroMQ sockets with the
// conventional patterns: Router for Shell/Stdin/Control, Pub/Sub for IOPub
// and Rep/Req-style echo for Heartbeat.
//
// Socket reads happen on internal pump goroutines feeding bounded buffers so
// Recv never blocks the caller.
type ZMQTransport struct {
	mu      sync.Mutex
	sockets map[Channel]zmq4.Socket
	rx      map[Channel]chan [][]byte
	hbEcho  chan struct{}
	cancel  context.CancelFunc
	server  bool

	*core.LoggerAdapter
}

var _ Transport = (*ZMQTransport)(nil)

// ZMQOptions configures a ZMQTransport.
type ZMQOptions struct {
	// BufferSize bounds each channel's pending frame queue.
	BufferSize int
	// Logger receives transport diagnostics.
	Logger logging.Logger
}

// NewZMQTransport creates an unbound transport.
func NewZMQTransport(optFns ...func(o *ZMQOptions)) *ZMQTransport {
	opts := ZMQOptions{BufferSize: 128}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 128
	}
	t := &ZMQTransport{
		sockets:       map[Channel]zmq4.Socket{},
		rx:            map[Channel]chan [][]byte{},
		hbEcho:        make(chan struct{}, 16),
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
	for _, ch := range Channels() {
		t.rx[ch] = make(chan [][]byte, opts.BufferSize)
	}
	return t
}

// Bind implements Transport. Each channel binds to the configured port; port
// 0 requests an ephemeral port which is written back into config.
func (t *ZMQTransport) Bind(config *ConnectionFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.server = true

	t.sockets[ChannelShell] = zmq4.NewRouter(ctx)
	t.sockets[ChannelIOPub] = zmq4.NewPub(ctx)
	t.sockets[ChannelStdin] = zmq4.NewRouter(ctx)
	t.sockets[ChannelControl] = zmq4.NewRouter(ctx)
	t.sockets[ChannelHeartbeat] = zmq4.NewRep(ctx)

	for _, ch := range Channels() {
		endpoint := fmt.Sprintf("tcp://%s:%d", config.IP, config.Port(ch))
		if err := t.sockets[ch].Listen(endpoint); err != nil {
			cancel()
			return core.NewComponentError("kernel", "bind failed on "+string(ch), err)
		}
		if addr, ok := t.sockets[ch].Addr().(*net.TCPAddr); ok {
			config.SetPort(ch, addr.Port)
		}
	}

	// Heartbeat echoes on its own pump so the Rep send/recv alternation
	// never leaves this goroutine.
	go t.heartbeatPump(ctx, t.sockets[ChannelHeartbeat])
	for _, ch := range []Channel{ChannelShell, ChannelStdin, ChannelControl} {
		go t.pump(ctx, ch, t.sockets[ch])
	}
	return nil
}

// Connect implements Transport.
func (t *ZMQTransport) Connect(config ConnectionFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.sockets[ChannelShell] = zmq4.NewDealer(ctx)
	sub := zmq4.NewSub(ctx)
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		cancel()
		return core.NewComponentError("kernel", "iopub subscribe failed", err)
	}
	t.sockets[ChannelIOPub] = sub
	t.sockets[ChannelStdin] = zmq4.NewDealer(ctx)
	t.sockets[ChannelControl] = zmq4.NewDealer(ctx)
	t.sockets[ChannelHeartbeat] = zmq4.NewReq(ctx)

	for _, ch := range Channels() {
		endpoint := fmt.Sprintf("tcp://%s:%d", config.IP, config.Port(ch))
		if err := t.sockets[ch].Dial(endpoint); err != nil {
			cancel()
			return core.NewComponentError("kernel", "connect failed on "+string(ch), err)
		}
	}

	for _, ch := range []Channel{ChannelShell, ChannelIOPub, ChannelStdin, ChannelControl} {
		go t.pump(ctx, ch, t.sockets[ch])
	}
	return nil
}

// pump moves frames from a socket into the channel's bounded buffer.
// Overflow drops the frame and logs; the kernel never blocks on a slow
// consumer.
func (t *ZMQTransport) pump(ctx context.Context, ch Channel, sock zmq4.Socket) {
	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.LogWarn("socket recv failed", "channel", ch, "error", err)
			return
		}
		select {
		case t.rx[ch] <- msg.Frames:
		default:
			t.LogWarn("channel buffer full, frame dropped", "channel", ch)
		}
	}
}

// heartbeatPump echoes every frame immediately on the Rep socket, recording
// the echo so Heartbeat can report liveness.
func (t *ZMQTransport) heartbeatPump(ctx context.Context, sock zmq4.Socket) {
	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.LogWarn("heartbeat recv failed", "error", err)
			return
		}
		if err := sock.Send(msg); err != nil {
			t.LogWarn("heartbeat echo failed", "error", err)
			return
		}
		select {
		case t.hbEcho <- struct{}{}:
		default:
		}
	}
}

// Send implements Transport.
func (t *ZMQTransport) Send(channel Channel, parts [][]byte) error {
	t.mu.Lock()
	sock, ok := t.sockets[channel]
	t.mu.Unlock()
	if !ok {
		return core.NewValidationError("channel", "unknown channel: "+string(channel))
	}
	if err := sock.Send(zmq4.NewMsgFrom(parts...)); err != nil {
		return core.NewComponentError("kernel", "send failed on "+string(channel), err)
	}
	return nil
}

// Recv implements Transport.
func (t *ZMQTransport) Recv(channel Channel) ([][]byte, bool, error) {
	buf, ok := t.rx[channel]
	if !ok {
		return nil, false, core.NewValidationError("channel", "unknown channel: "+string(channel))
	}
	select {
	case parts := <-buf:
		return parts, true, nil
	default:
		return nil, false, nil
	}
}

// Heartbeat implements Transport. On the server side echoes happen on the
// pump; this reports whether one occurred since the last call.
func (t *ZMQTransport) Heartbeat() (bool, error) {
	select {
	case <-t.hbEcho:
		return true, nil
	default:
		return false, nil
	}
}

// HasChannel implements Transport.
func (t *ZMQTransport) HasChannel(channel Channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sockets[channel]
	return ok
}

// Channels implements Transport.
func (t *ZMQTransport) Channels() []Channel { return Channels() }

// Close implements Transport.
func (t *ZMQTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	var firstErr error
	for ch, sock := range t.sockets {
		if err := sock.Close(); err != nil && firstErr == nil {
			firstErr = core.NewComponentError("kernel", "socket close failed on "+string(ch), err)
		}
	}
	return firstErr
}
