package kernel

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// wsFrame is the JSON encoding of one multipart frame. Parts are base64 in
// transit, which encoding/json handles for byte slices.
type wsFrame struct {
	Parts [][]byte `json:"parts"`
}

// WSTransport carries the five channels over WebSocket connections, one
// listener per channel port, frames as JSON. It exists for clients that
// cannot speak ZeroMQ (browsers, IDE plugins).
type WSTransport struct {
	mu        sync.Mutex
	listeners map[Channel]net.Listener
	servers   map[Channel]*http.Server
	conns     map[Channel]*websocket.Conn
	rx        map[Channel]chan [][]byte
	hbEcho    chan struct{}
	upgrader  websocket.Upgrader
	closed    bool

	*core.LoggerAdapter
}

var _ Transport = (*WSTransport)(nil)

// WSOptions configures a WSTransport.
type WSOptions struct {
	// BufferSize bounds each channel's pending frame queue.
	BufferSize int
	// Logger receives transport diagnostics.
	Logger logging.Logger
}

// NewWSTransport creates an unbound WebSocket transport.
func NewWSTransport(optFns ...func(o *WSOptions)) *WSTransport {
	opts := WSOptions{BufferSize: 128}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 128
	}
	t := &WSTransport{
		listeners:     map[Channel]net.Listener{},
		servers:       map[Channel]*http.Server{},
		conns:         map[Channel]*websocket.Conn{},
		rx:            map[Channel]chan [][]byte{},
		hbEcho:        make(chan struct{}, 16),
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
	for _, ch := range Channels() {
		t.rx[ch] = make(chan [][]byte, opts.BufferSize)
	}
	return t
}

// Bind implements Transport.
func (t *WSTransport) Bind(config *ConnectionFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	config.Transport = "ws"

	for _, ch := range Channels() {
		ch := ch
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", config.IP, config.Port(ch)))
		if err != nil {
			return core.NewComponentError("kernel", "bind failed on "+string(ch), err)
		}
		t.listeners[ch] = ln
		if addr, ok := ln.Addr().(*net.TCPAddr); ok {
			config.SetPort(ch, addr.Port)
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			t.accept(ch, w, r)
		})
		srv := &http.Server{Handler: mux}
		t.servers[ch] = srv
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				t.LogWarn("websocket serve stopped", "channel", ch, "error", err)
			}
		}()
	}
	return nil
}

// accept upgrades one client connection and pumps its frames. Accept errors
// are logged and recovered; the listener keeps serving.
func (t *WSTransport) accept(ch Channel, w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.LogWarn("websocket upgrade failed", "channel", ch, "error", err)
		return
	}
	t.mu.Lock()
	t.conns[ch] = conn
	t.mu.Unlock()
	t.pump(ch, conn, ch == ChannelHeartbeat)
}

// Connect implements Transport.
func (t *WSTransport) Connect(config ConnectionFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range Channels() {
		url := fmt.Sprintf("ws://%s:%d/", config.IP, config.Port(ch))
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return core.NewComponentError("kernel", "connect failed on "+string(ch), err)
		}
		t.conns[ch] = conn
		go t.pump(ch, conn, false)
	}
	return nil
}

// pump reads frames from one connection into the channel buffer. When echo
// is set (server-side heartbeat) frames bounce straight back instead.
func (t *WSTransport) pump(ch Channel, conn *websocket.Conn, echo bool) {
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if echo {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			select {
			case t.hbEcho <- struct{}{}:
			default:
			}
			continue
		}
		select {
		case t.rx[ch] <- frame.Parts:
		default:
			t.LogWarn("channel buffer full, frame dropped", "channel", ch)
		}
	}
}

// Send implements Transport.
func (t *WSTransport) Send(channel Channel, parts [][]byte) error {
	t.mu.Lock()
	conn, ok := t.conns[channel]
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return core.NewComponentError("kernel", "send on closed transport", nil)
	}
	if !ok || conn == nil {
		return core.NewComponentError("kernel", "no peer on channel "+string(channel), nil)
	}
	data, err := json.Marshal(wsFrame{Parts: parts})
	if err != nil {
		return core.NewComponentError("kernel", "frame encode failed", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return core.NewComponentError("kernel", "send failed on "+string(channel), err)
	}
	return nil
}

// Recv implements Transport.
func (t *WSTransport) Recv(channel Channel) ([][]byte, bool, error) {
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

// Heartbeat implements Transport; reports whether an echo occurred since the
// last call.
func (t *WSTransport) Heartbeat() (bool, error) {
	select {
	case <-t.hbEcho:
		return true, nil
	default:
		return false, nil
	}
}

// HasChannel implements Transport.
func (t *WSTransport) HasChannel(channel Channel) bool {
	_, ok := t.rx[channel]
	return ok
}

// Channels implements Transport.
func (t *WSTransport) Channels() []Channel { return Channels() }

// Close implements Transport.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, conn := range t.conns {
		_ = conn.Close()
	}
	for _, srv := range t.servers {
		_ = srv.Close()
	}
	return nil
}
