package kernel

import (
	"sync"

	"github.com/lexlapax/go-llmspell/core"
)

// inprocEndpoint is one side of a paired in-process transport. Frames move
// through bounded channels; Recv drains without blocking, matching the
// EAGAIN semantics of the socket transports.
type inprocEndpoint struct {
	mu     sync.Mutex
	closed bool
	in     map[Channel]chan [][]byte
	out    map[Channel]chan [][]byte
}

var _ Transport = (*inprocEndpoint)(nil)

// NewInprocPair creates a connected transport pair for in-process kernels
// and tests. Both ends carry all five channels with the given buffer depth.
func NewInprocPair(bufferSize int) (server, client Transport) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	aToB := map[Channel]chan [][]byte{}
	bToA := map[Channel]chan [][]byte{}
	for _, ch := range Channels() {
		aToB[ch] = make(chan [][]byte, bufferSize)
		bToA[ch] = make(chan [][]byte, bufferSize)
	}
	return &inprocEndpoint{in: bToA, out: aToB}, &inprocEndpoint{in: aToB, out: bToA}
}

// Bind implements Transport. The pair is wired at construction; channels are
// reported as bound on loopback port 0.
func (t *inprocEndpoint) Bind(config *ConnectionFile) error {
	config.Transport = "inproc"
	return nil
}

// Connect implements Transport.
func (t *inprocEndpoint) Connect(config ConnectionFile) error { return nil }

// Send implements Transport.
func (t *inprocEndpoint) Send(channel Channel, parts [][]byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return core.NewComponentError("kernel", "send on closed transport", nil)
	}
	ch, ok := t.out[channel]
	if !ok {
		return core.NewValidationError("channel", "unknown channel: "+string(channel))
	}
	select {
	case ch <- parts:
		return nil
	default:
		return core.NewResourceError("transport_buffer", "channel buffer full: "+string(channel))
	}
}

// Recv implements Transport.
func (t *inprocEndpoint) Recv(channel Channel) ([][]byte, bool, error) {
	ch, ok := t.in[channel]
	if !ok {
		return nil, false, core.NewValidationError("channel", "unknown channel: "+string(channel))
	}
	select {
	case parts := <-ch:
		return parts, true, nil
	default:
		return nil, false, nil
	}
}

// Heartbeat implements Transport: echo-immediate, bypassing the router.
func (t *inprocEndpoint) Heartbeat() (bool, error) {
	parts, ok, err := t.Recv(ChannelHeartbeat)
	if err != nil || !ok {
		return false, err
	}
	return true, t.Send(ChannelHeartbeat, parts)
}

// HasChannel implements Transport.
func (t *inprocEndpoint) HasChannel(channel Channel) bool {
	_, ok := t.in[channel]
	return ok
}

// Channels implements Transport.
func (t *inprocEndpoint) Channels() []Channel { return Channels() }

// Close implements Transport.
func (t *inprocEndpoint) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
