package kernel

// Transport moves multipart frames over the five logical channels. One
// transport instance is either bound (server side) or connected (client
// side), never both.
//
// Implementations must:
//   - Make Recv non-blocking: (nil, false, nil) when no frame is pending
//   - Keep per-channel frame order
//   - Be safe for one sender and one receiver goroutine per channel
type Transport interface {
	// Bind binds the server side of every channel. Bind failure is fatal to
	// kernel startup. Ephemeral port requests (port 0) are resolved and
	// written back into config.
	Bind(config *ConnectionFile) error

	// Connect connects the client side of every channel.
	Connect(config ConnectionFile) error

	// Send writes one multipart frame to a channel.
	Send(channel Channel, parts [][]byte) error

	// Recv returns the next pending frame on a channel, if any.
	Recv(channel Channel) ([][]byte, bool, error)

	// Heartbeat echoes one pending heartbeat frame back to its sender and
	// reports whether anything was echoed. No pending frame is not an error.
	Heartbeat() (bool, error)

	// HasChannel reports whether the transport carries the channel.
	HasChannel(channel Channel) bool

	// Channels lists the channels this transport carries.
	Channels() []Channel

	// Close releases every socket.
	Close() error
}
