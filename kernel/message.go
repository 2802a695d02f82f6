// Package kernel implements the multi-channel message server: a transport
// abstraction over five logical channels, HMAC-signed wire framing, a
// (protocol, channel) router, IOPub broadcast and the LRP/LDP protocol
// handlers bridging script execution and the debug core.
package kernel

import (
	"encoding/json"
	"fmt"

	"github.com/lexlapax/go-llmspell/core"
)

// Protocol tags the message family a UniversalMessage belongs to.
type Protocol string

const (
	// ProtocolLRP is the runtime protocol: kernel-style request/reply.
	ProtocolLRP Protocol = "lrp"
	// ProtocolLDP is the debug adapter protocol.
	ProtocolLDP Protocol = "ldp"
)

// Channel is one of the five logical message streams between kernel and
// client.
type Channel string

const (
	ChannelShell     Channel = "shell"
	ChannelIOPub     Channel = "iopub"
	ChannelStdin     Channel = "stdin"
	ChannelControl   Channel = "control"
	ChannelHeartbeat Channel = "heartbeat"
)

// Channels lists every logical channel in canonical order.
func Channels() []Channel {
	return []Channel{ChannelShell, ChannelIOPub, ChannelStdin, ChannelControl, ChannelHeartbeat}
}

// Content is the sealed union of message payload shapes.
type Content interface{ messageContent() }

// Request asks the kernel to perform a method.
type Request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

func (Request) messageContent() {}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	Result map[string]any `json:"result,omitempty"`
	Error  *ErrorInfo     `json:"error,omitempty"`
}

func (Response) messageContent() {}

// ErrorInfo is the wire shape of a failed request.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notification is a one-way event, typically broadcast on IOPub.
type Notification struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func (Notification) messageContent() {}

// UniversalMessage is the single transport-visible message shape. Every
// frame on every channel parses into one of these.
type UniversalMessage struct {
	ID       string            `json:"id"`
	Protocol Protocol          `json:"protocol"`
	Channel  Channel           `json:"channel"`
	Content  Content           `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRequest builds an LRP or LDP request message.
func NewRequest(protocol Protocol, channel Channel, method string, params map[string]any) UniversalMessage {
	return UniversalMessage{
		ID:       core.NewID(),
		Protocol: protocol,
		Channel:  channel,
		Content:  Request{Method: method, Params: params},
	}
}

// NewNotification builds a broadcast notification message.
func NewNotification(protocol Protocol, channel Channel, event string, data map[string]any) UniversalMessage {
	return UniversalMessage{
		ID:       core.NewID(),
		Protocol: protocol,
		Channel:  channel,
		Content:  Notification{Event: event, Data: data},
	}
}

// ReplyTo builds the response message for a request, preserving its id and
// channel.
func (m UniversalMessage) ReplyTo(result map[string]any, errInfo *ErrorInfo) UniversalMessage {
	return UniversalMessage{
		ID:       m.ID,
		Protocol: m.Protocol,
		Channel:  m.Channel,
		Content:  Response{Result: result, Error: errInfo},
	}
}

// wireMessage is the JSON envelope with an explicit content discriminator so
// serialization round-trips to the identical message.
type wireMessage struct {
	ID          string            `json:"id"`
	Protocol    Protocol          `json:"protocol"`
	Channel     Channel           `json:"channel"`
	ContentKind string            `json:"content_kind"`
	Content     json.RawMessage   `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler with a content kind discriminator.
func (m UniversalMessage) MarshalJSON() ([]byte, error) {
	var kind string
	switch m.Content.(type) {
	case Request:
		kind = "request"
	case Response:
		kind = "response"
	case Notification:
		kind = "notification"
	default:
		return nil, fmt.Errorf("unknown message content %T", m.Content)
	}
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{
		ID:          m.ID,
		Protocol:    m.Protocol,
		Channel:     m.Channel,
		ContentKind: kind,
		Content:     raw,
		Metadata:    m.Metadata,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *UniversalMessage) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.ID = wire.ID
	m.Protocol = wire.Protocol
	m.Channel = wire.Channel
	m.Metadata = wire.Metadata

	switch wire.ContentKind {
	case "request":
		var c Request
		if err := json.Unmarshal(wire.Content, &c); err != nil {
			return err
		}
		m.Content = c
	case "response":
		var c Response
		if err := json.Unmarshal(wire.Content, &c); err != nil {
			return err
		}
		m.Content = c
	case "notification":
		var c Notification
		if err := json.Unmarshal(wire.Content, &c); err != nil {
			return err
		}
		m.Content = c
	default:
		return fmt.Errorf("unknown message content kind %q", wire.ContentKind)
	}
	return nil
}

// AdaptProtocol re-tags a message for the other protocol family, preserving
// id, channel and content and recording the original protocol in metadata.
// The server itself never converts; this is for higher-level adapters.
func AdaptProtocol(m UniversalMessage, target Protocol) UniversalMessage {
	adapted := m
	adapted.Protocol = target
	adapted.Metadata = make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		adapted.Metadata[k] = v
	}
	adapted.Metadata["adapted_from"] = string(m.Protocol)
	return adapted
}
