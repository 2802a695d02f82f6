package kernel

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/lexlapax/go-llmspell/core"
)

// wireDelimiter separates routing identities from the signed segments in a
// multipart frame.
var wireDelimiter = []byte("<IDS|MSG>")

// ProtocolVersion is the wire protocol version stamped into headers.
const ProtocolVersion = "5.3"

// Header is the wire frame header.
type Header struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// NewHeader builds a header for an outgoing message.
func NewHeader(msgType, session string) Header {
	return Header{
		MsgID:    core.NewID(),
		Session:  session,
		Username: "kernel",
		Date:     time.Now().UTC().Format(time.RFC3339),
		MsgType:  msgType,
		Version:  ProtocolVersion,
	}
}

// WireMessage is one parsed multipart frame:
//
//	[<identities...>, <delimiter>, <hmac-hex>, <header>, <parent_header>, <metadata>, <content>, <buffers...>]
type WireMessage struct {
	Identities   [][]byte
	Header       Header
	ParentHeader Header
	Metadata     map[string]any
	Content      map[string]any
	Buffers      [][]byte
}

// Serialize produces the signed multipart frame for the wire.
func (w WireMessage) Serialize(signer *Signer) ([][]byte, error) {
	header, err := json.Marshal(w.Header)
	if err != nil {
		return nil, core.NewComponentError("kernel", "header encode failed", err)
	}
	parent, err := json.Marshal(w.ParentHeader)
	if err != nil {
		return nil, core.NewComponentError("kernel", "parent header encode failed", err)
	}
	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, core.NewComponentError("kernel", "metadata encode failed", err)
	}
	content := w.Content
	if content == nil {
		content = map[string]any{}
	}
	body, err := json.Marshal(content)
	if err != nil {
		return nil, core.NewComponentError("kernel", "content encode failed", err)
	}

	parts := make([][]byte, 0, len(w.Identities)+6+len(w.Buffers))
	parts = append(parts, w.Identities...)
	parts = append(parts, wireDelimiter)
	parts = append(parts, []byte(signer.Sign(header, parent, meta, body)))
	parts = append(parts, header, parent, meta, body)
	parts = append(parts, w.Buffers...)
	return parts, nil
}

// ParseWire parses and authenticates a multipart frame. Frames with a
// missing or invalid signature are rejected with a validation error; the
// caller drops and logs them.
func ParseWire(parts [][]byte, signer *Signer) (WireMessage, error) {
	delim := -1
	for i, part := range parts {
		if bytes.Equal(part, wireDelimiter) {
			delim = i
			break
		}
	}
	if delim < 0 || len(parts) < delim+6 {
		return WireMessage{}, core.NewValidationError("frame", "malformed wire frame")
	}

	signature := string(parts[delim+1])
	header, parent, meta, body := parts[delim+2], parts[delim+3], parts[delim+4], parts[delim+5]
	if !signer.Verify(signature, header, parent, meta, body) {
		return WireMessage{}, core.NewValidationError("signature", "wire signature mismatch")
	}

	w := WireMessage{Identities: parts[:delim], Buffers: parts[delim+6:]}
	if err := json.Unmarshal(header, &w.Header); err != nil {
		return WireMessage{}, core.NewValidationError("header", "header decode failed: "+err.Error())
	}
	if len(parent) > 0 && !bytes.Equal(parent, []byte("{}")) {
		if err := json.Unmarshal(parent, &w.ParentHeader); err != nil {
			return WireMessage{}, core.NewValidationError("parent_header", "parent header decode failed: "+err.Error())
		}
	}
	if err := json.Unmarshal(meta, &w.Metadata); err != nil {
		return WireMessage{}, core.NewValidationError("metadata", "metadata decode failed: "+err.Error())
	}
	if err := json.Unmarshal(body, &w.Content); err != nil {
		return WireMessage{}, core.NewValidationError("content", "content decode failed: "+err.Error())
	}
	return w, nil
}

// Reply builds a reply frame: the reply's parent header is the request
// header and the identities are echoed for router-style sockets.
func (w WireMessage) Reply(msgType string, content map[string]any) WireMessage {
	return WireMessage{
		Identities:   w.Identities,
		Header:       NewHeader(msgType, w.Header.Session),
		ParentHeader: w.Header,
		Metadata:     map[string]any{},
		Content:      content,
	}
}
