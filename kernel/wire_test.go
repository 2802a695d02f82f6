package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

func TestSignerRejectsTamperedContent(t *testing.T) {
	signer := NewSigner("secret")
	header := []byte(`{"msg_id":"1"}`)
	parent := []byte(`{}`)
	meta := []byte(`{}`)
	content := []byte(`{"code":"return 1"}`)

	sig := signer.Sign(header, parent, meta, content)
	assert.True(t, signer.Verify(sig, header, parent, meta, content))
	assert.False(t, signer.Verify(sig, header, parent, meta, []byte(`{"code":"return 2"}`)))
	assert.False(t, signer.Verify("deadbeef", header, parent, meta, content))
}

func TestSignerEmptyKeyDisablesSigning(t *testing.T) {
	signer := NewSigner("")
	assert.Empty(t, signer.Sign([]byte("a"), []byte("b"), []byte("c"), []byte("d")))
	assert.True(t, signer.Verify("anything", []byte("a"), []byte("b"), []byte("c"), []byte("d")))
}

func TestNewRandomKey(t *testing.T) {
	k1, err := NewRandomKey()
	require.NoError(t, err)
	k2, err := NewRandomKey()
	require.NoError(t, err)
	assert.Len(t, k1, 64)
	assert.NotEqual(t, k1, k2)
}

func TestWireSerializeParseRoundTrip(t *testing.T) {
	signer := NewSigner("secret")
	msg := WireMessage{
		Identities: [][]byte{[]byte("client-1")},
		Header:     NewHeader("execute_request", "session-1"),
		Metadata:   map[string]any{"trace": "abc"},
		Content:    map[string]any{"code": "return 1"},
		Buffers:    [][]byte{[]byte("blob")},
	}

	parts, err := msg.Serialize(signer)
	require.NoError(t, err)

	parsed, err := ParseWire(parts, signer)
	require.NoError(t, err)
	assert.Equal(t, msg.Identities, parsed.Identities)
	assert.Equal(t, msg.Header, parsed.Header)
	assert.Equal(t, msg.Metadata, parsed.Metadata)
	assert.Equal(t, msg.Content, parsed.Content)
	assert.Equal(t, msg.Buffers, parsed.Buffers)
}

func TestParseWireRejectsBadSignature(t *testing.T) {
	signer := NewSigner("secret")
	msg := WireMessage{
		Header:  NewHeader("execute_request", "session-1"),
		Content: map[string]any{"code": "return 1"},
	}
	parts, err := msg.Serialize(signer)
	require.NoError(t, err)

	// Flip the content segment after signing.
	parts[len(parts)-1] = []byte(`{"code":"return 2"}`)

	_, err = ParseWire(parts, signer)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrValidation))
}

func TestParseWireRejectsMalformedFrame(t *testing.T) {
	signer := NewSigner("secret")

	_, err := ParseWire([][]byte{[]byte("junk")}, signer)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrValidation))

	_, err = ParseWire([][]byte{wireDelimiter, []byte("sig")}, signer)
	assert.Error(t, err)
}

func TestWireReplyParenting(t *testing.T) {
	request := WireMessage{
		Identities: [][]byte{[]byte("client-1")},
		Header:     NewHeader("execute_request", "session-1"),
		Content:    map[string]any{"code": "return 1"},
	}

	reply := request.Reply("execute_reply", map[string]any{"status": "ok"})

	assert.Equal(t, request.Identities, reply.Identities)
	assert.Equal(t, request.Header, reply.ParentHeader)
	assert.Equal(t, "execute_reply", reply.Header.MsgType)
	assert.Equal(t, "session-1", reply.Header.Session)
	assert.NotEqual(t, request.Header.MsgID, reply.Header.MsgID)
}
