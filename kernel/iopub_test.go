package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/event"
)

func recvIOPub(t *testing.T, client Transport, signer *Signer) WireMessage {
	t.Helper()
	parts, ok, err := client.Recv(ChannelIOPub)
	require.NoError(t, err)
	require.True(t, ok, "expected a pending iopub frame")
	msg, err := ParseWire(parts, signer)
	require.NoError(t, err)
	return msg
}

func TestIOPubPublishStatus(t *testing.T) {
	server, client := NewInprocPair(16)
	signer := NewSigner("secret")
	iopub := NewIOPub("sess-1", server, signer)
	parent := WireMessage{Header: NewHeader("execute_request", "sess-1")}

	require.NoError(t, iopub.PublishStatus(parent, "busy"))

	msg := recvIOPub(t, client, signer)
	assert.Equal(t, "status", msg.Header.MsgType)
	assert.Equal(t, "busy", msg.Content["execution_state"])
	assert.Equal(t, parent.Header.MsgID, msg.ParentHeader.MsgID)
}

func TestIOPubWithStatusBracketsWork(t *testing.T) {
	server, client := NewInprocPair(16)
	signer := NewSigner("secret")
	iopub := NewIOPub("sess-1", server, signer)
	parent := WireMessage{Header: NewHeader("execute_request", "sess-1")}

	err := iopub.WithStatus(parent, func() error {
		return iopub.PublishStream(parent, "stdout", "hello\n")
	})
	require.NoError(t, err)

	// Busy precedes the output, idle follows it.
	first := recvIOPub(t, client, signer)
	assert.Equal(t, "status", first.Header.MsgType)
	assert.Equal(t, "busy", first.Content["execution_state"])

	second := recvIOPub(t, client, signer)
	assert.Equal(t, "stream", second.Header.MsgType)
	assert.Equal(t, "hello\n", second.Content["text"])

	third := recvIOPub(t, client, signer)
	assert.Equal(t, "status", third.Header.MsgType)
	assert.Equal(t, "idle", third.Content["execution_state"])
}

func TestIOPubWithStatusIdleOnFailure(t *testing.T) {
	server, client := NewInprocPair(16)
	signer := NewSigner("secret")
	iopub := NewIOPub("sess-1", server, signer)
	parent := WireMessage{Header: NewHeader("execute_request", "sess-1")}

	err := iopub.WithStatus(parent, func() error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")

	busy := recvIOPub(t, client, signer)
	assert.Equal(t, "busy", busy.Content["execution_state"])
	idle := recvIOPub(t, client, signer)
	assert.Equal(t, "idle", idle.Content["execution_state"])
}

func TestIOPubPublishError(t *testing.T) {
	server, client := NewInprocPair(16)
	signer := NewSigner("secret")
	iopub := NewIOPub("sess-1", server, signer)

	require.NoError(t, iopub.PublishError(WireMessage{}, "ExecutionError", "boom", nil))

	msg := recvIOPub(t, client, signer)
	assert.Equal(t, "error", msg.Header.MsgType)
	assert.Equal(t, "ExecutionError", msg.Content["ename"])
	assert.Equal(t, []any{}, msg.Content["traceback"])
}

func TestIOPubMirrorsOntoBus(t *testing.T) {
	server, _ := NewInprocPair(16)
	signer := NewSigner("secret")
	bus := event.NewBus()
	iopub := NewIOPub("sess-1", server, signer, func(o *IOPubOptions) { o.Bus = bus })

	events, cancel := bus.Subscribe("kernel.iopub.*", 8)
	defer cancel()

	require.NoError(t, iopub.PublishExecuteResult(WireMessage{}, 3, map[string]any{"text/plain": "42"}))

	ev := <-events
	assert.Equal(t, "kernel.iopub.execute_result", ev.Topic)
	assert.Equal(t, 3, ev.Data["execution_count"])
}
