package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

func TestInprocSendRecv(t *testing.T) {
	server, client := NewInprocPair(8)

	require.NoError(t, client.Send(ChannelShell, [][]byte{[]byte("hello")}))

	parts, ok, err := server.Recv(ChannelShell)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("hello")}, parts)
}

func TestRecvEmptyIsNotAnError(t *testing.T) {
	server, _ := NewInprocPair(8)

	parts, ok, err := server.Recv(ChannelShell)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, parts)
}

func TestHeartbeatEchoesPendingFrame(t *testing.T) {
	server, client := NewInprocPair(8)

	// No pending ping: false without error.
	echoed, err := server.Heartbeat()
	require.NoError(t, err)
	assert.False(t, echoed)

	require.NoError(t, client.Send(ChannelHeartbeat, [][]byte{[]byte("ping")}))
	echoed, err = server.Heartbeat()
	require.NoError(t, err)
	assert.True(t, echoed)

	parts, ok, err := client.Recv(ChannelHeartbeat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("ping")}, parts)
}

func TestInprocPerChannelOrder(t *testing.T) {
	server, client := NewInprocPair(8)

	require.NoError(t, client.Send(ChannelShell, [][]byte{[]byte("first")}))
	require.NoError(t, client.Send(ChannelShell, [][]byte{[]byte("second")}))

	parts, _, err := server.Recv(ChannelShell)
	require.NoError(t, err)
	assert.Equal(t, "first", string(parts[0]))
	parts, _, err = server.Recv(ChannelShell)
	require.NoError(t, err)
	assert.Equal(t, "second", string(parts[0]))
}

func TestInprocBufferOverflow(t *testing.T) {
	server, client := NewInprocPair(2)

	require.NoError(t, client.Send(ChannelShell, [][]byte{[]byte("1")}))
	require.NoError(t, client.Send(ChannelShell, [][]byte{[]byte("2")}))
	err := client.Send(ChannelShell, [][]byte{[]byte("3")})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrResource))

	// Draining makes room again.
	_, ok, err := server.Recv(ChannelShell)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, client.Send(ChannelShell, [][]byte{[]byte("3")}))
}

func TestInprocUnknownChannel(t *testing.T) {
	server, _ := NewInprocPair(8)

	err := server.Send(Channel("bogus"), nil)
	assert.True(t, core.IsKind(err, core.ErrValidation))
	_, _, err = server.Recv(Channel("bogus"))
	assert.True(t, core.IsKind(err, core.ErrValidation))
	assert.False(t, server.HasChannel(Channel("bogus")))
	assert.True(t, server.HasChannel(ChannelIOPub))
}

func TestInprocClosedSend(t *testing.T) {
	server, _ := NewInprocPair(8)
	require.NoError(t, server.Close())

	err := server.Send(ChannelShell, [][]byte{[]byte("x")})
	assert.True(t, core.IsKind(err, core.ErrComponent))
}

func TestInprocBindRecordsTransport(t *testing.T) {
	server, _ := NewInprocPair(8)
	cf := NewConnectionFile("k", "n")
	require.NoError(t, server.Bind(&cf))
	assert.Equal(t, "inproc", cf.Transport)
}
