package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/debug"
)

type serverFixture struct {
	server *Server
	client Transport
	signer *Signer
	cancel context.CancelFunc
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	serverSide, clientSide := NewInprocPair(64)
	srv, err := NewServer(
		&scriptedEngine{name: "lua", results: map[string]any{"return 42": float64(42)}},
		func(o *ServerOptions) {
			o.Transport = serverSide
			o.PollInterval = time.Millisecond
		},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
	})
	return &serverFixture{
		server: srv,
		client: clientSide,
		signer: NewSigner(srv.ConnectionInfo().Key),
		cancel: cancel,
	}
}

// awaitReply polls the client side of a channel until a frame arrives.
func (f *serverFixture) awaitReply(t *testing.T, channel Channel) WireMessage {
	t.Helper()
	var msg WireMessage
	require.Eventually(t, func() bool {
		parts, ok, err := f.client.Recv(channel)
		if err != nil || !ok {
			return false
		}
		parsed, err := ParseWire(parts, f.signer)
		if err != nil {
			return false
		}
		msg = parsed
		return true
	}, 2*time.Second, time.Millisecond)
	return msg
}

func (f *serverFixture) send(t *testing.T, channel Channel, msgType string, content map[string]any) WireMessage {
	t.Helper()
	frame := WireMessage{
		Identities: [][]byte{[]byte("client-1")},
		Header:     NewHeader(msgType, "client-session"),
		Content:    content,
	}
	parts, err := frame.Serialize(f.signer)
	require.NoError(t, err)
	require.NoError(t, f.client.Send(channel, parts))
	return frame
}

func TestServerExecuteEndToEnd(t *testing.T) {
	f := newServerFixture(t)

	request := f.send(t, ChannelShell, "execute_request", map[string]any{"code": "return 42"})

	reply := f.awaitReply(t, ChannelShell)
	assert.Equal(t, "execute_reply", reply.Header.MsgType)
	assert.Equal(t, request.Header.MsgID, reply.ParentHeader.MsgID)
	assert.Equal(t, request.Identities, reply.Identities)
	assert.Equal(t, "ok", reply.Content["status"])
	assert.Equal(t, float64(42), reply.Content["value"])

	// The reply is bracketed by busy and idle broadcasts.
	busy := f.awaitReply(t, ChannelIOPub)
	assert.Equal(t, "busy", busy.Content["execution_state"])
	assert.Equal(t, request.Header.MsgID, busy.ParentHeader.MsgID)
	result := f.awaitReply(t, ChannelIOPub)
	assert.Equal(t, "execute_result", result.Header.MsgType)
	idle := f.awaitReply(t, ChannelIOPub)
	assert.Equal(t, "idle", idle.Content["execution_state"])
}

func TestServerKernelInfo(t *testing.T) {
	f := newServerFixture(t)

	f.send(t, ChannelShell, "kernel_info_request", nil)

	reply := f.awaitReply(t, ChannelShell)
	assert.Equal(t, "kernel_info_reply", reply.Header.MsgType)
	assert.Equal(t, "llmspell", reply.Content["implementation"])
}

func TestServerDebugRequestOnControl(t *testing.T) {
	f := newServerFixture(t)

	f.send(t, ChannelControl, "debug_request", map[string]any{
		"seq":     float64(1),
		"type":    "request",
		"command": "initialize",
		"arguments": map[string]any{
			"clientID": "test",
		},
	})

	reply := f.awaitReply(t, ChannelControl)
	assert.Equal(t, "debug_reply", reply.Header.MsgType)
	assert.Equal(t, "response", reply.Content["type"])
	assert.Equal(t, "initialize", reply.Content["command"])
	assert.Equal(t, float64(1), reply.Content["request_seq"])
	assert.Equal(t, true, reply.Content["success"])
	body := reply.Content["body"].(map[string]any)
	assert.Equal(t, true, body["supportsConditionalBreakpoints"])
}

// A script pausing at a breakpoint must surface as a stopped debug_event on
// IOPub through the server's own wiring; no client would otherwise learn the
// script is blocked.
func TestServerBroadcastsStoppedEventOnPause(t *testing.T) {
	f := newServerFixture(t)
	mgr := f.server.DebugManager()
	mgr.AddBreakpoint("test.lua", 2, "")
	require.NoError(t, mgr.Start())

	done := make(chan bool, 1)
	go func() {
		done <- mgr.OnLine("test.lua", 2, 1)
	}()

	var stopped WireMessage
	require.Eventually(t, func() bool {
		parts, ok, err := f.client.Recv(ChannelIOPub)
		if err != nil || !ok {
			return false
		}
		msg, err := ParseWire(parts, f.signer)
		if err != nil || msg.Header.MsgType != "debug_event" {
			return false
		}
		stopped = msg
		return true
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, "stopped", stopped.Content["event"])
	body := stopped.Content["body"].(map[string]any)
	assert.Equal(t, "breakpoint", body["reason"])
	assert.Equal(t, float64(2), body["line"])

	require.NoError(t, mgr.Resume(debug.CommandContinue))
	assert.True(t, <-done)
}

func TestServerHeartbeatEcho(t *testing.T) {
	f := newServerFixture(t)

	require.NoError(t, f.client.Send(ChannelHeartbeat, [][]byte{[]byte("ping")}))

	var echoed [][]byte
	require.Eventually(t, func() bool {
		parts, ok, err := f.client.Recv(ChannelHeartbeat)
		if err != nil || !ok {
			return false
		}
		echoed = parts
		return true
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("ping")}, echoed)
}

func TestServerDropsUnsignedFrames(t *testing.T) {
	f := newServerFixture(t)

	// Sign with the wrong key; the frame must be dropped, not answered.
	badSigner := NewSigner("wrong-key")
	frame := WireMessage{
		Header:  NewHeader("kernel_info_request", "client-session"),
		Content: map[string]any{},
	}
	parts, err := frame.Serialize(badSigner)
	require.NoError(t, err)
	require.NoError(t, f.client.Send(ChannelShell, parts))

	time.Sleep(50 * time.Millisecond)
	_, ok, err := f.client.Recv(ChannelShell)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerUnknownMethodGetsErrorReply(t *testing.T) {
	f := newServerFixture(t)

	f.send(t, ChannelShell, "bogus_request", nil)

	reply := f.awaitReply(t, ChannelShell)
	assert.Equal(t, "bogus_reply", reply.Header.MsgType)
	assert.Equal(t, "error", reply.Content["status"])
	assert.Equal(t, "unknown_method", reply.Content["ename"])
}

func TestServerShutdownStopsServe(t *testing.T) {
	serverSide, clientSide := NewInprocPair(64)
	srv, err := NewServer(&scriptedEngine{name: "lua"}, func(o *ServerOptions) {
		o.Transport = serverSide
		o.PollInterval = time.Millisecond
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	signer := NewSigner(srv.ConnectionInfo().Key)
	frame := WireMessage{
		Header:  NewHeader("shutdown_request", "client-session"),
		Content: map[string]any{"restart": false},
	}
	parts, err := frame.Serialize(signer)
	require.NoError(t, err)
	require.NoError(t, clientSide.Send(ChannelControl, parts))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve loop did not stop on shutdown request")
	}
}

func TestServerConnectionInfo(t *testing.T) {
	f := newServerFixture(t)

	cf := f.server.ConnectionInfo()
	assert.Equal(t, "inproc", cf.Transport)
	assert.Equal(t, "llmspell-lua", cf.KernelName)
	assert.NotEmpty(t, cf.Key)
	assert.NotEmpty(t, f.server.ID())
}

func TestServerWriteConnectionFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	f := newServerFixture(t)

	path, err := f.server.WriteConnectionFile()
	require.NoError(t, err)

	loaded, err := ReadConnectionFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.server.ConnectionInfo(), loaded)
}
