package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/debug"
)

type ldpFixture struct {
	ldp    *LDP
	mgr    *debug.Manager
	client Transport
	signer *Signer
}

func newLDPFixture(t *testing.T) *ldpFixture {
	t.Helper()
	server, client := NewInprocPair(32)
	signer := NewSigner("secret")
	iopub := NewIOPub("sess-1", server, signer)
	mgr := debug.NewManager()
	return &ldpFixture{
		ldp:    NewLDP(mgr, iopub),
		mgr:    mgr,
		client: client,
		signer: signer,
	}
}

func debugRequest(command string, arguments map[string]any) UniversalMessage {
	return NewRequest(ProtocolLDP, ChannelControl, command, arguments)
}

func TestLDPInitializeCapabilities(t *testing.T) {
	f := newLDPFixture(t)

	reply, err := f.ldp.handle(context.Background(), debugRequest("initialize", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	assert.Equal(t, true, resp.Result["supportsConditionalBreakpoints"])
	assert.Equal(t, true, resp.Result["supportsTerminateRequest"])
	assert.Equal(t, true, resp.Result["supportsEvaluateForHovers"])
	assert.Equal(t, false, resp.Result["supportsStepBack"])
}

func TestLDPSetBreakpointsReplacesPerSource(t *testing.T) {
	f := newLDPFixture(t)
	f.mgr.AddBreakpoint("test.lua", 3, "")
	f.mgr.AddBreakpoint("other.lua", 7, "")

	reply, err := f.ldp.handle(context.Background(), debugRequest("setBreakpoints", map[string]any{
		"source": map[string]any{"path": "test.lua"},
		"breakpoints": []any{
			map[string]any{"line": float64(10)},
			map[string]any{"line": float64(20), "condition": "x > 5"},
		},
	}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	verified := resp.Result["breakpoints"].([]any)
	require.Len(t, verified, 2)
	assert.Equal(t, true, verified[0].(map[string]any)["verified"])

	// Old test.lua breakpoint replaced, other.lua untouched.
	var testLines []int
	otherSeen := false
	for _, bp := range f.mgr.Breakpoints() {
		switch bp.Source {
		case "test.lua":
			testLines = append(testLines, bp.Line)
		case "other.lua":
			otherSeen = true
		}
	}
	assert.ElementsMatch(t, []int{10, 20}, testLines)
	assert.True(t, otherSeen)
}

func TestLDPSetBreakpointsRequiresPath(t *testing.T) {
	f := newLDPFixture(t)

	reply, err := f.ldp.handle(context.Background(), debugRequest("setBreakpoints", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_request", resp.Error.Code)
}

func TestLDPStackTrace(t *testing.T) {
	f := newLDPFixture(t)
	f.mgr.SetStack([]debug.StackFrame{
		{ID: 1, Name: "test_function", Source: "test.lua", Line: 15, Column: 5},
	})

	reply, err := f.ldp.handle(context.Background(), debugRequest("stackTrace", map[string]any{
		"threadId": float64(1),
	}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	assert.Equal(t, 1, resp.Result["totalFrames"])
	frames := resp.Result["stackFrames"].([]any)
	require.Len(t, frames, 1)
	frame := frames[0].(map[string]any)
	assert.Equal(t, "test_function", frame["name"])
	assert.Equal(t, map[string]any{"path": "test.lua"}, frame["source"])
	assert.Equal(t, 15, frame["line"])
	assert.Equal(t, 5, frame["column"])
}

func TestLDPVariables(t *testing.T) {
	f := newLDPFixture(t)
	ref := f.mgr.CacheVariables([]debug.Variable{
		{Name: "x", Value: "42", Type: "number"},
	})

	reply, err := f.ldp.handle(context.Background(), debugRequest("variables", map[string]any{
		"variablesReference": float64(ref),
	}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	vars := resp.Result["variables"].([]any)
	require.Len(t, vars, 1)
	assert.Equal(t, "x", vars[0].(map[string]any)["name"])
}

func TestLDPVariablesUnknownReference(t *testing.T) {
	f := newLDPFixture(t)

	reply, err := f.ldp.handle(context.Background(), debugRequest("variables", map[string]any{
		"variablesReference": float64(99),
	}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_reference", resp.Error.Code)
}

func TestLDPContinueWhenNotPaused(t *testing.T) {
	f := newLDPFixture(t)

	reply, err := f.ldp.handle(context.Background(), debugRequest("continue", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_paused", resp.Error.Code)
}

func TestLDPStepCommandsResumePausedScript(t *testing.T) {
	for _, tc := range []struct {
		command string
	}{
		{"continue"}, {"next"}, {"stepIn"}, {"stepOut"},
	} {
		t.Run(tc.command, func(t *testing.T) {
			f := newLDPFixture(t)
			f.mgr.AddBreakpoint("spell.lua", 1, "")
			require.NoError(t, f.mgr.Start())

			done := make(chan bool, 1)
			go func() {
				done <- f.mgr.OnLine("spell.lua", 1, 0)
			}()

			require.Eventually(t, func() bool {
				return f.mgr.State() == debug.StatePaused
			}, time.Second, time.Millisecond)

			reply, err := f.ldp.handle(context.Background(), debugRequest(tc.command, nil))
			require.NoError(t, err)
			resp := reply.Content.(Response)
			require.Nil(t, resp.Error)

			assert.True(t, <-done)
		})
	}
}

func TestLDPPauseRequestsStop(t *testing.T) {
	f := newLDPFixture(t)

	reply, err := f.ldp.handle(context.Background(), debugRequest("pause", nil))
	require.NoError(t, err)
	assert.Nil(t, reply.Content.(Response).Error)
}

func TestLDPTerminatePausedScript(t *testing.T) {
	f := newLDPFixture(t)
	f.mgr.AddBreakpoint("spell.lua", 1, "")
	require.NoError(t, f.mgr.Start())

	done := make(chan bool, 1)
	go func() {
		done <- f.mgr.OnLine("spell.lua", 1, 0)
	}()
	require.Eventually(t, func() bool {
		return f.mgr.State() == debug.StatePaused
	}, time.Second, time.Millisecond)

	reply, err := f.ldp.handle(context.Background(), debugRequest("terminate", nil))
	require.NoError(t, err)
	assert.Nil(t, reply.Content.(Response).Error)

	// The terminate command makes the paused line event return false.
	assert.False(t, <-done)
	assert.Equal(t, debug.StateTerminated, f.mgr.State())
}

// A pause must reach attached clients without anyone installing the callback
// by hand; NewLDP itself wires the manager's stopped events to IOPub.
func TestLDPStoppedEventBroadcast(t *testing.T) {
	f := newLDPFixture(t)
	f.mgr.AddBreakpoint("test.lua", 15, "")
	require.NoError(t, f.mgr.Start())

	done := make(chan bool, 1)
	go func() {
		done <- f.mgr.OnLine("test.lua", 15, 1)
	}()

	var msg WireMessage
	require.Eventually(t, func() bool {
		parts, ok, err := f.client.Recv(ChannelIOPub)
		if err != nil || !ok {
			return false
		}
		parsed, err := ParseWire(parts, f.signer)
		if err != nil {
			return false
		}
		msg = parsed
		return true
	}, time.Second, time.Millisecond)
	assert.Equal(t, "debug_event", msg.Header.MsgType)
	assert.Equal(t, "stopped", msg.Content["event"])
	body := msg.Content["body"].(map[string]any)
	assert.Equal(t, "breakpoint", body["reason"])
	assert.Equal(t, float64(15), body["line"])
	assert.Equal(t, "test.lua", body["source"])

	require.NoError(t, f.mgr.Resume(debug.CommandContinue))
	assert.True(t, <-done)
}

func TestLDPUnknownCommand(t *testing.T) {
	f := newLDPFixture(t)

	reply, err := f.ldp.handle(context.Background(), debugRequest("restart", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_method", resp.Error.Code)
}
