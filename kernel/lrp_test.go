package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/engine"
)

// scriptedEngine returns canned results keyed by source text.
type scriptedEngine struct {
	name    string
	results map[string]any
	errs    map[string]error
}

var _ engine.ScriptEngine = (*scriptedEngine)(nil)

func (e *scriptedEngine) Name() string { return e.name }

func (e *scriptedEngine) Execute(ctx context.Context, source string) (core.ScriptOutput, error) {
	if err := e.errs[source]; err != nil {
		return core.ScriptOutput{}, err
	}
	return core.ScriptOutput{Value: e.results[source]}, nil
}

func (e *scriptedEngine) ExecuteStream(ctx context.Context, source string) (<-chan core.AgentChunk, error) {
	ch := make(chan core.AgentChunk)
	close(ch)
	return ch, nil
}

func (e *scriptedEngine) InjectAPIs(globals *engine.Globals) error { return nil }
func (e *scriptedEngine) SupportsStreaming() bool                  { return false }
func (e *scriptedEngine) SupportsMultimodal() bool                 { return false }
func (e *scriptedEngine) CompletionCandidates(line string, cursor int) []engine.Completion {
	return engine.SurfaceCompletions(line, cursor)
}
func (e *scriptedEngine) Close() error { return nil }

type lrpFixture struct {
	lrp    *LRP
	client Transport
	signer *Signer
}

func newLRPFixture(t *testing.T, eng engine.ScriptEngine) *lrpFixture {
	t.Helper()
	server, client := NewInprocPair(32)
	signer := NewSigner("secret")
	iopub := NewIOPub("sess-1", server, signer)
	return &lrpFixture{
		lrp:    NewLRP(eng, iopub),
		client: client,
		signer: signer,
	}
}

func shellRequest(method string, params map[string]any) UniversalMessage {
	msg := NewRequest(ProtocolLRP, ChannelShell, method, params)
	stampWireHeader(&msg, NewHeader(method+"_request", "sess-1"))
	return msg
}

func TestLRPKernelInfo(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua"})

	reply, err := f.lrp.handleShell(context.Background(), shellRequest("kernel_info", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	assert.Equal(t, "llmspell", resp.Result["implementation"])
	assert.Equal(t, ProtocolVersion, resp.Result["protocol_version"])
	assert.Equal(t, map[string]any{"name": "lua"}, resp.Result["language_info"])
}

func TestLRPExecuteBracketsBusyIdle(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{
		name:    "lua",
		results: map[string]any{"return 41 + 1": float64(42)},
	})

	reply, err := f.lrp.handleShell(context.Background(),
		shellRequest("execute", map[string]any{"code": "return 41 + 1"}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.Nil(t, resp.Error)
	assert.Equal(t, "ok", resp.Result["status"])
	assert.Equal(t, 1, resp.Result["execution_count"])
	assert.Equal(t, float64(42), resp.Result["value"])

	busy := recvIOPub(t, f.client, f.signer)
	assert.Equal(t, "busy", busy.Content["execution_state"])
	result := recvIOPub(t, f.client, f.signer)
	assert.Equal(t, "execute_result", result.Header.MsgType)
	assert.Equal(t, map[string]any{"text/plain": "42"}, result.Content["data"])
	idle := recvIOPub(t, f.client, f.signer)
	assert.Equal(t, "idle", idle.Content["execution_state"])
}

func TestLRPExecuteFailureStillBrackets(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{
		name: "lua",
		errs: map[string]error{"boom()": core.NewComponentError("engine:lua", "boom", nil)},
	})

	reply, err := f.lrp.handleShell(context.Background(),
		shellRequest("execute", map[string]any{"code": "boom()"}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "execution_failed", resp.Error.Code)
	assert.Equal(t, "error", resp.Result["status"])

	busy := recvIOPub(t, f.client, f.signer)
	assert.Equal(t, "busy", busy.Content["execution_state"])
	errMsg := recvIOPub(t, f.client, f.signer)
	assert.Equal(t, "error", errMsg.Header.MsgType)
	assert.Equal(t, "ExecutionError", errMsg.Content["ename"])
	idle := recvIOPub(t, f.client, f.signer)
	assert.Equal(t, "idle", idle.Content["execution_state"])
}

func TestLRPExecuteCountsRequests(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua", results: map[string]any{"x": 1}})

	for i := 0; i < 3; i++ {
		_, err := f.lrp.handleShell(context.Background(),
			shellRequest("execute", map[string]any{"code": "x"}))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.lrp.ExecutionCount())
}

func TestLRPExecuteRequiresCode(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua"})

	reply, err := f.lrp.handleShell(context.Background(), shellRequest("execute", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_request", resp.Error.Code)
}

func TestLRPComplete(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua"})

	reply, err := f.lrp.handleShell(context.Background(),
		shellRequest("complete", map[string]any{"code": "Workf", "cursor_pos": float64(5)}))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	assert.Equal(t, []any{"Workflow"}, resp.Result["matches"])
}

func TestLRPUnknownMethodErrorReply(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua"})

	reply, err := f.lrp.handleShell(context.Background(), shellRequest("bogus", nil))
	require.NoError(t, err)

	resp := reply.Content.(Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_method", resp.Error.Code)
}

func TestLRPInterruptIdleKernel(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua"})
	msg := NewRequest(ProtocolLRP, ChannelControl, "interrupt", nil)

	reply, err := f.lrp.handleControl(context.Background(), msg)
	require.NoError(t, err)

	resp := reply.Content.(Response)
	assert.Equal(t, "ok", resp.Result["status"])
	assert.Equal(t, false, resp.Result["interrupted"])
}

func TestLRPShutdown(t *testing.T) {
	called := false
	server, _ := NewInprocPair(8)
	iopub := NewIOPub("sess-1", server, NewSigner("secret"))
	lrp := NewLRP(&scriptedEngine{name: "lua"}, iopub, func(o *LRPOptions) {
		o.OnShutdown = func(restart bool) { called = true }
	})
	msg := NewRequest(ProtocolLRP, ChannelControl, "shutdown", map[string]any{"restart": true})

	reply, err := lrp.handleControl(context.Background(), msg)
	require.NoError(t, err)

	resp := reply.Content.(Response)
	assert.Equal(t, true, resp.Result["restart"])
	assert.True(t, called)
}

func TestLRPRegister(t *testing.T) {
	f := newLRPFixture(t, &scriptedEngine{name: "lua"})
	router := NewRouter(nil)

	require.NoError(t, f.lrp.Register(router))
	assert.Equal(t, []string{"lrp_shell"}, router.Handlers(ProtocolLRP, ChannelShell))
	assert.Equal(t, []string{"lrp_control"}, router.Handlers(ProtocolLRP, ChannelControl))
}
