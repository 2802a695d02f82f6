package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
)

func noopHandler(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
	return nil, nil
}

func TestRouterRoutesByProtocolAndChannel(t *testing.T) {
	router := NewRouter(nil)
	require.NoError(t, router.Register("lrp_iopub", ProtocolLRP, ChannelIOPub, noopHandler))
	require.NoError(t, router.Register("ldp_iopub", ProtocolLDP, ChannelIOPub, noopHandler))

	msg := NewNotification(ProtocolLRP, ChannelIOPub, "status", map[string]any{"execution_state": "busy"})
	ran, replies, err := router.Route(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, []string{"lrp_iopub"}, ran)
	assert.Empty(t, replies)
}

func TestRouterUnknownTupleDropsSilently(t *testing.T) {
	router := NewRouter(nil)
	msg := NewRequest(ProtocolLRP, ChannelShell, "execute", nil)

	ran, replies, err := router.Route(context.Background(), msg)

	require.NoError(t, err)
	assert.Empty(t, ran)
	assert.Empty(t, replies)
}

func TestRouterFanOutCollectsReplies(t *testing.T) {
	router := NewRouter(nil)
	require.NoError(t, router.Register("first", ProtocolLRP, ChannelShell,
		func(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
			reply := msg.ReplyTo(map[string]any{"from": "first"}, nil)
			return &reply, nil
		}))
	require.NoError(t, router.Register("second", ProtocolLRP, ChannelShell,
		func(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
			return nil, errors.New("second failed")
		}))
	require.NoError(t, router.Register("third", ProtocolLRP, ChannelShell,
		func(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error) {
			reply := msg.ReplyTo(map[string]any{"from": "third"}, nil)
			return &reply, nil
		}))

	msg := NewRequest(ProtocolLRP, ChannelShell, "execute", nil)
	ran, replies, err := router.Route(context.Background(), msg)

	// One failure does not stop the fan-out.
	assert.Equal(t, []string{"first", "second", "third"}, ran)
	require.Len(t, replies, 2)
	assert.EqualError(t, err, "second failed")
}

func TestRouterRegisterValidation(t *testing.T) {
	router := NewRouter(nil)

	err := router.Register("", ProtocolLRP, ChannelShell, noopHandler)
	assert.True(t, core.IsKind(err, core.ErrValidation))

	err = router.Register("h", ProtocolLRP, ChannelShell, nil)
	assert.True(t, core.IsKind(err, core.ErrValidation))

	require.NoError(t, router.Register("h", ProtocolLRP, ChannelShell, noopHandler))
	err = router.Register("h", ProtocolLRP, ChannelShell, noopHandler)
	assert.True(t, core.IsKind(err, core.ErrValidation))

	// Same name on a different tuple is fine.
	assert.NoError(t, router.Register("h", ProtocolLDP, ChannelShell, noopHandler))
}

func TestRouterUnregister(t *testing.T) {
	router := NewRouter(nil)
	require.NoError(t, router.Register("h", ProtocolLRP, ChannelShell, noopHandler))

	assert.True(t, router.Unregister("h", ProtocolLRP, ChannelShell))
	assert.False(t, router.Unregister("h", ProtocolLRP, ChannelShell))
	assert.Empty(t, router.Handlers(ProtocolLRP, ChannelShell))
}

func TestRouterRoutes(t *testing.T) {
	router := NewRouter(nil)
	require.NoError(t, router.Register("a", ProtocolLRP, ChannelShell, noopHandler))
	require.NoError(t, router.Register("b", ProtocolLDP, ChannelControl, noopHandler))

	assert.Equal(t, []string{"ldp/control", "lrp/shell"}, router.Routes())
}
