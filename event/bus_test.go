package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/hook"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"*", "tool.call.completed", true},
		{"", "anything", true},
		{"tool.*", "tool.call.completed", true},
		{"tool.*", "workflow.step", false},
		{"tool.call.completed", "tool.call.completed", true},
		{"tool.call.completed", "tool.call", false},
		{"tool.*.completed", "tool.call.completed", true},
		{"tool.*.completed", "tool.call.started", false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, TopicMatches(tt.pattern, tt.topic), "pattern=%q topic=%q", tt.pattern, tt.topic)
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ch, cancel := bus.Subscribe("state.*", 4)
	defer cancel()

	require.NoError(t, bus.PublishTopic("state.changed", map[string]any{"key": "theme"}))
	require.NoError(t, bus.PublishTopic("tool.call.started", nil))

	select {
	case ev := <-ch:
		assert.Equal(t, "state.changed", ev.Topic)
		assert.Equal(t, "theme", ev.Data["key"])
	case <-time.After(time.Second):
		t.Fatal("expected event on state.* subscription")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q leaked through filter", ev.Topic)
	default:
	}
}

func TestBusDropsForSlowSubscriberOnly(t *testing.T) {
	bus := NewBus(func(o *Options) { o.EvictionThreshold = 0 })
	defer func() { _ = bus.Close() }()

	slow, cancelSlow := bus.Subscribe("*", 1)
	fast, cancelFast := bus.Subscribe("*", 16)
	defer cancelSlow()
	defer cancelFast()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.PublishTopic("tick", nil))
	}

	// The fast subscriber saw everything.
	count := 0
	for {
		select {
		case <-fast:
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 5, count)

	// The slow subscriber kept only its buffer's worth.
	assert.Len(t, drain(slow), 1)
}

func TestBusEvictsSlowSubscriber(t *testing.T) {
	bus := NewBus(func(o *Options) { o.EvictionThreshold = 3 })
	defer func() { _ = bus.Close() }()

	_, cancel := bus.Subscribe("*", 1)
	defer cancel()
	require.Equal(t, 1, bus.SubscriberCount())

	// One fill plus threshold drops.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.PublishTopic("tick", nil))
	}
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe("*", 1)
	require.NoError(t, bus.Close())

	_, open := <-ch
	assert.False(t, open, "subscriber channel should be closed")
	assert.Error(t, bus.Publish(New("x", nil)))
}

func TestHookAdapterPublishesHookEvents(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ch, cancel := bus.Subscribe("hook.*", 4)
	defer cancel()

	chain := hook.NewChain(nil)
	chain.Register(NewHookAdapter(bus).Hook(hook.PointBeforeToolExecution))

	hctx := hook.NewContext(hook.PointBeforeToolExecution, core.NewComponentID(core.ComponentTypeTool, "calculator"))
	outcome := chain.Execute(hctx)
	require.False(t, outcome.Cancelled)

	select {
	case ev := <-ch:
		assert.Equal(t, "hook.before_tool_execution", ev.Topic)
		assert.Equal(t, "tool:calculator", ev.Data["component"])
		assert.Equal(t, hctx.CorrelationID, ev.CorrelationID)
	case <-time.After(time.Second):
		t.Fatal("expected hook event")
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
