// Package event implements the topic-based pub/sub bus that carries runtime
// notifications (tool calls, workflow progress, state changes, kernel
// broadcasts) to interested subscribers.
//
// Thread safety:
//   - All methods are safe for concurrent use
//   - Multiple goroutines can publish and subscribe simultaneously
//   - Non-blocking publish prevents slow subscribers from affecting publishers
//
// Slow consumer handling:
//   - Subscribers receive events through bounded buffered channels
//   - If a subscriber's buffer is full the event is dropped for that subscriber
//   - A subscriber that keeps dropping past the eviction threshold is removed
//   - Other subscribers are never affected by a slow consumer
package event

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// Event is a single bus notification. Topic uses dotted segments
// ("tool.call.completed"); Data carries the payload as the host value union.
type Event struct {
	ID            string         `json:"id"`
	Topic         string         `json:"topic"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// New constructs an event for the topic with the given payload.
func New(topic string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// TopicMatches reports whether topic matches pattern. Patterns are dotted
// segments where "*" matches exactly one segment and a trailing "*" matches
// the remainder ("tool.*" matches "tool.call.completed").
func TopicMatches(pattern, topic string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	pp := strings.Split(pattern, ".")
	tp := strings.Split(topic, ".")
	for i, seg := range pp {
		if seg == "*" && i == len(pp)-1 {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if seg != "*" && seg != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

// subscription is a single subscriber with its bounded buffer and drop
// accounting used for eviction.
type subscription struct {
	id               string
	pattern          string
	ch               chan Event
	received         atomic.Int64
	dropped          atomic.Int64
	consecutiveDrops atomic.Int64
}

// Options configures a Bus.
type Options struct {
	// DefaultBufferSize is used when Subscribe is called with bufferSize 0.
	DefaultBufferSize int
	// EvictionThreshold is the number of consecutive dropped events after
	// which a slow subscriber is evicted. Zero disables eviction.
	EvictionThreshold int
	// Logger receives drop and eviction notices.
	Logger logging.Logger
}

// Bus distributes events to pattern-filtered subscribers. Publishing never
// blocks on a slow subscriber beyond the bounded buffer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	closed      bool
	opts        Options

	*core.LoggerAdapter
}

// NewBus creates a Bus with optional overrides.
func NewBus(optFns ...func(o *Options)) *Bus {
	opts := Options{DefaultBufferSize: 100, EvictionThreshold: 32}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		subscribers:   make(map[string]*subscription),
		opts:          opts,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// Subscribe registers a pattern-filtered subscriber and returns its channel
// plus a cleanup function that must be called to release resources.
func (b *Bus) Subscribe(pattern string, bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = b.opts.DefaultBufferSize
	}
	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		ch:      make(chan Event, bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		closed := make(chan Event)
		close(closed)
		return closed, func() {}
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return sub.ch, func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Publish delivers the event to every subscriber whose pattern matches the
// topic. Full buffers drop the event for that subscriber only; a subscriber
// past the eviction threshold is removed.
func (b *Bus) Publish(ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return core.NewComponentError("event_bus", "publish on closed bus", nil)
	}
	var evict []string
	for _, sub := range b.subscribers {
		if !TopicMatches(sub.pattern, ev.Topic) {
			continue
		}
		select {
		case sub.ch <- ev:
			sub.received.Add(1)
			sub.consecutiveDrops.Store(0)
		default:
			sub.dropped.Add(1)
			drops := sub.consecutiveDrops.Add(1)
			b.LogWarn("event dropped for slow subscriber",
				"subscriber", sub.id, "topic", ev.Topic, "dropped_total", sub.dropped.Load())
			if b.opts.EvictionThreshold > 0 && drops >= int64(b.opts.EvictionThreshold) {
				evict = append(evict, sub.id)
			}
		}
	}
	b.mu.RUnlock()

	for _, id := range evict {
		b.LogWarn("evicting slow subscriber", "subscriber", id)
		b.unsubscribe(id)
	}
	return nil
}

// PublishTopic is a convenience wrapper building and publishing an event.
func (b *Bus) PublishTopic(topic string, data map[string]any) error {
	return b.Publish(New(topic, data))
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the bus and all subscriptions. Publish fails afterwards.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus already closed")
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	return nil
}
