package kernel

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// Handler processes one routed message. A returned message, if any, is the
// reply the server sends back on the request's channel.
type Handler func(ctx context.Context, msg UniversalMessage) (*UniversalMessage, error)

// routeKey identifies one dispatch slot. Routing never crosses protocol
// boundaries: an LRP message only reaches handlers registered under LRP.
type routeKey struct {
	protocol Protocol
	channel  Channel
}

type routeEntry struct {
	name    string
	handler Handler
}

// Router dispatches parsed messages to the handlers registered for their
// (protocol, channel) tuple. Multiple handlers per tuple fan out in
// registration order.
type Router struct {
	mu     sync.RWMutex
	routes map[routeKey][]routeEntry
	tracer trace.Tracer

	*core.LoggerAdapter
}

// NewRouter creates an empty router.
func NewRouter(logger logging.Logger) *Router {
	return &Router{
		routes:        map[routeKey][]routeEntry{},
		tracer:        otel.Tracer("llmspell/kernel"),
		LoggerAdapter: core.NewLoggerAdapter(logger),
	}
}

// Register adds a named handler for one (protocol, channel) tuple. The name
// must be unique within the tuple.
func (r *Router) Register(name string, protocol Protocol, channel Channel, handler Handler) error {
	if name == "" {
		return core.NewValidationError("name", "handler name must not be empty")
	}
	if handler == nil {
		return core.NewValidationError("handler", "handler must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey{protocol: protocol, channel: channel}
	for _, entry := range r.routes[key] {
		if entry.name == name {
			return core.NewValidationError("name", "handler already registered: "+name)
		}
	}
	r.routes[key] = append(r.routes[key], routeEntry{name: name, handler: handler})
	return nil
}

// Unregister removes a handler by name from one tuple.
func (r *Router) Unregister(name string, protocol Protocol, channel Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey{protocol: protocol, channel: channel}
	for i, entry := range r.routes[key] {
		if entry.name == name {
			r.routes[key] = append(r.routes[key][:i], r.routes[key][i+1:]...)
			return true
		}
	}
	return false
}

// Handlers lists the handler names registered for one tuple, in registration
// order.
func (r *Router) Handlers(protocol Protocol, channel Channel) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.routes[routeKey{protocol: protocol, channel: channel}]
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.name)
	}
	return names
}

// Routes lists every registered tuple as "protocol/channel", sorted.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.routes))
	for key := range r.routes {
		keys = append(keys, string(key.protocol)+"/"+string(key.channel))
	}
	sort.Strings(keys)
	return keys
}

// Route dispatches msg to every handler registered for its tuple and returns
// the names of the handlers that ran plus any replies they produced. A
// message for an unregistered tuple is dropped with a warning, not an error.
// One failing handler does not stop the fan-out; the first failure is
// returned after all handlers ran.
func (r *Router) Route(ctx context.Context, msg UniversalMessage) ([]string, []UniversalMessage, error) {
	r.mu.RLock()
	entries := r.routes[routeKey{protocol: msg.Protocol, channel: msg.Channel}]
	r.mu.RUnlock()

	ctx, span := r.tracer.Start(ctx, "kernel.route", trace.WithAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.protocol", string(msg.Protocol)),
		attribute.String("message.channel", string(msg.Channel)),
		attribute.Int("handler.count", len(entries)),
	))
	defer span.End()

	if len(entries) == 0 {
		r.LogWarn("no handler for message tuple",
			"protocol", msg.Protocol, "channel", msg.Channel, "message_id", msg.ID)
		return nil, nil, nil
	}

	var (
		ran      []string
		replies  []UniversalMessage
		firstErr error
	)
	for _, entry := range entries {
		reply, err := entry.handler(ctx, msg)
		ran = append(ran, entry.name)
		if err != nil {
			span.RecordError(err)
			r.LogError("handler failed",
				"handler", entry.name, "protocol", msg.Protocol,
				"channel", msg.Channel, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if reply != nil {
			replies = append(replies, *reply)
		}
	}
	return ran, replies, firstErr
}
