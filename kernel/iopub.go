package kernel

import (
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/event"
	"github.com/lexlapax/go-llmspell/logging"
)

// IOPub broadcasts side-channel messages (status, stream output, results,
// errors) to every listener. Frames go out on the transport's IOPub channel;
// the same payloads are mirrored onto the event bus under "kernel.iopub.*"
// topics so in-process subscribers get the bounded-buffer fan-out and slow
// subscriber eviction the bus already provides.
type IOPub struct {
	mu        sync.Mutex
	session   string
	transport Transport
	signer    *Signer
	bus       *event.Bus

	*core.LoggerAdapter
}

// IOPubOptions configures the broadcaster.
type IOPubOptions struct {
	// Bus mirrors broadcasts in-process. Nil creates a private bus.
	Bus *event.Bus
	// Logger receives broadcast diagnostics.
	Logger logging.Logger
}

// NewIOPub creates a broadcaster for one kernel session.
func NewIOPub(session string, transport Transport, signer *Signer, optFns ...func(o *IOPubOptions)) *IOPub {
	opts := IOPubOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus(func(o *event.Options) { o.Logger = opts.Logger })
	}
	return &IOPub{
		session:       session,
		transport:     transport,
		signer:        signer,
		bus:           opts.Bus,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// Bus exposes the mirror bus for in-process subscribers.
func (p *IOPub) Bus() *event.Bus { return p.bus }

// publish signs and sends one broadcast frame, parented to the triggering
// request so clients can correlate output with their execute calls.
func (p *IOPub) publish(parent WireMessage, msgType string, content map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame := WireMessage{
		Header:       NewHeader(msgType, p.session),
		ParentHeader: parent.Header,
		Metadata:     map[string]any{},
		Content:      content,
	}
	parts, err := frame.Serialize(p.signer)
	if err != nil {
		return err
	}
	if err := p.transport.Send(ChannelIOPub, parts); err != nil {
		return err
	}
	if busErr := p.bus.PublishTopic("kernel.iopub."+msgType, content); busErr != nil {
		p.LogWarn("iopub bus mirror failed", "msg_type", msgType, "error", busErr)
	}
	return nil
}

// PublishStatus broadcasts a kernel execution state ("busy", "idle",
// "starting").
func (p *IOPub) PublishStatus(parent WireMessage, state string) error {
	return p.publish(parent, "status", map[string]any{"execution_state": state})
}

// PublishStream broadcasts captured stdout or stderr text.
func (p *IOPub) PublishStream(parent WireMessage, name, text string) error {
	return p.publish(parent, "stream", map[string]any{"name": name, "text": text})
}

// PublishExecuteResult broadcasts the final value of an execute request.
func (p *IOPub) PublishExecuteResult(parent WireMessage, count int, data map[string]any) error {
	return p.publish(parent, "execute_result", map[string]any{
		"execution_count": count,
		"data":            data,
		"metadata":        map[string]any{},
	})
}

// PublishError broadcasts a script failure.
func (p *IOPub) PublishError(parent WireMessage, ename, evalue string, traceback []string) error {
	if traceback == nil {
		traceback = []string{}
	}
	return p.publish(parent, "error", map[string]any{
		"ename":     ename,
		"evalue":    evalue,
		"traceback": traceback,
	})
}

// PublishDebugEvent broadcasts a debug adapter event ("stopped",
// "continued", "terminated").
func (p *IOPub) PublishDebugEvent(parent WireMessage, eventName string, body map[string]any) error {
	return p.publish(parent, "debug_event", map[string]any{
		"event": eventName,
		"body":  body,
	})
}

// WithStatus brackets fn between busy and idle status broadcasts. Every
// reply-producing request goes through this so clients always observe
// busy before the reply's side effects and idle after them. The idle
// broadcast happens even when fn fails.
func (p *IOPub) WithStatus(parent WireMessage, fn func() error) error {
	if err := p.PublishStatus(parent, "busy"); err != nil {
		return err
	}
	fnErr := fn()
	if err := p.PublishStatus(parent, "idle"); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}
