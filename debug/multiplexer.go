package debug

import (
	"sort"
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
)

// EventKind classifies the raw events an interpreter debug hook can observe.
type EventKind string

const (
	// EventCall fires when a function is entered.
	EventCall EventKind = "call"
	// EventLine fires when execution reaches a new line.
	EventLine EventKind = "line"
	// EventInstruction fires on an instruction-count interval.
	EventInstruction EventKind = "instruction"
	// EventReturn fires when a function returns.
	EventReturn EventKind = "return"
)

// HookEvent is one observation delivered to interested handlers.
type HookEvent struct {
	Kind   EventKind
	Source string
	Line   int
	// Depth is the call stack depth at the event.
	Depth int
	// Instruction is the running instruction counter, set for instruction
	// events.
	Instruction int64
}

// InterestSet declares which raw events a handler wants. The multiplexer
// installs the union of all interest sets and filters per handler.
type InterestSet struct {
	OnCalls   bool
	EveryLine bool
	// EveryNthInstruction requests instruction events at the given interval;
	// zero means no instruction interest.
	EveryNthInstruction int
	OnReturns           bool
}

// Empty reports whether the set requests nothing; an empty union means the
// engine adapter can leave the interpreter hook uninstalled.
func (s InterestSet) Empty() bool {
	return !s.OnCalls && !s.EveryLine && s.EveryNthInstruction == 0 && !s.OnReturns
}

// union merges another set into this one, taking the smallest instruction
// interval.
func (s InterestSet) union(other InterestSet) InterestSet {
	out := InterestSet{
		OnCalls:             s.OnCalls || other.OnCalls,
		EveryLine:           s.EveryLine || other.EveryLine,
		OnReturns:           s.OnReturns || other.OnReturns,
		EveryNthInstruction: s.EveryNthInstruction,
	}
	if other.EveryNthInstruction > 0 &&
		(out.EveryNthInstruction == 0 || other.EveryNthInstruction < out.EveryNthInstruction) {
		out.EveryNthInstruction = other.EveryNthInstruction
	}
	return out
}

// Handler receives multiplexed debug hook events.
//
// Implementations must return quickly; the interpreter is stopped while a
// handler runs.
type Handler interface {
	// Name returns the unique identifier for this handler.
	Name() string

	// Priority orders dispatch; lower values run first.
	Priority() int

	// InterestedEvents declares the raw events this handler wants.
	InterestedEvents() InterestSet

	// OnEvent handles one filtered event.
	OnEvent(ev HookEvent)
}

// Multiplexer shares the interpreter's single debug hook slot between N
// handlers. Registration, removal and re-installation are online operations;
// dispatch order is deterministic: ascending priority, then registration
// order.
type Multiplexer struct {
	mu       sync.RWMutex
	handlers []Handler
	seq      map[string]int
	nextSeq  int

	onChange func()

	instructions int64

	*core.LoggerAdapter
}

// NewMultiplexer creates an empty hook multiplexer.
func NewMultiplexer(logger logging.Logger) *Multiplexer {
	return &Multiplexer{
		seq:           map[string]int{},
		LoggerAdapter: core.NewLoggerAdapter(logger),
	}
}

// SetOnChange installs a callback invoked after every registration change so
// the owning engine adapter can reinstall or remove the interpreter hook.
func (m *Multiplexer) SetOnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Register adds a handler. Re-registering a name replaces the previous
// handler, keeping its dispatch position.
func (m *Multiplexer) Register(h Handler) {
	m.mu.Lock()
	replaced := false
	for i, existing := range m.handlers {
		if existing.Name() == h.Name() {
			m.handlers[i] = h
			replaced = true
			break
		}
	}
	if !replaced {
		m.seq[h.Name()] = m.nextSeq
		m.nextSeq++
		m.handlers = append(m.handlers, h)
		m.sortLocked()
	}
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Unregister removes a handler by name. Returns false if absent.
func (m *Multiplexer) Unregister(name string) bool {
	m.mu.Lock()
	removed := false
	for i, h := range m.handlers {
		if h.Name() == name {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			delete(m.seq, name)
			removed = true
			break
		}
	}
	cb := m.onChange
	m.mu.Unlock()
	if removed && cb != nil {
		cb()
	}
	return removed
}

func (m *Multiplexer) sortLocked() {
	sort.SliceStable(m.handlers, func(i, j int) bool {
		if m.handlers[i].Priority() != m.handlers[j].Priority() {
			return m.handlers[i].Priority() < m.handlers[j].Priority()
		}
		return m.seq[m.handlers[i].Name()] < m.seq[m.handlers[j].Name()]
	})
}

// Union returns the combined interest set the engine adapter should install.
// An empty union means no hook needs to be installed at all.
func (m *Multiplexer) Union() InterestSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var union InterestSet
	for _, h := range m.handlers {
		union = union.union(h.InterestedEvents())
	}
	return union
}

// HandlerNames returns the registered handler names in dispatch order.
func (m *Multiplexer) HandlerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.handlers))
	for i, h := range m.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch fans one raw event out to every handler whose interest set covers
// it, in priority order. Line events additionally synthesize instruction
// events at each handler's requested interval.
func (m *Multiplexer) Dispatch(ev HookEvent) {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.RUnlock()

	if ev.Kind == EventLine {
		ev.Instruction = m.countInstruction()
	}

	for _, h := range handlers {
		interest := h.InterestedEvents()
		switch ev.Kind {
		case EventCall:
			if interest.OnCalls {
				h.OnEvent(ev)
			}
		case EventReturn:
			if interest.OnReturns {
				h.OnEvent(ev)
			}
		case EventLine:
			if interest.EveryLine {
				h.OnEvent(ev)
			}
			if n := interest.EveryNthInstruction; n > 0 && ev.Instruction%int64(n) == 0 {
				instr := ev
				instr.Kind = EventInstruction
				h.OnEvent(instr)
			}
		case EventInstruction:
			if n := interest.EveryNthInstruction; n > 0 && ev.Instruction%int64(n) == 0 {
				h.OnEvent(ev)
			}
		}
	}
}

func (m *Multiplexer) countInstruction() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions++
	return m.instructions
}
