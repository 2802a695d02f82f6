package engine

import (
	"strconv"
	"sync"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/event"
)

// streamHandle wraps one live chunk stream behind a script-visible id.
// Streams are lazy and non-restartable; once drained the handle stays done.
type streamHandle struct {
	ch   <-chan core.AgentChunk
	done bool
}

// StreamHandles maps script-visible ids to live chunk streams. Language
// adapters share it so the Streaming surface behaves identically everywhere.
type StreamHandles struct {
	mu      sync.Mutex
	seq     int
	streams map[string]*streamHandle
}

// NewStreamHandles creates an empty handle table.
func NewStreamHandles() *StreamHandles {
	return &StreamHandles{streams: map[string]*streamHandle{}}
}

// Add registers a stream and returns its handle id.
func (t *StreamHandles) Add(ch <-chan core.AgentChunk) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	id := "stream_" + strconv.Itoa(t.seq)
	t.streams[id] = &streamHandle{ch: ch}
	return id
}

// Next blocks for the next chunk. The second return is false once the stream
// has closed or the id is unknown.
func (t *StreamHandles) Next(id string) (core.AgentChunk, bool) {
	t.mu.Lock()
	h, ok := t.streams[id]
	t.mu.Unlock()
	if !ok || h.done {
		return core.AgentChunk{}, false
	}
	chunk, open := <-h.ch
	if !open {
		t.mu.Lock()
		h.done = true
		t.mu.Unlock()
		return core.AgentChunk{}, false
	}
	return chunk, true
}

// IsDone reports whether the stream has been drained. Unknown ids read as
// done.
func (t *StreamHandles) IsDone(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.streams[id]
	return !ok || h.done
}

// Collect drains the remaining chunks.
func (t *StreamHandles) Collect(id string) []core.AgentChunk {
	var out []core.AgentChunk
	for {
		chunk, ok := t.Next(id)
		if !ok {
			return out
		}
		out = append(out, chunk)
	}
}

// ChunkToMap projects a chunk into the script-visible shape. The content
// union flattens into a "type" discriminator plus payload fields.
func ChunkToMap(chunk core.AgentChunk) map[string]any {
	m := map[string]any{
		"stream_id":   chunk.StreamID,
		"chunk_index": chunk.ChunkIndex,
	}
	switch c := chunk.Content.(type) {
	case core.TextChunk:
		m["type"] = "text"
		m["text"] = c.Text
	case core.MediaChunk:
		m["type"] = "media"
		m["mime"] = c.Mime
		m["caption"] = c.Caption
	case core.ToolCallProgressChunk:
		m["type"] = "tool_call_progress"
		m["call_id"] = c.CallID
		m["name"] = c.Name
	case core.ToolCallCompleteChunk:
		m["type"] = "tool_call_complete"
		m["call_id"] = c.CallID
		m["name"] = c.Name
		m["result"] = c.Result
		if c.Error != "" {
			m["error"] = c.Error
		}
	case core.ControlChunk:
		m["type"] = "control"
		m["message"] = string(c.Message)
		if reason, ok := chunk.Metadata["reason"]; ok {
			m["reason"] = reason
		}
	}
	return m
}

// eventSub is one live script subscription to the event bus.
type eventSub struct {
	ch     <-chan event.Event
	cancel func()
}

// SubHandles maps subscription ids to bus channels for poll based
// consumption. Script callbacks cannot run on bus goroutines, so delivery is
// pull, not push.
type SubHandles struct {
	mu   sync.Mutex
	seq  int
	subs map[string]*eventSub
}

// NewSubHandles creates an empty subscription table.
func NewSubHandles() *SubHandles {
	return &SubHandles{subs: map[string]*eventSub{}}
}

// Add registers a subscription and returns its handle id.
func (t *SubHandles) Add(ch <-chan event.Event, cancel func()) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	id := "sub_" + strconv.Itoa(t.seq)
	t.subs[id] = &eventSub{ch: ch, cancel: cancel}
	return id
}

// Poll returns the next buffered event without blocking.
func (t *SubHandles) Poll(id string) (event.Event, bool) {
	t.mu.Lock()
	sub, ok := t.subs[id]
	t.mu.Unlock()
	if !ok {
		return event.Event{}, false
	}
	select {
	case ev, open := <-sub.ch:
		return ev, open
	default:
		return event.Event{}, false
	}
}

// Remove cancels and forgets a subscription.
func (t *SubHandles) Remove(id string) {
	t.mu.Lock()
	sub, ok := t.subs[id]
	delete(t.subs, id)
	t.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

// CloseAll cancels every live subscription, used on engine Close.
func (t *SubHandles) CloseAll() {
	t.mu.Lock()
	subs := t.subs
	t.subs = map[string]*eventSub{}
	t.mu.Unlock()
	for _, sub := range subs {
		sub.cancel()
	}
}
