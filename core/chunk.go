package core

import "time"

// ChunkContent is the sealed union of payload kinds a streaming chunk can
// carry. Callers branch on the concrete type, mirroring how event parts are
// handled elsewhere in the runtime.
type ChunkContent interface{ chunkContent() }

// TextChunk carries a plain text fragment.
type TextChunk struct {
	Text string `json:"text"`
}

func (TextChunk) chunkContent() {}

// MediaChunk carries binary media with a mime type and optional caption.
type MediaChunk struct {
	Mime    string `json:"mime"`
	Data    []byte `json:"data"`
	Caption string `json:"caption,omitempty"`
}

func (MediaChunk) chunkContent() {}

// ToolCallProgressChunk reports a tool call in flight with the arguments
// accumulated so far.
type ToolCallProgressChunk struct {
	CallID      string `json:"call_id"`
	Name        string `json:"name"`
	PartialArgs string `json:"partial_args,omitempty"`
}

func (ToolCallProgressChunk) chunkContent() {}

// ToolCallCompleteChunk reports a finished tool call with its result.
type ToolCallCompleteChunk struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (ToolCallCompleteChunk) chunkContent() {}

// ControlMessage signals stream lifecycle transitions.
type ControlMessage string

const (
	// ControlStart marks the beginning of a stream.
	ControlStart ControlMessage = "start"
	// ControlDone marks orderly stream completion.
	ControlDone ControlMessage = "done"
	// ControlError marks abnormal termination; the chunk metadata carries the reason.
	ControlError ControlMessage = "error"
	// ControlCancelled marks cooperative cancellation at a yield boundary.
	ControlCancelled ControlMessage = "cancelled"
)

// ControlChunk carries a ControlMessage.
type ControlChunk struct {
	Message ControlMessage `json:"message"`
}

func (ControlChunk) chunkContent() {}

// AgentChunk is one element of a streaming agent or script response. Chunks
// within a stream share StreamID and carry a monotonically increasing index.
type AgentChunk struct {
	StreamID   string            `json:"stream_id"`
	ChunkIndex int               `json:"chunk_index"`
	Content    ChunkContent      `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewTextChunk builds a text chunk for the given stream and index.
func NewTextChunk(streamID string, index int, text string) AgentChunk {
	return AgentChunk{
		StreamID:   streamID,
		ChunkIndex: index,
		Content:    TextChunk{Text: text},
		Timestamp:  time.Now().UTC(),
	}
}

// NewControlChunk builds a control chunk for the given stream and index.
func NewControlChunk(streamID string, index int, msg ControlMessage, reason string) AgentChunk {
	c := AgentChunk{
		StreamID:   streamID,
		ChunkIndex: index,
		Content:    ControlChunk{Message: msg},
		Timestamp:  time.Now().UTC(),
	}
	if reason != "" {
		c.Metadata = map[string]string{"reason": reason}
	}
	return c
}
