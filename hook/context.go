package hook

import (
	"github.com/lexlapax/go-llmspell/core"
)

// Context carries the facts about the operation a hook chain observes. It is
// treated as immutable across the chain; the only sanctioned mutation path is
// a Modified result, which the chain applies between hooks.
type Context struct {
	Point         Point             `json:"point"`
	ComponentID   core.ComponentID  `json:"component_id"`
	CorrelationID string            `json:"correlation_id"`
	Language      string            `json:"language,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Data          map[string]any    `json:"data,omitempty"`
	Operation     string            `json:"operation,omitempty"`
}

// NewContext builds a hook context for the given point and component with a
// fresh correlation ID.
func NewContext(point Point, id core.ComponentID) *Context {
	return &Context{
		Point:         point,
		ComponentID:   id,
		CorrelationID: core.NewID(),
		Metadata:      map[string]string{},
		Data:          map[string]any{},
	}
}

// Clone returns a deep copy of the context maps so a hook can inspect data
// without racing the chain.
func (c *Context) Clone() *Context {
	clone := *c
	clone.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	clone.Data = make(map[string]any, len(c.Data))
	for k, v := range c.Data {
		clone.Data[k] = v
	}
	return &clone
}
