package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ComponentType categorizes the addressable building blocks of the runtime.
type ComponentType string

const (
	// ComponentTypeSystem identifies runtime-internal components.
	ComponentTypeSystem ComponentType = "system"
	// ComponentTypeAgent identifies agents.
	ComponentTypeAgent ComponentType = "agent"
	// ComponentTypeTool identifies tools.
	ComponentTypeTool ComponentType = "tool"
	// ComponentTypeWorkflow identifies workflows.
	ComponentTypeWorkflow ComponentType = "workflow"
	// ComponentTypeSession identifies sessions.
	ComponentTypeSession ComponentType = "session"
)

// ComponentID uniquely identifies a component as a (type, name) pair.
// IDs are immutable value types; names are human-readable.
type ComponentID struct {
	Type ComponentType `json:"type"`
	Name string        `json:"name"`
}

// NewComponentID constructs a ComponentID for the given type and name.
func NewComponentID(t ComponentType, name string) ComponentID {
	return ComponentID{Type: t, Name: name}
}

// String returns the canonical "type:name" form used in logs and registries.
func (id ComponentID) String() string {
	return fmt.Sprintf("%s:%s", id.Type, id.Name)
}

// IsZero reports whether the ID is the zero value.
func (id ComponentID) IsZero() bool { return id.Type == "" && id.Name == "" }

// NewID generates a new unique identifier for events, messages and sessions.
func NewID() string { return uuid.NewString() }
