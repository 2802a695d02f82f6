// Package state implements the scoped key/value store shared by agents,
// tools, workflows and sessions. Every key lives under a StateScope whose
// stable string prefix provides namespacing and cross-scope isolation; the
// Step scope nests under its workflow so permission checks can walk the
// ancestry.
package state

import "fmt"

// ScopeKind tags the StateScope variant.
type ScopeKind string

const (
	// ScopeGlobal is the unprefixed root scope.
	ScopeGlobal ScopeKind = "global"
	// ScopeUser namespaces keys per user.
	ScopeUser ScopeKind = "user"
	// ScopeSession namespaces keys per session.
	ScopeSession ScopeKind = "session"
	// ScopeAgent namespaces keys per agent.
	ScopeAgent ScopeKind = "agent"
	// ScopeTool namespaces keys per tool.
	ScopeTool ScopeKind = "tool"
	// ScopeWorkflow namespaces keys per workflow.
	ScopeWorkflow ScopeKind = "workflow"
	// ScopeStep namespaces keys per (workflow, step) and nests under the workflow.
	ScopeStep ScopeKind = "step"
	// ScopeCustom namespaces keys under a caller-supplied label.
	ScopeCustom ScopeKind = "custom"
)

// Scope is the tagged namespace attached to every state key. The zero value
// is the Global scope.
type Scope struct {
	Kind       ScopeKind `json:"kind"`
	ID         string    `json:"id,omitempty"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	StepName   string    `json:"step_name,omitempty"`
}

// GlobalScope returns the root scope.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// UserScope returns the scope for a user ID.
func UserScope(id string) Scope { return Scope{Kind: ScopeUser, ID: id} }

// SessionScope returns the scope for a session ID.
func SessionScope(id string) Scope { return Scope{Kind: ScopeSession, ID: id} }

// AgentScope returns the scope for an agent ID.
func AgentScope(id string) Scope { return Scope{Kind: ScopeAgent, ID: id} }

// ToolScope returns the scope for a tool ID.
func ToolScope(id string) Scope { return Scope{Kind: ScopeTool, ID: id} }

// WorkflowScope returns the scope for a workflow ID.
func WorkflowScope(id string) Scope { return Scope{Kind: ScopeWorkflow, ID: id} }

// StepScope returns the scope for a step inside a workflow.
func StepScope(workflowID, stepName string) Scope {
	return Scope{Kind: ScopeStep, WorkflowID: workflowID, StepName: stepName}
}

// CustomScope returns a scope under a caller-supplied label.
func CustomScope(label string) Scope { return Scope{Kind: ScopeCustom, ID: label} }

// Prefix returns the stable string prefix used for key namespacing. Global is
// unprefixed; every other scope ends with ":".
func (s Scope) Prefix() string {
	switch s.Kind {
	case ScopeGlobal, "":
		return ""
	case ScopeUser:
		return fmt.Sprintf("user:%s:", s.ID)
	case ScopeSession:
		return fmt.Sprintf("session:%s:", s.ID)
	case ScopeAgent:
		return fmt.Sprintf("agent:%s:", s.ID)
	case ScopeTool:
		return fmt.Sprintf("tool:%s:", s.ID)
	case ScopeWorkflow:
		return fmt.Sprintf("workflow:%s:", s.ID)
	case ScopeStep:
		return fmt.Sprintf("workflow:%s:step:%s:", s.WorkflowID, s.StepName)
	case ScopeCustom:
		return fmt.Sprintf("custom:%s:", s.ID)
	default:
		return fmt.Sprintf("%s:%s:", s.Kind, s.ID)
	}
}

// Parent returns the enclosing scope for permission inheritance: Step nests
// under its Workflow, every other non-global scope nests under Global.
// Global and Custom have no parent.
func (s Scope) Parent() (Scope, bool) {
	switch s.Kind {
	case ScopeStep:
		return WorkflowScope(s.WorkflowID), true
	case ScopeUser, ScopeSession, ScopeAgent, ScopeTool, ScopeWorkflow:
		return GlobalScope(), true
	default:
		return Scope{}, false
	}
}

// IsAncestorOf reports whether s is a (transitive) ancestor of other.
func (s Scope) IsAncestorOf(other Scope) bool {
	for {
		parent, ok := other.Parent()
		if !ok {
			return false
		}
		if parent == s {
			return true
		}
		other = parent
	}
}

// String returns the prefix for non-global scopes and "global" otherwise.
func (s Scope) String() string {
	if s.Kind == ScopeGlobal || s.Kind == "" {
		return "global"
	}
	return s.Prefix()
}
