package core

import "time"

// AgentInput is the common request shape accepted by every agent, including
// workflows composed recursively. Text carries the primary prompt or payload;
// Parameters carries structured arguments; Context carries caller-provided
// ambient data (step substitutions, shared workflow data).
type AgentInput struct {
	Text       string         `json:"text,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// NewAgentInput creates an AgentInput with the given text and empty maps.
func NewAgentInput(text string) AgentInput {
	return AgentInput{Text: text, Parameters: map[string]any{}, Context: map[string]any{}}
}

// WithParameter returns a copy of the input with one parameter set.
func (in AgentInput) WithParameter(key string, value any) AgentInput {
	params := make(map[string]any, len(in.Parameters)+1)
	for k, v := range in.Parameters {
		params[k] = v
	}
	params[key] = value
	in.Parameters = params
	return in
}

// AgentOutput is the common response shape produced by every agent.
type AgentOutput struct {
	Text     string         `json:"text,omitempty"`
	Value    any            `json:"value,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// ToolInput carries the validated arguments for a tool call.
type ToolInput struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolOutput carries a tool call result. Error is set instead of returning a
// Go error when the failure is part of the tool's domain (validation,
// not-found) and the caller should branch rather than abort.
type ToolOutput struct {
	Value    any            `json:"value,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ScriptOutput is the result of a completed script execution.
type ScriptOutput struct {
	Value    any            `json:"value,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
