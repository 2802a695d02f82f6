// Package tool implements the runtime's tool subsystem: structured
// capabilities scripts and agents invoke with schema validated arguments,
// consistent error handling and a registry that wires hooks and resource
// limits around every call.
package tool

import (
	"context"
	"fmt"

	"github.com/lexlapax/go-llmspell/internal/util"
)

// Tool defines a callable capability exposed to scripts and agents.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully, returning *ToolError for domain failures
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Execute runs the tool with already-parsed arguments.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError reports a tool argument that failed schema validation.
type ValidationError = util.ValidationError

// ToolError represents a failure during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given code.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// Error codes attached to ToolError.
const (
	// CodeValidation marks a schema or argument mismatch.
	CodeValidation = "VALIDATION_ERROR"
	// CodeExecution marks a failure inside the tool implementation.
	CodeExecution = "EXECUTION_ERROR"
)
