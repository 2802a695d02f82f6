package tool

import (
	"context"

	"github.com/lexlapax/go-llmspell/internal/util"
)

// FunctionTool adapts a plain Go function into a Tool. It validates arguments
// against its schema before invoking the function and normalizes failures into
// *ToolError so callers see consistent codes:
//
//	*ToolError (returned directly) -> forwarded unchanged
//	validation failure             -> CodeValidation
//	other error                    -> CodeExecution
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct type.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum := NewFunctionToolFromStruct("calculate_sum", "Calculate a + b", SumArgs{},
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  })
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

var _ Tool = (*FunctionTool)(nil)

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Execute validates args against the declared schema then invokes the wrapped
// function.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeValidation, Details: err}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if te, ok := err.(*ToolError); ok {
			return nil, te
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}
	return result, nil
}
