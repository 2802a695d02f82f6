package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a SpellError for retry and propagation decisions.
type ErrorKind string

const (
	// ErrValidation marks bad input, bad keys or bad config. Never retried.
	ErrValidation ErrorKind = "validation"
	// ErrComponent marks a failure inside a subsystem (engine, transport,
	// backend). Carries a cause; may be retried by the caller.
	ErrComponent ErrorKind = "component"
	// ErrProvider marks an external service failure (LLM, HTTP). Retry policy
	// is the caller's choice.
	ErrProvider ErrorKind = "provider"
	// ErrResource marks a resource-limit violation. Never retried automatically.
	ErrResource ErrorKind = "resource"
	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrCancelled marks cooperative cancellation.
	ErrCancelled ErrorKind = "cancelled"
	// ErrNotFound marks a missing component, key or breakpoint.
	ErrNotFound ErrorKind = "not_found"
)

// SpellError is the typed error every subsystem converts into at its boundary.
// Kind drives caller behavior; Field is set for validation errors; Cause
// preserves the wrapped error for errors.Is/As.
type SpellError struct {
	Kind      ErrorKind `json:"kind"`
	Component string    `json:"component,omitempty"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
}

func (e *SpellError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s error in field %q: %s", e.Kind, e.Field, e.Message)
	case e.Component != "":
		return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Component, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *SpellError) Unwrap() error { return e.Cause }

// Is matches two SpellErrors by kind, letting callers write
// errors.Is(err, &SpellError{Kind: ErrNotFound}).
func (e *SpellError) Is(target error) bool {
	var se *SpellError
	if errors.As(target, &se) {
		return se.Kind == e.Kind
	}
	return false
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, message string) *SpellError {
	return &SpellError{Kind: ErrValidation, Field: field, Message: message}
}

// NewComponentError wraps a subsystem failure with its component name.
func NewComponentError(component, message string, cause error) *SpellError {
	return &SpellError{Kind: ErrComponent, Component: component, Message: message, Cause: cause}
}

// NewProviderError wraps an external service failure with the provider name.
func NewProviderError(provider, message string, cause error) *SpellError {
	return &SpellError{Kind: ErrProvider, Component: provider, Message: message, Cause: cause}
}

// NewResourceError creates a resource-limit error for the named limit.
func NewResourceError(limit, message string) *SpellError {
	return &SpellError{Kind: ErrResource, Field: limit, Message: message}
}

// NewTimeoutError creates a timeout error for the named component.
func NewTimeoutError(component, message string) *SpellError {
	return &SpellError{Kind: ErrTimeout, Component: component, Message: message}
}

// NewCancelledError creates a cancellation error carrying the reason.
func NewCancelledError(reason string) *SpellError {
	return &SpellError{Kind: ErrCancelled, Message: reason}
}

// NewNotFoundError creates a not-found error for the named entity.
func NewNotFoundError(component, message string) *SpellError {
	return &SpellError{Kind: ErrNotFound, Component: component, Message: message}
}

// KindOf returns the ErrorKind of err if it is (or wraps) a SpellError,
// otherwise ErrComponent as the conservative default.
func KindOf(err error) ErrorKind {
	var se *SpellError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrComponent
}

// IsKind reports whether err is (or wraps) a SpellError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SpellError
	return errors.As(err, &se) && se.Kind == kind
}
