package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpellErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  *SpellError
		kind ErrorKind
	}{
		{"validation", NewValidationError("key", "too long"), ErrValidation},
		{"component", NewComponentError("engine", "boom", errors.New("cause")), ErrComponent},
		{"resource", NewResourceError("max_memory_bytes", "exceeded"), ErrResource},
		{"timeout", NewTimeoutError("workflow", "deadline"), ErrTimeout},
		{"cancelled", NewCancelledError("user interrupt"), ErrCancelled},
		{"not found", NewNotFoundError("state", "missing key"), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.True(t, IsKind(tt.err, tt.kind))
			assert.False(t, IsKind(tt.err, ErrProvider))
		})
	}
}

func TestSpellErrorUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewComponentError("transport", "send failed", cause)

	require.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("routing: %w", err)
	assert.Equal(t, ErrComponent, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, ErrComponent))
}

func TestValidationErrorMessageIncludesField(t *testing.T) {
	err := NewValidationError("max_concurrency", "must be at least 1")
	assert.Contains(t, err.Error(), "max_concurrency")
	assert.Contains(t, err.Error(), "must be at least 1")
}
