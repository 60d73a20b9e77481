package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewNotFoundError("reservation abc not found")
	assert.Equal(t, "NOT_FOUND: reservation abc not found", err.Error())

	wrapped := NewStoreUnavailableError("store timed out", context.DeadlineExceeded)
	assert.Equal(t, "STORE_UNAVAILABLE: store timed out: context deadline exceeded", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestTypeOf(t *testing.T) {
	t.Run("unwraps through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("create failed: %w", NewConflictError("slot taken"))
		assert.Equal(t, ErrorTypeConflict, TypeOf(err))
		assert.True(t, IsType(err, ErrorTypeConflict))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("boom")))
		assert.False(t, IsType(fmt.Errorf("boom"), ErrorTypeNotFound))
	})
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewStoreUnavailableError("down", nil)))
	assert.False(t, Retryable(NewConflictError("taken")))
	assert.False(t, Retryable(nil))
}
