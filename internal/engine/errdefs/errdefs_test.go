package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundMatchesWrappedError(t *testing.T) {
	err := fmt.Errorf("context: %w", NewNotFoundError("proc-1"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsInvalidState(err))
}

func TestIsInvalidStateMatches(t *testing.T) {
	err := NewInvalidStateError("proc-1", "Running", "Stopped")
	assert.True(t, IsInvalidState(err))
	assert.Contains(t, err.Error(), "proc-1")
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("processes.wr", "write failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("cwd", "must not contain \"..\"")
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "cwd")
}

func TestAlreadyExistsMatches(t *testing.T) {
	err := NewAlreadyExistsError("proc-1")
	assert.True(t, IsAlreadyExists(err))
}
