package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseError_WithDetailsKeepsIdentity(t *testing.T) {
	detailed := ErrNotVerified.WithDetails(map[string]any{"user_id": int64(7)})

	assert.True(t, stderrors.Is(detailed, ErrNotVerified))
	assert.False(t, stderrors.Is(detailed, ErrInvalidCode))
	assert.Equal(t, http.StatusForbidden, detailed.HTTPCode())
	assert.Equal(t, map[string]any{"user_id": int64(7)}, detailed.Details())
	assert.Nil(t, ErrNotVerified.Details())
}

func TestBaseError_WrappedStillResolvesAsAppError(t *testing.T) {
	err := errors.Wrap(ErrInvalidCredentials, "login failed")

	var appErr AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.ErrorCode())
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPCode())
}

func TestDatabaseExecuteError(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewDatabaseExecuteError(cause, "failed to create identity")

	assert.Equal(t, http.StatusInternalServerError, err.HTTPCode())
	assert.Equal(t, "DATABASE_EXECUTE_FAILED", err.ErrorCode())
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, stderrors.Is(err, cause))
}
