package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/entity"

	"github.com/pkg/errors"
)

// Domain-specific errors for refresh token persistence.
var (
	// ErrRefreshTokenNotFound is returned when a refresh token is not found.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenExpired is returned when a refresh token has expired.
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
)

// RefreshTokenRepository stores hashed refresh sessions.
type RefreshTokenRepository interface {
	// Create persists a new refresh session.
	Create(ctx context.Context, token *entity.RefreshToken) error

	// FindByHash retrieves an unexpired session by the hash of its token.
	FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)

	// DeleteByHash ends one session. Missing sessions are not an error.
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteByUserID ends every session of an identity.
	DeleteByUserID(ctx context.Context, userID int64) error

	// DeleteExpired removes sessions that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
