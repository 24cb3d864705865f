package usecase

import (
	"context"
	"time"

	"marketplace/internal/domain/entity"
)

// LoginInput defines the data required for an identity to log in.
type LoginInput struct {
	Email    string
	Password string
}

// LoginOutput returns the generated tokens after a successful login.
type LoginOutput struct {
	AccessToken      string
	ExpiresIn        time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
	Identity         *entity.Identity
}

// RefreshOutput carries a newly issued access token.
type RefreshOutput struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// AuthUsecase covers login, token refresh, logout and session resolution.
type AuthUsecase interface {
	Login(ctx context.Context, input *LoginInput) (*LoginOutput, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshOutput, error)
	// Logout revokes the refresh session when a token is given. It never fails
	// on an unknown or missing token.
	Logout(ctx context.Context, refreshToken string) error
	// Authenticate resolves an access token to the stored identity.
	Authenticate(ctx context.Context, accessToken string) (*entity.Identity, error)
}
