package usecase

import "context"

// ResetPasswordInput defines the data required to set a new password.
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}

// PasswordUsecase implements the forgot/reset password flow.
type PasswordUsecase interface {
	// ForgotPassword always succeeds for unknown emails so callers cannot
	// discover which addresses are registered.
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, input *ResetPasswordInput) error
}
