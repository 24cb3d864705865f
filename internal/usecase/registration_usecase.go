// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"marketplace/internal/domain/entity"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new identity.
type RegisterInput struct {
	Name          string
	Email         string
	Password      string
	ContactNumber string
	// Role is optional and defaults to entity.RoleUser.
	Role string
}

// IdentityLookup addresses an identity by ID or, when ID is zero, by email.
type IdentityLookup struct {
	UserID int64
	Email  string
}

// VerifyOTPInput carries the codes submitted for either or both channels.
type VerifyOTPInput struct {
	IdentityLookup
	EmailOTP  string
	MobileOTP string
}

// --- Output DTOs ---

// RegisterOutput returns the newly created identity.
type RegisterOutput struct {
	Identity *entity.Identity
}

// ChannelOutcome is the per-channel result of a verification attempt.
type ChannelOutcome string

const (
	OutcomeVerified        ChannelOutcome = "verified"
	OutcomeInvalid         ChannelOutcome = "invalid"
	OutcomeAlreadyVerified ChannelOutcome = "already_verified"
)

// VerifyOTPOutput reports the verification flags after the attempt. It is
// also returned alongside ErrInvalidCode when one channel succeeded.
type VerifyOTPOutput struct {
	UserID         int64
	EmailVerified  bool
	MobileVerified bool
	FullyVerified  bool
	Channels       map[entity.Channel]ChannelOutcome
}

// ResendOTPOutput reports which channels got a new code and whether delivery succeeded.
type ResendOTPOutput struct {
	UserID       int64
	Channels     []entity.Channel
	OTPExpiresAt time.Time
	EmailSent    bool
	MobileSent   bool
}

// RegistrationUsecase drives an identity from creation to fully verified.
type RegistrationUsecase interface {
	Register(ctx context.Context, input *RegisterInput) (*RegisterOutput, error)
	VerifyOTP(ctx context.Context, input *VerifyOTPInput) (*VerifyOTPOutput, error)
	ResendOTP(ctx context.Context, input *IdentityLookup) (*ResendOTPOutput, error)
}
