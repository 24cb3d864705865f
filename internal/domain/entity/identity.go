package entity

import "time"

// Channel is one of the two independent verification paths.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
)

// LifecycleState is derived from the stored flags and profile, never persisted.
type LifecycleState string

const (
	StateCreated         LifecycleState = "created"
	StateEmailVerified   LifecycleState = "email_verified"
	StateMobileVerified  LifecycleState = "mobile_verified"
	StateFullyVerified   LifecycleState = "fully_verified"
	StateProfileComplete LifecycleState = "profile_complete"
)

// Identity is the stored record for one registered account.
// Secret fields (PasswordHash, EmailOTP, MobileOTP, ResetToken) must never
// leave the service boundary.
type Identity struct {
	ID            int64
	Name          string
	Email         string
	ContactNumber string
	PasswordHash  string
	Role          Role

	EmailVerified  bool
	MobileVerified bool

	EmailOTP     *string
	MobileOTP    *string
	OTPExpiresAt *time.Time

	// ResetToken holds the SHA-256 of an outstanding password reset code.
	ResetToken     *string
	ResetExpiresAt *time.Time

	Profile Profile

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullyVerified reports whether both channels are verified. Login requires it.
func (i *Identity) FullyVerified() bool {
	return i.EmailVerified && i.MobileVerified
}

// IsVerified reports the verification flag of a single channel.
func (i *Identity) IsVerified(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return i.EmailVerified
	case ChannelMobile:
		return i.MobileVerified
	default:
		return false
	}
}

// UnverifiedChannels lists the channels that still need a code, email first.
func (i *Identity) UnverifiedChannels() []Channel {
	channels := make([]Channel, 0, 2)
	if !i.EmailVerified {
		channels = append(channels, ChannelEmail)
	}
	if !i.MobileVerified {
		channels = append(channels, ChannelMobile)
	}

	return channels
}

// StoredOTP returns the outstanding code for a channel, or nil.
func (i *Identity) StoredOTP(ch Channel) *string {
	switch ch {
	case ChannelEmail:
		return i.EmailOTP
	case ChannelMobile:
		return i.MobileOTP
	default:
		return nil
	}
}

// HasPendingOTP reports whether any code is outstanding, regardless of expiry.
func (i *Identity) HasPendingOTP() bool {
	return i.EmailOTP != nil || i.MobileOTP != nil
}

// OTPExpired treats a missing expiry the same as an elapsed one: there is no
// live window to verify against.
func (i *Identity) OTPExpired(now time.Time) bool {
	return i.OTPExpiresAt == nil || now.After(*i.OTPExpiresAt)
}

// ClearOTP drops both codes and the shared expiry.
func (i *Identity) ClearOTP() {
	i.EmailOTP = nil
	i.MobileOTP = nil
	i.OTPExpiresAt = nil
}

// State derives the lifecycle position of the identity.
func (i *Identity) State() LifecycleState {
	switch {
	case i.FullyVerified() && i.Profile.Complete():
		return StateProfileComplete
	case i.FullyVerified():
		return StateFullyVerified
	case i.EmailVerified:
		return StateEmailVerified
	case i.MobileVerified:
		return StateMobileVerified
	default:
		return StateCreated
	}
}

// RefreshToken represents a long-lived, authorized user session.
type RefreshToken struct {
	ID        string    // UUID of the session record.
	UserID    int64     // Identity the session belongs to.
	TokenHash string    // SHA-256 of the raw refresh token.
	ExpiresAt time.Time // After this instant the session is unusable.
	CreatedAt time.Time
}
