package handler

import (
	"encoding/json"
	"time"

	"marketplace/internal/domain/entity"
	"marketplace/internal/usecase"
)

// --- Request DTOs ---

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required"`
	ContactNumber string `json:"contact_number" validate:"required,min=7,max=20"`
	Role          string `json:"role" validate:"omitempty,oneof=user company threepl"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// IdentityLookupRequest addresses an identity by user_id or email.
type IdentityLookupRequest struct {
	UserID int64  `json:"user_id" validate:"omitempty,gt=0"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// VerifyOTPRequest is the body of POST /api/auth/verifyotp.
type VerifyOTPRequest struct {
	IdentityLookupRequest
	EmailOTP  string `json:"email_otp" validate:"omitempty,max=16"`
	MobileOTP string `json:"mobile_otp" validate:"omitempty,max=16"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally carries the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" query:"refresh_token"`
}

// ForgotPasswordRequest is the body of POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,max=16"`
	NewPassword string `json:"new_password" validate:"required"`
}

// UserProfileRequest may name the caller explicitly; it must match the session.
type UserProfileRequest struct {
	UserID *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

// CompleteProfileRequest is the JSON form of POST /api/auth/complete-profile.
// Sub-documents may be objects or JSON-encoded strings.
type CompleteProfileRequest struct {
	UserID *int64 `json:"user_id" validate:"omitempty,gt=0"`

	FirstName     string `json:"first_name" validate:"max=100"`
	MiddleName    string `json:"middle_name" validate:"max=100"`
	LastName      string `json:"last_name" validate:"max=100"`
	Designation   string `json:"designation" validate:"max=100"`
	ContactNumber string `json:"contact_number" validate:"omitempty,min=7,max=20"`

	CompanyInfo          json.RawMessage `json:"company_info"`
	RegisteredAddress    json.RawMessage `json:"registered_address"`
	CommunicationAddress json.RawMessage `json:"communication_address"`
	DirectorInfo         json.RawMessage `json:"director_info"`
	FillerInfo           json.RawMessage `json:"filler_info"`

	VisitingCard     string `json:"visiting_card" validate:"max=512"`
	DigitalSignature string `json:"digital_signature" validate:"max=512"`
	ProfileImage     string `json:"profile_image" validate:"max=512"`
}

// --- Response Views ---

// IdentityView is the sanitized identity returned to clients. It never
// carries the password hash, OTPs or reset token.
type IdentityView struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	ContactNumber  string       `json:"contact_number"`
	Role           entity.Role  `json:"role"`
	EmailVerified  bool         `json:"email_verified"`
	MobileVerified bool         `json:"mobile_verified"`
	State          string       `json:"state"`
	Profile        *ProfileView `json:"profile,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ProfileView is the client view of the completed profile.
type ProfileView struct {
	FirstName            string          `json:"first_name,omitempty"`
	MiddleName           string          `json:"middle_name,omitempty"`
	LastName             string          `json:"last_name,omitempty"`
	Designation          string          `json:"designation,omitempty"`
	CompanyInfo          entity.Document `json:"company_info,omitempty"`
	RegisteredAddress    entity.Document `json:"registered_address,omitempty"`
	CommunicationAddress entity.Document `json:"communication_address,omitempty"`
	DirectorInfo         entity.Document `json:"director_info,omitempty"`
	FillerInfo           entity.Document `json:"filler_info,omitempty"`
	VisitingCard         string          `json:"visiting_card,omitempty"`
	DigitalSignature     string          `json:"digital_signature,omitempty"`
	ProfileImage         string          `json:"profile_image,omitempty"`
}

// RegisterResponse is returned with 201 after registration.
type RegisterResponse struct {
	ID             int64       `json:"id"`
	Email          string      `json:"email"`
	Role           entity.Role `json:"role"`
	EmailVerified  bool        `json:"email_verified"`
	MobileVerified bool        `json:"mobile_verified"`
	OTPExpiresAt   *time.Time  `json:"otp_expires_at"`
}

// LoginResponse carries the issued tokens and the identity view.
type LoginResponse struct {
	AccessToken      string        `json:"access_token"`
	TokenType        string        `json:"token_type"`
	ExpiresIn        int64         `json:"expires_in"`
	RefreshToken     string        `json:"refresh_token"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	User             *IdentityView `json:"user"`
}

// RefreshResponse carries a new access token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// VerifyOTPResponse reports both flags and the per-channel outcome.
type VerifyOTPResponse struct {
	UserID         int64                                     `json:"user_id"`
	EmailVerified  bool                                      `json:"email_verified"`
	MobileVerified bool                                      `json:"mobile_verified"`
	FullyVerified  bool                                      `json:"fully_verified"`
	Channels       map[entity.Channel]usecase.ChannelOutcome `json:"channels,omitempty"`
}

// ResendOTPResponse reports which channels received a new code.
type ResendOTPResponse struct {
	UserID       int64            `json:"user_id"`
	Channels     []entity.Channel `json:"channels"`
	OTPExpiresAt time.Time        `json:"otp_expires_at"`
	EmailSent    bool             `json:"email_sent"`
	MobileSent   bool             `json:"mobile_sent"`
}

// --- Mapper Functions ---

func toIdentityView(identity *entity.Identity) *IdentityView {
	if identity == nil {
		return nil
	}

	view := &IdentityView{
		ID:             identity.ID,
		Name:           identity.Name,
		Email:          identity.Email,
		ContactNumber:  identity.ContactNumber,
		Role:           identity.Role,
		EmailVerified:  identity.EmailVerified,
		MobileVerified: identity.MobileVerified,
		State:          string(identity.State()),
		CreatedAt:      identity.CreatedAt,
		UpdatedAt:      identity.UpdatedAt,
	}

	p := identity.Profile
	if profileIsEmpty(&p) {
		return view
	}

	view.Profile = &ProfileView{
		FirstName:            p.FirstName,
		MiddleName:           p.MiddleName,
		LastName:             p.LastName,
		Designation:          p.Designation,
		CompanyInfo:          p.CompanyInfo,
		RegisteredAddress:    p.RegisteredAddress,
		CommunicationAddress: p.CommunicationAddress,
		DirectorInfo:         p.DirectorInfo,
		FillerInfo:           p.FillerInfo,
		VisitingCard:         p.VisitingCard,
		DigitalSignature:     p.DigitalSignature,
		ProfileImage:         p.ProfileImage,
	}

	return view
}

func profileIsEmpty(p *entity.Profile) bool {
	if p.FirstName != "" || p.MiddleName != "" || p.LastName != "" || p.Designation != "" {
		return false
	}
	for _, field := range entity.FileFields {
		if p.FileRef(field) != "" {
			return false
		}
	}
	for _, field := range entity.DocumentFields {
		if len(p.Document(field)) > 0 {
			return false
		}
	}

	return true
}

func toRegisterResponse(identity *entity.Identity) *RegisterResponse {
	return &RegisterResponse{
		ID:             identity.ID,
		Email:          identity.Email,
		Role:           identity.Role,
		EmailVerified:  identity.EmailVerified,
		MobileVerified: identity.MobileVerified,
		OTPExpiresAt:   identity.OTPExpiresAt,
	}
}

func toVerifyOTPResponse(out *usecase.VerifyOTPOutput) *VerifyOTPResponse {
	return &VerifyOTPResponse{
		UserID:         out.UserID,
		EmailVerified:  out.EmailVerified,
		MobileVerified: out.MobileVerified,
		FullyVerified:  out.FullyVerified,
		Channels:       out.Channels,
	}
}

func toResendOTPResponse(out *usecase.ResendOTPOutput) *ResendOTPResponse {
	return &ResendOTPResponse{
		UserID:       out.UserID,
		Channels:     out.Channels,
		OTPExpiresAt: out.OTPExpiresAt,
		EmailSent:    out.EmailSent,
		MobileSent:   out.MobileSent,
	}
}
