// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/entity"
)

// ErrIdentityNotFound is returned when no identity matches the lookup.
var ErrIdentityNotFound = errors.New("identity not found")

// Column names an updatable identity column.
type Column string

const (
	ColName             Column = "name"
	ColPasswordHash     Column = "password_hash"
	ColEmailVerified    Column = "email_verified"
	ColMobileVerified   Column = "mobile_verified"
	ColEmailOTP         Column = "email_otp"
	ColMobileOTP        Column = "mobile_otp"
	ColOTPExpiresAt     Column = "otp_expires_at"
	ColResetToken       Column = "reset_token"
	ColResetExpiresAt   Column = "reset_expires_at"
	ColFirstName        Column = "first_name"
	ColMiddleName       Column = "middle_name"
	ColLastName         Column = "last_name"
	ColDesignation      Column = "designation"
	ColContactNumber    Column = "contact_number"
	ColVisitingCard     Column = "visiting_card"
	ColDigitalSignature Column = "digital_signature"
	ColProfileImage     Column = "profile_image"
)

// Fields is a set of column assignments. Nullable columns take a typed nil
// pointer (*string)(nil) or (*time.Time)(nil) to clear them.
type Fields map[Column]any

// ClearOTPFields returns the assignments that drop both codes and the expiry.
func ClearOTPFields() Fields {
	return Fields{
		ColEmailOTP:     (*string)(nil),
		ColMobileOTP:    (*string)(nil),
		ColOTPExpiresAt: (*time.Time)(nil),
	}
}

// IdentityRepository persists identities. Methods suffixed ForUpdate take a
// row lock and must run inside TransactionManager.Execute.
type IdentityRepository interface {
	// FindByID retrieves an identity by its numeric ID.
	FindByID(ctx context.Context, id int64) (*entity.Identity, error)

	// FindByEmail retrieves an identity by its normalized email.
	FindByEmail(ctx context.Context, email string) (*entity.Identity, error)

	// FindByIDForUpdate retrieves and locks an identity row for the current transaction.
	FindByIDForUpdate(ctx context.Context, id int64) (*entity.Identity, error)

	// FindByEmailForUpdate retrieves and locks an identity row for the current transaction.
	FindByEmailForUpdate(ctx context.Context, email string) (*entity.Identity, error)

	// Create persists a new identity and fills in its generated ID and timestamps.
	Create(ctx context.Context, identity *entity.Identity) error

	// UpdateFields writes the given columns only.
	UpdateFields(ctx context.Context, id int64, fields Fields) error

	// MergeDocument overlays the present keys of patch onto the stored sub-document.
	MergeDocument(ctx context.Context, id int64, field entity.DocumentField, patch entity.Document) error

	// ClearExpiredOTPs clears codes whose expiry is at or before now. Rows
	// re-issued after now are untouched. Returns the number of rows cleared.
	ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}
