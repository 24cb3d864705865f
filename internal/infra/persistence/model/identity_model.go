package model

import (
	"time"

	"gorm.io/datatypes"
)

// IdentityModel mirrors the 'users' table. Sub-documents are JSONB columns.
type IdentityModel struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	Name           string     `gorm:"type:varchar(100);not null"`
	Email          string     `gorm:"type:varchar(255);uniqueIndex;not null"`
	ContactNumber  string     `gorm:"type:varchar(32);not null"`
	PasswordHash   string     `gorm:"type:varchar(255);not null"`
	Role           string     `gorm:"type:varchar(20);not null;default:user"`
	EmailVerified  bool       `gorm:"not null;default:false"`
	MobileVerified bool       `gorm:"not null;default:false"`
	EmailOTP       *string    `gorm:"column:email_otp;type:varchar(6)"`
	MobileOTP      *string    `gorm:"column:mobile_otp;type:varchar(6)"`
	OTPExpiresAt   *time.Time `gorm:"column:otp_expires_at;index"`
	ResetToken     *string    `gorm:"type:varchar(64)"`
	ResetExpiresAt *time.Time

	FirstName   string `gorm:"type:varchar(100)"`
	MiddleName  string `gorm:"type:varchar(100)"`
	LastName    string `gorm:"type:varchar(100)"`
	Designation string `gorm:"type:varchar(100)"`

	CompanyInfo          datatypes.JSONMap `gorm:"type:jsonb"`
	RegisteredAddress    datatypes.JSONMap `gorm:"type:jsonb"`
	CommunicationAddress datatypes.JSONMap `gorm:"type:jsonb"`
	DirectorInfo         datatypes.JSONMap `gorm:"type:jsonb"`
	FillerInfo           datatypes.JSONMap `gorm:"type:jsonb"`

	VisitingCard     string `gorm:"type:varchar(512)"`
	DigitalSignature string `gorm:"type:varchar(512)"`
	ProfileImage     string `gorm:"type:varchar(512)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (IdentityModel) TableName() string {
	return "users"
}
