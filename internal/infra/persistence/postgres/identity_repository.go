package postgres

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"
	"marketplace/internal/infra/persistence/model"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// identityRepository implements repository.IdentityRepository using GORM.
type identityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository is the constructor for identityRepository.
func NewIdentityRepository(db *gorm.DB) repository.IdentityRepository {
	return &identityRepository{db: db}
}

// FindByID retrieves a single identity by its numeric ID.
func (repo *identityRepository) FindByID(ctx context.Context, id int64) (*entity.Identity, error) {
	return repo.first(ctx, repo.db.WithContext(ctx).Where("id = ?", id), "find identity by id")
}

// FindByEmail retrieves a single identity by its normalized email.
func (repo *identityRepository) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return repo.first(ctx, repo.db.WithContext(ctx).Where("email = ?", email), "find identity by email")
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (repo *identityRepository) FindByIDForUpdate(ctx context.Context, id int64) (*entity.Identity, error) {
	q := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id)

	return repo.first(ctx, q, "lock identity by id")
}

// FindByEmailForUpdate locks the row until the surrounding transaction ends.
func (repo *identityRepository) FindByEmailForUpdate(ctx context.Context, email string) (*entity.Identity, error) {
	q := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("email = ?", email)

	return repo.first(ctx, q, "lock identity by email")
}

func (repo *identityRepository) first(_ context.Context, q *gorm.DB, op string) (*entity.Identity, error) {
	var m model.IdentityModel
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrIdentityNotFound
		}

		return nil, errors.Wrap(err, op)
	}

	return toIdentityDomain(&m), nil
}

// Create persists a new identity and copies back the generated ID and timestamps.
func (repo *identityRepository) Create(ctx context.Context, identity *entity.Identity) error {
	m := fromIdentityDomain(identity)

	if err := repo.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.ErrDuplicateEmail.WrapMessage("email already exists")
		}
		if isNotNullConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("missing required identity information")
		}
		if isCheckConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("identity violates a check constraint")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create identity")
	}

	identity.ID = m.ID
	identity.CreatedAt = m.CreatedAt
	identity.UpdatedAt = m.UpdatedAt

	return nil
}

// UpdateFields writes only the listed columns.
func (repo *identityRepository) UpdateFields(ctx context.Context, id int64, fields repository.Fields) error {
	if len(fields) == 0 {
		return nil
	}

	updates := make(map[string]any, len(fields)+1)
	for col, v := range fields {
		updates[string(col)] = v
	}
	updates["updated_at"] = time.Now()

	result := repo.db.WithContext(ctx).Model(&model.IdentityModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to update identity")
	}
	if result.RowsAffected == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// MergeDocument overlays the present keys of patch with JSONB concatenation,
// leaving keys absent from the patch untouched in the stored document.
func (repo *identityRepository) MergeDocument(ctx context.Context, id int64, field entity.DocumentField, patch entity.Document) error {
	if !slices.Contains(entity.DocumentFields, field) {
		return errors.Errorf("unknown document field %q", field)
	}

	present := patch.Present()
	if len(present) == 0 {
		return nil
	}

	raw, err := json.Marshal(present)
	if err != nil {
		return errors.Wrap(err, "encode document patch")
	}

	col := string(field)
	result := repo.db.WithContext(ctx).Model(&model.IdentityModel{}).Where("id = ?", id).Updates(map[string]any{
		col:          gorm.Expr("COALESCE("+col+", '{}'::jsonb) || ?::jsonb", string(raw)),
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to merge "+col)
	}
	if result.RowsAffected == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// ClearExpiredOTPs only touches rows whose expiry is strictly before now,
// matching Identity.OTPExpired, so a code re-issued concurrently survives.
func (repo *identityRepository) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).Model(&model.IdentityModel{}).
		Where("otp_expires_at IS NOT NULL AND otp_expires_at < ?", now).
		Updates(map[string]any{
			"email_otp":      nil,
			"mobile_otp":     nil,
			"otp_expires_at": nil,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "clear expired otps")
	}

	return result.RowsAffected, nil
}

// --- Mapper Functions ---

func toIdentityDomain(m *model.IdentityModel) *entity.Identity {
	if m == nil {
		return nil
	}

	return &entity.Identity{
		ID:             m.ID,
		Name:           m.Name,
		Email:          m.Email,
		ContactNumber:  m.ContactNumber,
		PasswordHash:   m.PasswordHash,
		Role:           entity.Role(m.Role),
		EmailVerified:  m.EmailVerified,
		MobileVerified: m.MobileVerified,
		EmailOTP:       m.EmailOTP,
		MobileOTP:      m.MobileOTP,
		OTPExpiresAt:   m.OTPExpiresAt,
		ResetToken:     m.ResetToken,
		ResetExpiresAt: m.ResetExpiresAt,
		Profile: entity.Profile{
			FirstName:            m.FirstName,
			MiddleName:           m.MiddleName,
			LastName:             m.LastName,
			Designation:          m.Designation,
			CompanyInfo:          toDocument(m.CompanyInfo),
			RegisteredAddress:    toDocument(m.RegisteredAddress),
			CommunicationAddress: toDocument(m.CommunicationAddress),
			DirectorInfo:         toDocument(m.DirectorInfo),
			FillerInfo:           toDocument(m.FillerInfo),
			VisitingCard:         m.VisitingCard,
			DigitalSignature:     m.DigitalSignature,
			ProfileImage:         m.ProfileImage,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromIdentityDomain(e *entity.Identity) *model.IdentityModel {
	if e == nil {
		return nil
	}

	return &model.IdentityModel{
		ID:                   e.ID,
		Name:                 e.Name,
		Email:                e.Email,
		ContactNumber:        e.ContactNumber,
		PasswordHash:         e.PasswordHash,
		Role:                 string(e.Role),
		EmailVerified:        e.EmailVerified,
		MobileVerified:       e.MobileVerified,
		EmailOTP:             e.EmailOTP,
		MobileOTP:            e.MobileOTP,
		OTPExpiresAt:         e.OTPExpiresAt,
		ResetToken:           e.ResetToken,
		ResetExpiresAt:       e.ResetExpiresAt,
		FirstName:            e.Profile.FirstName,
		MiddleName:           e.Profile.MiddleName,
		LastName:             e.Profile.LastName,
		Designation:          e.Profile.Designation,
		CompanyInfo:          fromDocument(e.Profile.CompanyInfo),
		RegisteredAddress:    fromDocument(e.Profile.RegisteredAddress),
		CommunicationAddress: fromDocument(e.Profile.CommunicationAddress),
		DirectorInfo:         fromDocument(e.Profile.DirectorInfo),
		FillerInfo:           fromDocument(e.Profile.FillerInfo),
		VisitingCard:         e.Profile.VisitingCard,
		DigitalSignature:     e.Profile.DigitalSignature,
		ProfileImage:         e.Profile.ProfileImage,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

func toDocument(m datatypes.JSONMap) entity.Document {
	if m == nil {
		return nil
	}

	return entity.Document(m)
}

func fromDocument(d entity.Document) datatypes.JSONMap {
	if d == nil {
		return nil
	}

	return datatypes.JSONMap(d)
}
