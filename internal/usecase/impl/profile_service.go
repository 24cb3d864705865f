package impl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	deliverycontext "marketplace/internal/delivery/context"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"
	"marketplace/internal/domain/service"
	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

var scalarColumns = map[entity.ScalarField]repository.Column{
	entity.ScalarFirstName:     repository.ColFirstName,
	entity.ScalarMiddleName:    repository.ColMiddleName,
	entity.ScalarLastName:      repository.ColLastName,
	entity.ScalarDesignation:   repository.ColDesignation,
	entity.ScalarContactNumber: repository.ColContactNumber,
}

var fileColumns = map[entity.FileField]repository.Column{
	entity.FileVisitingCard:     repository.ColVisitingCard,
	entity.FileDigitalSignature: repository.ColDigitalSignature,
	entity.FileProfileImage:     repository.ColProfileImage,
}

// profileService implements the ProfileUsecase interface.
type profileService struct {
	txManager    repository.TransactionManager
	identityRepo repository.IdentityRepository
	storage      service.FileStorage
	logger       *slog.Logger
}

// ProfileServiceParams holds dependencies for ProfileService, injected by Fx.
type ProfileServiceParams struct {
	fx.In

	TxManager    repository.TransactionManager
	IdentityRepo repository.IdentityRepository
	Storage      service.FileStorage
	Logger       *slog.Logger
}

// NewProfileService is the constructor for profileService.
func NewProfileService(params ProfileServiceParams) usecase.ProfileUsecase {
	return &profileService{
		txManager:    params.TxManager,
		identityRepo: params.IdentityRepo,
		storage:      params.Storage,
		logger:       params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *profileService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// CompleteProfile merges the patch onto the stored profile. Only non-empty
// values overwrite. Uploads are stored once the identity is known to exist
// and are removed again if the update does not commit.
func (srv *profileService) CompleteProfile(ctx context.Context, input *usecase.CompleteProfileInput) (_ *entity.Identity, err error) {
	if input.ClaimedUserID != nil && *input.ClaimedUserID != input.UserID {
		return nil, domainerrors.ErrForbidden.WrapMessage("user_id does not match the session")
	}

	if _, err := srv.GetProfile(ctx, input.UserID); err != nil {
		return nil, err
	}

	uploaded := make(map[entity.FileField]string, len(input.Uploads))
	defer func() {
		if err != nil {
			srv.discardUploads(ctx, uploaded)
		}
	}()
	for field, upload := range input.Uploads {
		ref, err := srv.storage.Save(ctx, fmt.Sprintf("profiles/%d/%s", input.UserID, field), upload)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to store %s", field)
		}
		uploaded[field] = ref
	}

	var updated *entity.Identity
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identityRepo := repoFactory.IdentityRepo()

		current, err := identityRepo.FindByIDForUpdate(ctx, input.UserID)
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return errors.WithStack(domainerrors.ErrUserNotFound)
		}
		if err != nil {
			return errors.Wrap(err, "failed to load identity")
		}

		fields := repository.Fields{}
		for field, value := range input.Patch.Scalars {
			col, ok := scalarColumns[field]
			if !ok || entity.IsEmptyValue(value) {
				continue
			}
			fields[col] = strings.TrimSpace(value)
		}
		for _, field := range entity.FileFields {
			existing := current.Profile.FileRef(field)
			resolved := entity.ResolveFileRef(uploaded[field], input.Patch.FileRefs[field], existing)
			if resolved != existing {
				fields[fileColumns[field]] = strings.TrimSpace(resolved)
			}
		}
		if err := identityRepo.UpdateFields(ctx, current.ID, fields); err != nil {
			return errors.Wrap(err, "failed to update profile fields")
		}

		for _, field := range entity.DocumentFields {
			patch, ok := input.Patch.Documents[field]
			if !ok {
				continue
			}
			if err := identityRepo.MergeDocument(ctx, current.ID, field, patch); err != nil {
				return errors.Wrapf(err, "failed to merge %s", field)
			}
		}

		updated, err = identityRepo.FindByID(ctx, current.ID)

		return err
	})
	if err != nil {
		return nil, err
	}

	srv.log(ctx).Info("Profile updated",
		slog.Int64("userID", updated.ID),
		slog.Int("uploads", len(uploaded)),
		slog.String("state", string(updated.State())),
	)

	return updated, nil
}

// discardUploads removes objects stored for an update that failed.
func (srv *profileService) discardUploads(ctx context.Context, uploaded map[entity.FileField]string) {
	for field, ref := range uploaded {
		if err := srv.storage.Delete(context.WithoutCancel(ctx), ref); err != nil {
			srv.log(ctx).Warn("Orphaned upload not removed",
				slog.String("field", string(field)),
				slog.String("ref", ref),
				slog.Any("error", err),
			)
		}
	}
}

// GetProfile returns the stored identity for the session subject.
func (srv *profileService) GetProfile(ctx context.Context, userID int64) (*entity.Identity, error) {
	identity, err := srv.identityRepo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrIdentityNotFound) {
		return nil, errors.WithStack(domainerrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load profile")
	}

	return identity, nil
}
