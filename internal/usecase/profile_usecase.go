package usecase

import (
	"context"

	"marketplace/internal/domain/entity"
	"marketplace/internal/domain/service"
)

// CompleteProfileInput is a normalized profile update. UserID comes from the
// session; ClaimedUserID is an optional user_id sent in the body.
type CompleteProfileInput struct {
	UserID        int64
	ClaimedUserID *int64
	Patch         entity.ProfilePatch
	Uploads       map[entity.FileField]service.Upload
}

// ProfileUsecase merges profile details onto a verified identity.
type ProfileUsecase interface {
	CompleteProfile(ctx context.Context, input *CompleteProfileInput) (*entity.Identity, error)
	GetProfile(ctx context.Context, userID int64) (*entity.Identity, error)
}
