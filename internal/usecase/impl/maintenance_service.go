package impl

import (
	"context"
	"log/slog"
	"time"

	"marketplace/internal/domain/repository"
	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

type maintenanceService struct {
	identityRepo     repository.IdentityRepository
	refreshTokenRepo repository.RefreshTokenRepository
	now              func() time.Time
	logger           *slog.Logger
}

// MaintenanceServiceParams holds dependencies for MaintenanceService, injected by Fx.
type MaintenanceServiceParams struct {
	fx.In

	IdentityRepo     repository.IdentityRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Logger           *slog.Logger
}

// NewMaintenanceService is the constructor for maintenanceService.
func NewMaintenanceService(params MaintenanceServiceParams) usecase.MaintenanceUsecase {
	return &maintenanceService{
		identityRepo:     params.IdentityRepo,
		refreshTokenRepo: params.RefreshTokenRepo,
		now:              time.Now,
		logger:           params.Logger,
	}
}

// SweepExpired clears lapsed OTPs and removes expired refresh sessions.
// Lazy expiry checks remain authoritative; this only tidies the store.
func (srv *maintenanceService) SweepExpired(ctx context.Context) (*usecase.SweepResult, error) {
	now := srv.now()

	cleared, err := srv.identityRepo.ClearExpiredOTPs(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to clear expired otps")
	}

	removed, err := srv.refreshTokenRepo.DeleteExpired(ctx, now)
	if err != nil {
		return &usecase.SweepResult{ClearedOTPs: cleared}, errors.Wrap(err, "failed to delete expired sessions")
	}

	if cleared > 0 || removed > 0 {
		srv.logger.Debug("Expired credentials swept", slog.Int64("otps", cleared), slog.Int64("sessions", removed))
	}

	return &usecase.SweepResult{ClearedOTPs: cleared, RemovedSessions: removed}, nil
}
