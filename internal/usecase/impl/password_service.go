package impl

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"marketplace/config"
	deliverycontext "marketplace/internal/delivery/context"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"
	"marketplace/internal/domain/service"
	"marketplace/internal/usecase"
	"marketplace/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// passwordService implements the PasswordUsecase interface.
type passwordService struct {
	txManager         repository.TransactionManager
	identityRepo      repository.IdentityRepository
	hasher            service.PasswordHasher
	dispatcher        *OTPDispatcher
	limiter           service.AttemptLimiter
	maxVerifyAttempts int
	now               func() time.Time
	logger            *slog.Logger
}

// PasswordServiceParams holds dependencies for PasswordService, injected by Fx.
type PasswordServiceParams struct {
	fx.In

	TxManager    repository.TransactionManager
	IdentityRepo repository.IdentityRepository
	Hasher       service.PasswordHasher
	Dispatcher   *OTPDispatcher
	Limiter      service.AttemptLimiter
	Config       *config.Config
	Logger       *slog.Logger
}

// NewPasswordService is the constructor for passwordService.
func NewPasswordService(params PasswordServiceParams) usecase.PasswordUsecase {
	srv := &passwordService{
		txManager:         params.TxManager,
		identityRepo:      params.IdentityRepo,
		hasher:            params.Hasher,
		dispatcher:        params.Dispatcher,
		limiter:           params.Limiter,
		maxVerifyAttempts: defaultMaxVerifyAttempts,
		now:               time.Now,
		logger:            params.Logger,
	}
	if params.Config != nil && params.Config.OTP != nil && params.Config.OTP.MaxVerifyAttempts > 0 {
		srv.maxVerifyAttempts = params.Config.OTP.MaxVerifyAttempts
	}

	return srv
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *passwordService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// ForgotPassword stores the hash of a fresh reset code and emails the code.
// Unknown emails return nil without side effects.
func (srv *passwordService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	identity, err := srv.identityRepo.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrIdentityNotFound) {
		srv.log(ctx).Debug("Password reset requested for unknown email")

		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to find identity")
	}

	codes, expiresAt, err := srv.dispatcher.Issue([]entity.Channel{entity.ChannelEmail}, srv.now())
	if err != nil {
		return errors.Wrap(domainerrors.ErrInternalError, err.Error())
	}
	code := codes[entity.ChannelEmail]

	if err := srv.identityRepo.UpdateFields(ctx, identity.ID, repository.Fields{
		repository.ColResetToken:     stringPtr(util.SHA256Hex(code)),
		repository.ColResetExpiresAt: &expiresAt,
	}); err != nil {
		return errors.Wrap(err, "failed to store reset token")
	}

	srv.dispatcher.SendResetCodeAsync(ctx, identity.Email, code)
	srv.log(ctx).Info("Password reset issued", slog.Int64("userID", identity.ID))

	return nil
}

// ResetPassword consumes a reset code, stores the new password hash and
// revokes every refresh session of the identity.
func (srv *passwordService) ResetPassword(ctx context.Context, input *usecase.ResetPasswordInput) error {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return errors.WithStack(domainerrors.ErrNoCodeProvided)
	}

	if err := srv.hasher.ValidatePasswordStrength(input.NewPassword); err != nil {
		return err
	}

	newHash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	var userID int64
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identityRepo := repoFactory.IdentityRepo()

		identity, err := identityRepo.FindByEmailForUpdate(ctx, normalizeEmail(input.Email))
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return domainerrors.ErrInvalidCode.WrapMessage("no reset pending")
		}
		if err != nil {
			return errors.Wrap(err, "failed to load identity")
		}
		userID = identity.ID

		ok, err := srv.limiter.Allow(ctx, "reset:"+strconv.FormatInt(identity.ID, 10), srv.maxVerifyAttempts, srv.dispatcher.TTL())
		if err != nil {
			return errors.Wrap(err, "attempt limiter")
		}
		if !ok {
			return domainerrors.ErrTooManyAttempts.WrapMessage("reset attempts exhausted")
		}

		if identity.ResetToken == nil {
			return domainerrors.ErrInvalidCode.WrapMessage("no reset pending")
		}
		if identity.ResetExpiresAt == nil || srv.now().After(*identity.ResetExpiresAt) {
			return domainerrors.ErrOTPExpired.WrapMessage("reset code expired")
		}
		if subtle.ConstantTimeCompare([]byte(*identity.ResetToken), []byte(util.SHA256Hex(code))) != 1 {
			return domainerrors.ErrInvalidCode.WrapMessage("reset code mismatch")
		}

		if err := identityRepo.UpdateFields(ctx, identity.ID, repository.Fields{
			repository.ColPasswordHash:   newHash,
			repository.ColResetToken:     (*string)(nil),
			repository.ColResetExpiresAt: (*time.Time)(nil),
		}); err != nil {
			return errors.Wrap(err, "failed to store new password")
		}

		return repoFactory.RefreshTokenRepo().DeleteByUserID(ctx, identity.ID)
	})
	if err != nil {
		srv.log(ctx).Info("Password reset rejected", slog.Int64("userID", userID), slog.Any("error", err))

		return err
	}

	srv.log(ctx).Info("Password reset completed", slog.Int64("userID", userID))

	return nil
}
