package impl

import (
	"context"
	"log/slog"
	"sync"

	deliverycontext "marketplace/internal/delivery/context"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"
	"marketplace/internal/domain/service"
	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// dummyPassword is hashed once and compared against when the email is
// unknown, so both failure paths pay for one bcrypt comparison.
const dummyPassword = "marketplace-timing-equalizer"

// authService implements the AuthUsecase interface.
type authService struct {
	identityRepo     repository.IdentityRepository
	refreshTokenRepo repository.RefreshTokenRepository
	hasher           service.PasswordHasher
	tokenService     service.TokenService
	logger           *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	IdentityRepo     repository.IdentityRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           service.PasswordHasher
	TokenService     service.TokenService
	Logger           *slog.Logger
}

// NewAuthService is the constructor for authService.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return &authService{
		identityRepo:     params.IdentityRepo,
		refreshTokenRepo: params.RefreshTokenRepo,
		hasher:           params.Hasher,
		tokenService:     params.TokenService,
		logger:           params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Login authenticates by email and password. Unknown email and wrong
// password produce the same error. An unverified identity is always refused
// with NotVerified; its flags are attached only when the password matched.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	identity, err := srv.identityRepo.FindByEmail(ctx, normalizeEmail(input.Email))
	if errors.Is(err, repository.ErrIdentityNotFound) {
		srv.hasher.Check(input.Password, srv.timingHash())

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find identity")
	}

	passwordOK := srv.hasher.Check(input.Password, identity.PasswordHash)

	// Unverified identities are refused whatever the password; only the
	// rightful owner learns the resumable verification state.
	if !identity.FullyVerified() {
		if !passwordOK {
			return nil, errors.WithStack(domainerrors.ErrNotVerified)
		}

		return nil, errors.WithStack(domainerrors.ErrNotVerified.WithDetails(map[string]any{
			"user_id":         identity.ID,
			"email_verified":  identity.EmailVerified,
			"mobile_verified": identity.MobileVerified,
		}))
	}

	if !passwordOK {
		srv.log(ctx).Info("Login rejected", slog.Int64("userID", identity.ID))

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}

	accessToken, expiresIn, err := srv.tokenService.IssueAccess(identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue access token")
	}

	refreshToken, refreshExpiresAt, err := srv.tokenService.IssueRefresh(identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue refresh token")
	}

	if err := srv.refreshTokenRepo.Create(ctx, &entity.RefreshToken{
		UserID:    identity.ID,
		TokenHash: srv.tokenService.HashToken(refreshToken),
		ExpiresAt: refreshExpiresAt,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to persist refresh session")
	}

	srv.log(ctx).Info("Login succeeded", slog.Int64("userID", identity.ID), slog.String("role", identity.Role.String()))

	return &usecase.LoginOutput{
		AccessToken:      accessToken,
		ExpiresIn:        expiresIn,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
		Identity:         identity,
	}, nil
}

// Refresh exchanges a valid, stored refresh token for a new access token.
func (srv *authService) Refresh(ctx context.Context, refreshToken string) (*usecase.RefreshOutput, error) {
	claims, err := srv.tokenService.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, err.Error())
	}

	session, err := srv.refreshTokenRepo.FindByHash(ctx, srv.tokenService.HashToken(refreshToken))
	if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenExpired) {
		return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, err.Error())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find refresh session")
	}
	if session.UserID != claims.Subject {
		return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, "session subject mismatch")
	}

	if _, err := srv.identityRepo.FindByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, "identity no longer exists")
		}

		return nil, errors.Wrap(err, "failed to find identity")
	}

	accessToken, expiresIn, err := srv.tokenService.IssueAccess(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue access token")
	}

	return &usecase.RefreshOutput{AccessToken: accessToken, ExpiresIn: expiresIn}, nil
}

// Logout revokes the refresh session if one is presented.
func (srv *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if err := srv.refreshTokenRepo.DeleteByHash(ctx, srv.tokenService.HashToken(refreshToken)); err != nil {
		srv.log(ctx).Warn("Failed to revoke refresh session", slog.Any("error", err))
	}

	return nil
}

// Authenticate verifies an access token and loads the identity it names.
func (srv *authService) Authenticate(ctx context.Context, accessToken string) (*entity.Identity, error) {
	claims, err := srv.tokenService.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	identity, err := srv.identityRepo.FindByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrIdentityNotFound) {
		return nil, errors.Wrap(domainerrors.ErrUnauthorized, "token subject not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session identity")
	}

	return identity, nil
}

func (srv *authService) timingHash() string {
	srv.dummyOnce.Do(func() {
		hash, err := srv.hasher.Hash(dummyPassword)
		if err != nil {
			srv.logger.Error("Failed to prepare timing hash", slog.Any("error", err))

			return
		}
		srv.dummyHash = hash
	})

	return srv.dummyHash
}
