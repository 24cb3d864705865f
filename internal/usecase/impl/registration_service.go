// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
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

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const defaultMaxVerifyAttempts = 5

// registrationService implements the RegistrationUsecase interface.
type registrationService struct {
	txManager         repository.TransactionManager
	identityRepo      repository.IdentityRepository
	hasher            service.PasswordHasher
	dispatcher        *OTPDispatcher
	limiter           service.AttemptLimiter
	maxVerifyAttempts int
	resendCooldown    time.Duration
	now               func() time.Time
	logger            *slog.Logger
}

// RegistrationServiceParams holds dependencies for RegistrationService, injected by Fx.
type RegistrationServiceParams struct {
	fx.In

	TxManager    repository.TransactionManager
	IdentityRepo repository.IdentityRepository
	Hasher       service.PasswordHasher
	Dispatcher   *OTPDispatcher
	Limiter      service.AttemptLimiter
	Config       *config.Config
	Logger       *slog.Logger
}

// NewRegistrationService is the constructor for registrationService.
func NewRegistrationService(params RegistrationServiceParams) usecase.RegistrationUsecase {
	srv := &registrationService{
		txManager:         params.TxManager,
		identityRepo:      params.IdentityRepo,
		hasher:            params.Hasher,
		dispatcher:        params.Dispatcher,
		limiter:           params.Limiter,
		maxVerifyAttempts: defaultMaxVerifyAttempts,
		now:               time.Now,
		logger:            params.Logger,
	}
	if params.Config != nil && params.Config.OTP != nil {
		if params.Config.OTP.MaxVerifyAttempts > 0 {
			srv.maxVerifyAttempts = params.Config.OTP.MaxVerifyAttempts
		}
		srv.resendCooldown = params.Config.OTP.ResendCooldown
	}

	return srv
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *registrationService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates an unverified identity with fresh codes on both channels.
// Codes are delivered after the transaction commits, in the background.
func (srv *registrationService) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	email := normalizeEmail(input.Email)

	role := entity.RoleUser
	if input.Role != "" {
		role = entity.Role(strings.ToLower(strings.TrimSpace(input.Role)))
	}
	if !role.SelfRegistrable() {
		return nil, errors.Wrapf(domainerrors.ErrValidationFailed.WithDetails(map[string]string{
			"role": "must be one of user, company, threepl",
		}), "role %q not allowed", role)
	}

	if err := srv.hasher.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}

	hash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	codes, expiresAt, err := srv.dispatcher.Issue([]entity.Channel{entity.ChannelEmail, entity.ChannelMobile}, srv.now())
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrInternalError, err.Error())
	}

	identity := &entity.Identity{
		Name:          strings.TrimSpace(input.Name),
		Email:         email,
		ContactNumber: strings.TrimSpace(input.ContactNumber),
		PasswordHash:  hash,
		Role:          role,
		EmailOTP:      stringPtr(codes[entity.ChannelEmail]),
		MobileOTP:     stringPtr(codes[entity.ChannelMobile]),
		OTPExpiresAt:  &expiresAt,
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identityRepo := repoFactory.IdentityRepo()

		_, err := identityRepo.FindByEmail(ctx, email)
		if err == nil {
			return domainerrors.ErrDuplicateEmail.WrapMessage("email already registered")
		}
		if !errors.Is(err, repository.ErrIdentityNotFound) {
			return errors.Wrap(err, "failed to look up email")
		}

		return identityRepo.Create(ctx, identity)
	})
	if err != nil {
		srv.log(ctx).Warn("Registration failed", slog.String("role", role.String()), slog.Any("error", err))

		return nil, err
	}

	srv.dispatcher.DeliverAsync(ctx, identity, codes)

	srv.log(ctx).Info("Identity registered", slog.Int64("userID", identity.ID), slog.String("role", role.String()))

	return &usecase.RegisterOutput{Identity: identity}, nil
}

// VerifyOTP checks each submitted code independently. A channel that
// matches is committed even when the other fails; the call then returns the
// updated flags together with ErrInvalidCode.
func (srv *registrationService) VerifyOTP(ctx context.Context, input *usecase.VerifyOTPInput) (*usecase.VerifyOTPOutput, error) {
	if err := validateLookup(&input.IdentityLookup); err != nil {
		return nil, err
	}

	emailCode := strings.TrimSpace(input.EmailOTP)
	mobileCode := strings.TrimSpace(input.MobileOTP)

	var (
		out    *usecase.VerifyOTPOutput
		failed bool
	)
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identityRepo := repoFactory.IdentityRepo()

		identity, err := srv.lockIdentity(ctx, identityRepo, &input.IdentityLookup)
		if err != nil {
			return err
		}

		if err := srv.checkAttempts(ctx, "verify:"+strconv.FormatInt(identity.ID, 10)); err != nil {
			return err
		}

		if identity.OTPExpired(srv.now()) {
			return domainerrors.ErrOTPExpired.WrapMessage("verification code expired or not issued")
		}

		if emailCode == "" && mobileCode == "" {
			return domainerrors.ErrNoCodeProvided
		}

		outcomes := make(map[entity.Channel]usecase.ChannelOutcome, 2)
		fields := repository.Fields{}
		submitted := map[entity.Channel]string{
			entity.ChannelEmail:  emailCode,
			entity.ChannelMobile: mobileCode,
		}
		for _, ch := range []entity.Channel{entity.ChannelEmail, entity.ChannelMobile} {
			code := submitted[ch]
			if code == "" {
				continue
			}

			switch {
			case identity.IsVerified(ch):
				outcomes[ch] = usecase.OutcomeAlreadyVerified
			case codeMatches(identity.StoredOTP(ch), code):
				outcomes[ch] = usecase.OutcomeVerified
				fields[verifiedColumn(ch)] = true
				setVerified(identity, ch)
			default:
				outcomes[ch] = usecase.OutcomeInvalid
				failed = true
			}
		}

		if len(fields) > 0 {
			for col, v := range repository.ClearOTPFields() {
				fields[col] = v
			}
			if err := identityRepo.UpdateFields(ctx, identity.ID, fields); err != nil {
				return errors.Wrap(err, "failed to persist verification")
			}
			identity.ClearOTP()
		}

		out = &usecase.VerifyOTPOutput{
			UserID:         identity.ID,
			EmailVerified:  identity.EmailVerified,
			MobileVerified: identity.MobileVerified,
			FullyVerified:  identity.FullyVerified(),
			Channels:       outcomes,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if failed {
		srv.log(ctx).Info("OTP verification rejected", slog.Int64("userID", out.UserID), slog.Any("channels", out.Channels))

		return out, errors.WithStack(domainerrors.ErrInvalidCode.WithDetails(verifyDetails(out)))
	}

	if out.FullyVerified {
		srv.resetAttempts(ctx, "verify:"+strconv.FormatInt(out.UserID, 10))
	}
	srv.log(ctx).Info("OTP verified", slog.Int64("userID", out.UserID), slog.Bool("fullyVerified", out.FullyVerified))

	return out, nil
}

// ResendOTP re-issues codes for the channels that are still unverified and
// waits for delivery so the caller can report per-channel outcomes.
func (srv *registrationService) ResendOTP(ctx context.Context, input *usecase.IdentityLookup) (*usecase.ResendOTPOutput, error) {
	if err := validateLookup(input); err != nil {
		return nil, err
	}

	var (
		identity        *entity.Identity
		codes           IssuedCodes
		expiresAt       time.Time
		alreadyVerified bool
	)
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identityRepo := repoFactory.IdentityRepo()

		var err error
		identity, err = srv.lockIdentity(ctx, identityRepo, input)
		if err != nil {
			return err
		}

		if identity.FullyVerified() {
			alreadyVerified = true
			if identity.HasPendingOTP() || identity.OTPExpiresAt != nil {
				return identityRepo.UpdateFields(ctx, identity.ID, repository.ClearOTPFields())
			}

			return nil
		}

		if srv.resendCooldown > 0 {
			ok, err := srv.limiter.Acquire(ctx, "resend:"+strconv.FormatInt(identity.ID, 10), srv.resendCooldown)
			if err != nil {
				return errors.Wrap(err, "resend cooldown")
			}
			if !ok {
				return domainerrors.ErrTooManyAttempts.WrapMessage("resend requested too soon")
			}
		}

		codes, expiresAt, err = srv.dispatcher.Issue(identity.UnverifiedChannels(), srv.now())
		if err != nil {
			return errors.Wrap(domainerrors.ErrInternalError, err.Error())
		}

		fields := repository.ClearOTPFields()
		for ch, code := range codes {
			fields[otpColumn(ch)] = stringPtr(code)
		}
		fields[repository.ColOTPExpiresAt] = &expiresAt

		return identityRepo.UpdateFields(ctx, identity.ID, fields)
	})
	if err != nil {
		return nil, err
	}

	if alreadyVerified {
		return nil, errors.WithStack(domainerrors.ErrAlreadyVerified)
	}

	report := srv.dispatcher.Deliver(ctx, identity, codes)

	channels := identity.UnverifiedChannels()
	srv.log(ctx).Info("OTP re-issued",
		slog.Int64("userID", identity.ID),
		slog.Any("channels", channels),
		slog.Bool("emailSent", report.EmailSent),
		slog.Bool("mobileSent", report.MobileSent),
	)

	return &usecase.ResendOTPOutput{
		UserID:       identity.ID,
		Channels:     channels,
		OTPExpiresAt: expiresAt,
		EmailSent:    report.EmailSent,
		MobileSent:   report.MobileSent,
	}, nil
}

func (srv *registrationService) lockIdentity(ctx context.Context, repo repository.IdentityRepository, lookup *usecase.IdentityLookup) (*entity.Identity, error) {
	var (
		identity *entity.Identity
		err      error
	)
	if lookup.UserID > 0 {
		identity, err = repo.FindByIDForUpdate(ctx, lookup.UserID)
	} else {
		identity, err = repo.FindByEmailForUpdate(ctx, normalizeEmail(lookup.Email))
	}
	if errors.Is(err, repository.ErrIdentityNotFound) {
		return nil, errors.WithStack(domainerrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load identity")
	}

	return identity, nil
}

func (srv *registrationService) checkAttempts(ctx context.Context, key string) error {
	ok, err := srv.limiter.Allow(ctx, key, srv.maxVerifyAttempts, srv.dispatcher.TTL())
	if err != nil {
		return errors.Wrap(err, "attempt limiter")
	}
	if !ok {
		return domainerrors.ErrTooManyAttempts.WrapMessage("verification attempts exhausted")
	}

	return nil
}

func (srv *registrationService) resetAttempts(ctx context.Context, key string) {
	if err := srv.limiter.Reset(ctx, key); err != nil {
		srv.log(ctx).Warn("Failed to reset attempt counter", slog.String("key", key), slog.Any("error", err))
	}
}

func validateLookup(lookup *usecase.IdentityLookup) error {
	if lookup.UserID <= 0 && strings.TrimSpace(lookup.Email) == "" {
		return domainerrors.ErrValidationFailed.WithDetails(map[string]string{
			"user_id": "user_id or email is required",
		})
	}

	return nil
}

func verifyDetails(out *usecase.VerifyOTPOutput) map[string]any {
	channels := make(map[string]string, len(out.Channels))
	for ch, outcome := range out.Channels {
		channels[string(ch)] = string(outcome)
	}

	return map[string]any{
		"user_id":         out.UserID,
		"email_verified":  out.EmailVerified,
		"mobile_verified": out.MobileVerified,
		"channels":        channels,
	}
}

func verifiedColumn(ch entity.Channel) repository.Column {
	if ch == entity.ChannelEmail {
		return repository.ColEmailVerified
	}

	return repository.ColMobileVerified
}

func otpColumn(ch entity.Channel) repository.Column {
	if ch == entity.ChannelEmail {
		return repository.ColEmailOTP
	}

	return repository.ColMobileOTP
}

func setVerified(identity *entity.Identity, ch entity.Channel) {
	switch ch {
	case entity.ChannelEmail:
		identity.EmailVerified = true
	case entity.ChannelMobile:
		identity.MobileVerified = true
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func stringPtr(s string) *string {
	return &s
}
