package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketplace/config"
	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"
	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func lookup(id int64) usecase.IdentityLookup {
	return usecase.IdentityLookup{UserID: id}
}

func TestRegistrationService_Register_Success(t *testing.T) {
	f := newIdentityFixtures(t)
	ctx := context.Background()

	f.email.EXPECT().Send(mock.Anything, testEmail, "Your verification code", mock.MatchedBy(func(body string) bool {
		return assert.Contains(t, body, "111111")
	})).Return(nil).Once()
	f.sms.EXPECT().Send(mock.Anything, testMobile, mock.MatchedBy(func(body string) bool {
		return assert.Contains(t, body, "222222")
	})).Return(nil).Once()

	out, err := f.registration.Register(ctx, &usecase.RegisterInput{
		Name:          "Asha Rao",
		Email:         "  Asha@Example.com ",
		Password:      testPassword,
		ContactNumber: testMobile,
	})
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Drain(ctx))

	identity := out.Identity
	assert.Equal(t, int64(1), identity.ID)
	assert.Equal(t, testEmail, identity.Email)
	assert.Equal(t, entity.RoleUser, identity.Role)
	assert.False(t, identity.EmailVerified)
	assert.False(t, identity.MobileVerified)
	require.NotNil(t, identity.OTPExpiresAt)
	assert.Equal(t, f.clock.Now().Add(f.cfg.OTP.TTL), *identity.OTPExpiresAt)

	stored, err := f.store.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.True(t, f.hasher.Check(testPassword, stored.PasswordHash))
	assert.Equal(t, "111111", *stored.EmailOTP)
	assert.Equal(t, "222222", *stored.MobileOTP)
}

func TestRegistrationService_Register_DeliveryFailureDoesNotFail(t *testing.T) {
	f := newIdentityFixtures(t)
	f.email.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	f.sms.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything).Return(errors.New("gateway down"))

	identity := f.register(t)
	assert.NotZero(t, identity.ID)
}

func TestRegistrationService_Register_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.RegisterInput
		wantErr error
	}{
		{
			name:    "weak password",
			input:   usecase.RegisterInput{Name: "A", Email: "weak@example.com", Password: "short", ContactNumber: testMobile},
			wantErr: domainerrors.ErrPasswordStrength,
		},
		{
			name:    "admin cannot self register",
			input:   usecase.RegisterInput{Name: "A", Email: "root@example.com", Password: testPassword, ContactNumber: testMobile, Role: "admin"},
			wantErr: domainerrors.ErrValidationFailed,
		},
		{
			name:    "unknown role",
			input:   usecase.RegisterInput{Name: "A", Email: "x@example.com", Password: testPassword, ContactNumber: testMobile, Role: "pilot"},
			wantErr: domainerrors.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIdentityFixtures(t)

			_, err := f.registration.Register(context.Background(), &tt.input)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRegistrationService_Register_DuplicateEmail(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	f.register(t)

	_, err := f.registration.Register(context.Background(), &usecase.RegisterInput{
		Name:          "Someone Else",
		Email:         "ASHA@example.com",
		Password:      testPassword,
		ContactNumber: "+919000000000",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrDuplicateEmail))
}

func TestRegistrationService_VerifyOTP_BothChannels(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	out, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{
		IdentityLookup: usecase.IdentityLookup{Email: testEmail},
		EmailOTP:       "111111",
		MobileOTP:      "222222",
	})
	require.NoError(t, err)
	assert.True(t, out.FullyVerified)
	assert.Equal(t, usecase.OutcomeVerified, out.Channels[entity.ChannelEmail])
	assert.Equal(t, usecase.OutcomeVerified, out.Channels[entity.ChannelMobile])

	stored, _ := f.store.Identities().FindByID(ctx, identity.ID)
	assert.Equal(t, entity.StateFullyVerified, stored.State())
	assert.Nil(t, stored.EmailOTP)
	assert.Nil(t, stored.MobileOTP)
	assert.Nil(t, stored.OTPExpiresAt)
}

func TestRegistrationService_VerifyOTP_PartialSuccessIsCommitted(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	out, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{
		IdentityLookup: lookup(identity.ID),
		EmailOTP:       "111111",
		MobileOTP:      "999999",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCode))

	var appErr domainerrors.AppError
	require.True(t, errors.As(err, &appErr))
	details, ok := appErr.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"email": "verified", "mobile": "invalid"}, details["channels"])

	require.NotNil(t, out)
	assert.True(t, out.EmailVerified)
	assert.False(t, out.MobileVerified)

	stored, _ := f.store.Identities().FindByID(ctx, identity.ID)
	assert.True(t, stored.EmailVerified)
	assert.False(t, stored.MobileVerified)
	assert.False(t, stored.HasPendingOTP(), "any success clears both codes")

	_, err = f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{
		IdentityLookup: lookup(identity.ID),
		MobileOTP:      "222222",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrOTPExpired), "cleared codes need a resend")
}

func TestRegistrationService_VerifyOTP_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newIdentityFixtures(t)

		_, err := f.registration.VerifyOTP(context.Background(), &usecase.VerifyOTPInput{
			IdentityLookup: lookup(42),
			EmailOTP:       "111111",
		})
		assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
	})

	t.Run("missing lookup", func(t *testing.T) {
		f := newIdentityFixtures(t)

		_, err := f.registration.VerifyOTP(context.Background(), &usecase.VerifyOTPInput{EmailOTP: "111111"})
		assert.True(t, errors.Is(err, domainerrors.ErrValidationFailed))
	})

	t.Run("expired", func(t *testing.T) {
		f := newIdentityFixtures(t)
		f.allowDelivery()
		identity := f.register(t)
		f.clock.Advance(f.cfg.OTP.TTL + time.Second)

		_, err := f.registration.VerifyOTP(context.Background(), &usecase.VerifyOTPInput{
			IdentityLookup: lookup(identity.ID),
			EmailOTP:       "111111",
			MobileOTP:      "222222",
		})
		assert.True(t, errors.Is(err, domainerrors.ErrOTPExpired))
	})

	t.Run("exactly at expiry is still valid", func(t *testing.T) {
		f := newIdentityFixtures(t)
		f.allowDelivery()
		identity := f.register(t)
		f.clock.Advance(f.cfg.OTP.TTL)

		_, err := f.registration.VerifyOTP(context.Background(), &usecase.VerifyOTPInput{
			IdentityLookup: lookup(identity.ID),
			EmailOTP:       "111111",
		})
		assert.NoError(t, err)
	})

	t.Run("no code provided", func(t *testing.T) {
		f := newIdentityFixtures(t)
		f.allowDelivery()
		identity := f.register(t)

		_, err := f.registration.VerifyOTP(context.Background(), &usecase.VerifyOTPInput{
			IdentityLookup: lookup(identity.ID),
			EmailOTP:       "  ",
		})
		assert.True(t, errors.Is(err, domainerrors.ErrNoCodeProvided))
	})
}

func TestRegistrationService_VerifyOTP_AttemptLimit(t *testing.T) {
	f := newIdentityFixtures(t, func(cfg *config.Config) { cfg.OTP.MaxVerifyAttempts = 2 })
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	for range 2 {
		_, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{IdentityLookup: lookup(identity.ID), EmailOTP: "000000"})
		assert.True(t, errors.Is(err, domainerrors.ErrInvalidCode))
	}

	_, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{IdentityLookup: lookup(identity.ID), EmailOTP: "111111"})
	assert.True(t, errors.Is(err, domainerrors.ErrTooManyAttempts))

	stored, _ := f.store.Identities().FindByID(ctx, identity.ID)
	assert.False(t, stored.EmailVerified)
}

func TestRegistrationService_VerifyOTP_AlreadyVerifiedChannelIsNotAFailure(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	_, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{IdentityLookup: lookup(identity.ID), EmailOTP: "111111"})
	require.NoError(t, err)

	resent, err := f.registration.ResendOTP(ctx, &usecase.IdentityLookup{UserID: identity.ID})
	require.NoError(t, err)
	assert.Equal(t, []entity.Channel{entity.ChannelMobile}, resent.Channels)

	out, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{
		IdentityLookup: lookup(identity.ID),
		EmailOTP:       "000000",
		MobileOTP:      "333333",
	})
	require.NoError(t, err)
	assert.True(t, out.FullyVerified)
	assert.Equal(t, usecase.OutcomeAlreadyVerified, out.Channels[entity.ChannelEmail])
	assert.Equal(t, usecase.OutcomeVerified, out.Channels[entity.ChannelMobile])
}

func TestRegistrationService_ResendOTP_OnlyUnverifiedChannels(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	_, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{IdentityLookup: lookup(identity.ID), MobileOTP: "222222"})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	out, err := f.registration.ResendOTP(ctx, &usecase.IdentityLookup{Email: testEmail})
	require.NoError(t, err)

	assert.Equal(t, []entity.Channel{entity.ChannelEmail}, out.Channels)
	assert.True(t, out.EmailSent)
	assert.False(t, out.MobileSent)
	assert.Equal(t, f.clock.Now().Add(f.cfg.OTP.TTL), out.OTPExpiresAt)

	stored, _ := f.store.Identities().FindByID(ctx, identity.ID)
	require.NotNil(t, stored.EmailOTP)
	assert.Equal(t, "333333", *stored.EmailOTP)
	assert.Nil(t, stored.MobileOTP)
}

func TestRegistrationService_ResendOTP_RenewsExpiredCodes(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	f.clock.Advance(f.cfg.OTP.TTL + time.Minute)
	_, err := f.registration.ResendOTP(ctx, &usecase.IdentityLookup{UserID: identity.ID})
	require.NoError(t, err)

	out, err := f.registration.VerifyOTP(ctx, &usecase.VerifyOTPInput{
		IdentityLookup: lookup(identity.ID),
		EmailOTP:       "333333",
		MobileOTP:      "444444",
	})
	require.NoError(t, err)
	assert.True(t, out.FullyVerified)
}

func TestRegistrationService_ResendOTP_ReportsDeliveryFailure(t *testing.T) {
	f := newIdentityFixtures(t)
	f.email.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.sms.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything).Return(errors.New("not configured"))
	identity := f.register(t)

	out, err := f.registration.ResendOTP(context.Background(), &usecase.IdentityLookup{UserID: identity.ID})
	require.NoError(t, err)
	assert.True(t, out.EmailSent)
	assert.False(t, out.MobileSent)
}

func TestRegistrationService_ResendOTP_AlreadyVerifiedClearsStrayCodes(t *testing.T) {
	f := newIdentityFixtures(t)
	f.allowDelivery()
	identity := f.registerVerified(t)
	ctx := context.Background()

	expires := f.clock.Now().Add(time.Minute)
	require.NoError(t, f.store.Identities().UpdateFields(ctx, identity.ID, repository.Fields{
		repository.ColEmailOTP:     stringPtr("123123"),
		repository.ColOTPExpiresAt: &expires,
	}))

	_, err := f.registration.ResendOTP(ctx, &usecase.IdentityLookup{UserID: identity.ID})
	assert.True(t, errors.Is(err, domainerrors.ErrAlreadyVerified))

	stored, _ := f.store.Identities().FindByID(ctx, identity.ID)
	assert.Nil(t, stored.EmailOTP)
	assert.Nil(t, stored.OTPExpiresAt)
}

func TestRegistrationService_ResendOTP_Cooldown(t *testing.T) {
	f := newIdentityFixtures(t, func(cfg *config.Config) { cfg.OTP.ResendCooldown = time.Minute })
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	_, err := f.registration.ResendOTP(ctx, &usecase.IdentityLookup{UserID: identity.ID})
	require.NoError(t, err)

	_, err = f.registration.ResendOTP(ctx, &usecase.IdentityLookup{UserID: identity.ID})
	assert.True(t, errors.Is(err, domainerrors.ErrTooManyAttempts))
}

func TestRegistrationService_ResendOTP_NotFound(t *testing.T) {
	f := newIdentityFixtures(t)

	_, err := f.registration.ResendOTP(context.Background(), &usecase.IdentityLookup{Email: "nobody@example.com"})
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
}

func TestRegistrationService_ConcurrentVerifyAndResendKeepRowConsistent(t *testing.T) {
	f := newIdentityFixtures(t, func(cfg *config.Config) { cfg.OTP.MaxVerifyAttempts = 100 })
	f.allowDelivery()
	identity := f.register(t)
	ctx := context.Background()

	const rounds = 8
	var wg sync.WaitGroup
	for i := range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			// Outcomes vary with interleaving; only the final row is checked.
			_, _ = f.registration.ResendOTP(ctx, &usecase.IdentityLookup{UserID: identity.ID})
		}()
		go func() {
			defer wg.Done()
			input := &usecase.VerifyOTPInput{IdentityLookup: lookup(identity.ID), MobileOTP: "666666"}
			if i%2 == 0 {
				input.EmailOTP = "111111"
			}
			_, _ = f.registration.VerifyOTP(ctx, input)
		}()
	}
	wg.Wait()
	require.NoError(t, f.dispatcher.Drain(ctx))

	stored, err := f.store.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)

	if stored.HasPendingOTP() {
		assert.NotNil(t, stored.OTPExpiresAt, "a pending code always has an expiry")
	}
	if stored.EmailVerified {
		assert.Nil(t, stored.EmailOTP, "verified email channel holds no code")
	}
	if stored.MobileVerified {
		assert.Nil(t, stored.MobileOTP, "verified mobile channel holds no code")
	}
	if stored.FullyVerified() {
		assert.False(t, stored.HasPendingOTP())
		assert.Nil(t, stored.OTPExpiresAt)
	}
}
