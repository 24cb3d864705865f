package impl

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"
	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var resetCodePattern = regexp.MustCompile(`code is (\d{6})`)

// resetMailbox captures reset codes while accepting verification traffic.
type resetMailbox struct {
	mu    sync.Mutex
	codes []string
}

func (m *resetMailbox) last(t *testing.T) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.codes, "no reset email captured")

	return m.codes[len(m.codes)-1]
}

func newPasswordFixtures(t *testing.T) (*identityFixtures, *resetMailbox) {
	t.Helper()

	f := newIdentityFixtures(t)
	box := &resetMailbox{}

	f.email.EXPECT().Send(mock.Anything, mock.Anything, "Password reset code", mock.Anything).
		Run(func(_ context.Context, _, _, body string) {
			box.mu.Lock()
			defer box.mu.Unlock()
			if m := resetCodePattern.FindStringSubmatch(body); m != nil {
				box.codes = append(box.codes, m[1])
			}
		}).
		Return(nil).Maybe()
	f.email.EXPECT().Send(mock.Anything, mock.Anything, "Your verification code", mock.Anything).Return(nil).Maybe()
	f.sms.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	return f, box
}

func (f *identityFixtures) forgot(t *testing.T, email string) {
	t.Helper()

	require.NoError(t, f.password.ForgotPassword(context.Background(), email))
	require.NoError(t, f.dispatcher.Drain(context.Background()))
}

func TestPasswordService_ResetRevokesSessions(t *testing.T) {
	f, box := newPasswordFixtures(t)
	identity := f.registerVerified(t)
	ctx := context.Background()

	login, err := f.auth.Login(ctx, &usecase.LoginInput{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	f.forgot(t, testEmail)
	code := box.last(t)
	assert.Equal(t, "333333", code)

	stored, err := f.store.Identities().FindByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetToken)
	assert.NotEqual(t, code, *stored.ResetToken, "only the digest is stored")

	const newPassword = "An0therStr0ngOne"
	require.NoError(t, f.password.ResetPassword(ctx, &usecase.ResetPasswordInput{
		Email:       testEmail,
		Code:        code,
		NewPassword: newPassword,
	}))

	_, err = f.store.RefreshTokens().FindByHash(ctx, f.tokens.HashToken(login.RefreshToken))
	assert.ErrorIs(t, err, repository.ErrRefreshTokenNotFound)

	_, err = f.auth.Login(ctx, &usecase.LoginInput{Email: testEmail, Password: testPassword})
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredentials))
	_, err = f.auth.Login(ctx, &usecase.LoginInput{Email: testEmail, Password: newPassword})
	assert.NoError(t, err)

	err = f.password.ResetPassword(ctx, &usecase.ResetPasswordInput{Email: testEmail, Code: code, NewPassword: newPassword})
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCode), "codes are single use")
}

func TestPasswordService_ForgotUnknownEmail(t *testing.T) {
	f, box := newPasswordFixtures(t)

	f.forgot(t, "nobody@example.com")

	box.mu.Lock()
	defer box.mu.Unlock()
	assert.Empty(t, box.codes)
}

func TestPasswordService_ResetRejections(t *testing.T) {
	f, box := newPasswordFixtures(t)
	f.registerVerified(t)
	ctx := context.Background()

	f.forgot(t, testEmail)
	code := box.last(t)

	tests := []struct {
		name  string
		input usecase.ResetPasswordInput
		want  error
	}{
		{"missing code", usecase.ResetPasswordInput{Email: testEmail, NewPassword: "An0therStr0ngOne"}, domainerrors.ErrNoCodeProvided},
		{"weak password", usecase.ResetPasswordInput{Email: testEmail, Code: code, NewPassword: "short"}, domainerrors.ErrPasswordStrength},
		{"wrong code", usecase.ResetPasswordInput{Email: testEmail, Code: "000000", NewPassword: "An0therStr0ngOne"}, domainerrors.ErrInvalidCode},
		{"unknown email", usecase.ResetPasswordInput{Email: "ghost@example.com", Code: code, NewPassword: "An0therStr0ngOne"}, domainerrors.ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.password.ResetPassword(ctx, &tt.input)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	f.clock.Advance(f.dispatcher.TTL() + time.Second)
	err := f.password.ResetPassword(ctx, &usecase.ResetPasswordInput{Email: testEmail, Code: code, NewPassword: "An0therStr0ngOne"})
	assert.True(t, errors.Is(err, domainerrors.ErrOTPExpired))
}

func TestPasswordService_ResetAttemptLimit(t *testing.T) {
	f, box := newPasswordFixtures(t)
	f.registerVerified(t)
	ctx := context.Background()

	f.forgot(t, testEmail)
	code := box.last(t)

	for range f.cfg.OTP.MaxVerifyAttempts {
		err := f.password.ResetPassword(ctx, &usecase.ResetPasswordInput{Email: testEmail, Code: "000000", NewPassword: "An0therStr0ngOne"})
		require.True(t, errors.Is(err, domainerrors.ErrInvalidCode))
	}

	err := f.password.ResetPassword(ctx, &usecase.ResetPasswordInput{Email: testEmail, Code: code, NewPassword: "An0therStr0ngOne"})
	assert.True(t, errors.Is(err, domainerrors.ErrTooManyAttempts))
}
