package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"marketplace/config"
	"marketplace/internal/domain/entity"
	"marketplace/internal/domain/service"
	"marketplace/internal/infra/auth"
	"marketplace/internal/infra/limiter"
	"marketplace/internal/infra/persistence/memory"
	mockSvc "marketplace/internal/mocks/service"
	"marketplace/internal/usecase"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "Str0ngPassw0rd"
	testEmail    = "asha@example.com"
	testMobile   = "+919876543210"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{
		SecretKey: config.SecretKey{Access: "access-secret", Refresh: "refresh-secret"},
		Auth:      &config.AuthConfig{BcryptCost: bcrypt.MinCost},
	}
	cfg.ApplyDefaults()

	return cfg
}

// sequenceGenerator hands out codes in order and then repeats the last one.
type sequenceGenerator struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.codes[min(g.next, len(g.codes)-1)]
	g.next++

	return code, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// identityFixtures holds every dependency shared by the identity use cases.
type identityFixtures struct {
	cfg        *config.Config
	store      *memory.Store
	hasher     service.PasswordHasher
	tokens     service.TokenService
	email      *mockSvc.MockEmailSender
	sms        *mockSvc.MockSMSSender
	generator  *sequenceGenerator
	dispatcher *OTPDispatcher
	limiter    service.AttemptLimiter
	clock      *testClock

	registration *registrationService
	auth         *authService
	password     *passwordService
}

func newIdentityFixtures(t *testing.T, mutate ...func(*config.Config)) *identityFixtures {
	t.Helper()

	cfg := newTestConfig()
	for _, m := range mutate {
		m(cfg)
	}

	logger := newDiscardLogger()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	store := memory.NewStore()
	store.SetClock(clock.Now)

	tokens, err := auth.NewJWTService(cfg)
	require.NoError(t, err)

	f := &identityFixtures{
		cfg:       cfg,
		store:     store,
		hasher:    auth.NewBcryptHasher(cfg),
		tokens:    tokens,
		email:     mockSvc.NewMockEmailSender(t),
		sms:       mockSvc.NewMockSMSSender(t),
		generator: &sequenceGenerator{codes: []string{"111111", "222222", "333333", "444444", "555555", "666666"}},
		limiter:   limiter.NewMemoryLimiter(),
		clock:     clock,
	}
	f.dispatcher = newOTPDispatcher(f.generator, f.email, f.sms, cfg, logger)

	f.registration = NewRegistrationService(RegistrationServiceParams{
		TxManager:    store,
		IdentityRepo: store.Identities(),
		Hasher:       f.hasher,
		Dispatcher:   f.dispatcher,
		Limiter:      f.limiter,
		Config:       cfg,
		Logger:       logger,
	}).(*registrationService)
	f.registration.now = clock.Now

	f.auth = NewAuthService(AuthServiceParams{
		IdentityRepo:     store.Identities(),
		RefreshTokenRepo: store.RefreshTokens(),
		Hasher:           f.hasher,
		TokenService:     tokens,
		Logger:           logger,
	}).(*authService)

	f.password = NewPasswordService(PasswordServiceParams{
		TxManager:    store,
		IdentityRepo: store.Identities(),
		Hasher:       f.hasher,
		Dispatcher:   f.dispatcher,
		Limiter:      f.limiter,
		Config:       cfg,
		Logger:       logger,
	}).(*passwordService)
	f.password.now = clock.Now

	return f
}

// allowDelivery accepts any send on both channels.
func (f *identityFixtures) allowDelivery() {
	f.email.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.sms.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

// register creates an identity whose email code is 111111 and mobile code 222222.
func (f *identityFixtures) register(t *testing.T) *entity.Identity {
	t.Helper()

	return f.registerAs(t, testEmail)
}

// registerAs creates a pending identity and waits for its codes to be sent.
// Codes come from the generator in order, email first.
func (f *identityFixtures) registerAs(t *testing.T, email string) *entity.Identity {
	t.Helper()

	out, err := f.registration.Register(context.Background(), &usecase.RegisterInput{
		Name:          "Asha Rao",
		Email:         email,
		Password:      testPassword,
		ContactNumber: testMobile,
		Role:          "company",
	})
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Drain(context.Background()))

	return out.Identity
}

// registerVerified creates a fully verified identity.
func (f *identityFixtures) registerVerified(t *testing.T) *entity.Identity {
	t.Helper()

	identity := f.register(t)
	_, err := f.registration.VerifyOTP(context.Background(), &usecase.VerifyOTPInput{
		IdentityLookup: usecase.IdentityLookup{UserID: identity.ID},
		EmailOTP:       "111111",
		MobileOTP:      "222222",
	})
	require.NoError(t, err)

	stored, err := f.store.Identities().FindByID(context.Background(), identity.ID)
	require.NoError(t, err)

	return stored
}
