package impl

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/domain/entity"
	mockSvc "marketplace/internal/mocks/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*OTPDispatcher, *mockSvc.MockEmailSender, *mockSvc.MockSMSSender) {
	t.Helper()

	email := mockSvc.NewMockEmailSender(t)
	sms := mockSvc.NewMockSMSSender(t)
	gen := &sequenceGenerator{codes: []string{"123456", "654321"}}

	return newOTPDispatcher(gen, email, sms, newTestConfig(), newDiscardLogger()), email, sms
}

func TestOTPDispatcher_Issue(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	codes, expiresAt, err := d.Issue([]entity.Channel{entity.ChannelEmail, entity.ChannelMobile}, now)
	require.NoError(t, err)
	assert.Equal(t, IssuedCodes{entity.ChannelEmail: "123456", entity.ChannelMobile: "654321"}, codes)
	assert.Equal(t, now.Add(d.TTL()), expiresAt)
}

func TestOTPDispatcher_DeliverReportsPerChannel(t *testing.T) {
	d, email, sms := newTestDispatcher(t)
	identity := &entity.Identity{ID: 7, Email: testEmail, ContactNumber: testMobile}

	email.EXPECT().Send(mock.Anything, testEmail, "Your verification code", mock.MatchedBy(func(body string) bool {
		return assert.Contains(t, body, "123456")
	})).Return(nil).Once()
	sms.EXPECT().Send(mock.Anything, testMobile, mock.Anything).Return(errors.New("gateway down")).Once()

	report := d.Deliver(context.Background(), identity, IssuedCodes{
		entity.ChannelEmail:  "123456",
		entity.ChannelMobile: "654321",
	})

	assert.Equal(t, DeliveryReport{EmailSent: true, MobileSent: false}, report)
}

func TestOTPDispatcher_DeliverAsyncSurvivesCallerCancel(t *testing.T) {
	d, email, _ := newTestDispatcher(t)
	identity := &entity.Identity{ID: 7, Email: testEmail}

	release := make(chan struct{})
	email.EXPECT().Send(mock.Anything, testEmail, mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, _, _, _ string) error {
			<-release

			return ctx.Err()
		}).Once()

	ctx, cancel := context.WithCancel(context.Background())
	d.DeliverAsync(ctx, identity, IssuedCodes{entity.ChannelEmail: "123456"})
	cancel()

	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	assert.Error(t, d.Drain(short), "delivery is still blocked")

	close(release)
	assert.NoError(t, d.Drain(context.Background()))
}

func TestCodeMatches(t *testing.T) {
	stored := "123456"

	assert.True(t, codeMatches(&stored, "123456"))
	assert.False(t, codeMatches(&stored, "123457"))
	assert.False(t, codeMatches(&stored, ""))
	assert.False(t, codeMatches(nil, "123456"))
}
