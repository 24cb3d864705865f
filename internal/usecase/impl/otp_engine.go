package impl

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketplace/config"
	deliverycontext "marketplace/internal/delivery/context"
	"marketplace/internal/domain/entity"
	"marketplace/internal/domain/service"
	"marketplace/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const defaultDeliveryTimeout = 10 * time.Second

// IssuedCodes maps each channel to the plaintext code that was stored for it.
type IssuedCodes map[entity.Channel]string

// DeliveryReport records which channels accepted their message.
type DeliveryReport struct {
	EmailSent  bool
	MobileSent bool
}

// OTPDispatcher issues one-time codes and delivers them over email and SMS.
// Asynchronous deliveries are tracked and drained on shutdown.
type OTPDispatcher struct {
	generator service.OTPGenerator
	email     service.EmailSender
	sms       service.SMSSender
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// OTPDispatcherParams holds dependencies for OTPDispatcher, injected by Fx.
type OTPDispatcherParams struct {
	fx.In

	Lc        fx.Lifecycle
	Generator service.OTPGenerator
	Email     service.EmailSender
	SMS       service.SMSSender
	Config    *config.Config
	Logger    *slog.Logger
}

// NewOTPDispatcher wires the dispatcher and waits for pending sends on stop.
func NewOTPDispatcher(params OTPDispatcherParams) *OTPDispatcher {
	d := newOTPDispatcher(params.Generator, params.Email, params.SMS, params.Config, params.Logger)

	params.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return d.Drain(ctx)
		},
	})

	return d
}

func newOTPDispatcher(
	generator service.OTPGenerator,
	email service.EmailSender,
	sms service.SMSSender,
	cfg *config.Config,
	logger *slog.Logger,
) *OTPDispatcher {
	d := &OTPDispatcher{
		generator: generator,
		email:     email,
		sms:       sms,
		ttl:       2 * time.Minute,
		timeout:   defaultDeliveryTimeout,
		logger:    logger,
	}
	if cfg != nil && cfg.OTP != nil {
		if cfg.OTP.TTL > 0 {
			d.ttl = cfg.OTP.TTL
		}
		if cfg.OTP.DeliveryTimeout > 0 {
			d.timeout = cfg.OTP.DeliveryTimeout
		}
	}

	return d
}

func (d *OTPDispatcher) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, d.logger)
}

// TTL is the validity window shared by every code the dispatcher issues.
func (d *OTPDispatcher) TTL() time.Duration {
	return d.ttl
}

// Issue generates one code per channel. All codes share one expiry.
func (d *OTPDispatcher) Issue(channels []entity.Channel, now time.Time) (IssuedCodes, time.Time, error) {
	codes := make(IssuedCodes, len(channels))
	for _, ch := range channels {
		code, err := d.generator.Generate()
		if err != nil {
			return nil, time.Time{}, errors.Wrapf(err, "generate %s code", ch)
		}
		codes[ch] = code
	}

	return codes, now.Add(d.ttl), nil
}

// Deliver sends every code concurrently and waits for all sends. Failures
// are logged and reflected in the report, never returned.
func (d *OTPDispatcher) Deliver(ctx context.Context, identity *entity.Identity, codes IssuedCodes) DeliveryReport {
	var (
		report DeliveryReport
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	for ch, code := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok := d.send(ctx, identity, ch, code)

			mu.Lock()
			defer mu.Unlock()
			switch ch {
			case entity.ChannelEmail:
				report.EmailSent = ok
			case entity.ChannelMobile:
				report.MobileSent = ok
			}
		}()
	}
	wg.Wait()

	return report
}

// DeliverAsync sends in the background on a context detached from the
// caller's cancellation but still bounded by the delivery timeout.
func (d *OTPDispatcher) DeliverAsync(ctx context.Context, identity *entity.Identity, codes IssuedCodes) {
	detached := context.WithoutCancel(ctx)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.Deliver(detached, identity, codes)
	}()
}

// SendResetCodeAsync emails a password reset code in the background.
func (d *OTPDispatcher) SendResetCodeAsync(ctx context.Context, email, code string) {
	detached := context.WithoutCancel(ctx)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		sendCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		body := fmt.Sprintf("Your password reset code is %s. It expires in %s.", code, util.FormatDuration(d.ttl))
		if err := d.email.Send(sendCtx, email, "Password reset code", body); err != nil {
			d.log(detached).Warn("Password reset email failed", slog.String("to", util.MaskEmail(email)), slog.Any("error", err))
		}
	}()
}

// Drain blocks until background deliveries finish or ctx is done.
func (d *OTPDispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "otp deliveries still pending")
	}
}

func (d *OTPDispatcher) send(ctx context.Context, identity *entity.Identity, ch entity.Channel, code string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	body := fmt.Sprintf("Your verification code is %s. It expires in %s.", code, util.FormatDuration(d.ttl))

	var err error
	var to string
	switch ch {
	case entity.ChannelEmail:
		to = util.MaskEmail(identity.Email)
		err = d.email.Send(sendCtx, identity.Email, "Your verification code", body)
	case entity.ChannelMobile:
		to = util.MaskPhone(identity.ContactNumber)
		err = d.sms.Send(sendCtx, identity.ContactNumber, body)
	default:
		err = errors.Errorf("unknown channel %s", ch)
	}

	if err != nil {
		d.log(ctx).Warn("OTP delivery failed",
			slog.Int64("userID", identity.ID),
			slog.String("channel", string(ch)),
			slog.String("to", to),
			slog.Any("error", err),
		)

		return false
	}

	return true
}

// codeMatches compares a submitted code with the stored one in constant time.
func codeMatches(stored *string, submitted string) bool {
	if stored == nil || submitted == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(*stored), []byte(submitted)) == 1
}
