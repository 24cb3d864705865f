// Package notification delivers one-time codes over email and SMS.
package notification

import (
	"context"
	"log/slog"

	"marketplace/config"
	"marketplace/internal/domain/service"
	"marketplace/internal/util"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned by senders that have no usable configuration.
var ErrNotConfigured = errors.New("delivery channel not configured")

type smtpMailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
	send   func(*gomail.Message) error
}

// NewSMTPMailer builds an EmailSender over gomail. A blank host leaves the
// sender in place but every Send fails with ErrNotConfigured.
func NewSMTPMailer(cfg *config.Config, logger *slog.Logger) service.EmailSender {
	m := &smtpMailer{logger: logger}
	if cfg.SMTP != nil {
		m.cfg = *cfg.SMTP
	}

	if m.cfg.Host != "" {
		dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
		m.send = func(msg *gomail.Message) error {
			return dialer.DialAndSend(msg)
		}
	}

	return m
}

// Send delivers a plain-text message. gomail has no context support, so the
// dial runs in its own goroutine and Send returns early on cancellation.
func (m *smtpMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.send == nil || m.cfg.From == "" {
		return errors.Wrap(ErrNotConfigured, "smtp")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() {
		done <- m.send(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "smtp send")
		}
		m.logger.Debug("Email delivered", slog.String("to", util.MaskEmail(to)))

		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "smtp send")
	}
}
