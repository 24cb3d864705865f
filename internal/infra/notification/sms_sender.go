package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"marketplace/config"
	"marketplace/internal/domain/service"
	"marketplace/internal/util"

	"github.com/pkg/errors"
)

const defaultSMSTimeout = 5 * time.Second

// NewSMSSender returns the HTTP gateway sender when an endpoint is
// configured, otherwise a sender that only logs and reports ErrNotConfigured.
func NewSMSSender(cfg *config.Config, logger *slog.Logger) service.SMSSender {
	if cfg.SMS == nil || cfg.SMS.Endpoint == "" {
		return &unconfiguredSMSSender{logger: logger}
	}

	timeout := cfg.SMS.Timeout
	if timeout <= 0 {
		timeout = defaultSMSTimeout
	}

	return &gatewaySMSSender{
		cfg:    *cfg.SMS,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type gatewaySMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
	logger *slog.Logger
}

type smsRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id,omitempty"`
}

// Send posts the message to the gateway. Any non-2xx status is a failure.
func (s *gatewaySMSSender) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(smsRequest{To: to, Message: body, SenderID: s.cfg.SenderID})
	if err != nil {
		return errors.Wrap(err, "encode sms request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sms gateway request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	s.logger.Debug("SMS delivered", slog.String("to", util.MaskPhone(to)))

	return nil
}

type unconfiguredSMSSender struct {
	logger *slog.Logger
}

func (s *unconfiguredSMSSender) Send(ctx context.Context, to, _ string) error {
	s.logger.WarnContext(ctx, "SMS gateway not configured, message dropped", slog.String("to", util.MaskPhone(to)))

	return errors.Wrap(ErrNotConfigured, "sms")
}
