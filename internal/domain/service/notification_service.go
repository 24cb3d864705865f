package service

import "context"

// EmailSender delivers plain messages over email. Missing configuration is
// reported as an error; callers treat delivery as best effort.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers short text messages to a mobile number.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}
