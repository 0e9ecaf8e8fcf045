// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"log/slog"
)

type Service interface {
	Send(ctx context.Context, e Email) error
}

type Email struct {
	FromName string
	From     string

	To      []string
	ReplyTo string

	Subject string

	TextBody string
	HTMLBody string

	// extra headers, e.g. X-Order-Number
	Headers map[string]string
}

// Log stands in for SMTP when no host is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(ctx context.Context, e Email) error {
	if _, err := buildMIMEMessage(e, "local", timeNow()); err != nil {
		return err
	}
	l.Logger.InfoContext(ctx, "email (not sent, no SMTP host)", "to", e.To, "subject", e.Subject)
	return nil
}
