package notification

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"zarigaas/pkg/logger"
)

type Email struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers one email. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(email.To) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTML)

	return m.dialer.DialAndSend(msg)
}

// LogMailer writes emails to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, email Email) error {
	logger.WithFields(map[string]interface{}{
		"to":      strings.Join(email.To, ","),
		"subject": email.Subject,
	}).Info("Email not sent, no SMTP host configured")
	return nil
}
