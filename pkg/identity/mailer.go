package identity

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Mailer delivers one-time codes.
type Mailer interface {
	SendCode(ctx context.Context, to string, purpose Purpose, code string) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends codes over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer returns a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) SendCode(ctx context.Context, to string, purpose Purpose, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", purpose.subject())
	msg.SetBody("text/plain", fmt.Sprintf("%s\n\n    %s\n\nThis code expires in %d minutes. If you did not request it, ignore this email.\n",
		purpose.lead(), code, int(CodeTTL.Minutes())))
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s code: %w", purpose, err)
	}
	return nil
}

// LogMailer writes codes to the log. It is used when SMTP is not configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendCode(_ context.Context, to string, purpose Purpose, code string) error {
	log := m.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Warn("smtp not configured; one-time code logged", "to", to, "purpose", string(purpose), "code", code)
	return nil
}
