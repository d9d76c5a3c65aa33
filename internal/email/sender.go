// Package email delivers confirmation messages to account holders.
//
// Two senders exist: an SMTP sender for real deployments and a log
// sender that records the message instead of delivering it, used when
// SMTP is disabled in configuration.
package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"

	"github.com/icsolutions/identity-core/internal/infrastructure/config"
	"github.com/icsolutions/identity-core/internal/infrastructure/logging"
)

// confirmationSubject is the subject line of the confirmation message.
const confirmationSubject = "Confirm your email address"

// SMTPSender delivers confirmation emails over SMTP with PLAIN auth.
// STARTTLS is negotiated by the server when offered.
type SMTPSender struct {
	cfg    config.EmailConfig
	logger *logging.Logger
}

// NewSMTPSender creates an SMTP-backed sender.
func NewSMTPSender(cfg config.EmailConfig, logger *logging.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// SendConfirmation delivers the confirmation token to the address.
func (s *SMTPSender) SendConfirmation(ctx context.Context, to, token string) error {
	msg := buildMessage(s.cfg.From, to, confirmationSubject, confirmationBody(token))

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	// smtp.SendMail has no context hook; honour cancellation up front.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}

	s.logger.Debug("confirmation email sent", "to", to)
	return nil
}

// LogSender records confirmation messages instead of delivering them.
// Used in development and when email is disabled.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendConfirmation logs the confirmation token.
func (s *LogSender) SendConfirmation(_ context.Context, to, token string) error {
	s.logger.Info("confirmation email (delivery disabled)", "to", to, "token", token)
	return nil
}

// confirmationBody renders the plain-text confirmation message.
func confirmationBody(token string) string {
	return fmt.Sprintf(
		"Welcome.\r\n\r\nYour confirmation token is:\r\n\r\n    %s\r\n\r\nIf you did not create this account, ignore this message.\r\n",
		token,
	)
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from, to, subject, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.Bytes()
}
