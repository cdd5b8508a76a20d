// Package mail delivers plain-text email for the service.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/clinic-service/internal/config"
)

// Sender sends one message to one address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New picks the SMTP sender when a host is configured and the log sender otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		logger.Warn("SMTP_HOST not provided; outbound email is logged, not delivered")
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}

// SMTPSender delivers through an SMTP relay with PLAIN auth when credentials are set.
type SMTPSender struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds a sender from configuration.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:     cfg.Addr(),
		host:     cfg.Host,
		from:     cfg.From,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Send writes a minimal RFC 5322 message. net/smtp has no context support, so ctx is
// only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return errors.New("header injection in recipient or subject")
	}

	msg := BuildMessage(s.from, to, subject, body)
	if err := s.sendMail(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send via %s: %w", s.host, err)
	}
	return nil
}

// BuildMessage renders headers and body with CRLF line endings.
func BuildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogSender records messages in the log instead of delivering them. Bodies are omitted
// because they carry passcodes.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info("email not delivered (log sender)",
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}
