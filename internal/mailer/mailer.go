// Package mailer sends account emails (password reset, 2FA changes, welcome).
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"erp-backend/internal/config"
	"erp-backend/internal/logging"

	"github.com/rs/zerolog"
)

// Message is one outgoing email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Provider delivers a message
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPProvider delivers through an SMTP relay with PLAIN auth
type SMTPProvider struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", p.Host, p.Port)
	var auth smtp.Auth
	if p.Username != "" {
		auth = smtp.PlainAuth("", p.Username, p.Password, p.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, p.From, []string{msg.To}, []byte(b.String()))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogProvider writes messages to the log instead of sending them (for
// development and tests)
type LogProvider struct {
	log  zerolog.Logger
	mu   sync.Mutex
	Sent []Message
}

func NewLogProvider() *LogProvider {
	return &LogProvider{log: logging.For("mailer")}
}

func (p *LogProvider) Send(ctx context.Context, msg Message) error {
	p.mu.Lock()
	p.Sent = append(p.Sent, msg)
	p.mu.Unlock()
	p.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail (not sent)")
	return nil
}

// Messages returns a copy of every message handed to the provider.
func (p *LogProvider) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.Sent...)
}

// Mailer composes account emails and hands them to a Provider in the
// background. Failures are logged, never returned to the request.
type Mailer struct {
	provider Provider
	log      zerolog.Logger
	wg       sync.WaitGroup
}

func New(p Provider) *Mailer {
	return &Mailer{provider: p, log: logging.For("mailer")}
}

// NewFromConfig picks SMTP when a host is configured, the log provider otherwise.
func NewFromConfig(cfg *config.Config) *Mailer {
	if cfg.Mail.Host == "" {
		return New(NewLogProvider())
	}
	return New(&SMTPProvider{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
}

func (m *Mailer) sendAsync(msg Message) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.provider.Send(ctx, msg); err != nil {
			m.log.Error().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("send failed")
		}
	}()
}

// Wait blocks until queued messages are handed off.
func (m *Mailer) Wait() { m.wg.Wait() }

func (m *Mailer) SendPasswordReset(to, name, token string) {
	m.sendAsync(Message{
		To:      to,
		Subject: "Password reset request",
		Body: fmt.Sprintf("Hello %s,\n\nUse this token to reset your password: %s\n\n"+
			"It expires in 24 hours. If you did not request a reset, ignore this email.\n", name, token),
	})
}

func (m *Mailer) SendTwoFactorEnabled(to, name string) {
	m.sendAsync(Message{
		To:      to,
		Subject: "Two-factor authentication enabled",
		Body:    fmt.Sprintf("Hello %s,\n\nTwo-factor authentication is now enabled on your account.\n", name),
	})
}

func (m *Mailer) SendTwoFactorDisabled(to, name string) {
	m.sendAsync(Message{
		To:      to,
		Subject: "Two-factor authentication disabled",
		Body:    fmt.Sprintf("Hello %s,\n\nTwo-factor authentication was turned off for your account.\n", name),
	})
}

func (m *Mailer) SendWelcome(to, name, role string) {
	m.sendAsync(Message{
		To:      to,
		Subject: "Welcome to the ERP",
		Body:    fmt.Sprintf("Hello %s,\n\nAn account with the %s role has been created for you.\n", name, role),
	})
}
