// Package smtp delivers mail through an SMTP relay with PLAIN auth.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	netsmtp "net/smtp"
	"strings"
	"time"

	objmail "github.com/louisbranch/objectstore/internal/mail"
	"github.com/louisbranch/objectstore/internal/platform/config"
	"github.com/louisbranch/objectstore/internal/platform/timeouts"
)

// Config holds SMTP relay settings.
type Config struct {
	Addr     string `env:"OBJECTSTORE_SMTP_ADDR"`
	Username string `env:"OBJECTSTORE_SMTP_USERNAME"`
	Password string `env:"OBJECTSTORE_SMTP_PASSWORD"`
	From     string `env:"OBJECTSTORE_SMTP_FROM"`
}

// LoadConfigFromEnv reads and validates the relay settings through lookup.
// A nil lookup reads the process environment.
func LoadConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := config.ParseEnvWithLookup(&cfg, lookup); err != nil {
		return Config{}, fmt.Errorf("parse smtp env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("OBJECTSTORE_SMTP_ADDR is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("OBJECTSTORE_SMTP_ADDR must be host:port: %w", err)
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.New("OBJECTSTORE_SMTP_FROM is required")
	}
	return nil
}

// sendFunc matches net/smtp.SendMail.
type sendFunc func(addr string, a netsmtp.Auth, from string, to []string, msg []byte) error

// Sender sends each message in its own SMTP session.
type Sender struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

// NewSender builds a Sender for cfg.
func NewSender(cfg Config) (*Sender, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, send: netsmtp.SendMail, now: time.Now}, nil
}

// Send delivers msg. The SMTP exchange is bounded by timeouts.SMTPDial or the
// context deadline, whichever comes first.
func (s *Sender) Send(ctx context.Context, msg objmail.Message) error {
	if s == nil || s.send == nil {
		return errors.New("smtp sender is not configured")
	}
	msg = msg.Normalize()
	if msg.To == "" {
		return errors.New("smtp send: recipient is required")
	}
	body, err := s.compose(msg)
	if err != nil {
		return err
	}

	var auth netsmtp.Auth
	if s.cfg.Username != "" {
		host, _, _ := net.SplitHostPort(s.cfg.Addr)
		auth = netsmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.SMTPDial)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.send(s.cfg.Addr, auth, s.cfg.From, []string{msg.To}, body)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (s *Sender) compose(msg objmail.Message) ([]byte, error) {
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address: %w", err)
	}
	to := &mail.Address{Name: msg.ToName, Address: msg.To}
	if _, err := mail.ParseAddress(to.String()); err != nil {
		return nil, fmt.Errorf("parse recipient address: %w", err)
	}

	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("Date: " + s.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String()), nil
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
