// Package mailer delivers outbound email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Config holds SMTP settings and the sender identity.
type Config struct {
	FromAddress string
	FromName    string
	Host        string
	Port        int
	Username    string
	Password    string
	MaxAttempts uint
}

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	HTML      string
	Text      string
}

// Sender delivers a message or returns why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP sender, or a log-only sender when no SMTP host is configured.
func New(cfg Config, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		logger.Warn("SMTP_HOST not set; emails will only be logged")
		return &LogSender{logger: logger}, nil
	}
	return NewSMTP(cfg, logger)
}

// SMTP sends mail through a relay, retrying transient failures.
type SMTP struct {
	client *mail.Client
	cfg    Config
	logger *zap.Logger
}

// NewSMTP builds the SMTP client. No connection is made until the first send.
func NewSMTP(cfg Config, logger *zap.Logger) (*SMTP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &SMTP{client: client, cfg: cfg, logger: logger}, nil
}

// Send delivers msg, retrying with exponential backoff up to MaxAttempts.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
			s.logger.Warn("smtp send attempt failed", zap.String("to", msg.ToAddress), zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.cfg.MaxAttempts))
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Info("email sent", zap.String("to", msg.ToAddress), zap.String("subject", msg.Subject))
	return nil
}

func (s *SMTP) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.AddToFormat(msg.ToName, msg.ToAddress); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(msg.Subject)
	if msg.Text != "" {
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		if msg.HTML != "" {
			m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
		}
	} else {
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

// LogSender writes messages to the log instead of sending them. Used in
// development when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs msg and always succeeds.
func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.logger.Info("email (log only)",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
