// Package mail sends finished report files to schedule recipients.
//
// Delivery is best-effort by design: the scheduler logs failures and moves
// on, because report generation succeeding is the primary success criterion.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"

	logx "reportd/pkg/logx"
)

var ErrNotConfigured = errors.New("mailer not configured")

type Config struct {
	Host     string
	Port     int // default 587
	Username string
	Password string
	From     string
	StartTLS bool
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = 587
	}
	return c
}

// Mailer sends report attachments over SMTP. A nil Mailer is a valid no-op
// sender that returns ErrNotConfigured, so callers don't need to special-case
// a missing mail section.
type Mailer struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Mailer {
	return &Mailer{cfg: cfg.withDefaults(), log: log}
}

// SendReport emails the CSV at path as an attachment named filename.
func (m *Mailer) SendReport(ctx context.Context, to, subject, body, path, filename string) error {
	if m == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient address is empty")
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", m.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	msg.AttachFile(path, gomail.WithFileName(filename))

	opts := []gomail.Option{gomail.WithPort(m.cfg.Port)}
	if m.cfg.StartTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}

	m.log.Info("report emailed", logx.String("to", to), logx.String("attachment", filename))
	return nil
}
