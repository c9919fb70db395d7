package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
	"github.com/wneessen/go-mail/smtp"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	TLS      bool
}

// sender is the part of *mail.Client the mailer uses. Every Send works on its
// own connection, so concurrent sends never share SMTP state.
type sender interface {
	DialToSMTPClientWithContext(ctx context.Context) (*smtp.Client, error)
	SendWithSMTPClient(client *smtp.Client, messages ...*mail.Msg) error
	CloseWithSMTPClient(client *smtp.Client) error
}

// SMTPMailer delivers rendered messages over SMTP. Every recipient gets an
// individual message over one connection, so a rejected address does not
// block the others.
type SMTPMailer struct {
	client sender
	from   string
	logger *slog.Logger
}

var _ ports.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer for cfg. No connection is made until Send.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
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
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newSMTPMailer(client, cfg.From, logger), nil
}

func newSMTPMailer(client sender, from string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		client: client,
		from:   from,
		logger: logger.With("component", "email_mailer", "transport", "smtp"),
	}
}

// Send builds one message per recipient and sends them all over a connection
// of its own. Per-recipient failures are joined; the result wraps
// ErrDeliveryFailed when any failed. Send is safe for concurrent use.
func (m *SMTPMailer) Send(ctx context.Context, msg domain.RenderedMessage) error {
	recipients := msg.Recipients.Addresses()
	if len(recipients) == 0 {
		return nil
	}

	text := PlainText(msg.HTML)
	var errs []error

	messages := make([]*mail.Msg, 0, len(recipients))
	for _, to := range recipients {
		out, err := m.buildMessage(to, msg.Subject, msg.HTML, text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
			continue
		}
		messages = append(messages, out)
	}

	if len(messages) > 0 {
		conn, err := m.client.DialToSMTPClientWithContext(ctx)
		if err != nil {
			return fmt.Errorf("%w: smtp dial: %w", apperrors.ErrDeliveryFailed, err)
		}
		errs = append(errs, m.deliver(ctx, conn, msg.Subject, messages)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %d of %d recipients: %w",
			apperrors.ErrDeliveryFailed, len(errs), len(recipients), errors.Join(errs...))
	}
	return nil
}

// deliver sends messages over conn and quits it.
func (m *SMTPMailer) deliver(ctx context.Context, conn *smtp.Client, subject string, messages []*mail.Msg) []error {
	defer func() {
		if err := m.client.CloseWithSMTPClient(conn); err != nil {
			m.logger.DebugContext(ctx, "smtp close failed", "error", err)
		}
	}()

	var errs []error
	for i, out := range messages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := m.client.SendWithSMTPClient(conn, out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.GetToString()[0], err))
			continue
		}
		m.logger.DebugContext(ctx, "email sent", "to_email", out.GetToString()[0], "subject", subject, "index", i)
	}
	return errs
}

func (m *SMTPMailer) buildMessage(to, subject, htmlBody, textBody string) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := out.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	out.Subject(subject)
	out.SetDate()
	out.SetBodyString(mail.TypeTextPlain, textBody)
	out.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	return out, nil
}
