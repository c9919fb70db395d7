package email

import (
	"context"
	"log/slog"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// LogMailer is a secondary adapter that logs emails instead of sending them.
// It is used when no SMTP server is configured.
type LogMailer struct {
	logger *slog.Logger
}

var _ ports.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a new logging mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{
		logger: logger.With("component", "email_mailer", "transport", "log"),
	}
}

// Send logs one line per recipient.
func (m *LogMailer) Send(ctx context.Context, msg domain.RenderedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, to := range msg.Recipients.Addresses() {
		m.logger.InfoContext(ctx, "mock email sent",
			"to_email", to,
			"subject", msg.Subject,
			"template", msg.Template,
			"html_bytes", len(msg.HTML),
		)
	}
	return nil
}
