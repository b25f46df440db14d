package mailer

import (
	"context"
	"fmt"
	"net/mail"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/pkg/config"
)

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a provider independent outbound email.
type Message struct {
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Validate checks the minimum a provider needs to accept the message.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	if m.Subject == "" {
		return fmt.Errorf("subject required")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("message body required")
	}
	return nil
}

// Sender delivers a message through a concrete provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the provider named in configuration.
func New(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	from := fmt.Sprintf("%q <%s>", cfg.FromName, cfg.FromAddress)
	switch cfg.Provider {
	case config.MailProviderResend:
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend provider requires RESEND_API_KEY")
		}
		return NewResendSender(cfg.ResendAPIKey, from), nil
	case config.MailProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromAddress), nil
	case config.MailProviderLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
