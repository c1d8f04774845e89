// Package email delivers notifications by email, through Postmark when it is
// configured and plain SMTP otherwise.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/domain"
)

var (
	ErrInvalidConfig     = errors.New("invalid email configuration")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

// Sender delivers one notification to a list of addresses.
type Sender interface {
	Send(ctx context.Context, addresses []string, n domain.Notification) error
}

const tagPrefix = "notification-"

// Message is the rendered form of a notification.
type Message struct {
	Subject string
	Text    string
	Tag     string
}

// Render builds the email for n. The subject is the notification title.
func Render(n domain.Notification) Message {
	return Message{
		Subject: n.Title(),
		Text:    n.Message,
		Tag:     tagPrefix + strings.ToLower(strings.ReplaceAll(string(n.Type), "_", "-")),
	}
}

// New picks Postmark when a server token is configured, SMTP otherwise.
func New(cfg config.Email, smtpCfg config.SMTP) (Sender, error) {
	if cfg.PostmarkServerToken != "" {
		return NewPostmarkSender(cfg)
	}
	if smtpCfg.Host == "" {
		return nil, fmt.Errorf("%w: SMTP_HOST is required without POSTMARK_SERVER_TOKEN", ErrInvalidConfig)
	}
	return NewSMTPSender(smtpCfg), nil
}
