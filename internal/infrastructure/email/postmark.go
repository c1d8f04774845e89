package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/domain"
	"github.com/mrz1836/postmark"
)

type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkSender sends notification emails through Postmark.
type PostmarkSender struct {
	client  postmarkAPI
	from    string
	replyTo string
}

func NewPostmarkSender(cfg config.Email) (*PostmarkSender, error) {
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SENDER_EMAIL is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    cfg.SenderEmail,
		replyTo: cfg.SupportEmail,
	}, nil
}

// Send emails every address. One failing address does not stop the rest.
func (s *PostmarkSender) Send(ctx context.Context, addresses []string, n domain.Notification) error {
	msg := Render(n)
	var errs []error
	for _, to := range addresses {
		resp, err := s.client.SendEmail(ctx, postmark.Email{
			From:       s.from,
			ReplyTo:    s.replyTo,
			To:         to,
			Subject:    msg.Subject,
			TextBody:   msg.Text,
			Tag:        msg.Tag,
			TrackOpens: true,
		})
		if err != nil {
			errs = append(errs, errors.Join(ErrFailedToSendEmail, err))
			continue
		}
		if resp.ErrorCode > 0 {
			errs = append(errs, errors.Join(ErrFailedToSendEmail,
				fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)))
		}
	}
	return errors.Join(errs...)
}
