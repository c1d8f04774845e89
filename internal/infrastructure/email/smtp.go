package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"

	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/domain"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends plain-text notification emails through an SMTP relay.
type SMTPSender struct {
	addr     string
	host     string
	from     string
	username string
	password string
	sendMail sendMailFunc
}

func NewSMTPSender(cfg config.SMTP) *SMTPSender {
	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		host:     cfg.Host,
		from:     cfg.From,
		username: cfg.Username,
		password: cfg.Password,
		sendMail: smtp.SendMail,
	}
}

// Send mails every address. net/smtp has no context support, so ctx is only
// checked between recipients.
func (s *SMTPSender) Send(ctx context.Context, addresses []string, n domain.Notification) error {
	msg := Render(n)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	var errs []error
	for _, to := range addresses {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
			s.from, to, msg.Subject, msg.Text)
		if err := s.sendMail(s.addr, auth, s.from, []string{to}, []byte(body)); err != nil {
			errs = append(errs, errors.Join(ErrFailedToSendEmail, err))
		}
	}
	return errors.Join(errs...)
}
