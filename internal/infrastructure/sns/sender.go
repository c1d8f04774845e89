// Package sns delivers notifications as SMS through AWS SNS.
package sns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-api-notify/internal/domain"
)

// publisher is the part of *sns.Client the sender uses.
type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender publishes one transactional SMS per phone number.
type Sender struct {
	client   publisher
	senderID string
}

func NewSender(client publisher, senderID string) *Sender {
	return &Sender{client: client, senderID: senderID}
}

// Text renders the SMS body for n.
func Text(n domain.Notification) string {
	return n.Title() + ": " + n.Message
}

// Send publishes to every phone. Failures for one number do not stop the rest.
func (s *Sender) Send(ctx context.Context, phones []string, n domain.Notification) error {
	text := Text(n)
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}

	var errs []error
	for _, phone := range phones {
		_, err := s.client.Publish(ctx, &sns.PublishInput{
			PhoneNumber:       aws.String(phone),
			Message:           aws.String(text),
			MessageAttributes: attrs,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", phone, err))
		}
	}
	return errors.Join(errs...)
}
