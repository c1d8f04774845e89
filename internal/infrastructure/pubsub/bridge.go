// Package pubsub carries live notifications to subscribed clients over redis
// pub/sub, one channel per user.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notification:user:"

// ChannelForUser names the redis channel carrying userID's notifications.
func ChannelForUser(userID string) string {
	return channelPrefix + userID
}

// Bridge publishes notifications and streams them back to subscribers.
type Bridge struct {
	client redis.UniversalClient
	log    *slog.Logger
}

func NewBridge(client redis.UniversalClient, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{client: client, log: log}
}

// Publish sends n to its owner's channel.
func (b *Bridge) Publish(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	if err := b.client.Publish(ctx, ChannelForUser(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// Subscribe streams userID's notifications. The redis subscription is opened
// when iteration starts and closed when the caller stops ranging, ctx is
// cancelled, or the server drops the channel. Messages that do not decode to
// a valid notification are logged and skipped. A failed subscribe handshake
// is yielded once as an error.
func (b *Bridge) Subscribe(ctx context.Context, userID string) iter.Seq2[domain.Notification, error] {
	return func(yield func(domain.Notification, error) bool) {
		channel := ChannelForUser(userID)
		ps := b.client.Subscribe(ctx, channel)
		defer ps.Close()

		if _, err := ps.Receive(ctx); err != nil {
			yield(domain.Notification{}, fmt.Errorf("subscribe %s: %w", channel, err))
			return
		}

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				n, err := decode(msg.Payload)
				if err != nil {
					b.log.WarnContext(ctx, "dropping invalid pub/sub message",
						slog.String("channel", channel), logger.Error(err))
					continue
				}
				if !yield(n, nil) {
					return
				}
			}
		}
	}
}

func decode(payload string) (domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return domain.Notification{}, fmt.Errorf("decode: %w", err)
	}
	if err := n.Validate(); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}
