// Package kafka ingests notification create requests from a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/logger"
)

// Creator persists and fans out one notification.
type Creator interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
}

// Consumer reads create requests from a topic using a consumer group.
type Consumer struct {
	topic         string
	creator       Creator
	consumerGroup sarama.ConsumerGroup
	retryBackoff  time.Duration
	log           *slog.Logger
}

const maxBackoff = 30 * time.Second

// NewConsumerGroup builds the sarama consumer group for cfg.
func NewConsumerGroup(cfg config.Kafka) (sarama.ConsumerGroup, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_1_0_0
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	return sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
}

func NewConsumer(topic string, consumerGroup sarama.ConsumerGroup, creator Creator, log *slog.Logger) *Consumer {
	return &Consumer{
		topic:         topic,
		consumerGroup: consumerGroup,
		creator:       creator,
		retryBackoff:  time.Second,
		log:           log,
	}
}

// Start consumes until ctx is cancelled or the group is closed. Transient
// errors back off exponentially up to 30s.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.consumerGroup.Close(); err != nil {
			c.log.Warn("failed to close consumer group", logger.Error(err))
		}
	}()

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.log.Error("consumer group error", logger.Error(err))
		}
	}()

	c.log.Info("kafka consumer started", slog.String("topic", c.topic))

	backoff := time.Second
	for {
		err := c.consumerGroup.Consume(ctx, []string{c.topic}, c)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = time.Second
			continue
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}
		c.log.Error("error consuming messages", logger.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		c.log.Info("partition assignment", slog.String("topic", topic), slog.Any("partitions", partitions))
	}
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles one partition. Undecodable and invalid requests are
// logged and marked so they are not redelivered. Other service errors retry
// the same message with backoff; nothing after it is read until it succeeds.
// If the session ends first the message stays unmarked and is redelivered.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !c.handleWithRetry(ctx, msg) {
				return nil
			}
			session.MarkMessage(msg, "")
		}
	}
}

// handleWithRetry reports false when ctx ended before msg was done with.
func (c *Consumer) handleWithRetry(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	backoff := c.retryBackoff
	for !c.handle(ctx, msg) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return true
}

// handle reports whether msg is done with.
func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	attrs := []any{
		slog.String("topic", msg.Topic),
		slog.Int("partition", int(msg.Partition)),
		slog.Int64("offset", msg.Offset),
	}

	var req domain.CreateNotificationRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		c.log.ErrorContext(ctx, "failed to decode message", append(attrs, logger.Error(err))...)
		return true
	}

	n, err := c.creator.Create(ctx, req)
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.log.ErrorContext(ctx, "dropping invalid notification request", append(attrs, logger.Error(err))...)
		return true
	case err != nil:
		c.log.ErrorContext(ctx, "notification handling failed", append(attrs, logger.Error(err))...)
		return false
	case n != nil:
		c.log.DebugContext(ctx, "notification created", append(attrs, logger.NotificationID(n.ID))...)
	}
	return true
}
