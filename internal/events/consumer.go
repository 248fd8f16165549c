// Package events connects billing to Kafka: processor events in, issued
// receipts out.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// HandlerFunc processes one message value. A returned error leaves the
// message unmarked so it is redelivered; poison messages must return nil.
type HandlerFunc func(ctx context.Context, value []byte) error

type Consumer struct {
	group  sarama.ConsumerGroup
	logger *slog.Logger
}

func NewConsumer(ctx context.Context, brokers []string, groupID string, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := connect(ctx, logger, "consumer", func() (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(brokers, groupID, cfg)
	})
	if err != nil {
		return nil, err
	}
	return &Consumer{group: group, logger: logger.With("component", "kafka-consumer", "group", groupID)}, nil
}

// Run consumes topic until ctx is cancelled. Consume returns on every
// rebalance, so it is called in a loop.
func (c *Consumer) Run(ctx context.Context, topic string, handle HandlerFunc) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer error", "error", err)
		}
	}()

	h := &groupHandler{handle: handle, retryBackoff: connectBackoff, logger: c.logger}
	c.logger.Info("listening", "topic", topic)
	for {
		if err := c.group.Consume(ctx, []string{topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("consume failed", "topic", topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(connectBackoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handle       HandlerFunc
	retryBackoff time.Duration
	logger       *slog.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(session.Context(), msg.Value); err != nil {
				h.logger.Error("message handling failed, will redeliver",
					"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
				// Returning ends the session; the next Consume resumes from the
				// committed offset, which still points at this message.
				select {
				case <-session.Context().Done():
				case <-time.After(h.retryBackoff):
				}
				return fmt.Errorf("offset %d: %w", msg.Offset, err)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// connect retries a client constructor while the broker comes up.
func connect[T any](ctx context.Context, logger *slog.Logger, what string, open func() (T, error)) (T, error) {
	var (
		client T
		err    error
	)
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if client, err = open(); err == nil {
			logger.Info("kafka "+what+" connected", "attempt", attempt)
			return client, nil
		}
		logger.Warn("waiting for kafka", "client", what, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return client, ctx.Err()
		case <-time.After(connectBackoff * time.Duration(attempt)):
		}
	}
	return client, fmt.Errorf("kafka %s: %w", what, err)
}
