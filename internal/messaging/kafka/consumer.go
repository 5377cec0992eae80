package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"slotgateway/internal/logger"
)

// HandlerFunc processes consumed messages
type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer wraps Sarama consumer group
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler HandlerFunc
	log     *slog.Logger
}

// NewConsumer creates a new consumer group
func NewConsumer(brokers []string, groupID string, topics []string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 30 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 10 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return &Consumer{
		group:  group,
		topics: topics,
		log:    logger.WithComponent("kafka"),
	}, nil
}

// Start consumes until ctx is done
func (c *Consumer) Start(ctx context.Context, handler HandlerFunc) error {
	c.handler = handler

	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			return fmt.Errorf("consume error: %w", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close shuts down the consumer
func (c *Consumer) Close() error {
	return c.group.Close()
}

// Setup is called at the start of a new session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is called at the end of a session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a consumer group claim. Messages whose
// handler fails are left unmarked.
func (c *Consumer) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	ctx := session.Context()

	for msg := range claim.Messages() {
		c.log.Debug("received message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)

		if err := c.handler(ctx, msg); err != nil {
			c.log.Error("handler error",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err.Error(),
			)
			continue
		}

		session.MarkMessage(msg, "")
	}

	return nil
}

// DispatchEvents adapts a typed callback to a HandlerFunc.
func DispatchEvents(fn func(ctx context.Context, event DispatchEvent) error) HandlerFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		var event DispatchEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("unmarshaling dispatch event: %w", err)
		}
		return fn(ctx, event)
	}
}
