package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
)

// MessageHandler processes one consumed message value.
type MessageHandler func(ctx context.Context, value []byte)

// Consumer reads a topic as a member of a consumer group. Every distinct
// group receives every message.
type Consumer struct {
	reader *kafka.Reader
	topic  string
	group  string
	closed atomic.Bool

	consumed atomic.Uint64
}

// NewConsumer creates a group consumer starting at the newest offset when
// the group has no committed position.
func NewConsumer(brokers []string, topic, groupID string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, ErrNoTopic
	}
	if groupID == "" {
		return nil, errors.New("group id is required")
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			MaxWait:        500 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			CommitInterval: 0, // synchronous commits
		}),
		topic: topic,
		group: groupID,
	}, nil
}

// Run fetches, handles and commits messages until ctx is cancelled. A
// message is committed after its handler returns, so a crash mid-handler
// redelivers it.
func (c *Consumer) Run(ctx context.Context, handle MessageHandler) error {
	log := logger.WithComponent("kafka_consumer").With().
		Str("topic", c.topic).
		Str("group", c.group).
		Logger()

	log.Info().Msg("kafka consumer started")
	defer log.Info().Msg("kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if c.closed.Load() {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		handle(ctx, msg.Value)
		c.consumed.Add(1)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("kafka commit failed")
		}
	}
}

// Consumed returns the number of handled messages.
func (c *Consumer) Consumed() uint64 {
	return c.consumed.Load()
}

// Close leaves the group and closes the reader.
func (c *Consumer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.reader.Close()
}
