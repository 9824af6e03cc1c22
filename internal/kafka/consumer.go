package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"

	"ms-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message value.
type MessageHandler func(ctx context.Context, value []byte) error

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	Reader MessageReader
	Topic  string
	Logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{Reader: reader, Topic: topic, Logger: log}
}

// Start consumes until ctx is cancelled or the reader is closed. Handler failures are
// logged and the offset is committed anyway, so a poison message cannot stall the group.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) {
	c.Logger.LogKafka("CONSUME", c.Topic, "consumer started")
	defer c.Logger.LogKafka("CONSUME", c.Topic, "consumer stopped")

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Fetch from %s failed: %v", c.Topic, err))
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Skipping message %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Commit offset %d on %s failed: %v", msg.Offset, c.Topic, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.Reader.Close()
}
