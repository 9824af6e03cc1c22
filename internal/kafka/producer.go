package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
}

// NewProducer builds a writer that routes by message topic, keyed by event ID so
// every change for one event lands on the same partition.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish writes one message to the given topic
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	if p.Logger != nil {
		p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(value)))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// BookingPublisher streams booking lifecycle events.
type BookingPublisher struct {
	Producer       *Producer
	CreatedTopic   string
	CancelledTopic string
}

func NewBookingPublisher(p *Producer, createdTopic, cancelledTopic string) *BookingPublisher {
	return &BookingPublisher{Producer: p, CreatedTopic: createdTopic, CancelledTopic: cancelledTopic}
}

// PublishBookingCreated streams the booking creation event to Kafka
func (b *BookingPublisher) PublishBookingCreated(ctx context.Context, booking models.Booking) error {
	return b.publish(ctx, b.CreatedTopic, models.NewBookingEventDto(models.BookingEventCreated, booking))
}

// PublishBookingCancelled streams the booking cancellation event to Kafka
func (b *BookingPublisher) PublishBookingCancelled(ctx context.Context, booking models.Booking) error {
	return b.publish(ctx, b.CancelledTopic, models.NewBookingEventDto(models.BookingEventCancelled, booking))
}

func (b *BookingPublisher) publish(ctx context.Context, topic string, dto models.BookingEventDto) error {
	msgBytes, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", dto.Type, err)
	}
	return b.Producer.Publish(ctx, topic, dto.EventID, msgBytes)
}
