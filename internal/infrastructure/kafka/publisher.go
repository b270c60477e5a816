package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/voltgate/ev-session-service/internal/domain"
)

// SessionEventPublisher emits session lifecycle transitions to a Kafka topic
// consumed by billing and analytics.
type SessionEventPublisher struct {
	writer *kafka.Writer
}

func NewSessionEventPublisher(brokerAddr, topic string) *SessionEventPublisher {
	return &SessionEventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerAddr),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (p *SessionEventPublisher) PublishSessionEvent(event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.IdempotencyKey),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write session event: %w", err)
	}

	slog.Info("session event published",
		"key", event.IdempotencyKey,
		"state", event.State,
	)
	return nil
}

func (p *SessionEventPublisher) Close() error {
	return p.writer.Close()
}
