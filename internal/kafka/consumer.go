package kafka

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer group reader over the given topics.
func NewConsumer(brokers []string, groupID string, topics []string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes messages until ctx is cancelled, invoking handler per
// message. Handler errors are logged and the message is skipped. Returns nil
// after a graceful stop and the read error when the reader is closed.
func (c *Consumer) Start(ctx context.Context, handler func(msg kafka.Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			log.Printf("Error reading message: %v", err)
			continue
		}

		if err := handler(msg); err != nil {
			log.Printf("Failed to handle message on %s: %v", msg.Topic, err)
		}
	}
}

// Close gracefully shuts down the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
